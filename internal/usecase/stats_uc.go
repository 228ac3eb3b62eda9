package usecase

import (
	"context"
	"fmt"
	"time"

	"careera-payments/internal/domain"
	"careera-payments/internal/domain/model"
	"careera-payments/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

const maxStatsWindowDays = 366

type StatsUseCase interface {
	// PaymentStats aggregates transactions created in the last days days.
	PaymentStats(ctx context.Context, days int) (*model.PaymentStats, error)
}

type statsUC struct {
	payments repository.PaymentRepository
	now      func() time.Time

	log *zerolog.Logger
}

func NewStatsUseCase(payments repository.PaymentRepository, logger *zerolog.Logger) *statsUC {
	return &statsUC{payments: payments, now: time.Now, log: logger}
}

func (s *statsUC) PaymentStats(ctx context.Context, days int) (*model.PaymentStats, error) {
	if days <= 0 || days > maxStatsWindowDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d", domain.ErrValidation, maxStatsWindowDays)
	}
	since := s.now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -days+1)
	st, err := s.payments.Stats(ctx, repository.NoTX, since)
	if err != nil {
		s.log.Error().Err(err).Time("since", since).Msg("payment stats query failed")
		return nil, fmt.Errorf("payment stats: %w", err)
	}
	return st, nil
}
