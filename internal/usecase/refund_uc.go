// File: internal/usecase/refund_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"careera-payments/internal/domain"
	"careera-payments/internal/domain/model"
	"careera-payments/internal/domain/ports/adapter"
	"careera-payments/internal/domain/ports/repository"
	"careera-payments/internal/infra/logging"
	"careera-payments/internal/infra/metrics"
)

// Compile-time check
var _ RefundUseCase = (*refundUC)(nil)

// RefundUseCase is the admin side of refund requests.
type RefundUseCase interface {
	// Review approves or rejects a Requested refund. Approval executes the
	// refund at the provider and records the outcome on the request; the
	// payment transaction itself is left unchanged.
	Review(ctx context.Context, refundID, adminID int64, approve bool, notes string) (*model.RefundRequest, error)
}

type refundUC struct {
	refunds    repository.RefundRepository
	payments   repository.PaymentRepository
	strategies adapter.StrategyResolver
	tm         repository.TransactionManager
	timeout    time.Duration
	now        func() time.Time

	log *zerolog.Logger
}

func NewRefundUseCase(
	refunds repository.RefundRepository,
	payments repository.PaymentRepository,
	strategies adapter.StrategyResolver,
	tm repository.TransactionManager,
	providerTimeout time.Duration,
	logger *zerolog.Logger,
) *refundUC {
	if providerTimeout <= 0 {
		providerTimeout = 15 * time.Second
	}
	return &refundUC{
		refunds:    refunds,
		payments:   payments,
		strategies: strategies,
		tm:         tm,
		timeout:    providerTimeout,
		now:        time.Now,
		log:        logger,
	}
}

func (u *refundUC) Review(ctx context.Context, refundID, adminID int64, approve bool, notes string) (*model.RefundRequest, error) {
	defer logging.TraceDuration(u.log, "RefundUC.Review")()
	log := u.log.With().Int64("refund_id", refundID).Int64("admin_id", adminID).Logger()

	var (
		r *model.RefundRequest
		t *model.PaymentTransaction
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		r, err = u.refunds.FindByID(ctx, tx, refundID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("refund %d: %w", refundID, domain.ErrRefundNotFound)
			}
			return fmt.Errorf("load refund: %w", err)
		}
		at := u.now().UTC()
		if approve {
			err = r.Approve(adminID, notes, at)
		} else {
			err = r.Reject(adminID, notes, at)
		}
		if err != nil {
			return err
		}
		if approve {
			if t, err = u.payments.FindByID(ctx, tx, r.PaymentTransactionID); err != nil {
				return fmt.Errorf("load transaction: %w", err)
			}
		}
		return u.refunds.Update(ctx, tx, r)
	})
	if err != nil {
		return nil, err
	}
	metrics.IncRefundRequest(r.Status.String())
	if !approve {
		log.Info().Msg("refund rejected")
		return r, nil
	}

	// The provider call runs after the approval commits so a slow provider
	// never holds the row lock.
	u.execute(ctx, &log, r, t)

	if err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		return u.refunds.Update(ctx, tx, r)
	}); err != nil {
		log.Error().Err(err).
			Str("status", r.Status.String()).
			Str("refund_ref", r.ProviderRefundReference).
			Msg("refund outcome not persisted")
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	metrics.IncRefundRequest(r.Status.String())
	return r, nil
}

// execute calls the provider and records the outcome on r.
func (u *refundUC) execute(ctx context.Context, log *zerolog.Logger, r *model.RefundRequest, t *model.PaymentTransaction) {
	strategy, err := u.strategies.GetStrategy(t.Provider)
	if err != nil {
		r.MarkFailed(err.Error())
		log.Error().Err(err).Msg("refund failed")
		return
	}
	pctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()
	start := time.Now()
	res, err := strategy.ProcessRefund(pctx, adapter.RefundParams{
		ProviderReference: t.ProviderReference,
		Amount:            r.RefundAmount,
		Currency:          r.Currency,
		Reason:            r.Reason,
		Metadata:          t.ProviderMetadata,
		IdempotencyKey:    "refund-" + strconv.FormatInt(r.ID, 10),
	})
	metrics.ObserveProviderCall(t.Provider.String(), "refund", err == nil && res != nil && res.Success, time.Since(start))
	switch {
	case err != nil:
		r.MarkFailed("provider unavailable: " + err.Error())
		log.Error().Err(err).Msg("refund call failed")
	case !res.Success:
		r.MarkFailed(res.ErrorMessage)
		log.Warn().Str("reason", res.ErrorMessage).Msg("provider declined refund")
	default:
		at := res.ProcessedAt
		if at.IsZero() {
			at = u.now()
		}
		r.MarkProcessed(res.RefundReference, at.UTC())
		log.Info().
			Str("refund_ref", res.RefundReference).
			Str("amount", model.FormatAmount(r.RefundAmount, r.Currency)).
			Msg("refund processed")
	}
}
