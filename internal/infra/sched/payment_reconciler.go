package sched

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"careera-payments/internal/domain/model"
	"careera-payments/internal/infra/worker"
	"careera-payments/internal/usecase"
)

// Reconciler is the part of the payment use case the sweep needs.
type Reconciler interface {
	ListStalePayments(ctx context.Context, olderThan time.Duration, limit int) ([]*model.PaymentTransaction, error)
	ReconcilePayment(ctx context.Context, t *model.PaymentTransaction) (*usecase.VerifyResult, error)
}

// PaymentReconciler periodically re-verifies Pending/Processing payments whose
// webhook never arrived, and cancels sessions that expired at the provider.
type PaymentReconciler struct {
	uc         Reconciler
	pool       *worker.Pool
	spec       string
	staleAfter time.Duration
	batchSize  int

	cron *cron.Cron
	log  *zerolog.Logger
}

func NewPaymentReconciler(uc Reconciler, pool *worker.Pool, spec string, staleAfter time.Duration, batchSize int, logger *zerolog.Logger) *PaymentReconciler {
	if spec == "" {
		spec = "@every 5m"
	}
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	l := logger.With().Str("component", "payment-reconciler").Logger()
	return &PaymentReconciler{uc: uc, pool: pool, spec: spec, staleAfter: staleAfter, batchSize: batchSize, log: &l}
}

// Start schedules the sweep and blocks until ctx is cancelled, then waits for
// the running sweep to finish.
func (w *PaymentReconciler) Start(ctx context.Context) error {
	w.cron = cron.New(cron.WithChain(
		cron.Recover(cronLogger{w.log}),
		cron.SkipIfStillRunning(cronLogger{w.log}),
	))
	if _, err := w.cron.AddFunc(w.spec, func() { w.RunOnce(ctx) }); err != nil {
		return err
	}
	w.cron.Start()
	w.log.Info().Str("schedule", w.spec).Dur("stale_after", w.staleAfter).Msg("reconciler started")

	<-ctx.Done()
	<-w.cron.Stop().Done()
	return nil
}

// RunOnce performs a single sweep and returns the number of transactions whose
// status changed.
func (w *PaymentReconciler) RunOnce(ctx context.Context) int {
	stale, err := w.uc.ListStalePayments(ctx, w.staleAfter, w.batchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("list stale payments failed")
		return 0
	}
	if len(stale) == 0 {
		return 0
	}

	var (
		mu      sync.Mutex
		changed int
		wg      sync.WaitGroup
	)
	for _, t := range stale {
		t := t
		wg.Add(1)
		err := w.pool.SubmitWait(ctx, func(ctx context.Context) error {
			defer wg.Done()
			res, err := w.uc.ReconcilePayment(ctx, t)
			if err != nil {
				return err
			}
			if res.Status != t.Status {
				mu.Lock()
				changed++
				mu.Unlock()
				w.log.Info().
					Int64("tx_id", t.ID).
					Str("from", t.Status.String()).
					Str("to", res.Status.String()).
					Msg("payment reconciled")
			}
			return nil
		})
		if err != nil {
			wg.Done()
			w.log.Warn().Err(err).Int64("tx_id", t.ID).Msg("reconcile not scheduled")
			break
		}
	}
	wg.Wait()
	w.log.Debug().Int("scanned", len(stale)).Int("changed", changed).Msg("reconcile sweep done")
	return changed
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ l *zerolog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
