package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"careera-payments/internal/config"
	"careera-payments/internal/domain/model"
	"careera-payments/internal/domain/ports/adapter"
	"careera-payments/internal/domain/pricing"
	payAdapters "careera-payments/internal/infra/adapters/payment"
	"careera-payments/internal/infra/api"
	pg "careera-payments/internal/infra/db/postgres"
	httpserver "careera-payments/internal/infra/http"
	"careera-payments/internal/infra/logging"
	"careera-payments/internal/infra/metrics"
	red "careera-payments/internal/infra/redis"
	"careera-payments/internal/infra/sched"
	"careera-payments/internal/infra/worker"
	"careera-payments/internal/usecase"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, secret redaction off)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		stdlog.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("payments service stopped")
	}
	logger.Info().Msg("payments service stopped")
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().
		Str("version", version).
		Str("environment", cfg.Environment).
		Bool("signature_bypass", cfg.SignatureBypassEnabled()).
		Msg("starting payments service")

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	userRepo := pg.NewUserRepoCacheDecorator(pg.NewUserRepo(pool), redisClient, cfg.Redis.TTL, logger)
	planRepo := pg.NewPlanRepoCacheDecorator(pg.NewPlanRepo(pool), redisClient, cfg.Redis.TTL, logger)
	roleRepo := pg.NewRoleRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	payRepo := pg.NewPaymentRepo(pool)
	refundRepo := pg.NewRefundRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Providers ----
	strategies, err := buildStrategies(cfg, logger)
	if err != nil {
		return err
	}

	// ---- Use cases ----
	catalog := pricing.Default()
	activator := usecase.NewSubscriptionActivator(userRepo, roleRepo, planRepo, subRepo, tm, logger)
	paymentUC := usecase.NewPaymentUseCase(payRepo, refundRepo, userRepo, catalog, strategies, activator, tm,
		usecase.PaymentOptions{
			ProviderTimeout: cfg.Payment.ProviderTimeout,
			SessionTTL:      cfg.Payment.SessionTTL,
			WebhookSecrets: map[model.PaymentProvider]string{
				model.ProviderStripe: cfg.Payment.Stripe.WebhookSecret,
				model.ProviderPayPal: cfg.Payment.PayPal.WebhookID,
				model.ProviderPaymob: cfg.Payment.Paymob.HMACSecret,
			},
			SignatureBypass: cfg.SignatureBypassEnabled(),
		}, logger)
	refundUC := usecase.NewRefundUseCase(refundRepo, payRepo, strategies, tm, cfg.Payment.ProviderTimeout, logger)
	pricingUC := usecase.NewPricingUseCase(catalog)
	statsUC := usecase.NewStatsUseCase(payRepo, logger)

	// ---- HTTP ----
	router := api.NewServer(paymentUC, refundUC, pricingUC, statsUC,
		api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		api.Options{
			RequestTimeout:  cfg.HTTP.RequestTimeout,
			FrontendURL:     cfg.HTTP.FrontendURL,
			RateLimiter:     rateLimiter,
			VerifyPerMinute: cfg.RateLimit.VerifyPerMinute,
			TrustProxy:      cfg.HTTP.TrustProxy,
			Health: map[string]api.HealthCheck{
				"postgres": pool.Ping,
				"redis":    redisClient.Ping,
			},
		}, logger)
	srv := httpserver.New(cfg.HTTP, router.Routes(), logger)

	// ---- Background ----
	workers := worker.NewPool(cfg.Scheduler.Workers, logger)
	reconciler := sched.NewPaymentReconciler(paymentUC, workers, cfg.Scheduler.ReconcileCron,
		cfg.Scheduler.StaleAfter, cfg.Scheduler.BatchSize, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		workers.Start(gctx)
		<-gctx.Done()
		workers.Stop()
		return nil
	})
	g.Go(func() error { return reconciler.Start(gctx) })
	g.Go(func() error {
		reportPoolStats(gctx, pool, 15*time.Second)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildStrategies wires one strategy per provider. Providers without
// credentials are skipped, or replaced by the sandbox in development.
func buildStrategies(cfg *config.Config, logger *zerolog.Logger) (*payAdapters.StrategyRegistry, error) {
	sandbox := cfg.IsDevelopment() && cfg.Payment.Sandbox
	timeout := cfg.Payment.ProviderTimeout
	var out []adapter.PaymentProviderStrategy

	add := func(p model.PaymentProvider, configured bool, build func() (adapter.PaymentProviderStrategy, error)) error {
		switch {
		case configured:
			s, err := build()
			if err != nil {
				return fmt.Errorf("%s strategy: %w", p, err)
			}
			out = append(out, s)
		case sandbox:
			logger.Warn().Str("provider", p.String()).Msg("no credentials, using sandbox provider")
			out = append(out, payAdapters.NewSandboxStrategy(p, cfg.HTTP.FrontendURL))
		default:
			logger.Warn().Str("provider", p.String()).Msg("provider disabled, no credentials configured")
		}
		return nil
	}

	if err := add(model.ProviderStripe, cfg.Payment.Stripe.SecretKey != "", func() (adapter.PaymentProviderStrategy, error) {
		return payAdapters.NewStripeStrategy(cfg.Payment.Stripe, cfg.HTTP, timeout, logger)
	}); err != nil {
		return nil, err
	}
	if err := add(model.ProviderPayPal, cfg.Payment.PayPal.ClientID != "", func() (adapter.PaymentProviderStrategy, error) {
		return payAdapters.NewPayPalStrategy(cfg.Payment.PayPal, cfg.HTTP, timeout, logger)
	}); err != nil {
		return nil, err
	}
	if err := add(model.ProviderPaymob, cfg.Payment.Paymob.APIKey != "", func() (adapter.PaymentProviderStrategy, error) {
		return payAdapters.NewPaymobStrategy(cfg.Payment.Paymob, timeout, logger)
	}); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("no payment provider configured")
	}
	return payAdapters.NewStrategyRegistry(out...), nil
}

func reportPoolStats(ctx context.Context, pool *pgxpool.Pool, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s := pool.Stat()
			metrics.SetDBPoolStats(s.TotalConns(), s.IdleConns(), s.AcquiredConns())
		}
	}
}
