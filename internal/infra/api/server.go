package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"careera-payments/internal/infra/metrics"
	"careera-payments/internal/usecase"
)

// RateLimiter is satisfied by redis.RateLimiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Options struct {
	RequestTimeout time.Duration
	// FrontendURL is where browsers land after a provider redirect when the
	// session carries no success URL of its own.
	FrontendURL     string
	RateLimiter     RateLimiter
	VerifyPerMinute int
	Health          map[string]HealthCheck
	// TrustProxy takes the client address from X-Forwarded-For and X-Real-IP.
	// Leave it off unless a proxy in front overwrites those headers.
	TrustProxy bool
}

// Server exposes the payment use cases over HTTP.
type Server struct {
	payments usecase.PaymentUseCase
	refunds  usecase.RefundUseCase
	pricing  usecase.PricingUseCase
	stats    usecase.StatsUseCase
	auth     *Authenticator
	opts     Options
	log      *zerolog.Logger
}

func NewServer(
	payments usecase.PaymentUseCase,
	refunds usecase.RefundUseCase,
	pricing usecase.PricingUseCase,
	stats usecase.StatsUseCase,
	auth *Authenticator,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.VerifyPerMinute <= 0 {
		opts.VerifyPerMinute = 60
	}
	return &Server{
		payments: payments,
		refunds:  refunds,
		pricing:  pricing,
		stats:    stats,
		auth:     auth,
		opts:     opts,
		log:      logger,
	}
}

// Routes builds the router. Webhook routes are unauthenticated; the provider
// signature is their credential.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	if s.opts.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(
		TraceID(),
		RequestLog(s.log),
		Recover(s.log),
		Timeout(s.opts.RequestTimeout),
	)

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/payment", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/pricing", s.handlePricing)
		r.With(s.verifyRateLimit).Post("/verify", s.handleVerify)
		r.Post("/{provider}/webhook", s.handleWebhook)
		r.Get("/stripe/redirect", s.handleStripeRedirect)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(s.auth, s.log))
			r.Post("/create-session", s.handleCreateSession)
			r.Post("/refund-request", s.handleRefundRequest)
			r.Get("/history/{userId}", s.handleHistory)
			r.Get("/{id}", s.handleGetPayment)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(Authenticate(s.auth, s.log), RequireAdmin())
		r.Post("/refunds/{id}/review", s.handleReviewRefund)
		r.Get("/payments/stats", s.handleStats)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: codeNotFound, Message: "route not found"})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(s.opts.Health))
	for name, check := range s.opts.Health {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := check(ctx)
		cancel()
		if err != nil {
			s.log.Warn().Err(err).Str("dependency", name).Msg("health check failed")
			checks[name] = "error"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	body := map[string]any{"status": "ok", "time": time.Now().UTC(), "checks": checks}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	writeJSON(w, status, body)
}
