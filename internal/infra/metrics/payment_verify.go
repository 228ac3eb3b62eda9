package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	declare(
		PaymentVerifyRequests,
		PaymentVerifyDuration,
		webhookEventsTotal,
		providerCallDuration,
	)
}

var (
	// Count of verify calls grouped by result and bounded reason.
	// result: ok|fail
	// reason: completed|duplicate|pending|failed|cancelled|not_found|bad_signature|provider_error|internal
	PaymentVerifyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_verify_requests_total",
			Help: "Count of payment verifications by result and reason.",
		},
		[]string{"result", "reason"},
	)

	PaymentVerifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_verify_duration_seconds",
			Help:    "Duration of payment verification in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"result"},
	)

	// result: accepted|duplicate|rejected
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_events_total",
			Help: "Provider webhook deliveries by provider and outcome.",
		},
		[]string{"provider", "result"},
	)

	providerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_provider_call_duration_seconds",
			Help:    "Latency of outbound provider calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		},
		[]string{"provider", "operation", "success"},
	)
)

func ObserveVerify(result, reason string, d time.Duration) {
	PaymentVerifyRequests.WithLabelValues(norm(result), norm(reason)).Inc()
	PaymentVerifyDuration.WithLabelValues(norm(result)).Observe(d.Seconds())
}

func IncWebhook(provider, result string) {
	webhookEventsTotal.WithLabelValues(norm(provider), norm(result)).Inc()
}

func ObserveProviderCall(provider, operation string, success bool, d time.Duration) {
	s := "false"
	if success {
		s = "true"
	}
	providerCallDuration.WithLabelValues(norm(provider), norm(operation), s).Observe(d.Seconds())
}
