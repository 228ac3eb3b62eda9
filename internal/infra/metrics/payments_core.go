package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func init() {
	declare(
		paymentsTotal,
		paymentsRevenueTotal,
		paymentAmountMismatchTotal,
		paymentSessionsOrphanedTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment transactions by provider and resulting status (pending/completed/failed/cancelled).",
		},
		[]string{"provider", "status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total monetary value of completed payments, labeled by currency.",
		},
		[]string{"currency"},
	)

	paymentAmountMismatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_amount_mismatch_total",
			Help: "Verifications where the provider amount differed from the stored amount.",
		},
		[]string{"provider"},
	)

	// Provider accepted a session but the local insert failed.
	paymentSessionsOrphanedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_sessions_orphaned_total",
			Help: "Provider sessions created without a local transaction row.",
		},
		[]string{"provider"},
	)
)

func IncPayment(provider, status string) {
	paymentsTotal.WithLabelValues(norm(provider), norm(status)).Inc()
}

func AddPaymentRevenue(currency string, amount decimal.Decimal) {
	f, _ := amount.Float64()
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(f)
}

func IncAmountMismatch(provider string) {
	paymentAmountMismatchTotal.WithLabelValues(norm(provider)).Inc()
}

func IncOrphanedSession(provider string) {
	paymentSessionsOrphanedTotal.WithLabelValues(norm(provider)).Inc()
}
