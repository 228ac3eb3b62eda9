package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	declare(
		subscriptionActivationsTotal,
		roleAssignFailuresTotal,
		refundRequestsTotal,
		reconcilerRunsTotal,
	)
}

var (
	// kind: created|extended
	subscriptionActivationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_activations_total",
			Help: "Subscriptions created or extended by completed payments.",
		},
		[]string{"kind"},
	)

	// Users left with an active subscription but without the premium role.
	roleAssignFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscription_role_assign_failures_total",
			Help: "Premium role assignments that failed during activation.",
		},
	)

	refundRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refund_requests_total",
			Help: "Refund requests by resulting status.",
		},
		[]string{"status"},
	)

	// outcome: completed|failed|cancelled|pending|error
	reconcilerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_reconciler_items_total",
			Help: "Open transactions examined by the reconciler, by outcome.",
		},
		[]string{"outcome"},
	)
)

func IncSubscriptionActivation(kind string) {
	subscriptionActivationsTotal.WithLabelValues(norm(kind)).Inc()
}

func IncRoleAssignFailure() { roleAssignFailuresTotal.Inc() }

func IncRefundRequest(status string) {
	refundRequestsTotal.WithLabelValues(norm(status)).Inc()
}

func IncReconciled(outcome string) {
	reconcilerRunsTotal.WithLabelValues(norm(outcome)).Inc()
}
