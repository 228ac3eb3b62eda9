package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { declare(postgresPoolConns) }

// Sampled by the pool watcher in cmd/app every few seconds.
var postgresPoolConns = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "payments_postgres_pool_connections",
		Help: "Postgres pool connections by state: total, idle or acquired.",
	},
	[]string{"state"},
)

func SetDBPoolStats(total, idle, acquired int32) {
	for state, n := range map[string]int32{
		"total":    total,
		"idle":     idle,
		"acquired": acquired,
	} {
		postgresPoolConns.WithLabelValues(state).Set(float64(n))
	}
}
