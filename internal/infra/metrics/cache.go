package metrics

import "github.com/prometheus/client_golang/prometheus"

// Lookup outcomes for the redis read-through caches.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheBypass = "bypass" // read inside a transaction goes straight to postgres
)

func init() { declare(cacheLookupsTotal) }

var cacheLookupsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "payments_cache_lookups_total",
		Help: "Read-through cache lookups for users and plans by outcome.",
	},
	[]string{"cache", "outcome"},
)

func ObserveCacheLookup(cache, outcome string) {
	cacheLookupsTotal.WithLabelValues(norm(cache), norm(outcome)).Inc()
}
