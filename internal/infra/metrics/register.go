package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	publishOnce sync.Once
	declared    []prometheus.Collector
)

// declare queues collectors from a file's init; they stay private until MustRegister.
func declare(cs ...prometheus.Collector) {
	declared = append(declared, cs...)
}

// MustRegister publishes every declared collector on the default registry.
// Repeat calls do nothing.
func MustRegister() {
	publishOnce.Do(func() {
		prometheus.MustRegister(declared...)
	})
}
