package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { declare(serviceInfo) }

var serviceInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "payments_service_info",
		Help: "Always 1; labels identify the running binary.",
	},
	[]string{"version", "commit", "go_version"},
)

// SetBuildInfo is called once at startup with the linker-stamped values.
func SetBuildInfo(version, commit string) {
	if version == "" {
		version = "dev"
	}
	serviceInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
}
