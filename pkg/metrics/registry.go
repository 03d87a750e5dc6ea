// Package metrics provides Prometheus metrics collection for DittoDAV components.
//
// All metrics are optional. If the registry is not initialized, constructors
// return no-op implementations and components run without collection.
//
// Usage:
//
//	metrics.InitRegistry()
//	httpMetrics := prometheus.NewHTTPMetrics()
//	pageMetrics := prometheus.NewPaginateMetrics()
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is written once by InitRegistry and read afterwards.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry, including the Go
// runtime and process collectors. Subsequent calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// GetRegistry returns the global registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
