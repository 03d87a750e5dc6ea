package config

import (
	"github.com/marmos91/dittodav/pkg/metrics"
	promMetrics "github.com/marmos91/dittodav/pkg/metrics/prometheus"
	"github.com/marmos91/dittodav/pkg/paginate"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// HTTPMetrics is the collector for the WebDAV adapter (never nil)
	HTTPMetrics metrics.HTTPMetrics

	// PaginateMetrics is the collector for the pagination overlay and the
	// store collector (never nil)
	PaginateMetrics paginate.Metrics
}

// InitializeMetrics creates the metrics components for cfg.
//
// When metrics are disabled every collector is a no-op and Server is nil.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			HTTPMetrics:     metrics.NewNoopHTTPMetrics(),
			PaginateMetrics: paginate.NewNoopMetrics(),
		}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server: metrics.NewServer(metrics.ServerConfig{
			Port: cfg.Server.Metrics.Port,
		}),
		HTTPMetrics:     promMetrics.NewHTTPMetrics(),
		PaginateMetrics: promMetrics.NewPaginateMetrics(cfg.Paginate.Store.Type),
	}
}
