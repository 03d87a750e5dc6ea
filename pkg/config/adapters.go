package config

import (
	"fmt"

	"github.com/marmos91/dittodav/pkg/adapter"
	"github.com/marmos91/dittodav/pkg/adapter/webdav"
	"github.com/marmos91/dittodav/pkg/metrics"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// httpMetrics may be nil, which disables request metrics.
func CreateAdapters(cfg *Config, httpMetrics metrics.HTTPMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.WebDAV.Enabled {
		adapters = append(adapters, webdav.New(cfg.Adapters.WebDAV, httpMetrics))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
