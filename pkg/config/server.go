package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/dav"
	"github.com/marmos91/dittodav/pkg/gc"
	"github.com/marmos91/dittodav/pkg/paginate"
	"github.com/marmos91/dittodav/pkg/server"
)

// InitializeServer builds a ready to serve DittoServer from cfg.
//
// This function orchestrates the complete initialization process:
//  1. Creates the metrics collectors (and the metrics server if enabled)
//  2. Creates the listing engine and the WebDAV server around it
//  3. Opens the pagination store and installs the pagination plugin
//  4. Creates the expired entry collector and the protocol adapters
//
// On error, anything already opened is closed.
func InitializeServer(ctx context.Context, cfg *Config) (*server.DittoServer, error) {
	logger.Debug("Initializing server from configuration")

	m := InitializeMetrics(cfg)

	lister, err := CreateLister(&cfg.Listing)
	if err != nil {
		return nil, err
	}
	davServer := dav.NewServer(lister, nil)

	store, err := CreateStore(ctx, &cfg.Paginate)
	if err != nil {
		return nil, fmt.Errorf("failed to create pagination store: %w", err)
	}
	logger.Info("Pagination store: type=%s codec=%s ttl=%s page_size=%d",
		cfg.Paginate.Store.Type, cfg.Paginate.Codec, cfg.Paginate.TTL, cfg.Paginate.PageSize)

	davServer.Use(paginate.NewPlugin(store, paginate.PluginConfig{
		PageSize: cfg.Paginate.PageSize,
		Registry: davServer.Registry(),
		Metrics:  m.PaginateMetrics,
	}))

	srv := server.New(davServer, store)
	srv.SetStopTimeout(cfg.Server.ShutdownTimeout)
	srv.SetCollector(gc.NewCollector(store, collectorConfig(&cfg.Paginate), m.PaginateMetrics))
	if m.Server != nil {
		srv.SetMetricsServer(m.Server)
	}

	adapters, err := CreateAdapters(cfg, m.HTTPMetrics)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to add %s adapter: %w", a.Protocol(), err)
		}
	}

	return srv, nil
}

// collectorConfig maps the paginate section onto the collector settings.
func collectorConfig(cfg *PaginateConfig) gc.Config {
	return gc.Config{
		Enabled:  !cfg.CleanupDisabled,
		Interval: cfg.CleanupInterval,
		Timeout:  cfg.CleanupTimeout,
	}
}
