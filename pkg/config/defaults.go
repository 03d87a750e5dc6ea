package config

import (
	"strings"
	"time"

	"github.com/marmos91/dittodav/pkg/adapter/webdav"
	"github.com/marmos91/dittodav/pkg/paginate"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Backend specific defaults are handled by the store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyListingDefaults(&cfg.Listing)
	applyPaginateDefaults(&cfg.Paginate)
	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

func applyListingDefaults(cfg *ListingConfig) {
	if cfg.Type == "" {
		cfg.Type = "os"
	}
	if cfg.Type == "os" && cfg.Root == "" {
		cfg.Root = "."
	}
}

// applyPaginateDefaults sets overlay and store defaults.
func applyPaginateDefaults(cfg *PaginateConfig) {
	if cfg.PageSize == 0 {
		cfg.PageSize = paginate.DefaultPageSize
	}
	if cfg.TTL == 0 {
		cfg.TTL = paginate.DefaultTTL
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.CleanupTimeout == 0 {
		cfg.CleanupTimeout = 10 * time.Minute
	}
	if cfg.Codec == "" {
		cfg.Codec = paginate.CodecXDR
	}

	applyStoreDefaults(&cfg.Store)
}

// applyStoreDefaults fills every backend section so that a generated
// config file documents all of them.
func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}

	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.SQL == nil {
		cfg.SQL = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	setDefault(cfg.Badger, "db_path", "/tmp/dittodav-paginate")
	setDefault(cfg.SQL, "driver", "sqlite")
	setDefault(cfg.SQL, "dsn", "file:/tmp/dittodav-paginate.db")
	setDefault(cfg.S3, "region", "us-east-1")
	setDefault(cfg.S3, "bucket", "dittodav")
	setDefault(cfg.S3, "key_prefix", "paginate/")
}

func setDefault(m map[string]any, key string, value any) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

// applyAdaptersDefaults enables WebDAV when no adapter was configured.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	// A zero port means the section was absent. Users can still set
	// enabled: false explicitly together with a port.
	if !cfg.WebDAV.Enabled && cfg.WebDAV.Port == 0 {
		cfg.WebDAV.Enabled = true
	}

	applyWebDAVDefaults(&cfg.WebDAV)
}

func applyWebDAVDefaults(cfg *webdav.Config) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
func GetDefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Metrics: MetricsConfig{Enabled: false},
		},
		Adapters: AdaptersConfig{
			WebDAV: webdav.Config{Enabled: true},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
