package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marmos91/dittodav/pkg/adapter/webdav"
)

// Config represents the complete DittoDAV configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags bound by the caller (highest priority)
//  2. Environment variables (DITTODAV_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each pagination store backend defines its own configuration type. The
// Paginate section carries one map per backend and only the map matching
// the selected type is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Listing selects the tree served by PROPFIND
	Listing ListingConfig `mapstructure:"listing" yaml:"listing"`

	// Paginate configures the pagination overlay and its result store
	Paginate PaginateConfig `mapstructure:"paginate" yaml:"paginate"`

	// Adapters contains protocol adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters" yaml:"adapters"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// MetricsConfig controls the metrics HTTP server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// ListingConfig selects the filesystem the listing engine walks.
type ListingConfig struct {
	// Type is "os" for a directory on disk or "memory" for an empty
	// in-memory tree.
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=os memory"`

	// Root is the served directory. Only used when Type = "os".
	Root string `mapstructure:"root" yaml:"root" validate:"required_if=Type os"`
}

// PaginateConfig configures the pagination overlay.
type PaginateConfig struct {
	// PageSize is the number of results returned by the first response.
	PageSize int `mapstructure:"page_size" yaml:"page_size" validate:"required,gt=0"`

	// TTL is the age at which stored results expire.
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl" validate:"required,gt=0"`

	// CleanupInterval is the period of the expired entry collector.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval" validate:"min=0"`

	// CleanupDisabled turns off the periodic collector. Expired entries are
	// still never returned, they just stay on disk.
	CleanupDisabled bool `mapstructure:"cleanup_disabled" yaml:"cleanup_disabled"`

	// CleanupTimeout bounds one cleanup run.
	CleanupTimeout time.Duration `mapstructure:"cleanup_timeout" yaml:"cleanup_timeout" validate:"min=0"`

	// Codec encodes items for the persistent backends
	// Valid values: xdr, msgpack
	Codec string `mapstructure:"codec" yaml:"codec" validate:"required,oneof=xdr msgpack"`

	// Store specifies the store type and type-specific configuration
	Store StoreConfig `mapstructure:"store" yaml:"store"`
}

// StoreConfig selects a pagination store backend.
type StoreConfig struct {
	// Type specifies which store implementation to use
	// Valid values: memory, badger, sqlstore, s3
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger sqlstore s3"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory,omitempty"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger,omitempty"`

	// SQL contains bun-specific configuration
	// Only used when Type = "sqlstore"
	SQL map[string]any `mapstructure:"sqlstore" yaml:"sqlstore,omitempty"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3,omitempty"`
}

// AdaptersConfig contains all protocol adapter configurations.
type AdaptersConfig struct {
	// WebDAV uses the adapter's own config type to avoid duplication.
	WebDAV webdav.Config `mapstructure:"webdav" yaml:"webdav"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns the loaded and validated configuration.
func Load(configPath string) (*Config, error) {
	return LoadWithViper(viper.New(), configPath)
}

// LoadWithViper is Load on a caller supplied viper instance, so that CLI
// flags bound to v take precedence over file and environment values.
func LoadWithViper(v *viper.Viper, configPath string) (*Config, error) {
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DITTODAV_PAGINATE_PAGE_SIZE=50
	v.SetEnvPrefix("DITTODAV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// envKeys are the scalar settings that can be set from the environment
// without appearing in the config file.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.shutdown_timeout",
	"server.metrics.enabled",
	"server.metrics.port",
	"listing.type",
	"listing.root",
	"paginate.page_size",
	"paginate.ttl",
	"paginate.cleanup_interval",
	"paginate.cleanup_timeout",
	"paginate.cleanup_disabled",
	"paginate.codec",
	"paginate.store.type",
	"adapters.webdav.enabled",
	"adapters.webdav.port",
	"adapters.webdav.bind_address",
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittodav")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittodav")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
