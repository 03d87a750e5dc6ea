// Package webdav serves the DittoDAV handler over HTTP.
package webdav

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/internal/ratelimiter"
	"github.com/marmos91/dittodav/pkg/dav"
	"github.com/marmos91/dittodav/pkg/metrics"
)

// Config holds the HTTP adapter settings.
//
// Default values (applied by New if zero):
//   - Port: 8080
//   - ReadTimeout: 30s
//   - WriteTimeout: 5m (large listings stream for a while)
//   - IdleTimeout: 2m
//   - ShutdownTimeout: 30s
type Config struct {
	// Enabled controls whether the adapter is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the TCP port to listen on.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// BindAddress restricts the listener to one interface. Empty means all.
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"min=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"min=0"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"min=0"`

	// ShutdownTimeout bounds graceful shutdown. In-flight requests still
	// running afterwards are cut off.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig configures request throttling. Zero rates disable it.
type RateLimitConfig struct {
	RequestsPerSecond       float64 `mapstructure:"requests_per_second" yaml:"requests_per_second" validate:"min=0"`
	Burst                   int     `mapstructure:"burst" yaml:"burst" validate:"min=0"`
	GlobalRequestsPerSecond float64 `mapstructure:"global_requests_per_second" yaml:"global_requests_per_second" validate:"min=0"`
	GlobalBurst             int     `mapstructure:"global_burst" yaml:"global_burst" validate:"min=0"`
}

func (c *Config) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Minute
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 {
		return fmt.Errorf("timeouts must be >= 0")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	return nil
}

// Adapter implements adapter.Adapter over net/http.
//
// Shutdown flow:
//  1. ctx cancelled or Stop called
//  2. http.Server.Shutdown stops accepting and waits for in-flight requests
//  3. after ShutdownTimeout remaining connections are closed
type Adapter struct {
	config  Config
	metrics metrics.HTTPMetrics
	limiter *ratelimiter.RateLimiter

	mu     sync.Mutex
	dav    *dav.Server
	server *http.Server
	addr   net.Addr

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates an adapter. A nil httpMetrics disables metrics.
//
// Panics if config validation fails.
func New(config Config, httpMetrics metrics.HTTPMetrics) *Adapter {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid WebDAV config: %v", err))
	}
	if httpMetrics == nil {
		httpMetrics = metrics.NewNoopHTTPMetrics()
	}

	return &Adapter{
		config:  config,
		metrics: httpMetrics,
		limiter: ratelimiter.New(ratelimiter.Config{
			RequestsPerSecond:       config.RateLimit.RequestsPerSecond,
			Burst:                   config.RateLimit.Burst,
			GlobalRequestsPerSecond: config.RateLimit.GlobalRequestsPerSecond,
			GlobalBurst:             config.RateLimit.GlobalBurst,
		}),
	}
}

// SetServer injects the WebDAV handler.
func (a *Adapter) SetServer(srv *dav.Server) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dav = srv
}

// Handler returns the full middleware chain around the WebDAV server.
func (a *Adapter) Handler() http.Handler {
	a.mu.Lock()
	srv := a.dav
	a.mu.Unlock()

	var h http.Handler = srv
	if srv == nil {
		h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "server not configured", http.StatusServiceUnavailable)
		})
	}

	h = a.observe(h)
	h = a.rateLimit(h)
	return withRequestID(h)
}

// Serve listens on the configured address and serves until ctx is cancelled.
func (a *Adapter) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(a.config.BindAddress, fmt.Sprint(a.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("webdav listen %s: %w", addr, err)
	}
	return a.ServeListener(ctx, ln)
}

// ServeListener serves on an existing listener until ctx is cancelled.
func (a *Adapter) ServeListener(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:      a.Handler(),
		ReadTimeout:  a.config.ReadTimeout,
		WriteTimeout: a.config.WriteTimeout,
		IdleTimeout:  a.config.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	a.mu.Lock()
	a.server = server
	a.addr = ln.Addr()
	a.mu.Unlock()

	logger.Info("WebDAV server listening on %s", ln.Addr())

	errChan := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	if a.limiter.Enabled() {
		go a.pruneLoop(ctx)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
		defer cancel()
		return a.Stop(shutdownCtx)
	case err, ok := <-errChan:
		if ok && err != nil {
			return fmt.Errorf("webdav server failed: %w", err)
		}
		return nil
	}
}

func (a *Adapter) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(ratelimiter.DefaultIdleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.limiter.Prune(); n > 0 {
				logger.Debug("WebDAV rate limiter dropped %d idle clients", n)
			}
		}
	}
}

// Stop shuts the server down gracefully. Safe to call multiple times.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	server := a.server
	a.mu.Unlock()
	if server == nil {
		return nil
	}

	a.shutdownOnce.Do(func() {
		logger.Info("WebDAV server shutting down")
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("WebDAV graceful shutdown incomplete, closing connections: %v", err)
			_ = server.Close()
			a.shutdownErr = fmt.Errorf("webdav shutdown: %w", err)
		}
	})
	return a.shutdownErr
}

// Protocol returns "WebDAV".
func (a *Adapter) Protocol() string { return "WebDAV" }

// Port returns the configured port.
func (a *Adapter) Port() int { return a.config.Port }

// Addr returns the listening address, or nil before Serve.
func (a *Adapter) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}
