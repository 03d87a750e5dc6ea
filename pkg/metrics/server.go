package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/dittodav/internal/logger"
)

// Server exposes the registry over HTTP.
//
// Endpoints:
//   - GET /metrics: Prometheus metrics (503 when metrics are disabled)
//   - GET /healthz: liveness probe
type Server struct {
	server       *http.Server
	port         int
	shutdownOnce sync.Once
}

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	// Port to listen on. Default: 9090
	Port int
}

func (c *ServerConfig) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 9090
	}
}

// NewServer creates a metrics server. Call Start to serve.
func NewServer(config ServerConfig) *Server {
	config.applyDefaults()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		server: server,
		port:   config.Port,
	}
}

// Handler returns the mux served by Server.
func Handler() http.Handler {
	mux := http.NewServeMux()

	if reg := GetRegistry(); reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	} else {
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Metrics collection is disabled", http.StatusServiceUnavailable)
		})
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprintln(w, "ok")
	})
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("metrics server listen: %w", err)
	}
	logger.Info("Metrics server listening on port %d", s.port)

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// ctx is already cancelled; shut down on a fresh deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the server down. Safe to call multiple times.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("metrics server shutdown: %w", err)
			return
		}
		logger.Info("Metrics server stopped")
	})
	return shutdownErr
}

// Port returns the configured TCP port.
func (s *Server) Port() int {
	return s.port
}
