package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/adapter"
	"github.com/marmos91/dittodav/pkg/dav"
	"github.com/marmos91/dittodav/pkg/gc"
	"github.com/marmos91/dittodav/pkg/metrics"
	"github.com/marmos91/dittodav/pkg/paginate"
)

// DefaultStopTimeout bounds the shutdown of background services.
const DefaultStopTimeout = 30 * time.Second

// DittoServer runs the protocol adapters serving one dav.Server together
// with the background services the pagination store needs.
//
// Lifecycle:
//  1. New with the WebDAV server and the pagination store
//  2. AddAdapter for each front end, optionally SetCollector and SetMetricsServer
//  3. Serve runs everything until ctx is cancelled or one component fails
//
// When any component fails, every other one is stopped and Serve returns
// the first error. The pagination store is closed when Serve returns.
type DittoServer struct {
	dav   *dav.Server
	store paginate.Store

	mu            sync.Mutex
	adapters      []adapter.Adapter
	collector     *gc.Collector
	metricsServer *metrics.Server
	served        bool

	stopTimeout time.Duration
}

// New creates a server. A nil store means the server has no pagination
// overlay to manage.
//
// Panics if srv is nil.
func New(srv *dav.Server, store paginate.Store) *DittoServer {
	if srv == nil {
		panic("dav server cannot be nil")
	}
	return &DittoServer{
		dav:         srv,
		store:       store,
		adapters:    make([]adapter.Adapter, 0, 2),
		stopTimeout: DefaultStopTimeout,
	}
}

// AddAdapter registers a front end. Protocols and ports must be unique.
func (s *DittoServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		return errors.New("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return errors.New("cannot add adapter after Serve has been called")
	}
	for _, existing := range s.adapters {
		if existing.Protocol() == a.Protocol() {
			return fmt.Errorf("adapter for protocol %s already registered", a.Protocol())
		}
		if existing.Port() == a.Port() {
			return fmt.Errorf("port %d already in use by %s adapter", a.Port(), existing.Protocol())
		}
	}

	a.SetServer(s.dav)
	s.adapters = append(s.adapters, a)
	logger.Info("Registered %s adapter on port %d", a.Protocol(), a.Port())
	return nil
}

// SetCollector registers the expired entry collector.
func (s *DittoServer) SetCollector(c *gc.Collector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collector = c
}

// SetMetricsServer registers the metrics HTTP server.
func (s *DittoServer) SetMetricsServer(m *metrics.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metricsServer = m
}

// SetStopTimeout bounds the shutdown of background services. Non-positive
// values are ignored.
func (s *DittoServer) SetStopTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimeout = d
}

// Adapters returns a copy of the registered adapters.
func (s *DittoServer) Adapters() []adapter.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]adapter.Adapter(nil), s.adapters...)
}

// Serve runs every registered component until ctx is cancelled or one of
// them fails. It returns nil after a shutdown triggered by ctx.
//
// Serve may only be called once.
func (s *DittoServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return errors.New("server is already serving")
	}
	s.served = true
	adapters := append([]adapter.Adapter(nil), s.adapters...)
	collector := s.collector
	metricsServer := s.metricsServer
	s.mu.Unlock()

	if len(adapters) == 0 {
		return errors.New("no adapters registered; call AddAdapter before Serve")
	}

	logger.Info("Starting DittoServer with %d adapter(s)", len(adapters))

	g, gctx := errgroup.WithContext(ctx)

	for _, a := range adapters {
		g.Go(func() error {
			logger.Info("Starting %s adapter on port %d", a.Protocol(), a.Port())
			err := a.Serve(gctx)
			if gctx.Err() != nil {
				return nil
			}
			if err == nil {
				err = errors.New("exited unexpectedly")
			}
			logger.Error("%s adapter failed: %v", a.Protocol(), err)
			return fmt.Errorf("%s adapter: %w", a.Protocol(), err)
		})
	}

	if metricsServer != nil {
		g.Go(func() error { return metricsServer.Start(gctx) })
	}

	if collector != nil {
		collector.Start()
	}

	err := g.Wait()
	if err != nil {
		logger.Error("Shutting down after failure: %v", err)
	} else {
		logger.Info("Shutdown signal received (reason: %v)", context.Cause(ctx))
	}

	s.shutdown(adapters, collector)
	logger.Info("DittoServer stopped")
	return err
}

// shutdown stops the background services, then closes the store.
func (s *DittoServer) shutdown(adapters []adapter.Adapter, collector *gc.Collector) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	// Adapters normally stopped themselves when gctx was cancelled; Stop is
	// idempotent.
	for i := len(adapters) - 1; i >= 0; i-- {
		if err := adapters[i].Stop(ctx); err != nil {
			logger.Error("Error stopping %s adapter: %v", adapters[i].Protocol(), err)
		}
	}

	if collector != nil {
		if err := collector.Stop(ctx); err != nil {
			logger.Warn("Error stopping pagination cleanup: %v", err)
		}
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			logger.Error("Error closing pagination store: %v", err)
		}
	}
}
