// Package gc removes expired pagination entries in the background.
//
// Stores never return expired entries, so collection only reclaims space.
// It can run at any interval without affecting what clients see.
package gc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/paginate"
)

// Default collector settings.
const (
	DefaultInterval = 5 * time.Minute
	DefaultTimeout  = 10 * time.Minute
)

// Collector periodically calls Cleanup on a pagination store.
//
// Thread Safety: Safe for concurrent use.
type Collector struct {
	store   paginate.Store
	config  Config
	metrics paginate.Metrics

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	mu        sync.Mutex
	stopCh    chan struct{}
	doneCh    chan struct{}
	last      *Stats
}

// Config contains configuration for the collector.
type Config struct {
	// Enabled controls whether periodic collection runs. RunNow works either way.
	Enabled bool

	// Interval is how often to run Cleanup (default: 5m)
	Interval time.Duration

	// Timeout bounds a single Cleanup call (default: 10m)
	Timeout time.Duration
}

// NewCollector creates a collector for store. It does not start it.
// A nil metrics disables metrics collection.
func NewCollector(store paginate.Store, config Config, metrics paginate.Metrics) *Collector {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if metrics == nil {
		metrics = paginate.NewNoopMetrics()
	}

	return &Collector{
		store:   store,
		config:  config,
		metrics: metrics,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins background collection. Subsequent calls are no-ops.
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Info("Pagination cleanup disabled")
		return
	}

	c.startOnce.Do(func() {
		c.mu.Lock()
		c.started = true
		c.mu.Unlock()

		logger.Info("Starting pagination cleanup: interval=%s timeout=%s", c.config.Interval, c.config.Timeout)
		go c.worker()
	})
}

// Stop stops the collector and waits for an in-progress run to finish or
// for ctx to expire. Safe to call multiple times.
func (c *Collector) Stop(ctx context.Context) error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return nil
	}

	c.stopOnce.Do(func() { close(c.stopCh) })

	select {
	case <-c.doneCh:
		logger.Info("Pagination cleanup stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Pagination cleanup shutdown timeout")
		return ctx.Err()
	}
}

// RunNow runs Cleanup once and blocks until it returns.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	return c.collect(ctx)
}

// LastRun returns the statistics of the most recent run, or nil.
func (c *Collector) LastRun() *Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
			stats, err := c.collect(ctx)
			cancel()

			if err != nil {
				logger.Error("Pagination cleanup failed: %v", err)
			} else if stats.Removed > 0 {
				logger.Info("Pagination cleanup completed: %s", stats.Summary())
			} else {
				logger.Debug("Pagination cleanup completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

func (c *Collector) collect(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}

	removed, err := c.store.Cleanup(ctx)
	stats.EndTime = time.Now()
	stats.Removed = removed
	c.metrics.ObserveCleanup(removed, stats.Duration(), err)

	c.mu.Lock()
	c.last = stats
	c.mu.Unlock()

	if err != nil {
		return stats, fmt.Errorf("cleanup: %w", err)
	}
	return stats, nil
}

// Stats describes one collection run.
type Stats struct {
	StartTime time.Time
	EndTime   time.Time
	Removed   int // expired entries deleted
}

// Duration returns the total collection duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the run.
func (s *Stats) Summary() string {
	return fmt.Sprintf("removed=%s duration=%s", humanize.Comma(int64(s.Removed)), s.Duration())
}
