// Package ratelimiter throttles requests per client with token buckets.
package ratelimiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultIdleTTL is how long a client bucket is kept after its last use.
const DefaultIdleTTL = 10 * time.Minute

// RateLimiter keeps one token bucket per client key (usually the remote
// address) plus an optional global bucket shared by everybody.
//
// A request is admitted only when both its client bucket and the global
// bucket have a token. Client buckets not used for IdleTTL are dropped by
// Prune.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	perClient rate.Limit
	burst     int
	idleTTL   time.Duration
	global    *rate.Limiter

	mu      sync.Mutex
	clients map[string]*client
	now     func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Config configures a RateLimiter. Zero rates disable the corresponding
// bucket.
type Config struct {
	// RequestsPerSecond is the sustained rate allowed per client.
	RequestsPerSecond float64

	// Burst is the per-client bucket capacity. Zero means
	// max(1, 2*RequestsPerSecond).
	Burst int

	// GlobalRequestsPerSecond caps all clients together.
	GlobalRequestsPerSecond float64

	// GlobalBurst is the global bucket capacity, with the same default rule.
	GlobalBurst int

	// IdleTTL defaults to DefaultIdleTTL.
	IdleTTL time.Duration
}

func burstFor(rps float64, burst int) int {
	if burst > 0 {
		return burst
	}
	return max(1, int(2*rps))
}

// New creates a RateLimiter.
func New(cfg Config) *RateLimiter {
	r := &RateLimiter{
		perClient: rate.Inf,
		burst:     1,
		idleTTL:   cfg.IdleTTL,
		clients:   make(map[string]*client),
		now:       time.Now,
	}
	if r.idleTTL <= 0 {
		r.idleTTL = DefaultIdleTTL
	}
	if cfg.RequestsPerSecond > 0 {
		r.perClient = rate.Limit(cfg.RequestsPerSecond)
		r.burst = burstFor(cfg.RequestsPerSecond, cfg.Burst)
	}
	if cfg.GlobalRequestsPerSecond > 0 {
		r.global = rate.NewLimiter(rate.Limit(cfg.GlobalRequestsPerSecond), burstFor(cfg.GlobalRequestsPerSecond, cfg.GlobalBurst))
	}
	return r
}

// Enabled reports whether any bucket is configured.
func (r *RateLimiter) Enabled() bool {
	return r.perClient != rate.Inf || r.global != nil
}

func (r *RateLimiter) clientLimiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(r.perClient, r.burst)}
		r.clients[key] = c
	}
	c.lastSeen = r.now()
	return c.limiter
}

// Allow consumes a token for key without waiting. It returns false when
// the client or the global bucket is empty.
func (r *RateLimiter) Allow(key string) bool {
	if !r.Enabled() {
		return true
	}

	now := r.now()
	if r.perClient != rate.Inf && !r.clientLimiter(key).AllowN(now, 1) {
		return false
	}
	if r.global != nil && !r.global.AllowN(now, 1) {
		return false
	}
	return true
}

// Wait blocks until key may proceed or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context, key string) error {
	if r.perClient != rate.Inf {
		if err := r.clientLimiter(key).Wait(ctx); err != nil {
			return err
		}
	}
	if r.global != nil {
		return r.global.Wait(ctx)
	}
	return nil
}

// Prune drops client buckets idle for at least IdleTTL and returns how many
// were removed.
func (r *RateLimiter) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.idleTTL)
	removed := 0
	for key, c := range r.clients {
		if !c.lastSeen.After(cutoff) {
			delete(r.clients, key)
			removed++
		}
	}
	return removed
}

// Clients returns the number of tracked client buckets.
func (r *RateLimiter) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
