package ratelimiter

import (
	"context"
	"testing"
	"time"
)

// fakeNow returns a clock function and a way to advance it.
func fakeNow() (func() time.Time, func(time.Duration)) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

// TestDisabled verifies that a zero config admits everything.
func TestDisabled(t *testing.T) {
	limiter := New(Config{})
	if limiter.Enabled() {
		t.Fatal("zero config should be disabled")
	}
	for i := 0; i < 1000; i++ {
		if !limiter.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if limiter.Clients() != 0 {
		t.Fatalf("disabled limiter should not track clients, got %d", limiter.Clients())
	}
}

// TestPerClientBurst verifies that clients are limited independently.
func TestPerClientBurst(t *testing.T) {
	limiter := New(Config{RequestsPerSecond: 10, Burst: 3})
	now, advance := fakeNow()
	limiter.now = now

	for i := 0; i < 3; i++ {
		if !limiter.Allow("a") {
			t.Fatalf("request %d of a should be allowed (within burst)", i)
		}
	}
	if limiter.Allow("a") {
		t.Fatal("a should be limited after its burst")
	}
	if !limiter.Allow("b") {
		t.Fatal("b has its own bucket")
	}

	// 10 req/s refills one token every 100ms.
	advance(100 * time.Millisecond)
	if !limiter.Allow("a") {
		t.Fatal("a should get a token after refill")
	}
}

// TestGlobalLimit verifies that the global bucket caps all clients together.
func TestGlobalLimit(t *testing.T) {
	limiter := New(Config{GlobalRequestsPerSecond: 1, GlobalBurst: 2})
	now, _ := fakeNow()
	limiter.now = now

	if !limiter.Allow("a") || !limiter.Allow("b") {
		t.Fatal("first two requests should fit the global burst")
	}
	if limiter.Allow("c") {
		t.Fatal("third request should hit the global limit")
	}
}

// TestDefaultBurst verifies the burst default of twice the rate.
func TestDefaultBurst(t *testing.T) {
	if got := burstFor(5, 0); got != 10 {
		t.Fatalf("burstFor(5, 0) = %d, want 10", got)
	}
	if got := burstFor(0.2, 0); got != 1 {
		t.Fatalf("burstFor(0.2, 0) = %d, want 1", got)
	}
	if got := burstFor(5, 3); got != 3 {
		t.Fatalf("burstFor(5, 3) = %d, want 3", got)
	}
}

// TestPrune verifies that idle client buckets are dropped.
func TestPrune(t *testing.T) {
	limiter := New(Config{RequestsPerSecond: 10, IdleTTL: time.Minute})
	now, advance := fakeNow()
	limiter.now = now

	limiter.Allow("a")
	advance(30 * time.Second)
	limiter.Allow("b")
	advance(30 * time.Second)

	if removed := limiter.Prune(); removed != 1 {
		t.Fatalf("Prune() removed %d, want 1", removed)
	}
	if limiter.Clients() != 1 {
		t.Fatalf("expected 1 remaining client, got %d", limiter.Clients())
	}
}

// TestWaitContextCancellation verifies that Wait respects cancellation.
func TestWaitContextCancellation(t *testing.T) {
	limiter := New(Config{RequestsPerSecond: 1, Burst: 1})

	if err := limiter.Wait(context.Background(), "a"); err != nil {
		t.Fatalf("first request should succeed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx, "a"); err == nil {
		t.Fatal("Wait() should fail when the deadline is shorter than the refill")
	}
}
