package middleware

import (
	"context"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestAllowLocalThrottles(t *testing.T) {
	rl := &RateLimiter{
		requests: 2,
		window:   time.Minute,
		buckets:  make(map[string]*ipBucket),
	}

	if !rl.allowLocal("1.2.3.4") || !rl.allowLocal("1.2.3.4") {
		t.Fatal("burst requests within the limit were throttled")
	}
	if rl.allowLocal("1.2.3.4") {
		t.Error("third immediate request should be throttled")
	}
	// Another IP has its own bucket.
	if !rl.allowLocal("5.6.7.8") {
		t.Error("fresh IP throttled by a stranger's bucket")
	}
}

func TestPruneOnceEvictsIdleBuckets(t *testing.T) {
	rl := &RateLimiter{
		requests: 2,
		window:   time.Minute,
		buckets:  make(map[string]*ipBucket),
	}
	rl.buckets["stale"] = &ipBucket{
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		lastSeen: time.Now().Add(-2 * idleTTL),
	}
	rl.buckets["fresh"] = &ipBucket{
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		lastSeen: time.Now(),
	}

	rl.pruneOnce()

	if _, ok := rl.buckets["stale"]; ok {
		t.Error("idle bucket survived pruning")
	}
	if _, ok := rl.buckets["fresh"]; !ok {
		t.Error("active bucket was evicted")
	}
}

func TestPruneStopsOnContextCancel(t *testing.T) {
	rl := &RateLimiter{
		requests: 2,
		window:   time.Minute,
		buckets:  make(map[string]*ipBucket),
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rl.prune(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("prune goroutine did not exit on context cancellation")
	}
}
