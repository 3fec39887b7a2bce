// middleware/ratelimit.go
package middleware

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiter shapes request volume per client IP. By default it keeps
// process-scoped token buckets (pruned after idleTTL so the map cannot grow
// without bound). When a Redis client is supplied the counters move to
// Redis INCR with a windowed TTL instead, so multiple instances share one
// limit.
type RateLimiter struct {
	requests int
	window   time.Duration

	rdb *redis.Client

	mu      sync.Mutex
	buckets map[string]*ipBucket
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const idleTTL = 10 * time.Minute

func NewRateLimiter(ctx context.Context, requests int, window time.Duration, rdb *redis.Client) *RateLimiter {
	rl := &RateLimiter{
		requests: requests,
		window:   window,
		rdb:      rdb,
		buckets:  make(map[string]*ipBucket),
	}
	if rdb == nil {
		go rl.prune(ctx)
	}
	return rl
}

func (rl *RateLimiter) prune(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.pruneOnce()
		}
	}
}

func (rl *RateLimiter) pruneOnce() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, b := range rl.buckets {
		if time.Since(b.lastSeen) > idleTTL {
			delete(rl.buckets, ip)
		}
	}
}

func (rl *RateLimiter) allowLocal(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[ip]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(
			rate.Every(rl.window/time.Duration(rl.requests)),
			rl.requests,
		)}
		rl.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow()
}

func (rl *RateLimiter) allowRedis(ctx context.Context, ip string) bool {
	windowStart := time.Now().Unix() / int64(rl.window.Seconds())
	key := fmt.Sprintf("ratelimit:%s:%d", ip, windowStart)

	count, err := rl.rdb.Incr(ctx, key).Result()
	if err != nil {
		// Counter store down: let traffic through rather than refusing
		// everyone.
		log.Printf("⚠️ [RATE_LIMIT] redis error, allowing request: %v", err)
		return true
	}
	if count == 1 {
		rl.rdb.Expire(ctx, key, rl.window)
	}
	return count <= int64(rl.requests)
}

// Handler returns the fiber middleware.
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := c.IP()
		allowed := false
		if rl.rdb != nil {
			allowed = rl.allowRedis(c.Context(), ip)
		} else {
			allowed = rl.allowLocal(ip)
		}
		if !allowed {
			log.Printf("🚫 [RATE_LIMIT] %s throttled on %s", ip, c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests",
			})
		}
		return c.Next()
	}
}
