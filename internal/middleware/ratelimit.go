package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	appErrors "github.com/noah-isme/asterism/pkg/errors"
	"github.com/noah-isme/asterism/pkg/response"
)

// RateLimiter enforces per-key request rates with token buckets.
type RateLimiter struct {
	limiters sync.Map // key -> *limiterEntry
	r        rate.Limit
	burst    int
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing perMinute requests per key with
// the given burst. perMinute <= 0 disables limiting.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 5
	}
	r := rate.Limit(0)
	if perMinute > 0 {
		r = rate.Limit(float64(perMinute) / 60.0)
	}
	return &RateLimiter{r: r, burst: burst, now: time.Now}
}

// Enabled reports whether the limiter is active.
func (rl *RateLimiter) Enabled() bool { return rl != nil && rl.r > 0 }

// Allow reports whether a request for key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	if !rl.Enabled() {
		return true
	}
	entry := rl.entry(key)
	entry.mu.Lock()
	entry.lastSeen = rl.now()
	entry.mu.Unlock()
	return entry.limiter.Allow()
}

// Cleanup drops keys idle for longer than idle and returns how many were removed.
func (rl *RateLimiter) Cleanup(idle time.Duration) int {
	cutoff := rl.now().Add(-idle)
	removed := 0
	rl.limiters.Range(func(key, value any) bool {
		entry := value.(*limiterEntry)
		entry.mu.Lock()
		stale := entry.lastSeen.Before(cutoff)
		entry.mu.Unlock()
		if stale {
			rl.limiters.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// RunCleanup prunes idle keys every interval until ctx is done.
func (rl *RateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	if !rl.Enabled() {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup(2 * interval)
		}
	}
}

func (rl *RateLimiter) entry(key string) *limiterEntry {
	if v, ok := rl.limiters.Load(key); ok {
		return v.(*limiterEntry)
	}
	actual, _ := rl.limiters.LoadOrStore(key, &limiterEntry{limiter: rate.NewLimiter(rl.r, rl.burst)})
	return actual.(*limiterEntry)
}

// KeyFunc derives the rate limit key of a request.
type KeyFunc func(c *gin.Context) string

// ByClientIP keys requests by remote address.
func ByClientIP(c *gin.Context) string { return c.ClientIP() }

// ByParam keys requests by a path parameter, so clients sharing one address
// are limited separately.
func ByParam(name string) KeyFunc {
	return func(c *gin.Context) string {
		return name + ":" + c.Param(name)
	}
}

// ByUsername keys requests by the authenticated user, falling back to the
// client address.
func ByUsername(c *gin.Context) string {
	if username := Username(c); username != "" {
		return "user:" + username
	}
	return "ip:" + ByClientIP(c)
}

// RateLimit rejects requests over the limit with 429.
func RateLimit(rl *RateLimiter, key KeyFunc, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if !rl.Enabled() {
			c.Next()
			return
		}
		k := key(c)
		if !rl.Allow(k) {
			logger.Warn("rate limited", zap.String("key", k), zap.String("path", c.FullPath()))
			c.Header("Retry-After", "60")
			response.Error(c, appErrors.ErrTooManyRequests)
			c.Abort()
			return
		}
		c.Next()
	}
}
