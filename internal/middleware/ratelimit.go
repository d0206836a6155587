package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter enforces a per-client requests-per-minute ceiling. Auth
// endpoints are a brute-force target even with account lockout, so the
// limiter keys on client IP ahead of any account lookup.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	window  time.Duration
	now     func() time.Time
}

type bucket struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a limiter allowing rpm requests per minute per
// client. A non-positive rpm disables limiting.
func NewRateLimiter(rpm int) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rpm,
		window:  time.Minute,
		now:     time.Now,
	}
}

// Allow reports whether one more request from key fits in the current window.
func (l *RateLimiter) Allow(key string) bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) >= l.window {
		l.buckets[key] = &bucket{count: 1, windowStart: now}
		l.maybeSweep(now)
		return true
	}
	if b.count >= l.limit {
		return false
	}
	b.count++
	return true
}

// Handler adapts the limiter to gin.
func (l *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Too many requests. Slow down and retry.",
			})
			return
		}
		c.Next()
	}
}

// maybeSweep drops stale buckets so the map does not grow with one entry per
// client forever. Called with the mutex held.
func (l *RateLimiter) maybeSweep(now time.Time) {
	if len(l.buckets) < 4096 {
		return
	}
	for key, b := range l.buckets {
		if now.Sub(b.windowStart) >= l.window {
			delete(l.buckets, key)
		}
	}
}
