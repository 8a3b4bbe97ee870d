package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc names the bucket a request draws from.
type KeyFunc func(*gin.Context) string

// KeyByUserOrIP keys authenticated callers by user id and everyone else by
// client IP. The prefixes keep the two namespaces apart.
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if uid := UserID(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

// RateOption tunes a RateLimiter.
type RateOption func(*RateLimiter)

// WithWriteCost makes mutating requests (POST, PUT, PATCH, DELETE) draw n
// tokens instead of one. Sending messages or friend requests in a loop
// drains a bucket faster than scrolling the feed does. Values below 1 are
// ignored; values above the burst are capped at the burst.
func WithWriteCost(n int) RateOption {
	return func(rl *RateLimiter) {
		if n >= 1 {
			rl.writeCost = n
		}
	}
}

// WithIdleEviction drops buckets untouched for d. Default 10 minutes.
func WithIdleEviction(d time.Duration) RateOption {
	return func(rl *RateLimiter) {
		if d > 0 {
			rl.idleAfter = d
		}
	}
}

func withClock(now func() time.Time) RateOption {
	return func(rl *RateLimiter) { rl.now = now }
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a process-local token bucket per caller. Idempotent replays
// are answered before it runs and never spend tokens.
type RateLimiter struct {
	limit     rate.Limit
	burst     int
	writeCost int
	idleAfter time.Duration
	key       KeyFunc
	now       func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter refills rps tokens per second into buckets holding up to
// burst tokens (at least 1).
func NewRateLimiter(rps float64, burst int, key KeyFunc, opts ...RateOption) *RateLimiter {
	rl := &RateLimiter{
		limit:     rate.Limit(rps),
		burst:     max(burst, 1),
		writeCost: 1,
		idleAfter: 10 * time.Minute,
		key:       key,
		now:       time.Now,
		buckets:   make(map[string]*bucket),
	}
	for _, o := range opts {
		o(rl)
	}
	rl.writeCost = min(rl.writeCost, rl.burst)
	rl.lastSweep = rl.now()
	return rl
}

// limiter returns the bucket for key. Idle buckets are swept at most once
// per idle period, before the lookup, so a stale bucket starts over full.
func (rl *RateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.idleAfter {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.idleAfter {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

func (rl *RateLimiter) cost(method string) int {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return rl.writeCost
	}
	return 1
}

// Handler rejects callers whose bucket cannot cover the request with 429
// rate_limited. Retry-After carries the whole seconds until it can.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := rl.now()
		res := rl.limiter(rl.key(c), now).ReserveN(now, rl.cost(c.Request.Method))

		if res.OK() {
			delay := res.DelayFrom(now)
			if delay == 0 {
				c.Next()
				return
			}
			res.CancelAt(now)
			secs := max(int(math.Ceil(delay.Seconds())), 1)
			c.Header("Retry-After", strconv.Itoa(secs))
		}

		rid, _ := c.Get(requestIDKey)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": asString(rid),
			"code":       "rate_limited",
			"message":    "too many requests, slow down",
		})
	}
}
