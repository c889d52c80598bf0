package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/charlesng35/timecapsule/pkg/errors"
	"github.com/charlesng35/timecapsule/pkg/logger"
	"github.com/charlesng35/timecapsule/pkg/response"
)

// RateLimit limits requests per (client ip, route) to maxRequests within window.
// Store failures let the request through.
func RateLimit(store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	if store == nil {
		store = NewMemoryRateStore()
	}

	return func(c *gin.Context) {
		if maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := c.ClientIP() + "|" + route

		count, ttl, err := store.Increment(c.Request.Context(), key, window)
		if err != nil {
			logger.WithModule("ratelimit").Warn("rate store unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(0, maxRequests-count)))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(math.Ceil(ttl.Seconds()))))

		if count > maxRequests {
			c.Header("Retry-After", strconv.Itoa(max(1, int(math.Ceil(ttl.Seconds())))))
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}

// ClientLimiter hands out one token bucket per client ip. It guards credential
// endpoints against bursts on top of the shared fixed window limit.
type ClientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientBucket
	every    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter allows burst requests per client, refilled at one token per interval.
func NewClientLimiter(interval time.Duration, burst int) *ClientLimiter {
	if interval <= 0 {
		interval = time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	return &ClientLimiter{
		limiters: make(map[string]*clientBucket),
		every:    rate.Every(interval),
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

// Allow reports whether the client may proceed now.
func (l *ClientLimiter) Allow(client string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, bucket := range l.limiters {
		if now.Sub(bucket.lastSeen) > l.idle {
			delete(l.limiters, key)
		}
	}

	bucket, ok := l.limiters[client]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.limiters[client] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}

// Middleware rejects clients that exhausted their bucket with 429.
func (l *ClientLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}
		c.Next()
	}
}
