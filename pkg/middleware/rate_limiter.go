package middleware

import (
	"sync"
	"time"

	"lighttavern/backend/pkg/errors"
	"lighttavern/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterOptions configures the rate limiter
type RateLimiterOptions struct {
	// Limit defines requests per second
	Limit rate.Limit
	// Burst defines maximum burst size allowed
	Burst int
	// ExpiryDuration defines how long to keep client state in memory
	ExpiryDuration time.Duration
	// KeyFunc extracts the limiting key from a request (e.g. IP, user ID)
	KeyFunc func(*gin.Context) string
}

// DefaultRateLimiterOptions returns sensible defaults
func DefaultRateLimiterOptions() RateLimiterOptions {
	return RateLimiterOptions{
		Limit:          5,
		Burst:          10,
		ExpiryDuration: time.Hour,
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-client token bucket limiter for Gin. Idle client
// state is expired to bound memory.
type RateLimiter struct {
	mu       sync.Mutex
	options  RateLimiterOptions
	visitors map[string]*visitor
	logger   *logger.Logger
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(logger *logger.Logger, options ...RateLimiterOptions) *RateLimiter {
	opts := DefaultRateLimiterOptions()
	if len(options) > 0 {
		opts = options[0]
	}

	return &RateLimiter{
		options:  opts,
		visitors: make(map[string]*visitor),
		logger:   logger,
	}
}

// Middleware returns a Gin middleware enforcing the limit per client key
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	go r.expireVisitors()

	return func(c *gin.Context) {
		key := r.options.KeyFunc(c)

		if !r.limiterFor(key).Allow() {
			r.logger.Warn("Rate limit exceeded",
				"client", key,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			c.Error(errors.NewTooManyRequestsError("RATE_LIMIT_EXCEEDED", "Too many requests. Please try again later."))
			c.Header("Retry-After", "1")
			c.Abort()
			return
		}

		c.Next()
	}
}

func (r *RateLimiter) limiterFor(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, exists := r.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(r.options.Limit, r.options.Burst)}
		r.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (r *RateLimiter) expireVisitors() {
	for {
		time.Sleep(time.Minute)

		r.mu.Lock()
		for key, v := range r.visitors {
			if time.Since(v.lastSeen) > r.options.ExpiryDuration {
				delete(r.visitors, key)
			}
		}
		r.mu.Unlock()
	}
}
