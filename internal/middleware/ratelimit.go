package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/logger"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/response"
)

// RateCounter counts hits in a fixed window shared across instances
type RateCounter interface {
	SafeIncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RateLimiter limits requests per authenticated user (or client IP). The
// shared counter is preferred; while it fails, limits are enforced per
// instance from memory.
type RateLimiter struct {
	scope    string
	counter  RateCounter
	fallback *InMemoryRateLimiter
	requests int
	window   time.Duration
}

// NewRateLimiter creates a new rate limiter
// scope: key namespace (e.g. "call_initiate")
// counter: shared counter, may be nil for in-memory only
// requests: maximum number of requests allowed per window
func NewRateLimiter(scope string, counter RateCounter, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		scope:    scope,
		counter:  counter,
		fallback: NewInMemoryRateLimiter(),
		requests: requests,
		window:   window,
	}
}

// Middleware returns a Gin middleware for rate limiting
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := "ip:" + c.ClientIP()
		if userID, exists := c.Get("user_id"); exists {
			identifier = fmt.Sprintf("user:%v", userID)
		}

		count, resetIn := rl.hit(c.Request.Context(), identifier)

		remaining := rl.requests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(resetIn).Unix(), 10))

		if int(count) > rl.requests {
			c.Header("Retry-After", strconv.Itoa(int(resetIn.Seconds())+1))
			response.Error(c, http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) hit(ctx context.Context, identifier string) (int64, time.Duration) {
	key := "ratelimit:" + rl.scope + ":" + identifier
	if rl.counter != nil {
		count, resetIn, err := rl.counter.SafeIncrWindow(ctx, key, rl.window)
		if err == nil {
			return count, resetIn
		}
		logger.FromContext(ctx).Debug("Shared rate limit unavailable, using in-memory fallback",
			zap.String("scope", rl.scope),
			zap.Error(err))
	}
	return rl.fallback.Hit(key, rl.window, time.Now())
}
