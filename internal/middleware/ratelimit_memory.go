package middleware

import (
	"sync"
	"time"
)

// InMemoryRateLimiter provides per-instance fixed-window counting
type InMemoryRateLimiter struct {
	mu        sync.Mutex
	limits    map[string]*windowCount
	lastPrune time.Time
}

type windowCount struct {
	count int64
	start time.Time
}

// NewInMemoryRateLimiter creates a new in-memory rate limiter
func NewInMemoryRateLimiter() *InMemoryRateLimiter {
	return &InMemoryRateLimiter{
		limits: make(map[string]*windowCount),
	}
}

// Hit counts one request for key and returns the count in the current
// window and the time until it resets
func (im *InMemoryRateLimiter) Hit(key string, window time.Duration, now time.Time) (int64, time.Duration) {
	im.mu.Lock()
	defer im.mu.Unlock()

	if now.Sub(im.lastPrune) > window {
		for k, w := range im.limits {
			if now.Sub(w.start) >= window {
				delete(im.limits, k)
			}
		}
		im.lastPrune = now
	}

	w, ok := im.limits[key]
	if !ok || now.Sub(w.start) >= window {
		w = &windowCount{start: now}
		im.limits[key] = w
	}
	w.count++
	return w.count, window - now.Sub(w.start)
}
