package realtime

import (
	"sync"

	"golang.org/x/time/rate"
)

// publishLimiter keeps one token bucket per topic.
type publishLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newPublishLimiter(rps float64, burst int) *publishLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &publishLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

func (pl *publishLimiter) getLimiter(topic string) *rate.Limiter {
	pl.mu.RLock()
	limiter, exists := pl.limiters[topic]
	pl.mu.RUnlock()

	if exists {
		return limiter
	}

	pl.mu.Lock()
	defer pl.mu.Unlock()

	if limiter, exists := pl.limiters[topic]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(pl.rate, pl.burst)
	pl.limiters[topic] = limiter
	return limiter
}

// Allow reports whether a publish to topic may proceed. A nil limiter allows everything.
func (pl *publishLimiter) Allow(topic string) bool {
	if pl == nil {
		return true
	}
	return pl.getLimiter(topic).Allow()
}
