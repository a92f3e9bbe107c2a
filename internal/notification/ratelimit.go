package notification

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// targetLimiter keeps one token bucket per notification target
type targetLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// newTargetLimiter allows perMinute sends per target; zero disables limiting
func newTargetLimiter(perMinute int) *targetLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &targetLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

func (l *targetLimiter) Allow(target string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[target]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[target] = lim
	}
	return lim.Allow()
}
