package budget

import (
	"sync"
	"time"
)

const windowSize = 60 * time.Second

// RateLimiter is a sliding-window request limiter keyed by provider name.
// It is the only process-wide shared state in the pipeline and is safe for
// concurrent use across simultaneous runs. Construct one explicitly and
// inject it; there is no package-level instance.
type RateLimiter struct {
	perMinute int
	now       func() time.Time

	mu       sync.Mutex
	requests map[string][]time.Time
}

// NewRateLimiter creates a limiter allowing perMinute requests per key.
// If perMinute <= 0, it defaults to 60.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &RateLimiter{
		perMinute: perMinute,
		now:       time.Now,
		requests:  make(map[string][]time.Time),
	}
}

// Allow records one request for key if the window has room and reports
// whether it was admitted. Entries older than the window are evicted on every
// check, not on a timer.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-windowSize)

	kept := l.requests[key][:0]
	for _, ts := range l.requests[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.requests[key] = kept

	if len(kept) >= l.perMinute {
		return false
	}
	l.requests[key] = append(kept, now)
	return true
}

// Reset clears the window for key, or for all keys when key is empty.
func (l *RateLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if key == "" {
		l.requests = make(map[string][]time.Time)
		return
	}
	delete(l.requests, key)
}
