package server

import (
	"sync"

	"golang.org/x/time/rate"
)

// keyLimiter hands out one token bucket per caller key. Buckets refill
// continuously at the per-minute rate; the burst covers a full minute's
// allowance so a quiet caller can spend it at once.
type keyLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

func newKeyLimiter(perMinute int) *keyLimiter {
	return &keyLimiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   perMinute,
	}
}

func (l *keyLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = b
	}
	return b
}

func (l *keyLimiter) allow(key string) bool {
	return l.bucket(key).Allow()
}

func (l *keyLimiter) tokens(key string) float64 {
	return l.bucket(key).Tokens()
}
