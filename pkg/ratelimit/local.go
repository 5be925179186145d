package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// LocalLimiter is an in-process token bucket per key, used when no Redis
// is configured. Limits are per instance.
type LocalLimiter struct {
	config Config
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewLocalLimiter creates a limiter refilling Limit tokens per Window
func NewLocalLimiter(cfg Config) *LocalLimiter {
	return &LocalLimiter{
		config:  cfg.withDefaults(),
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow takes one token from the key's bucket
func (l *LocalLimiter) Allow(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	b, ok := l.buckets[key]
	if !ok {
		every := l.config.Window / time.Duration(l.config.Limit)
		b = &bucket{lim: rate.NewLimiter(rate.Every(every), l.config.Limit)}
		l.buckets[key] = b
	}
	b.seen = now

	allowed := b.lim.AllowN(now, 1)
	remaining := int(b.lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	res := Result{Allowed: allowed, Limit: l.config.Limit, Remaining: remaining}
	if !allowed {
		r := b.lim.ReserveN(now, 1)
		res.ResetAfter = r.DelayFrom(now)
		r.CancelAt(now)
	}
	return res, nil
}

// prune drops buckets idle for a whole window; they would be full anyway
func (l *LocalLimiter) prune(now time.Time) {
	if len(l.buckets) < 1024 {
		return
	}
	for k, b := range l.buckets {
		if now.Sub(b.seen) > l.config.Window {
			delete(l.buckets, k)
		}
	}
}
