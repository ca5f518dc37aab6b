package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter checks whether a request should be allowed based on
// the identity's service tier.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// InProcessLimiter is a fixed-window rate limiter that tracks request
// counts per subject and tier in memory.
type InProcessLimiter struct {
	tiers      map[string]int
	defaultRPM int
	window     time.Duration
	now        func() time.Time

	mu        sync.Mutex
	counters  map[string]*counter
	lastSweep time.Time
}

type counter struct {
	count    int
	windowAt time.Time
}

// NewInProcessLimiter creates a rate limiter from requests-per-minute
// limits keyed by service tier. Identities without a configured tier use
// defaultRPM; a limit of zero or less disables limiting for that tier.
func NewInProcessLimiter(tiers map[string]int, defaultRPM int) *InProcessLimiter {
	return &InProcessLimiter{
		tiers:      tiers,
		defaultRPM: defaultRPM,
		window:     time.Minute,
		now:        time.Now,
		counters:   make(map[string]*counter),
	}
}

// Allow checks if the request is within the rate limit.
func (l *InProcessLimiter) Allow(_ context.Context, identity *Identity) error {
	tier := tierLabel(identity)

	rpm := l.defaultRPM
	if limit, ok := l.tiers[tier]; ok {
		rpm = limit
	}
	if rpm <= 0 {
		return nil
	}

	key := identity.Subject + ":" + tier

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	c, ok := l.counters[key]
	if !ok || now.Sub(c.windowAt) >= l.window {
		l.counters[key] = &counter{count: 1, windowAt: now}
		return nil
	}

	c.count++
	if c.count > rpm {
		return ErrTooManyRequests
	}
	return nil
}

// sweep drops expired windows at most once per window so the counter map
// does not grow with every subject ever seen. Must be called with mu held.
func (l *InProcessLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	for k, c := range l.counters {
		if now.Sub(c.windowAt) >= l.window {
			delete(l.counters, k)
		}
	}
	l.lastSweep = now
}
