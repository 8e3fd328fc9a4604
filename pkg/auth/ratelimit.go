package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter decides whether an authenticated request may proceed.
type RateLimiter interface {
	// Allow returns ErrTooManyRequests when the identity is over its
	// budget.
	Allow(ctx context.Context, identity *Identity) error
}

// TierConfig holds the request budget for one service tier.
type TierConfig struct {
	RequestsPerMinute int
}

// InProcessLimiter counts requests per subject and tier over a sliding
// one-minute window, all in memory. Suitable for a single replica; a
// shared limiter needs an external store.
type InProcessLimiter struct {
	tiers      map[string]TierConfig
	defaultRPM int

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count     int
	startedAt time.Time
}

// NewInProcessLimiter creates a limiter. Tiers not present in the map
// fall back to defaultRPM; a budget <= 0 disables limiting for the tier.
func NewInProcessLimiter(tiers map[string]TierConfig, defaultRPM int) *InProcessLimiter {
	return &InProcessLimiter{
		tiers:      tiers,
		defaultRPM: defaultRPM,
		windows:    make(map[string]*window),
	}
}

// Allow counts the request against the identity's window. Internal
// bookkeeping never rejects; only an exhausted budget does.
func (l *InProcessLimiter) Allow(_ context.Context, identity *Identity) error {
	tier := identity.Tier()

	rpm := l.defaultRPM
	if tc, ok := l.tiers[tier]; ok {
		rpm = tc.RequestsPerMinute
	}
	if rpm <= 0 {
		return nil
	}

	key := identity.Subject + ":" + tier
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.startedAt) >= time.Minute {
		l.windows[key] = &window{count: 1, startedAt: now}
		return nil
	}

	w.count++
	if w.count > rpm {
		return ErrTooManyRequests
	}
	return nil
}
