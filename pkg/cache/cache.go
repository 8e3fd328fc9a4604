package cache

import (
	"context"
	"errors"
	"time"

	"github.com/wingman-dev/wingman/pkg/api"
)

// ErrNotFound is returned by Get when no live entry exists for the key.
// Expired entries are indistinguishable from absent ones.
var ErrNotFound = errors.New("cache: entry not found")

// Store is the backend contract. Entries are immutable: Put never
// overwrites a live entry, so two concurrent writers racing on the same
// key cannot make readers observe two different results for it.
type Store interface {
	// Get returns the entry for key, or ErrNotFound. Any other error is
	// a backend failure; callers degrade to recomputation.
	Get(ctx context.Context, key api.CacheKey) (*api.StageResult, error)

	// Put stores result under key with the given TTL. If a live entry
	// already exists the call is a no-op and the existing entry stands.
	// ttl <= 0 stores the entry without expiry.
	Put(ctx context.Context, key api.CacheKey, result *api.StageResult, ttl time.Duration) error

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
