// Package memory provides an in-memory cache.Store for testing and
// single-process deployments. Entries are lost when the process
// restarts. Expired entries are dropped lazily on read and by a
// background sweep.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/wingman-dev/wingman/pkg/api"
	"github.com/wingman-dev/wingman/pkg/cache"
)

// entry holds a stored result and its expiry. A zero expiresAt means
// the entry never expires.
type entry struct {
	result    *api.StageResult
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Store is an in-memory cache.Store.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry

	stopSweep chan struct{}
	sweepOnce sync.Once

	// now is replaceable in tests.
	now func() time.Time
}

// Ensure Store implements cache.Store at compile time.
var _ cache.Store = (*Store)(nil)

// sweepInterval is how often the background sweep removes expired
// entries that no reader has touched.
const sweepInterval = time.Minute

// New creates an in-memory store and starts its expiry sweep.
func New() *Store {
	s := &Store{
		entries:   make(map[string]*entry),
		stopSweep: make(chan struct{}),
		now:       time.Now,
	}
	go s.sweep()
	return s
}

// Get returns the live entry for key, or cache.ErrNotFound.
func (s *Store) Get(ctx context.Context, key api.CacheKey) (*api.StageResult, error) {
	s.mu.RLock()
	e, ok := s.entries[key.String()]
	s.mu.RUnlock()

	if !ok {
		return nil, cache.ErrNotFound
	}
	if e.expired(s.now()) {
		s.mu.Lock()
		// Re-check under the write lock; a writer may have replaced the
		// expired entry in the meantime.
		if cur, ok := s.entries[key.String()]; ok && cur.expired(s.now()) {
			delete(s.entries, key.String())
		}
		s.mu.Unlock()
		return nil, cache.ErrNotFound
	}

	res := *e.result
	return &res, nil
}

// Put stores result under key. A live entry for the same key is left
// in place; expired entries are replaced.
func (s *Store) Put(ctx context.Context, key api.CacheKey, result *api.StageResult, ttl time.Duration) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.entries[key.String()]; ok && !cur.expired(now) {
		return nil
	}

	stored := *result
	e := &entry{result: &stored}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	s.entries[key.String()] = e
	return nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *Store) HealthCheck(ctx context.Context) error { return nil }

// Close stops the expiry sweep.
func (s *Store) Close() error {
	s.sweepOnce.Do(func() { close(s.stopSweep) })
	return nil
}

// Len reports the number of entries currently held, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopSweep:
			return
		case <-ticker.C:
			now := s.now()
			s.mu.Lock()
			for k, e := range s.entries {
				if e.expired(now) {
					delete(s.entries, k)
				}
			}
			s.mu.Unlock()
		}
	}
}
