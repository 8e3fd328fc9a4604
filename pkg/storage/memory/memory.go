// Package memory provides an in-memory storage.FailureStore for testing
// and lightweight deployments. Records are lost when the process
// restarts. A capacity bound evicts the oldest records first.
package memory

import (
	"context"
	"sync"

	"github.com/wingman-dev/wingman/pkg/storage"
)

// Store is an in-memory FailureStore with bounded capacity.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*storage.FailureRecord
	order   []string // insertion order, oldest first
	maxSize int      // 0 = unlimited
}

// Ensure Store implements storage.FailureStore at compile time.
var _ storage.FailureStore = (*Store)(nil)

// New creates an in-memory store. If maxSize is 0 the store grows
// without limit; otherwise the oldest record is evicted when the limit
// is reached.
func New(maxSize int) *Store {
	return &Store{
		byID:    make(map[string]*storage.FailureRecord),
		maxSize: maxSize,
	}
}

// SaveFailure persists a record in memory.
func (s *Store) SaveFailure(ctx context.Context, rec *storage.FailureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxSize > 0 && len(s.order) >= s.maxSize {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.byID, oldest)
	}

	stored := *rec
	s.byID[rec.ID] = &stored
	s.order = append(s.order, rec.ID)
	return nil
}

// GetFailure retrieves a record by ID.
func (s *Store) GetFailure(ctx context.Context, id string) (*storage.FailureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *rec
	return &out, nil
}

// ListFailures returns up to limit records, newest first.
func (s *Store) ListFailures(ctx context.Context, limit int) ([]*storage.FailureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.order) {
		limit = len(s.order)
	}

	out := make([]*storage.FailureRecord, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		rec := *s.byID[s.order[i]]
		out = append(out, &rec)
	}
	return out, nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *Store) HealthCheck(ctx context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }
