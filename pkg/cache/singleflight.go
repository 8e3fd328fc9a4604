package cache

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wingman-dev/wingman/pkg/api"
	"github.com/wingman-dev/wingman/pkg/debug"
)

// ComputeFunc produces a stage result on a cache miss.
type ComputeFunc func(ctx context.Context) (*api.StageResult, error)

// SingleFlight fronts a Store with per-key flight coalescing: for any
// key, at most one computation runs at a time and concurrent callers
// share its result. A backend failure on Get or Put degrades to a plain
// computation; it never fails the request.
type SingleFlight struct {
	store Store
	group singleflight.Group

	// OnBackendError, when set, observes every backend failure the
	// wrapper degrades over. op is "get" or "put".
	OnBackendError func(op string, err error)
}

// NewSingleFlight wraps store with flight coalescing.
func NewSingleFlight(store Store) *SingleFlight {
	return &SingleFlight{store: store}
}

// GetOrCompute returns the cached result for key, or runs compute once
// and stores the outcome with the given TTL.
//
// The computation runs under the context of the caller that started it.
// Later callers that join the flight only wait: cancellation of a
// waiter abandons the wait but never cancels the computation, and a
// result completed after waiters have left is still stored. Cache hits
// are returned with FromCache set.
func (s *SingleFlight) GetOrCompute(ctx context.Context, key api.CacheKey, ttl time.Duration, compute ComputeFunc) (*api.StageResult, error) {
	if res, err := s.store.Get(ctx, key); err == nil {
		hit := *res
		hit.FromCache = true
		return &hit, nil
	} else if !errors.Is(err, ErrNotFound) {
		s.backendError("get", key, err)
	}

	ch := s.group.DoChan(key.String(), func() (any, error) {
		res, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		// Detach from ctx so the entry lands even when the caller's
		// deadline expires between computation and storage.
		if perr := s.store.Put(context.WithoutCancel(ctx), key, res, ttl); perr != nil {
			s.backendError("put", key, perr)
		}
		return res, nil
	})

	select {
	case <-ctx.Done():
		return nil, api.NewTimeout("abandoned wait for in-flight computation of " + key.String()).WithStage(key.Kind).WithCause(ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := r.Val.(*api.StageResult)
		if r.Shared {
			shared := *res
			return &shared, nil
		}
		return res, nil
	}
}

func (s *SingleFlight) backendError(op string, key api.CacheKey, err error) {
	debug.Log("cache", "cache backend degraded", "op", op, "key", key.String(), "error", err)
	if s.OnBackendError != nil {
		s.OnBackendError(op, err)
	}
}
