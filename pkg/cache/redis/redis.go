// Package redis provides a cache.Store backed by a Redis server, for
// deployments where several replicas must share one stage cache. Values
// are JSON-encoded stage results; expiry is delegated to Redis TTLs.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wingman-dev/wingman/pkg/api"
	"github.com/wingman-dev/wingman/pkg/cache"
)

// Config describes the Redis connection.
type Config struct {
	Address  string
	Password string
	DB       int
	// KeyPrefix is prepended to every cache key, so one Redis instance
	// can serve several environments. Defaults to "wingman:stage:".
	KeyPrefix string
}

// Store is a Redis-backed cache.Store.
type Store struct {
	client *redis.Client
	prefix string
}

var _ cache.Store = (*Store)(nil)

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address must not be empty")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "wingman:stage:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Address, err)
	}

	return &Store{client: client, prefix: prefix}, nil
}

// Get returns the live entry for key, or cache.ErrNotFound.
func (s *Store) Get(ctx context.Context, key api.CacheKey) (*api.StageResult, error) {
	data, err := s.client.Get(ctx, s.prefix+key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, api.NewCacheBackend("redis get: " + err.Error()).WithCause(err)
	}

	var res api.StageResult
	if err := json.Unmarshal(data, &res); err != nil {
		// A value we cannot decode is as good as absent; the caller
		// recomputes and the bad entry ages out.
		return nil, cache.ErrNotFound
	}
	return &res, nil
}

// Put stores result under key. SETNX keeps an existing live entry in
// place, matching the immutability contract of the in-memory store.
func (s *Store) Put(ctx context.Context, key api.CacheKey, result *api.StageResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding stage result: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.SetNX(ctx, s.prefix+key.String(), data, ttl).Err(); err != nil {
		return api.NewCacheBackend("redis setnx: " + err.Error()).WithCause(err)
	}
	return nil
}

// HealthCheck pings the server.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return api.NewCacheBackend("redis ping: " + err.Error()).WithCause(err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
