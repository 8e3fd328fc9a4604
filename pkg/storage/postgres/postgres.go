// Package postgres provides a PostgreSQL implementation of
// storage.FailureStore. It uses pgx/v5 for connection pooling and applies
// embedded schema migrations on startup.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wingman-dev/wingman/pkg/api"
	"github.com/wingman-dev/wingman/pkg/storage"
)

// Store is a PostgreSQL-backed FailureStore.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements storage.FailureStore at compile time.
var _ storage.FailureStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// SaveFailure persists one failure record.
func (s *Store) SaveFailure(ctx context.Context, rec *storage.FailureRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO extraction_failures (
			id, created_at, request_id, stage, provider,
			raw_text_truncated, raw_text_length, parse_error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		rec.ID, rec.Timestamp, rec.RequestID, string(rec.Stage), rec.Provider,
		rec.RawTextTruncated, rec.RawTextLength, rec.ParseError,
	)
	if err != nil {
		return fmt.Errorf("inserting failure record: %w", err)
	}
	return nil
}

// GetFailure retrieves a record by ID.
func (s *Store) GetFailure(ctx context.Context, id string) (*storage.FailureRecord, error) {
	var rec storage.FailureRecord
	var stage string

	err := s.pool.QueryRow(ctx, `
		SELECT id, created_at, request_id, stage, provider,
		       raw_text_truncated, raw_text_length, parse_error
		FROM extraction_failures
		WHERE id = $1
	`, id).Scan(
		&rec.ID, &rec.Timestamp, &rec.RequestID, &stage, &rec.Provider,
		&rec.RawTextTruncated, &rec.RawTextLength, &rec.ParseError,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying failure record: %w", err)
	}

	rec.Stage = api.StageKind(stage)
	return &rec, nil
}

// ListFailures returns up to limit records, newest first. limit <= 0
// falls back to a page of 100.
func (s *Store) ListFailures(ctx context.Context, limit int) ([]*storage.FailureRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, created_at, request_id, stage, provider,
		       raw_text_truncated, raw_text_length, parse_error
		FROM extraction_failures
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying failure records: %w", err)
	}
	defer rows.Close()

	var out []*storage.FailureRecord
	for rows.Next() {
		var rec storage.FailureRecord
		var stage string
		if err := rows.Scan(
			&rec.ID, &rec.Timestamp, &rec.RequestID, &stage, &rec.Provider,
			&rec.RawTextTruncated, &rec.RawTextLength, &rec.ParseError,
		); err != nil {
			return nil, fmt.Errorf("scanning failure record: %w", err)
		}
		rec.Stage = api.StageKind(stage)
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating failure records: %w", err)
	}
	return out, nil
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
