package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wingman-dev/wingman/pkg/api"
)

// RawTextLimit is the number of bytes of raw model output kept per
// record. The full length is recorded separately so the truncation is
// visible.
const RawTextLimit = 4096

// FailureRecord is one unrecoverable extraction failure.
type FailureRecord struct {
	ID               string        `json:"id"`
	Timestamp        time.Time     `json:"timestamp"`
	RequestID        string        `json:"request_id"`
	Stage            api.StageKind `json:"stage"`
	Provider         string        `json:"provider"`
	RawTextTruncated string        `json:"raw_text_truncated"`
	RawTextLength    int           `json:"raw_text_length"`
	ParseError       string        `json:"parse_error"`
}

// NewFailureRecord builds a record for the given failure, truncating the
// raw text to RawTextLimit bytes.
func NewFailureRecord(requestID string, stage api.StageKind, providerName, raw string, parseErr error) *FailureRecord {
	truncated := raw
	if len(truncated) > RawTextLimit {
		truncated = truncated[:RawTextLimit]
	}
	return &FailureRecord{
		ID:               uuid.NewString(),
		Timestamp:        time.Now().UTC(),
		RequestID:        requestID,
		Stage:            stage,
		Provider:         providerName,
		RawTextTruncated: truncated,
		RawTextLength:    len(raw),
		ParseError:       parseErr.Error(),
	}
}

// FailureStore persists failure records.
type FailureStore interface {
	// SaveFailure persists one record.
	SaveFailure(ctx context.Context, rec *FailureRecord) error

	// GetFailure retrieves a record by ID. Returns ErrNotFound when the
	// record does not exist.
	GetFailure(ctx context.Context, id string) (*FailureRecord, error)

	// ListFailures returns up to limit records, newest first.
	ListFailures(ctx context.Context, limit int) ([]*FailureRecord, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
