package storage

import "errors"

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when a failure record does not exist.
	ErrNotFound = errors.New("failure record not found")
)
