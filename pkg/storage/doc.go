// Package storage defines the failed-output store: one record per
// unrecoverable extraction failure, kept for offline prompt debugging.
//
// Store adapters (memory, postgres) implement the FailureStore interface
// defined here. This package contains only the contract, the record type,
// and shared sentinel errors.
package storage
