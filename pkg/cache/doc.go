// Package cache defines the stage cache contract: a content-addressed
// store mapping stage cache keys to previously computed stage results,
// with a time-to-live and a single-flight front that guarantees at most
// one computation per key.
//
// Backends (memory, redis) only implement Get/Put; the single-flight
// discipline, cross-flow key sharing, and degradation on backend failure
// live in this package and apply uniformly to every backend.
package cache
