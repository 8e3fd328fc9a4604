// Package api defines the core data model shared by every wingman
// component: stage kinds and their typed payloads, cache keys, stage
// results, the pipeline request/result pair, and the error taxonomy.
//
// The package is dependency-free by design. Components communicate
// through these types; none of them reach into another component's
// internals.
package api
