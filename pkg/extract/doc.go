// Package extract converts raw model output into typed stage payloads.
//
// Model output is frequently not well-formed JSON: truncated, fenced in
// markdown, using invalid escape sequences, or wrapped in explanatory
// prose. The package applies a fixed-order list of pure string-to-string
// repair transforms, attempts a strict parse of the repaired text, and
// falls back to a depth-tracked scan of the original text for the first
// syntactically complete top-level object.
//
// Every transform is total: it never fails, it only rewrites. Each step
// is exported so it can be unit-tested in isolation.
package extract
