package api

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes pipeline failures.
type ErrorKind string

const (
	// Adapter-level kinds, recovered by fallback ordering.
	ErrorProviderUnavailable   ErrorKind = "provider_unavailable"
	ErrorProviderRateLimited   ErrorKind = "provider_rate_limited"
	ErrorProviderTimeout       ErrorKind = "provider_timeout"
	ErrorCapabilityUnsupported ErrorKind = "capability_unsupported"

	// Extractor-level, fatal for the stage once repair is exhausted.
	ErrorUnparsableOutput ErrorKind = "unparsable_model_output"

	// Pipeline-level, from caller deadline expiry.
	ErrorTimeout ErrorKind = "timeout"

	// Cache backend failures degrade to recomputation; this kind is
	// counted and logged but never surfaced to the caller.
	ErrorCacheBackend ErrorKind = "cache_backend"

	// Request-shape problems. These recur across backends, so they
	// propagate immediately without fallback.
	ErrorInvalidRequest ErrorKind = "invalid_request"

	// Unexpected internal failures (recovered panics, store faults that
	// reach the surface).
	ErrorInternal ErrorKind = "internal"
)

// Error is the single user-visible failure shape: it names the failed
// stage and the error kind. No partial reply is ever returned disguised
// as success.
type Error struct {
	Kind     ErrorKind `json:"kind"`
	Stage    StageKind `json:"stage,omitempty"`
	Provider string    `json:"provider,omitempty"`
	Param    string    `json:"param,omitempty"`
	Message  string    `json:"message"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Stage != "" && e.Provider != "":
		return fmt.Sprintf("%s: stage %s, provider %s: %s", e.Kind, e.Stage, e.Provider, e.Message)
	case e.Stage != "":
		return fmt.Sprintf("%s: stage %s: %s", e.Kind, e.Stage, e.Message)
	case e.Param != "":
		return fmt.Sprintf("%s: %s (param: %s)", e.Kind, e.Message, e.Param)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether the error kind is recoverable by trying the
// next fallback candidate.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case ErrorProviderUnavailable, ErrorProviderRateLimited, ErrorProviderTimeout:
		return true
	}
	return false
}

// WithStage returns a copy of the error annotated with the stage it
// occurred in. The original is not modified.
func (e *Error) WithStage(stage StageKind) *Error {
	clone := *e
	clone.Stage = stage
	return &clone
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *Error) WithCause(cause error) *Error {
	clone := *e
	clone.cause = cause
	return &clone
}

// KindOf returns the ErrorKind of err, or empty string for errors outside
// the taxonomy.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// NewProviderUnavailable creates an error for transport or auth failures
// against a backend.
func NewProviderUnavailable(provider, message string) *Error {
	return &Error{Kind: ErrorProviderUnavailable, Provider: provider, Message: message}
}

// NewProviderRateLimited creates an error for backend throttling.
func NewProviderRateLimited(provider, message string) *Error {
	return &Error{Kind: ErrorProviderRateLimited, Provider: provider, Message: message}
}

// NewProviderTimeout creates an error for a backend deadline expiry.
func NewProviderTimeout(provider, message string) *Error {
	return &Error{Kind: ErrorProviderTimeout, Provider: provider, Message: message}
}

// NewCapabilityUnsupported creates an error for a capability the backend
// lacks (e.g. vision on a text-only adapter).
func NewCapabilityUnsupported(provider, message string) *Error {
	return &Error{Kind: ErrorCapabilityUnsupported, Provider: provider, Message: message}
}

// NewUnparsableOutput creates an error for model output that survived no
// repair step. Message should carry the abandoned step and a truncated
// excerpt; the full raw text goes to the failed-output store, not here.
func NewUnparsableOutput(message string) *Error {
	return &Error{Kind: ErrorUnparsableOutput, Message: message}
}

// NewTimeout creates an error for pipeline-level deadline expiry.
func NewTimeout(message string) *Error {
	return &Error{Kind: ErrorTimeout, Message: message}
}

// NewCacheBackend creates an error for a failing cache backend.
func NewCacheBackend(message string) *Error {
	return &Error{Kind: ErrorCacheBackend, Message: message}
}

// NewInvalidRequest creates an error for a request-shape problem.
func NewInvalidRequest(param, message string) *Error {
	return &Error{Kind: ErrorInvalidRequest, Param: param, Message: message}
}

// NewInternal creates an error for an unexpected internal failure.
func NewInternal(message string) *Error {
	return &Error{Kind: ErrorInternal, Message: message}
}
