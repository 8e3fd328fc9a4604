package provider

import (
	"context"

	"github.com/wingman-dev/wingman/pkg/api"
)

// Capability names one thing a backend can do.
type Capability string

const (
	CapabilityText   Capability = "text"
	CapabilityVision Capability = "vision"
)

// CapabilitySet is an adapter's static capability declaration.
type CapabilitySet struct {
	Text   bool
	Vision bool
}

// Has reports whether the set includes the given capability.
func (s CapabilitySet) Has(c Capability) bool {
	switch c {
	case CapabilityText:
		return s.Text
	case CapabilityVision:
		return s.Vision
	}
	return false
}

// Usage holds the token counts reported by a backend for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// CallOptions carries per-call tuning. Zero values mean "adapter default".
type CallOptions struct {
	// Model overrides the adapter's configured model for this call.
	Model string

	// MaxTokens caps the completion length.
	MaxTokens int

	// Temperature, when non-nil, overrides the backend default.
	Temperature *float64
}

// Adapter abstracts an LLM inference backend behind one capability-based
// contract. Implementations must be safe for concurrent use by multiple
// goroutines.
//
// CallText and CallVision fail with taxonomy errors:
// provider_unavailable on transport/auth errors, provider_rate_limited on
// throttling, provider_timeout on deadline expiry, and
// capability_unsupported when the backend lacks the capability. Any other
// error indicates a request-shape problem and propagates without fallback.
type Adapter interface {
	// Name returns the provider identifier (e.g. "openai", "vllm").
	Name() string

	// Capabilities returns the adapter's static capability set.
	Capabilities() CapabilitySet

	// Priority returns the fallback rank; lower ranks are tried first.
	Priority() int

	// Model returns the model id the adapter uses for the given
	// capability, or "" when the capability is not declared.
	Model(c Capability) string

	// CallText performs a text-only completion.
	CallText(ctx context.Context, prompt string, opts CallOptions) (string, Usage, error)

	// CallVision performs a completion over a prompt plus an image.
	// Adapters without vision return capability_unsupported.
	CallVision(ctx context.Context, prompt string, image *api.ImageRef, opts CallOptions) (string, Usage, error)

	// Close releases adapter resources (HTTP clients, connections).
	Close() error
}
