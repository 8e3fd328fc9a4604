package auth

import (
	"context"
	"errors"
	"net/http"
)

// AuthDecision is one authenticator's vote on a request.
type AuthDecision int

const (
	// Yes accepts the credentials; the chain stops and the identity
	// attaches to the request.
	Yes AuthDecision = iota

	// No rejects credentials that were present but invalid; the chain
	// stops and the request fails.
	No

	// Abstain passes: the credential type is not this authenticator's to
	// judge. The chain moves on.
	Abstain
)

// AuthResult carries a vote plus its supporting data.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity // set only on Yes
	Err      error     // set only on No
}

// Identity is an authenticated caller.
type Identity struct {
	// Subject uniquely names the caller. Never empty on a Yes vote.
	Subject string

	// ServiceTier selects rate limits and reply generation depth.
	ServiceTier string

	// Scopes lists granted authorization scopes.
	Scopes []string

	// Metadata carries authenticator-specific extras.
	Metadata map[string]string
}

// Tier returns the caller's service tier, or "default" when unset.
// The tier feeds both rate limiting and reply generation depth.
func (id *Identity) Tier() string {
	if id == nil || id.ServiceTier == "" {
		return "default"
	}
	return id.ServiceTier
}

// Authenticator examines request credentials and votes.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

// Sentinel errors.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// AuthChain runs authenticators left to right and settles on the first
// non-abstaining vote.
type AuthChain struct {
	Authenticators []Authenticator

	// DefaultDecision settles a fully abstained chain. Yes admits the
	// request anonymously (development); No rejects it (production).
	DefaultDecision AuthDecision
}

// Authenticate runs the chain.
func (c *AuthChain) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	for _, a := range c.Authenticators {
		if result := a.Authenticate(ctx, r); result.Decision != Abstain {
			return result
		}
	}

	if c.DefaultDecision == Yes {
		return AuthResult{
			Decision: Yes,
			Identity: &Identity{Subject: "anonymous", ServiceTier: "default"},
		}
	}
	return AuthResult{Decision: No, Err: ErrUnauthenticated}
}
