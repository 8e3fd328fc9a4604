// Package apikey authenticates bearer tokens against a static key set.
// Keys are hashed with SHA-256 at construction; lookups compare hashes
// in constant time so timing does not leak which key came close.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/wingman-dev/wingman/pkg/auth"
)

// RawKeyEntry pairs one plaintext key with the identity it grants.
// This is the configuration-facing shape; the plaintext never outlives New.
type RawKeyEntry struct {
	Key      string
	Identity auth.Identity
}

type hashedKey struct {
	sum      [sha256.Size]byte
	identity auth.Identity
}

// Authenticator validates bearer tokens against the hashed key set.
type Authenticator struct {
	keys []hashedKey
}

// New builds an authenticator from raw entries, hashing each key
// immediately.
func New(entries []RawKeyEntry) *Authenticator {
	a := &Authenticator{keys: make([]hashedKey, 0, len(entries))}
	for _, e := range entries {
		a.keys = append(a.keys, hashedKey{
			sum:      sha256.Sum256([]byte(e.Key)),
			identity: e.Identity,
		})
	}
	return a
}

// Authenticate votes Yes for a known bearer token, No for an unknown
// one, and Abstain when the request carries no bearer credential at all
// so other chain members get their turn.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	token, ok := bearerToken(r)
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if token == "" {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	sum := sha256.Sum256([]byte(token))

	// Every stored hash is compared; no early exit on match.
	var found *auth.Identity
	for i := range a.keys {
		if subtle.ConstantTimeCompare(sum[:], a.keys[i].sum[:]) == 1 && found == nil {
			id := a.keys[i].identity
			found = &id
		}
	}
	if found != nil {
		return auth.AuthResult{Decision: auth.Yes, Identity: found}
	}
	return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(header, "Bearer "), true
}
