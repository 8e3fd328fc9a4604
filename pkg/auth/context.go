package auth

import "context"

// identityKey keeps the identity entry private to this package.
type identityKey struct{}

// SetIdentity attaches the authenticated identity to the context. The
// middleware calls this once per admitted request.
func SetIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity attached by the middleware,
// or nil when the request never passed through authentication.
func IdentityFromContext(ctx context.Context) *Identity {
	if v, ok := ctx.Value(identityKey{}).(*Identity); ok {
		return v
	}
	return nil
}
