package auth

import (
	"context"
	"time"
)

// Identity is what the session gate hands to downstream handlers.
type Identity struct {
	UserID   int64
	Username string
	Email    string
	Token    string // raw bearer token, needed by logout

	// ExpiresAt is the stored expiry of Token.
	ExpiresAt time.Time
}

type contextKey string

// IdentityKey is the context key for the authenticated identity.
const IdentityKey = contextKey("identity")

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

// IdentityFromContext returns the identity stored by the session gate.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(Identity)
	return id, ok
}
