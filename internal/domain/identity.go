package domain

import "context"

// Role names recognized by the gateway. Backends may define finer-grained
// roles; the gateway only compares strings.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity is the authenticated principal derived once per request from a
// verified token. It is immutable for the request's lifetime and never
// persisted by the gateway.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// identityKey is the context key for the resolved identity.
type identityKey struct{}

// WithIdentity returns a context carrying the resolved identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom retrieves the resolved identity from context.
// Returns nil if no identity is set.
func IdentityFrom(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityKey{}).(*Identity); ok {
		return id
	}
	return nil
}
