package auth

import "context"

// Identity is the resolved caller attached to a request by the auth
// middleware. The order engine trusts it for ownership checks and never
// re-authenticates.
type Identity struct {
	UserID string
	Email  string
}

// APIKeyInfo holds the identity data stored for a validated API key.
type APIKeyInfo struct {
	KeyHash string
	UserID  string
	Email   string
	Name    string
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

type identityKey struct{}

// WithIdentity returns a context carrying the given identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext extracts the identity placed by the auth middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
