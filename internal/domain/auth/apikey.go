// Package auth identifies API callers.
package auth

import (
	"context"
	"slices"
)

// APIKeyInfo holds the identity and permission data for a validated API key.
// UserID is the storefront user that orders placed with the key belong to.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	UserID  string
	Scopes  []string
}

// HasScope reports whether the key grants scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, scope)
}

// Scopes granted to API keys.
const (
	ScopeCreateOrder  = "create_order"
	ScopeReadOrder    = "read_order"
	ScopeUpdateStatus = "update_order_status"
)

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

type identityKey struct{}

// WithIdentity returns a context carrying the authenticated key.
func WithIdentity(ctx context.Context, info *APIKeyInfo) context.Context {
	return context.WithValue(ctx, identityKey{}, info)
}

// IdentityFromContext returns the authenticated key, if any.
func IdentityFromContext(ctx context.Context) (*APIKeyInfo, bool) {
	info, ok := ctx.Value(identityKey{}).(*APIKeyInfo)
	return info, ok && info != nil
}
