package middleware

import (
	"context"

	"github.com/upb/campaign-gateway/models"
	"github.com/upb/campaign-gateway/tokens"
)

// Context key type to avoid collisions
type contextKey string

const (
	// ClaimsKey is the context key for the verified credential
	ClaimsKey contextKey = "claims"

	// PrincipalKey is the context key for the loaded identity and tenant
	PrincipalKey contextKey = "principal"
)

// GetClaimsFromContext retrieves the verified credential from context
func GetClaimsFromContext(ctx context.Context) *tokens.Claims {
	if claims, ok := ctx.Value(ClaimsKey).(*tokens.Claims); ok {
		return claims
	}
	return nil
}

// WithClaims adds the verified credential to the context
func WithClaims(ctx context.Context, claims *tokens.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// WithPrincipal adds the request principal to the context.
// A copy is stored so later stages cannot mutate it.
func WithPrincipal(ctx context.Context, principal models.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// GetPrincipalFromContext retrieves the request principal
func GetPrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	principal, ok := ctx.Value(PrincipalKey).(models.Principal)
	return principal, ok
}

// GetIdentityFromContext retrieves the identity of the authenticated caller
func GetIdentityFromContext(ctx context.Context) (models.Identity, bool) {
	principal, ok := GetPrincipalFromContext(ctx)
	return principal.Identity, ok
}
