package middleware

import (
	"context"

	"github.com/upb/sso-gateway/models"
	"github.com/upb/sso-gateway/session"
)

// Context key type to avoid collisions
type contextKey string

// SessionClaimsKey is the context key for verified session claims
const SessionClaimsKey contextKey = "session_claims"

// WithSessionClaims adds verified session claims to the context
func WithSessionClaims(ctx context.Context, claims *session.Claims) context.Context {
	return context.WithValue(ctx, SessionClaimsKey, claims)
}

// SessionClaims retrieves the verified session claims from context
func SessionClaims(ctx context.Context) *session.Claims {
	if val := ctx.Value(SessionClaimsKey); val != nil {
		if claims, ok := val.(*session.Claims); ok {
			return claims
		}
	}
	return nil
}

// SessionIdentity builds the caller's identity from the session claims in
// context. It reports false when no session is present or when user id or
// email is empty.
func SessionIdentity(ctx context.Context) (*models.IdentityRecord, bool) {
	claims := SessionClaims(ctx)
	if claims == nil || claims.UserID == "" || claims.Email == "" {
		return nil, false
	}
	return claims.Identity(), true
}
