package middleware

import (
	"net/http"
	"strings"

	"github.com/upb/sso-gateway/auth"
	"github.com/upb/sso-gateway/internal/shared"
	"github.com/upb/sso-gateway/session"
	"github.com/upb/sso-gateway/utils"
	"go.uber.org/zap"
)

// SessionVerifier verifies application session credentials
type SessionVerifier interface {
	Verify(raw string) (*session.Claims, error)
}

// SessionMiddleware authenticates requests by their session credential
type SessionMiddleware struct {
	verifier SessionVerifier
	logger   *zap.Logger
}

// NewSessionMiddleware creates a new SessionMiddleware
func NewSessionMiddleware(verifier SessionVerifier, logger *zap.Logger) *SessionMiddleware {
	return &SessionMiddleware{
		verifier: verifier,
		logger:   logger,
	}
}

// RequireSession rejects requests without a valid session credential and
// places the verified claims in the request context.
func (m *SessionMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := shared.RequestID(ctx)

		token := extractToken(r)
		if token == "" {
			m.logger.Warn("missing session credential",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path))
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}

		claims, err := m.verifier.Verify(token)
		if err != nil {
			m.logger.Warn("session validation failed",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path),
				zap.Error(err))
			_ = utils.WriteUnauthorized(w, "Invalid or expired session")
			return
		}

		m.logger.Debug("session authenticated",
			zap.String("request_id", requestID),
			zap.String("user_id", claims.UserID),
			zap.String("session_id", claims.SessionID))

		next.ServeHTTP(w, r.WithContext(WithSessionClaims(ctx, claims)))
	})
}

// extractToken reads the session credential from the Authorization header
// ("Bearer TOKEN") or the session cookie. The header takes precedence.
func extractToken(r *http.Request) string {
	if token := extractBearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(auth.SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
