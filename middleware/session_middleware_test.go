package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/sso-gateway/auth"
	"github.com/upb/sso-gateway/session"
	"go.uber.org/zap"
)

// MockSessionVerifier is a mock implementation of SessionVerifier
type MockSessionVerifier struct {
	mock.Mock
}

func (m *MockSessionVerifier) Verify(raw string) (*session.Claims, error) {
	args := m.Called(raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Claims), args.Error(1)
}

func sessionClaims() *session.Claims {
	return &session.Claims{
		UserID:    "user-123",
		Email:     "user@contoso.com",
		Name:      "Test User",
		TenantID:  "tenant-1",
		SessionID: "session-1",
	}
}

func assertUnauthorized(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "UNAUTHORIZED", body["code"])
	assert.NotEmpty(t, body["error"])
}

func TestRequireSession(t *testing.T) {
	logger := zap.NewNop()

	t.Run("bearer token allows request", func(t *testing.T) {
		verifier := new(MockSessionVerifier)
		m := NewSessionMiddleware(verifier, logger)
		verifier.On("Verify", "header-token").Return(sessionClaims(), nil)

		handler := m.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := SessionClaims(r.Context())
			require.NotNil(t, claims)
			assert.Equal(t, "user-123", claims.UserID)
			assert.Equal(t, "session-1", claims.SessionID)
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer header-token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		verifier.AssertExpectations(t)
	})

	t.Run("session cookie allows request", func(t *testing.T) {
		verifier := new(MockSessionVerifier)
		m := NewSessionMiddleware(verifier, logger)
		verifier.On("Verify", "cookie-token").Return(sessionClaims(), nil)

		handler := m.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "cookie-token"})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		verifier.AssertExpectations(t)
	})

	t.Run("header takes precedence over cookie", func(t *testing.T) {
		verifier := new(MockSessionVerifier)
		m := NewSessionMiddleware(verifier, logger)
		verifier.On("Verify", "header-token").Return(sessionClaims(), nil)

		handler := m.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "bearer header-token")
		req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "cookie-token"})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		verifier.AssertNotCalled(t, "Verify", "cookie-token")
	})

	t.Run("missing credential returns 401", func(t *testing.T) {
		verifier := new(MockSessionVerifier)
		m := NewSessionMiddleware(verifier, logger)

		handler := m.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assertUnauthorized(t, w)
		verifier.AssertNotCalled(t, "Verify", mock.Anything)
	})

	t.Run("non bearer scheme returns 401", func(t *testing.T) {
		verifier := new(MockSessionVerifier)
		m := NewSessionMiddleware(verifier, logger)

		handler := m.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assertUnauthorized(t, w)
		verifier.AssertNotCalled(t, "Verify", mock.Anything)
	})

	t.Run("invalid session returns 401", func(t *testing.T) {
		verifier := new(MockSessionVerifier)
		m := NewSessionMiddleware(verifier, logger)
		verifier.On("Verify", "expired-token").Return(nil, errors.New("token is expired"))

		handler := m.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodPost, "/refresh-session", nil)
		req.Header.Set("Authorization", "Bearer expired-token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assertUnauthorized(t, w)
		verifier.AssertExpectations(t)
	})
}

func TestSessionIdentity(t *testing.T) {
	t.Run("no claims", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		identity, ok := SessionIdentity(req.Context())
		assert.False(t, ok)
		assert.Nil(t, identity)
	})

	t.Run("complete claims", func(t *testing.T) {
		ctx := WithSessionClaims(httptest.NewRequest(http.MethodGet, "/me", nil).Context(), sessionClaims())
		identity, ok := SessionIdentity(ctx)
		require.True(t, ok)
		assert.Equal(t, "user-123", identity.ID)
		assert.Equal(t, "user@contoso.com", identity.Email)
		assert.Equal(t, "Test User", identity.Name)
		assert.Equal(t, "tenant-1", identity.TenantID)
		assert.Empty(t, identity.GivenName)
	})

	t.Run("empty user id", func(t *testing.T) {
		claims := sessionClaims()
		claims.UserID = ""
		ctx := WithSessionClaims(httptest.NewRequest(http.MethodGet, "/me", nil).Context(), claims)
		_, ok := SessionIdentity(ctx)
		assert.False(t, ok)
	})

	t.Run("empty email", func(t *testing.T) {
		claims := sessionClaims()
		claims.Email = ""
		ctx := WithSessionClaims(httptest.NewRequest(http.MethodGet, "/me", nil).Context(), claims)
		_, ok := SessionIdentity(ctx)
		assert.False(t, ok)
	})
}
