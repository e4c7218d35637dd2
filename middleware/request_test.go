package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/sso-gateway/internal/shared"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestContext(t *testing.T) {
	var gotID, gotAddr, gotUA string
	handler := chimw.RequestID(RequestContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = shared.RequestID(r.Context())
		gotAddr = shared.RemoteAddr(r.Context())
		gotUA = shared.UserAgent(r.Context())
	})))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(chimw.RequestIDHeader, "req-42")
	req.Header.Set("User-Agent", "portal/1.0")
	req.RemoteAddr = "10.0.0.7:5150"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "req-42", gotID)
	assert.Equal(t, "10.0.0.7", gotAddr)
	assert.Equal(t, "portal/1.0", gotUA)
	assert.Equal(t, "req-42", w.Header().Get(chimw.RequestIDHeader))
}

func TestRequestContext_RealIP(t *testing.T) {
	var gotAddr string
	handler := chimw.RealIP(RequestContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAddr = shared.RemoteAddr(r.Context())
	})))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "203.0.113.9", gotAddr)
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	t.Run("success logs at info", func(t *testing.T) {
		handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))

		req := httptest.NewRequest(http.MethodPost, "/refresh-session", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
		fields := entries[0].ContextMap()
		assert.Equal(t, "POST", fields["method"])
		assert.Equal(t, "/refresh-session", fields["path"])
		assert.Equal(t, int64(http.StatusUnauthorized), fields["status"])
	})

	t.Run("implicit 200", func(t *testing.T) {
		handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, int64(http.StatusOK), entries[0].ContextMap()["status"])
		assert.Equal(t, int64(2), entries[0].ContextMap()["bytes"])
	})

	t.Run("server error logs at error", func(t *testing.T) {
		handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/validate-sso", nil))

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	})
}
