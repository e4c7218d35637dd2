package shared

import "context"

// Context keys for request-scoped data. Keep types unexported to avoid collisions.
type ctxKey string

const (
	ctxKeyRequestID  ctxKey = "request-id"
	ctxKeyRemoteAddr ctxKey = "remote-addr"
	ctxKeyUserAgent  ctxKey = "user-agent"
)

// WithRequestID stores the request correlation id
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// RequestID returns the request correlation id, or "" when absent
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID).(string)
	return v
}

// WithRemoteAddr stores the client address without port
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, ctxKeyRemoteAddr, addr)
}

// RemoteAddr returns the client address, or "" when absent
func RemoteAddr(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRemoteAddr).(string)
	return v
}

// WithUserAgent stores the caller's User-Agent header
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// UserAgent returns the caller's User-Agent, or "" when absent
func UserAgent(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyUserAgent).(string)
	return v
}
