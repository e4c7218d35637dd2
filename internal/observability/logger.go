package observability

import (
	"context"

	"github.com/upb/sso-gateway/internal/shared"
	"go.uber.org/zap"
)

// Logger provides structured logging with context awareness.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Field represents a structured log field.
type Field = zap.Field

type zapLogger struct {
	base *zap.Logger
}

// NewLogger wraps a zap logger. A nil logger discards everything.
func NewLogger(base *zap.Logger) Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &zapLogger{base: base}
}

func (l *zapLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.base.Debug(msg, withContext(ctx, fields)...)
}

func (l *zapLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.base.Info(msg, withContext(ctx, fields)...)
}

func (l *zapLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.base.Warn(msg, withContext(ctx, fields)...)
}

func (l *zapLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.base.Error(msg, withContext(ctx, fields)...)
}

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{base: l.base.With(fields...)}
}

// withContext prepends request_id and remote_addr when present
func withContext(ctx context.Context, fields []Field) []Field {
	if ctx == nil {
		return fields
	}
	out := make([]Field, 0, len(fields)+2)
	if id := shared.RequestID(ctx); id != "" {
		out = append(out, zap.String("request_id", id))
	}
	if addr := shared.RemoteAddr(ctx); addr != "" {
		out = append(out, zap.String("remote_addr", addr))
	}
	return append(out, fields...)
}
