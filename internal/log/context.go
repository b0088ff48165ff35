package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const invocationIDKey ctxKey = "invocation_id"

// ContextWithInvocationID stores a command invocation id in ctx.
func ContextWithInvocationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, invocationIDKey, id)
}

// InvocationIDFromContext returns the invocation id stored in ctx, if any.
func InvocationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(invocationIDKey).(string)
	return id
}

// WithContext enriches logger with the invocation id carried by ctx.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if id := InvocationIDFromContext(ctx); id != "" {
		return logger.With().Str("invocation_id", id).Logger()
	}
	return logger
}
