package logging

import (
	"context"
	"log/slog"
)

type contextKey int

const (
	jobIDKey contextKey = iota
	providerIDKey
	sessionIDKey
)

// WithJobID tags ctx with a processing job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// WithProviderID tags ctx with an AI provider identifier.
func WithProviderID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, providerIDKey, id)
}

// WithSessionID tags ctx with the current sync channel session.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

func stringFromContext(ctx context.Context, key contextKey) (string, bool) {
	value, ok := ctx.Value(key).(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := stringFromContext(ctx, sessionIDKey); ok {
		fields = append(fields, slog.String(FieldSessionID, id))
	}
	if id, ok := stringFromContext(ctx, jobIDKey); ok {
		fields = append(fields, slog.String(FieldJobID, id))
	}
	if id, ok := stringFromContext(ctx, providerIDKey); ok {
		fields = append(fields, slog.String(FieldProviderID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
