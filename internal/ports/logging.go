// Package ports holds the small set of interfaces that cross flowtest's
// package boundaries: the structured logging contract and the lifecycle
// event bus used to drive the run reporter (spec §6).
package ports

import (
	"context"

	"github.com/google/uuid"
)

// Logger defines flowtest's structured logging contract. All log calls take
// key/value pairs, must be safe for concurrent use, and automatically enrich
// entries with a correlation ID when present in context. Common fields
// include suite_id, step_id, and duration_ms for timed operations.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Info(ctx context.Context, msg string, fields ...interface{})
	Warn(ctx context.Context, msg string, fields ...interface{})
	Error(ctx context.Context, msg string, fields ...interface{})
	With(fields ...interface{}) Logger
}

type correlationIDKey struct{}

// WithCorrelationID attaches the provided correlation ID to the context so
// downstream layers can emit correlated logs.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// GetCorrelationID extracts a correlation ID from context, returning an empty
// string when none has been set.
func GetCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

// GenerateCorrelationID produces a new UUIDv4 string suitable for log
// correlation. The CLI entry point invokes this once per run.
func GenerateCorrelationID() string {
	return uuid.New().String()
}
