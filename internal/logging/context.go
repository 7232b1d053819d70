package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldJobID identifies a generation job.
	FieldJobID = "job_id"
	// FieldMessageID identifies a post by its global message id.
	FieldMessageID = "message_id"
	// FieldTopic is the user-facing topic name.
	FieldTopic = "topic"
	// FieldRequestID is the X-Request-ID sent with a backend call.
	FieldRequestID = "request_id"
	// FieldEventType classifies warnings and errors for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step for the operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

type contextKey int

const (
	jobIDKey contextKey = iota
	requestIDKey
)

// WithJobID stores a generation job id on ctx.
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext returns the job id stored by WithJobID.
func JobIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(jobIDKey).(string)
	return id, ok && id != ""
}

// WithRequestID stores a backend request id on ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id stored by WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if id, ok := JobIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldJobID, id))
	}
	if id, ok := RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRequestID, id))
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
