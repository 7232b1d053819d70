package logging

import (
	"context"
	"log/slog"
	"slices"
	"time"
)

// Attr aliases slog.Attr so callers only import this package.
type Attr = slog.Attr

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

// Error records err under "error"; nil becomes an empty string.
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Args converts attributes into the variadic form accepted by slog methods.
func Args(attrs ...Attr) []any {
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	return args
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(discard{})
}

// NewComponentLogger tags logger with a component name. A nil logger
// yields a discarding one.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(slog.String(FieldComponent, component))
}

var warningDefaults = []Attr{
	slog.String(FieldErrorHint, "see curator.log for details"),
	slog.String(FieldImpact, "operation continued with warnings"),
}

// WarnWithContext logs a warning that always carries event_type, error_hint
// and impact. Missing fields get generic defaults.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	has := func(key string) bool {
		return slices.ContainsFunc(attrs, func(a Attr) bool { return a.Key == key })
	}
	if !has(FieldEventType) {
		attrs = append(attrs, slog.String(FieldEventType, eventType))
	}
	for _, fallback := range warningDefaults {
		if !has(fallback.Key) {
			attrs = append(attrs, fallback)
		}
	}
	logger.LogAttrs(context.Background(), slog.LevelWarn, msg, attrs...)
}

type discard struct{}

func (discard) Enabled(context.Context, slog.Level) bool  { return false }
func (discard) Handle(context.Context, slog.Record) error { return nil }
func (d discard) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discard) WithGroup(string) slog.Handler           { return d }
