// Package logging assembles structured slog loggers and attribute helpers used
// across curator.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so the session controller and
// the generation orchestrator tag log lines with job and request identifiers.
// The package also provides a no-op logger for tests and wiring code that
// cannot fail.
package logging
