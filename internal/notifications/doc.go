// Package notifications publishes generation job alerts to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers never need to check whether alerts are enabled. JobSink adapts a
// Service to the session update stream and fires once per finished job.
package notifications
