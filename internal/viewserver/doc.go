// Package viewserver exposes the session over a local HTTP API: the rendered
// view, job progress, an incremental event feed, the action dispatch table
// and Prometheus metrics.
package viewserver
