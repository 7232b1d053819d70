// Package feed defines the shared post, channel and topic data model consumed
// from the curation backend, plus the session-scoped post cache that keeps the
// server-ordered post list and its 1-based display positions.
package feed
