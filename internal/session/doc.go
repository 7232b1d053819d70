// Package session owns the operator's working state: the post cache, the
// follow-up pairing, the topic coordinator and the generation orchestrator.
//
// Reloads and generation poll rounds race against each other. Each takes a
// ticket from one monotonic counter before issuing its request; a reload older
// than the last applied reload is discarded, and a comment is only overwritten
// by a response whose ticket is newer than the one that last wrote it.
//
// Operator actions go through Dispatch, which validates a Command and routes
// it through the action table.
package session
