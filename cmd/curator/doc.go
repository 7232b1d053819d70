// Command curator is the operator CLI for the curation backend.
//
// Each invocation loads the configured channel selection, reconciles it with
// the backend and runs one action: listing posts, editing topic membership,
// running a generation job to completion, or serving the local view API.
package main
