// Package journal records finished generation jobs in a local SQLite
// database so operators can review past runs and their unfinished targets.
package journal
