// Package preflight provides readiness checks for the backend and the local
// paths curator depends on.
//
// The doctor command prints every result; serve and generate refuse to start
// when a required check fails.
package preflight
