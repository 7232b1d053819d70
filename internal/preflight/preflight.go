package preflight

import (
	"context"

	"curator/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	// Warning marks a passing check whose detail deserves attention.
	Warning bool
	Detail  string
}

// RunAll executes every preflight check for cfg. health may be nil, in which
// case the backend check is skipped.
func RunAll(ctx context.Context, cfg *config.Config, health HealthChecker) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckRunLock(cfg.RunLockPath()),
	}
	if health != nil {
		results = append(results, CheckBackend(ctx, cfg.Backend.BaseURL, health))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
