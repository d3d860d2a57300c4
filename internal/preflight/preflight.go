// Package preflight verifies the daemon's environment before it starts
// supervising hardware: directories it must write, module entry points it
// will launch, and free space for session data.
package preflight

import (
	"context"

	"conductor/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every applicable check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDiskSpace("Data disk space", cfg.Paths.DataDir),
	}

	for _, moduleID := range sortedModuleIDs(cfg.Modules.EntryPoints) {
		results = append(results, CheckEntryPoint(moduleID, cfg.Modules.EntryPoints[moduleID]))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
