package preflight

import (
	"chromascale/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the filesystem checks that apply to cfg.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{CheckDirectoryAccess("Input directory", cfg.Paths.InputDir)}
	if !cfg.Processing.ReplaceInPlace {
		results = append(results, CheckCreatableDirectory("Output directory", cfg.Paths.OutputDir))
	}
	results = append(results, CheckCreatableDirectory("State directory", cfg.Paths.StateDir))
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
