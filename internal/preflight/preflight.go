package preflight

import (
	"context"

	"mediapool/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	results = append(results, CheckVolume("Media pool root", cfg.Paths.MediaPoolRoot))
	results = append(results, CheckVolume("Proxy pool root", cfg.Paths.ProxyPoolRoot))

	if cfg.Journal.Enabled {
		results = append(results, CheckJournal(cfg))
	}

	results = append(results, CheckRsync(ctx, cfg))

	return results
}
