package preflight

import (
	"context"

	"digitflow/internal/config"
	"digitflow/internal/model"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the local readiness checks for the given config. The
// dataset is only required when no artifact exists yet, because that is the
// only case where the baseline must be trained from it.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Corrections directory", cfg.Paths.CorrectionsDir))

	artifact := CheckArtifact(cfg.Paths.ModelPath)
	results = append(results, artifact)
	if !artifactExists(cfg.Paths.ModelPath) {
		results = append(results, CheckDataset(cfg.Paths.DatasetDir))
	}

	results = append(results, CheckDatabase(ctx, cfg.Paths.DatabasePath))
	return results
}

func artifactExists(path string) bool {
	info, err := model.NewArtifactStore(path, nil, nil).Info()
	return err == nil && info.Exists
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
