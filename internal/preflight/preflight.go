package preflight

import (
	"context"

	"vidgrab/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the checks that apply to cfg: directory access for every
// configured path, free space in the work directory, and reachability of
// the manifest API when that backend is selected.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
	}
	if cfg.Storage.Backend == config.StorageLocal {
		results = append(results, CheckDirectoryAccess("Artifact directory", cfg.Paths.ArtifactDir))
	}
	if cfg.Jobs.MinFreeMiB > 0 {
		results = append(results, CheckFreeSpace("Work disk", cfg.Paths.WorkDir, cfg.Jobs.MinFreeMiB*1024*1024))
	}
	if cfg.Resolver.Backend == config.ResolverHTTP {
		results = append(results, CheckManifestAPI(ctx, cfg.Resolver.ManifestURL))
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
