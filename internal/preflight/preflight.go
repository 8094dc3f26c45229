package preflight

import (
	"context"

	"mediarepo/internal/config"
	"mediarepo/internal/pipeline"
	"mediarepo/internal/store"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// RunAll executes every preflight check for cfg. st may be nil when the
// caller has no open store; clients supplies the service health probes.
func RunAll(ctx context.Context, cfg *config.Config, st *store.Store, clients pipeline.Clients) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
	}
	if st != nil {
		results = append(results, CheckStore(ctx, st))
	}
	for _, svc := range clients.Checkers() {
		if svc.Name == pipeline.ServiceTagger {
			results = append(results, CheckLLM(ctx, cfg.LLM))
			continue
		}
		results = append(results, CheckService(ctx, svc.Name, svc.Checker))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
