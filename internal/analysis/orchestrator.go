package analysis

import (
	"context"
	"errors"
	"sync"

	"clauseguard/internal/logging"
	"clauseguard/internal/types"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxConcurrent bounds in-flight model calls across the fan-out.
const DefaultMaxConcurrent = 5

// ErrAllRolesFailed reports an orchestration-level failure: not one role in
// the batch produced a result. Distinct from content problems, which degrade
// per-role.
var ErrAllRolesFailed = errors.New("all model roles failed")

// Orchestrator fans one analysis context out to multiple roles.
type Orchestrator struct {
	MaxConcurrent int
}

// NewOrchestrator returns an orchestrator with the default concurrency cap.
func NewOrchestrator() *Orchestrator {
	return &Orchestrator{MaxConcurrent: DefaultMaxConcurrent}
}

// AnalyzeParallel runs every role concurrently against the shared context
// and joins all of them. One role's failure or timeout never cancels or
// delays its siblings; only zero successes is an error.
func (o *Orchestrator) AnalyzeParallel(ctx context.Context, actx *AnalysisContext, roles []ModelRole) (map[string]RawModelResult, error) {
	if len(roles) == 0 {
		return nil, ErrAllRolesFailed
	}

	limit := o.MaxConcurrent
	if limit <= 0 {
		limit = DefaultMaxConcurrent
	}

	logging.Analysis("fan-out: %d roles, max %d in flight", len(roles), limit)

	results := make(map[string]RawModelResult, len(roles))
	var mu sync.Mutex

	// Workers never return errors: each failure is recorded as a result so
	// the errgroup context is never cancelled by a sibling.
	eg, egCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, limit)

	for _, role := range roles {
		role := role
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			res := Invoke(egCtx, role, actx)
			mu.Lock()
			results[role.Name] = res
			mu.Unlock()
			return nil
		})
	}

	_ = eg.Wait()

	succeeded := 0
	for _, res := range results {
		if res.Succeeded {
			succeeded++
		}
	}
	logging.Analysis("fan-out joined: %d/%d roles succeeded", succeeded, len(roles))

	if succeeded == 0 {
		return results, ErrAllRolesFailed
	}
	return results, nil
}

// CollectFindings flattens parsed findings from all successful results into
// one candidate list for merging.
func CollectFindings(results map[string]RawModelResult) []types.RiskFinding {
	var out []types.RiskFinding
	for _, res := range results {
		if res.Succeeded {
			out = append(out, res.Findings...)
		}
	}
	return out
}
