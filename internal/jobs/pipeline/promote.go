package pipeline

import (
	"time"

	"github.com/carelattice/taxonomy-backend/internal/domain/jobs"
	"github.com/carelattice/taxonomy-backend/internal/jobs/orchestrator"
	"github.com/carelattice/taxonomy-backend/internal/jobs/runtime"
	"github.com/carelattice/taxonomy-backend/internal/observability"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

// promoteRefID is the shared ref for promotion jobs. Promotion converges
// the whole production table, so there is never a reason to run two at once.
const promoteRefID = jobs.PromoteRefID

type promotePipeline struct {
	deps   Deps
	log    *logger.Logger
	engine *orchestrator.Engine
}

// NewPromotePipeline converges the production projection with the current
// set of promotable mappings. The sync is one transaction in the usecase, so
// the pipeline is a single stage with retries.
func NewPromotePipeline(deps Deps) runtime.Handler {
	return &promotePipeline{
		deps:   deps,
		log:    deps.Log.With("job", jobs.KindMappingPromote),
		engine: orchestrator.NewEngine(),
	}
}

func (p *promotePipeline) Kind() string { return jobs.KindMappingPromote }

func (p *promotePipeline) Run(jc *runtime.Context) error {
	t0 := time.Now()
	actor := actorOr(jc, "system:mapping_promote")

	stages := []orchestrator.Stage{
		{
			Name:     "sync_production",
			Timeout:  10 * time.Minute,
			StartPct: 5,
			EndPct:   100,
			Retry: orchestrator.RetryPolicy{
				MaxAttempts: 5,
				Retryable:   retryableLoad,
			},
			Run: func(jc *runtime.Context, st *orchestrator.State) (map[string]any, error) {
				out, err := p.deps.Promotion.SyncProduction(jc.Ctx, actor)
				if err != nil {
					return nil, err
				}
				m := observability.Current()
				m.IncPromotionRun()
				m.AddPromotionChanges("promoted", out.Promoted)
				m.AddPromotionChanges("refreshed", out.Refreshed)
				m.AddPromotionChanges("removed", out.Removed)
				return map[string]any{
					"eligible":  out.Eligible,
					"promoted":  out.Promoted,
					"refreshed": out.Refreshed,
					"removed":   out.Removed,
				}, nil
			},
		},
	}

	err := p.engine.Run(jc, stages, nil)
	observability.Current().ObserveJob(jobs.KindMappingPromote, jobStatus(jc), time.Since(t0))
	return err
}
