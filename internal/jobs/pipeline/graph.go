package pipeline

import (
	"time"

	"github.com/carelattice/taxonomy-backend/internal/domain/jobs"
	"github.com/carelattice/taxonomy-backend/internal/jobs/orchestrator"
	"github.com/carelattice/taxonomy-backend/internal/jobs/runtime"
	"github.com/carelattice/taxonomy-backend/internal/observability"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type graphPipeline struct {
	deps   Deps
	log    *logger.Logger
	engine *orchestrator.Engine
}

// NewGraphPipeline mirrors a taxonomy's active hierarchy into the graph
// store after a load changes it. The projection is a full rewrite of the
// taxonomy's subgraph, so replays converge on the same shape.
func NewGraphPipeline(deps Deps) runtime.Handler {
	return &graphPipeline{
		deps:   deps,
		log:    deps.Log.With("job", jobs.KindGraphProject),
		engine: orchestrator.NewEngine(),
	}
}

func (p *graphPipeline) Kind() string { return jobs.KindGraphProject }

func (p *graphPipeline) Run(jc *runtime.Context) error {
	t0 := time.Now()
	taxonomyID, err := refTaxonomyID(jc)
	if err != nil {
		jc.Fail("validate", err)
		observability.Current().ObserveJob(jobs.KindGraphProject, "failed", time.Since(t0))
		return nil
	}

	stages := []orchestrator.Stage{
		{
			Name:     "project",
			Timeout:  10 * time.Minute,
			StartPct: 5,
			EndPct:   100,
			Retry: orchestrator.RetryPolicy{
				MaxAttempts: 4,
				Retryable:   retryableDomain,
				MinBackoff:  5 * time.Second,
				MaxBackoff:  time.Minute,
			},
			Run: func(jc *runtime.Context, st *orchestrator.State) (map[string]any, error) {
				if p.deps.Graph == nil {
					// Workers without a graph store ack the job instead of
					// poisoning the queue.
					return map[string]any{"skipped": "graph store not configured"}, nil
				}
				if err := p.deps.Graph.ProjectTaxonomy(jc.Ctx, taxonomyID); err != nil {
					return nil, err
				}
				return map[string]any{"taxonomy_id": taxonomyID}, nil
			},
		},
	}

	err = p.engine.Run(jc, stages, nil)
	observability.Current().ObserveJob(jobs.KindGraphProject, jobStatus(jc), time.Since(t0))
	return err
}
