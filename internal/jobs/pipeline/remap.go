package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carelattice/taxonomy-backend/internal/domain/jobs"
	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/jobs/orchestrator"
	"github.com/carelattice/taxonomy-backend/internal/jobs/runtime"
	"github.com/carelattice/taxonomy-backend/internal/modules/mapping"
	"github.com/carelattice/taxonomy-backend/internal/observability"
	pkgerrors "github.com/carelattice/taxonomy-backend/internal/pkg/errors"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type remapPipeline struct {
	deps   Deps
	log    *logger.Logger
	engine *orchestrator.Engine
}

// NewRemapPipeline re-runs the matcher cascade over one customer taxonomy
// and hands the outcome to the promotion job. The version row named in the
// payload collects the run's counters, which is how a master bump's fan-out
// rolls up onto the master version.
func NewRemapPipeline(deps Deps) runtime.Handler {
	return &remapPipeline{
		deps:   deps,
		log:    deps.Log.With("job", jobs.KindTaxonomyRemap),
		engine: orchestrator.NewEngine(),
	}
}

func (p *remapPipeline) Kind() string { return jobs.KindTaxonomyRemap }

func (p *remapPipeline) Run(jc *runtime.Context) error {
	t0 := time.Now()
	taxonomyID, err := refTaxonomyID(jc)
	if err != nil {
		jc.Fail("validate", err)
		observability.Current().ObserveJob(jobs.KindTaxonomyRemap, "failed", time.Since(t0))
		return nil
	}
	if taxonomyID == silver.MasterTaxonomyID {
		jc.Fail("validate", fmt.Errorf("%w: master taxonomy is the mapping target, not a source", pkgerrors.ErrInvalidArgument))
		observability.Current().ObserveJob(jobs.KindTaxonomyRemap, "failed", time.Since(t0))
		return nil
	}
	actor := actorOr(jc, "system:taxonomy_remap")

	var versionID *uuid.UUID
	if id, ok := jc.PayloadUUID("version_id"); ok {
		versionID = &id
	}
	var loadID *uuid.UUID
	if id, ok := jc.PayloadUUID("load_id"); ok {
		loadID = &id
	}

	stages := []orchestrator.Stage{
		{
			Name:     "map_nodes",
			Timeout:  30 * time.Minute,
			StartPct: 5,
			EndPct:   90,
			Retry: orchestrator.RetryPolicy{
				MaxAttempts: 3,
				Retryable:   retryableLoad,
				MinBackoff:  10 * time.Second,
				MaxBackoff:  5 * time.Minute,
			},
			Run: func(jc *runtime.Context, st *orchestrator.State) (map[string]any, error) {
				out, err := p.deps.Mapping.MapTaxonomy(jc.Ctx, mapping.MapTaxonomyInput{
					TaxonomyID: taxonomyID,
					VersionID:  versionID,
					LoadID:     loadID,
					Actor:      actor,
					Report: func(done, total int) {
						jc.Progress("map_nodes", scalePct(done, total, 5, 90))
					},
				})
				if err != nil {
					observability.Current().IncRemapRun("failed")
					return nil, err
				}
				s := out.Stats
				m := observability.Current()
				m.IncRemapRun("completed")
				m.AddRemapOutcomes("new", s.New)
				m.AddRemapOutcomes("changed", s.Changed)
				m.AddRemapOutcomes("unchanged", s.Unchanged)
				m.AddRemapOutcomes("unmapped", s.Unmapped)
				m.AddRemapOutcomes("failed", s.Failed)
				m.AddRemapOutcomes("pinned", s.Pinned)
				return map[string]any{
					"processed": s.Processed,
					"new":       s.New,
					"changed":   s.Changed,
					"unchanged": s.Unchanged,
					"unmapped":  s.Unmapped,
					"failed":    s.Failed,
					"pinned":    s.Pinned,
				}, nil
			},
		},
		{
			Name:     "enqueue_promote",
			Timeout:  time.Minute,
			StartPct: 90,
			EndPct:   100,
			Retry: orchestrator.RetryPolicy{
				MaxAttempts: 3,
				Retryable:   retryableDomain,
			},
			Run: func(jc *runtime.Context, st *orchestrator.State) (map[string]any, error) {
				// One promote run per wave: concurrent remaps finishing
				// together collapse onto the shared ref.
				run, err := p.deps.Enqueue.EnqueueOnce(jc.Ctx, jobs.KindMappingPromote, promoteRefID, map[string]any{
					"actor": actor,
				})
				if err != nil {
					return nil, err
				}
				return map[string]any{"promote_enqueued": run != nil}, nil
			},
		},
	}

	err = p.engine.Run(jc, stages, func(jc *runtime.Context, st *orchestrator.State) map[string]any {
		return map[string]any{"taxonomy_id": taxonomyID}
	})
	observability.Current().ObserveJob(jobs.KindTaxonomyRemap, jobStatus(jc), time.Since(t0))
	return err
}
