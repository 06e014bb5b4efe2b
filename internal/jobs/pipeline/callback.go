package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carelattice/taxonomy-backend/internal/domain/bronze"
	"github.com/carelattice/taxonomy-backend/internal/domain/jobs"
	"github.com/carelattice/taxonomy-backend/internal/jobs/orchestrator"
	"github.com/carelattice/taxonomy-backend/internal/jobs/runtime"
	"github.com/carelattice/taxonomy-backend/internal/observability"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type callbackPipeline struct {
	deps   Deps
	log    *logger.Logger
	engine *orchestrator.Engine
}

// NewCallbackPipeline delivers a finalized load's outcome to the callback
// URL captured when the load was opened. Delivery is at-least-once: the body
// is rebuilt from the database on every attempt, so a retry after a crash
// reports the same terminal state.
func NewCallbackPipeline(deps Deps) runtime.Handler {
	return &callbackPipeline{
		deps:   deps,
		log:    deps.Log.With("job", jobs.KindLoadCallback),
		engine: orchestrator.NewEngine(),
	}
}

func (p *callbackPipeline) Kind() string { return jobs.KindLoadCallback }

func (p *callbackPipeline) Run(jc *runtime.Context) error {
	t0 := time.Now()
	loadID, err := refLoadID(jc)
	if err != nil {
		jc.Fail("validate", err)
		observability.Current().ObserveJob(jobs.KindLoadCallback, "failed", time.Since(t0))
		return nil
	}

	stages := []orchestrator.Stage{
		{
			Name:     "deliver",
			Timeout:  2 * time.Minute,
			StartPct: 10,
			EndPct:   100,
			Retry: orchestrator.RetryPolicy{
				MaxAttempts: 6,
				Retryable:   retryableDomain,
				MinBackoff:  5 * time.Second,
				MaxBackoff:  5 * time.Minute,
			},
			Run: func(jc *runtime.Context, st *orchestrator.State) (map[string]any, error) {
				return p.deliver(jc, loadID)
			},
		},
	}

	err = p.engine.Run(jc, stages, func(jc *runtime.Context, st *orchestrator.State) map[string]any {
		return map[string]any{"load_id": loadID.String()}
	})
	observability.Current().ObserveJob(jobs.KindLoadCallback, jobStatus(jc), time.Since(t0))
	return err
}

func (p *callbackPipeline) deliver(jc *runtime.Context, loadID uuid.UUID) (map[string]any, error) {
	ctx := jc.Ctx
	stat, err := p.deps.Ingest.GetLoadStatus(ctx, loadID)
	if err != nil {
		return nil, err
	}
	if stat.Details.CallbackURL == "" {
		return map[string]any{"skipped": "no callback url"}, nil
	}
	if stat.Load.Status == bronze.LoadStatusInProgress {
		return nil, fmt.Errorf("load %s not finalized yet", loadID)
	}
	if p.deps.Callback == nil {
		return nil, fmt.Errorf("callback sender not configured")
	}

	body := map[string]any{
		"request_id": stat.Details.RequestID,
		"load_id":    loadID.String(),
		"status":     stat.Load.Status,
		"counts": map[string]int64{
			"completed": stat.Counts[bronze.RowStatusCompleted],
			"failed":    stat.Counts[bronze.RowStatusFailed],
			"skipped":   stat.Counts[bronze.RowStatusSkipped],
		},
		"taxonomy_id": stat.Load.TaxonomyID,
	}
	if err := p.deps.Callback.Send(ctx, stat.Details.CallbackURL, body); err != nil {
		observability.Current().IncCallback("failed")
		return nil, err
	}
	observability.Current().IncCallback("delivered")
	return map[string]any{"delivered_to": stat.Details.CallbackURL, "status": stat.Load.Status}, nil
}
