package pipeline

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/carelattice/taxonomy-backend/internal/domain/bronze"
	"github.com/carelattice/taxonomy-backend/internal/domain/jobs"
	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/jobs/orchestrator"
	"github.com/carelattice/taxonomy-backend/internal/jobs/runtime"
	"github.com/carelattice/taxonomy-backend/internal/modules/ingest"
	"github.com/carelattice/taxonomy-backend/internal/observability"
	pkgerrors "github.com/carelattice/taxonomy-backend/internal/pkg/errors"
	"github.com/carelattice/taxonomy-backend/internal/platform/envutil"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
	"github.com/carelattice/taxonomy-backend/internal/realtime"
)

// loadProcessMaxAttempts bounds the process_rows retry budget; when it runs
// out the load is settled from row tallies instead of being left open.
const loadProcessMaxAttempts = 20

type loadPipeline struct {
	deps     Deps
	log      *logger.Logger
	engine   *orchestrator.Engine
	deadline time.Duration
}

// NewLoadPipeline drives one load from queued rows to a terminal status:
// process rows, finalize, then fan out the follow-up jobs the outcome calls
// for. Every stage re-checks the database, so a reclaimed job resumes
// wherever the previous worker stopped.
func NewLoadPipeline(deps Deps) runtime.Handler {
	return &loadPipeline{
		deps:     deps,
		log:      deps.Log.With("job", jobs.KindLoadProcess),
		engine:   orchestrator.NewEngine(),
		deadline: time.Duration(envutil.Int("LOAD_DEADLINE_MINUTES", 240)) * time.Minute,
	}
}

func (p *loadPipeline) Kind() string { return jobs.KindLoadProcess }

func (p *loadPipeline) Run(jc *runtime.Context) error {
	t0 := time.Now()
	loadID, err := refLoadID(jc)
	if err != nil {
		jc.Fail("validate", err)
		observability.Current().ObserveJob(jobs.KindLoadProcess, "failed", time.Since(t0))
		return nil
	}
	actor := actorOr(jc, "system:load_process")

	stages := []orchestrator.Stage{
		{
			Name:     "process_rows",
			Timeout:  30 * time.Minute,
			StartPct: 5,
			EndPct:   70,
			// The FIFO gate surfaces as ErrTaxonomyBusy while an older load
			// holds the taxonomy; that is a wait, not a failure, so the
			// budget is generous and the backoff slow.
			Retry: orchestrator.RetryPolicy{
				MaxAttempts: loadProcessMaxAttempts,
				Retryable:   retryableLoad,
				MinBackoff:  5 * time.Second,
				MaxBackoff:  2 * time.Minute,
			},
			Run: func(jc *runtime.Context, st *orchestrator.State) (map[string]any, error) {
				out, err := p.deps.Ingest.LoadProcess(jc.Ctx, ingest.LoadProcessInput{
					LoadID: loadID,
					Actor:  actor,
					Report: func(done, total int) {
						jc.Progress("process_rows", scalePct(done, total, 5, 70))
					},
				})
				if err != nil {
					if reason, ok := p.abandonReason(jc, st, loadID, err); ok {
						// Stop waiting and let finalize settle the load from
						// whatever its rows say. An open load must reach a
						// terminal status here or it wedges the taxonomy's
						// FIFO gate.
						p.log.Warn("load processing abandoned",
							"load_id", loadID, "reason", reason, "error", err)
						return map[string]any{"abandoned": reason, "error": err.Error()}, nil
					}
					return nil, err
				}
				return map[string]any{
					"already_final": out.AlreadyFinal,
					"completed":     out.Completed,
					"failed":        out.Failed,
					"skipped":       out.Skipped,
				}, nil
			},
		},
		{
			Name:     "finalize",
			Timeout:  10 * time.Minute,
			StartPct: 70,
			EndPct:   85,
			Retry: orchestrator.RetryPolicy{
				MaxAttempts: 5,
				Retryable:   retryableLoad,
			},
			Run: func(jc *runtime.Context, st *orchestrator.State) (map[string]any, error) {
				out, err := p.deps.Ingest.LoadFinalize(jc.Ctx, ingest.LoadFinalizeInput{LoadID: loadID, Actor: actor})
				if err != nil {
					return nil, err
				}
				if !out.AlreadyFinal {
					m := observability.Current()
					m.IncLoadFinalized(out.Load.LoadKind, out.Status)
					m.AddLoadRows(bronze.RowStatusCompleted, int(out.Completed))
					m.AddLoadRows(bronze.RowStatusFailed, int(out.Failed))
					m.AddLoadRows(bronze.RowStatusSkipped, int(out.Skipped))
				}
				res := map[string]any{
					"status":    out.Status,
					"completed": out.Completed,
					"failed":    out.Failed,
					"skipped":   out.Skipped,
				}
				if out.Version != nil {
					res["version_id"] = out.Version.ID.String()
					res["version_number"] = out.Version.VersionNumber
					res["remapping_flag"] = out.Version.RemappingFlag
				}
				return res, nil
			},
		},
		{
			Name:     "followups",
			Timeout:  2 * time.Minute,
			StartPct: 85,
			EndPct:   100,
			Retry: orchestrator.RetryPolicy{
				MaxAttempts: 3,
				Retryable:   retryableDomain,
			},
			Run: func(jc *runtime.Context, st *orchestrator.State) (map[string]any, error) {
				return p.followups(jc, st, loadID, actor)
			},
		},
	}

	err = p.engine.Run(jc, stages, func(jc *runtime.Context, st *orchestrator.State) map[string]any {
		return map[string]any{"load_id": loadID.String()}
	})
	observability.Current().ObserveJob(jobs.KindLoadProcess, jobStatus(jc), time.Since(t0))
	return err
}

// followups fans out the work that depends on the load's terminal state:
// remap jobs for the taxonomies the version bump touches, the customer
// callback, the graph projection, and the status event. Every enqueue is
// deduplicated, so rerunning this stage after a crash is harmless.
func (p *loadPipeline) followups(jc *runtime.Context, st *orchestrator.State, loadID uuid.UUID, actor string) (map[string]any, error) {
	ctx := jc.Ctx
	stat, err := p.deps.Ingest.GetLoadStatus(ctx, loadID)
	if err != nil {
		return nil, err
	}
	load := stat.Load
	if load.Status == bronze.LoadStatusInProgress {
		return nil, fmt.Errorf("load %s still in progress after finalize", loadID)
	}

	res := map[string]any{}

	remaps, err := p.enqueueRemaps(jc, st, load, loadID, actor)
	if err != nil {
		return nil, err
	}
	res["remaps_enqueued"] = remaps

	if stat.Details.CallbackURL != "" {
		run, err := p.deps.Enqueue.EnqueueOnce(ctx, jobs.KindLoadCallback, loadID.String(), map[string]any{
			"load_id": loadID.String(),
			"actor":   actor,
		})
		if err != nil {
			return nil, err
		}
		res["callback_enqueued"] = run != nil
	}

	if p.deps.Graph != nil && load.Status != bronze.LoadStatusFailed {
		run, err := p.deps.Enqueue.EnqueueOnce(ctx, jobs.KindGraphProject, strconv.FormatInt(load.TaxonomyID, 10), map[string]any{
			"taxonomy_id": load.TaxonomyID,
			"actor":       actor,
		})
		if err != nil {
			return nil, err
		}
		res["graph_enqueued"] = run != nil
	}

	if p.deps.Bus != nil {
		evt := realtime.LoadStatusChanged(loadID.String(), load.TaxonomyID, load.Status)
		if err := p.deps.Bus.Publish(ctx, realtime.ChannelLoads, evt); err != nil {
			// Events are commentary; a dropped publish never blocks the load.
			p.log.Warn("load status publish failed", "load_id", loadID, "error", err)
		}
	}
	return res, nil
}

// enqueueRemaps translates the finalize stage's version bump into remap
// jobs. A master bump flagged for remapping reaches every active customer
// taxonomy. A customer bump remaps only itself, and does so on any version
// bump, flagged or not: new nodes owe their first mapping pass even when no
// deactivation put existing mappings at risk.
func (p *loadPipeline) enqueueRemaps(jc *runtime.Context, st *orchestrator.State, load *bronze.Load, loadID uuid.UUID, actor string) (int, error) {
	ctx := jc.Ctx
	versionID := stageOutString(st, "finalize", "version_id")
	if versionID == "" {
		return 0, nil
	}

	payload := func(taxonomyID int64) map[string]any {
		return map[string]any{
			"taxonomy_id": taxonomyID,
			"version_id":  versionID,
			"load_id":     loadID.String(),
			"actor":       actor,
		}
	}

	if load.TaxonomyID == silver.MasterTaxonomyID {
		if !stageOutBool(st, "finalize", "remapping_flag") {
			return 0, nil
		}
		customers, err := p.deps.Taxonomies.ListActiveCustomerTaxonomies(dbcFrom(ctx))
		if err != nil {
			return 0, err
		}
		n := 0
		for _, tax := range customers {
			run, err := p.deps.Enqueue.EnqueueOnce(ctx, jobs.KindTaxonomyRemap, strconv.FormatInt(tax.ID, 10), payload(tax.ID))
			if err != nil {
				return n, err
			}
			if run != nil {
				n++
			}
		}
		return n, nil
	}

	run, err := p.deps.Enqueue.EnqueueOnce(ctx, jobs.KindTaxonomyRemap, strconv.FormatInt(load.TaxonomyID, 10), payload(load.TaxonomyID))
	if err != nil {
		return 0, err
	}
	if run != nil {
		return 1, nil
	}
	return 0, nil
}

// abandonReason decides whether a process_rows fault ends the waiting: the
// retry budget is spent, or the load has been open past its deadline. Only a
// load still in progress gets settled; anything else stays on the normal
// retry path.
func (p *loadPipeline) abandonReason(jc *runtime.Context, st *orchestrator.State, loadID uuid.UUID, err error) (string, bool) {
	if !retryableLoad(err) {
		return "", false
	}
	stat, serr := p.deps.Ingest.GetLoadStatus(jc.Ctx, loadID)
	if serr != nil || stat == nil || stat.Load == nil || stat.Load.Status != bronze.LoadStatusInProgress {
		return "", false
	}
	attempts := 0
	if ss := st.Stages["process_rows"]; ss != nil {
		attempts = ss.Attempts
	}
	return settleDecision(attempts+1, loadProcessMaxAttempts, stat.Load.StartedAt, p.deadline, time.Now())
}

// settleDecision is the pure core of abandonReason: attempt is the run now
// failing, 1-based.
func settleDecision(attempt, maxAttempts int, startedAt time.Time, deadline time.Duration, now time.Time) (string, bool) {
	if deadline > 0 && !startedAt.IsZero() && now.Sub(startedAt) > deadline {
		return "deadline_expired", true
	}
	if attempt >= maxAttempts {
		return "retries_exhausted", true
	}
	return "", false
}

// retryableLoad extends the default predicate with the waits that are part
// of normal load processing.
func retryableLoad(err error) bool {
	switch {
	case errors.Is(err, pkgerrors.ErrTaxonomyBusy),
		errors.Is(err, pkgerrors.ErrVersionLockTimeout):
		return true
	case pkgerrors.IsTransient(err):
		return true
	default:
		return retryableDomain(err)
	}
}
