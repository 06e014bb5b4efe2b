// Package pipeline binds the durable job kinds to the domain usecases. Each
// pipeline is a runtime.Handler that drives an orchestrator stage list; the
// stages call into ingest, mapping, and promotion and leave row bookkeeping
// and retries to the engine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/data/repos"
	domjobs "github.com/carelattice/taxonomy-backend/internal/domain/jobs"
	"github.com/carelattice/taxonomy-backend/internal/jobs/orchestrator"
	"github.com/carelattice/taxonomy-backend/internal/jobs/runtime"
	"github.com/carelattice/taxonomy-backend/internal/modules/ingest"
	"github.com/carelattice/taxonomy-backend/internal/modules/mapping"
	"github.com/carelattice/taxonomy-backend/internal/modules/promotion"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	pkgerrors "github.com/carelattice/taxonomy-backend/internal/pkg/errors"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
	"github.com/carelattice/taxonomy-backend/internal/realtime/bus"
)

// CallbackSender delivers a finalized load's outcome to the URL the
// customer registered when opening the load.
type CallbackSender interface {
	Send(ctx context.Context, url string, payload any) error
}

// GraphProjector mirrors a taxonomy's active hierarchy into the graph store.
type GraphProjector interface {
	ProjectTaxonomy(ctx context.Context, taxonomyID int64) error
}

type Deps struct {
	DB  *gorm.DB
	Log *logger.Logger

	Ingest    ingest.Usecases
	Mapping   mapping.Usecases
	Promotion promotion.Usecases

	Loads      repos.LoadRepo
	Taxonomies repos.TaxonomyRepo
	Versions   repos.VersionRepo

	Enqueue runtime.Enqueuer
	Bus     bus.Bus

	// Callback delivers load outcomes. Loads without a callback URL skip
	// delivery at the followups stage, not here.
	Callback CallbackSender
	// Graph is optional; nil disables graph_project enqueues entirely.
	Graph GraphProjector
}

// RegisterAll registers one pipeline per job kind.
func RegisterAll(reg *runtime.Registry, deps Deps) error {
	handlers := []runtime.Handler{
		NewLoadPipeline(deps),
		NewRemapPipeline(deps),
		NewPromotePipeline(deps),
		NewCallbackPipeline(deps),
		NewGraphPipeline(deps),
	}
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			return err
		}
	}
	return nil
}

// refLoadID resolves the subject load: payload first, ref_id as fallback.
func refLoadID(jc *runtime.Context) (uuid.UUID, error) {
	if id, ok := jc.PayloadUUID("load_id"); ok {
		return id, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(jc.Job.RefID))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: job %s carries no load id", pkgerrors.ErrInvalidArgument, jc.Job.ID)
	}
	return id, nil
}

func refTaxonomyID(jc *runtime.Context) (int64, error) {
	if id, ok := jc.PayloadInt64("taxonomy_id"); ok {
		return id, nil
	}
	id, err := strconv.ParseInt(strings.TrimSpace(jc.Job.RefID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: job %s carries no taxonomy id", pkgerrors.ErrInvalidArgument, jc.Job.ID)
	}
	return id, nil
}

func actorOr(jc *runtime.Context, def string) string {
	if a := jc.PayloadString("actor"); a != "" {
		return a
	}
	return def
}

// retryableDomain is the default stage retry predicate: permanent domain
// rejections fail fast, everything else is assumed transient.
func retryableDomain(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, pkgerrors.ErrNotFound),
		errors.Is(err, pkgerrors.ErrLoadInvalid),
		errors.Is(err, pkgerrors.ErrInvalidArgument):
		return false
	default:
		return true
	}
}

func dbcFrom(ctx context.Context) dbctx.Context {
	return dbctx.Context{Ctx: ctx}
}

// scalePct maps done/total onto the [lo, hi] progress window.
func scalePct(done, total, lo, hi int) int {
	if total <= 0 {
		return lo
	}
	if done > total {
		done = total
	}
	return lo + (hi-lo)*done/total
}

// jobStatus reads the row status the engine left behind, for metrics.
func jobStatus(jc *runtime.Context) string {
	if jc == nil || jc.Job == nil {
		return domjobs.StatusFailed
	}
	return jc.Job.Status
}

// stageOutString reads a string a finished stage left in its outputs. The
// state round-trips through JSON between attempts, so values are read back
// loosely.
func stageOutString(st *orchestrator.State, stage, key string) string {
	v, ok := stageOut(st, stage, key)
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func stageOutBool(st *orchestrator.State, stage, key string) bool {
	v, ok := stageOut(st, stage, key)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	default:
		return false
	}
}

func stageOut(st *orchestrator.State, stage, key string) (any, bool) {
	if st == nil || st.Stages == nil {
		return nil, false
	}
	ss := st.Stages[stage]
	if ss == nil || ss.Outputs == nil {
		return nil, false
	}
	v, ok := ss.Outputs[key]
	return v, ok
}
