package runtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/carelattice/taxonomy-backend/internal/data/repos"
	"github.com/carelattice/taxonomy-backend/internal/domain/jobs"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	"github.com/carelattice/taxonomy-backend/internal/platform/ctxutil"
)

// Enqueuer creates job rows. Trace fields from the calling context are
// copied into the payload so worker logs join up with the request that
// asked for the work.
type Enqueuer struct {
	Repo repos.JobRunRepo
}

func NewEnqueuer(repo repos.JobRunRepo) Enqueuer { return Enqueuer{Repo: repo} }

// Enqueue creates one queued job and returns it.
func (e Enqueuer) Enqueue(ctx context.Context, kind, refID string, payload map[string]any) (*jobs.JobRun, error) {
	if kind == "" {
		return nil, fmt.Errorf("enqueue: empty kind")
	}
	merged := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		merged[k] = v
	}
	if td := ctxutil.GetTraceData(ctx); td != nil {
		if td.TraceID != "" {
			merged["trace_id"] = td.TraceID
		}
		if td.RequestID != "" {
			merged["request_id"] = td.RequestID
		}
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	run := &jobs.JobRun{
		ID:      uuid.New(),
		Kind:    kind,
		RefID:   refID,
		Status:  jobs.StatusQueued,
		Payload: datatypes.JSON(raw),
	}
	created, err := e.Repo.Create(dbctx.Context{Ctx: ctx}, []*jobs.JobRun{run})
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

// EnqueueOnce creates the job only when no queued or running job of this
// kind already points at refID. Returns (nil, nil) when a duplicate was
// found; callers treat that as already covered.
func (e Enqueuer) EnqueueOnce(ctx context.Context, kind, refID string, payload map[string]any) (*jobs.JobRun, error) {
	exists, err := e.Repo.HasRunnable(dbctx.Context{Ctx: ctx}, kind, refID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}
	return e.Enqueue(ctx, kind, refID, payload)
}
