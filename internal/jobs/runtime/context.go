// Package runtime is the execution contract between the job system and the
// pipelines. A Context wraps one claimed job_runs row together with the only
// sanctioned ways to report progress, reschedule, or terminate it; pipelines
// never write the row directly.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/data/repos"
	"github.com/carelattice/taxonomy-backend/internal/domain/jobs"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	"github.com/carelattice/taxonomy-backend/internal/platform/ctxutil"
)

// Context is a capability-scoped handle for a single job execution: the
// claimed row, the database, and the decoded payload. Every write goes
// through UpdateFieldsUnlessStatus(canceled) so a canceled job is never
// resurrected by a worker that has not noticed yet.
type Context struct {
	Ctx  context.Context
	DB   *gorm.DB
	Job  *jobs.JobRun
	Repo repos.JobRunRepo

	payload map[string]any
}

// NewContext builds the handle for a claimed job and eagerly decodes its
// payload. Decode failures are not fatal here; handlers validate the fields
// they need. trace_id/request_id payload fields, when present, are folded
// into Ctx so worker logs line up with the request that enqueued the work.
func NewContext(ctx context.Context, db *gorm.DB, job *jobs.JobRun, repo repos.JobRunRepo) *Context {
	c := &Context{Ctx: ctx, DB: db, Job: job, Repo: repo}
	_ = c.decodePayload()
	c.applyTraceData()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil {
		return nil
	}
	if len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

func (c *Context) applyTraceData() {
	if c == nil || c.Ctx == nil {
		return
	}
	traceID := c.PayloadString("trace_id")
	reqID := c.PayloadString("request_id")
	if traceID == "" && reqID == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{
		TraceID:   traceID,
		RequestID: reqID,
	})
}

// Payload returns the decoded payload map. Never nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// PayloadUUID reads key as a UUID. Missing, empty, or malformed values
// return (uuid.Nil, false).
func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	s := c.PayloadString(key)
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// PayloadString reads key as a trimmed string. Missing or nil yields "".
func (c *Context) PayloadString(key string) string {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// PayloadInt64 reads key as an int64. JSON numbers decode as float64, so
// both numeric and string forms are accepted.
func (c *Context) PayloadInt64(key string) (int64, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// Update applies raw field updates to the row, guarded against canceled.
// Meant for state snapshots into result; lifecycle transitions should go
// through Progress/Requeue/RetryFail/Fail/Succeed so the invariants stay in
// one place.
func (c *Context) Update(updates map[string]any) error {
	if c == nil || c.Job == nil || c.Job.ID == uuid.Nil || c.Repo == nil {
		return nil
	}
	_, err := c.Repo.UpdateFieldsUnlessStatus(c.dbc(), c.Job.ID, []string{jobs.StatusCanceled}, toIfaceMap(updates))
	return err
}

func (c *Context) dbc() dbctx.Context {
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return dbctx.Context{Ctx: ctx}
}

// Progress publishes a non-terminal update: stage, percent, and a fresh
// heartbeat. A rejected write means the job was canceled; the in-memory row
// is left untouched.
func (c *Context) Progress(stage string, pct int) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(c.dbc(), c.Job.ID, []string{jobs.StatusCanceled}, map[string]interface{}{
			"stage":        stage,
			"progress":     pct,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}
	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
}

// Heartbeat refreshes heartbeat_at while the job is running. The worker
// drives this on a ticker so a long stage does not look abandoned to the
// stale-claim sweep.
func (c *Context) Heartbeat() {
	if c == nil || c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	_ = c.Repo.Heartbeat(c.dbc(), c.Job.ID)
}

// Requeue puts the job back in the queue with a scheduled next attempt. The
// orchestrator uses it for stage retries: the row keeps its state snapshot
// and no worker picks it up before at.
func (c *Context) Requeue(stage string, pct int, at time.Time) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	when := at.UTC()
	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(c.dbc(), c.Job.ID, []string{jobs.StatusCanceled}, map[string]interface{}{
			"status":          jobs.StatusQueued,
			"stage":           stage,
			"progress":        pct,
			"next_attempt_at": when,
			"locked_at":       nil,
			"locked_by":       "",
			"heartbeat_at":    now,
			"updated_at":      now,
		})
		if !ok {
			return
		}
	}
	if c.Job != nil {
		c.Job.Status = jobs.StatusQueued
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.NextAttemptAt = &when
		c.Job.LockedAt = nil
		c.Job.LockedBy = ""
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
}

// RetryFail marks the job failed but schedules another attempt. The claim
// query re-runs failed rows whose next_attempt_at has elapsed while attempts
// stay under the worker's cutoff. The worker uses this for panics and
// handler errors the orchestrator never saw.
func (c *Context) RetryFail(stage string, err error, at time.Time) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	when := at.UTC()
	msg := errMessage(err)
	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(c.dbc(), c.Job.ID, []string{jobs.StatusCanceled}, map[string]interface{}{
			"status":          jobs.StatusFailed,
			"stage":           stage,
			"last_error":      msg,
			"next_attempt_at": when,
			"locked_at":       nil,
			"locked_by":       "",
			"updated_at":      now,
		})
		if !ok {
			return
		}
	}
	if c.Job != nil {
		c.Job.Status = jobs.StatusFailed
		c.Job.Stage = stage
		c.Job.LastError = msg
		c.Job.NextAttemptAt = &when
		c.Job.LockedAt = nil
		c.Job.LockedBy = ""
		c.Job.UpdatedAt = now
	}
}

// Fail marks the job terminally failed. Clearing next_attempt_at is what
// makes the failure terminal: the claim query only retries failed rows with
// a scheduled next attempt.
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	msg := errMessage(err)
	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(c.dbc(), c.Job.ID, []string{jobs.StatusCanceled}, map[string]interface{}{
			"status":          jobs.StatusFailed,
			"stage":           stage,
			"last_error":      msg,
			"next_attempt_at": nil,
			"locked_at":       nil,
			"locked_by":       "",
			"updated_at":      now,
		})
		if !ok {
			return
		}
	}
	if c.Job != nil {
		c.Job.Status = jobs.StatusFailed
		c.Job.Stage = stage
		c.Job.LastError = msg
		c.Job.NextAttemptAt = nil
		c.Job.LockedAt = nil
		c.Job.LockedBy = ""
		c.Job.UpdatedAt = now
	}
}

// Succeed marks the job done and stores its result JSON.
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}
	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(c.dbc(), c.Job.ID, []string{jobs.StatusCanceled}, map[string]interface{}{
			"status":          jobs.StatusSucceeded,
			"stage":           finalStage,
			"progress":        100,
			"last_error":      "",
			"result":          res,
			"next_attempt_at": nil,
			"locked_at":       nil,
			"locked_by":       "",
			"heartbeat_at":    now,
			"updated_at":      now,
		})
		if !ok {
			return
		}
	}
	if c.Job != nil {
		c.Job.Status = jobs.StatusSucceeded
		c.Job.Stage = finalStage
		c.Job.Progress = 100
		c.Job.LastError = ""
		c.Job.Result = res
		c.Job.NextAttemptAt = nil
		c.Job.LockedAt = nil
		c.Job.LockedBy = ""
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func toIfaceMap(in map[string]any) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
