// Package worker runs the claim loop that feeds pipelines. Workers race on
// ClaimNextRunnable with SKIP LOCKED, so any number of processes can share
// one queue; a per-job heartbeat keeps a claimed row from being reclaimed
// while its pipeline is still alive.
package worker

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/data/repos"
	"github.com/carelattice/taxonomy-backend/internal/domain/jobs"
	"github.com/carelattice/taxonomy-backend/internal/jobs/orchestrator"
	"github.com/carelattice/taxonomy-backend/internal/jobs/runtime"
	"github.com/carelattice/taxonomy-backend/internal/observability"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	"github.com/carelattice/taxonomy-backend/internal/platform/envutil"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *runtime.Registry

	id             string
	concurrency    int
	pollInterval   time.Duration
	maxAttempts    int
	staleRunning   time.Duration
	heartbeatEvery time.Duration
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *runtime.Registry) *Worker {
	host, _ := os.Hostname()
	if strings.TrimSpace(host) == "" {
		host = "worker"
	}
	w := &Worker{
		db:             db,
		log:            baseLog.With("component", "JobWorker"),
		repo:           repo,
		registry:       registry,
		id:             host + "-" + uuid.NewString()[:8],
		concurrency:    envutil.Int("WORKER_CONCURRENCY", 4),
		pollInterval:   envutil.Seconds("WORKER_POLL_SECONDS", 1*time.Second),
		maxAttempts:    envutil.Int("JOB_MAX_ATTEMPTS", 5),
		staleRunning:   time.Duration(envutil.Int("JOB_STALE_RUNNING_MINUTES", 30)) * time.Minute,
		heartbeatEvery: envutil.Seconds("JOB_HEARTBEAT_SECONDS", 15*time.Second),
	}
	if w.concurrency < 1 {
		w.concurrency = 1
	}
	return w
}

func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool",
		"worker_id", w.id,
		"concurrency", w.concurrency,
		"kinds", w.registry.Kinds(),
	)
	for i := 0; i < w.concurrency; i++ {
		go w.runLoop(ctx, i+1)
	}
}

func (w *Worker) runLoop(ctx context.Context, slot int) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "slot", slot)
			return
		case <-ticker.C:
			job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.id, w.maxAttempts, w.staleRunning)
			if err != nil {
				w.log.Warn("ClaimNextRunnable failed", "slot", slot, "error", err)
				continue
			}
			if job == nil {
				continue
			}
			w.dispatch(ctx, slot, job)
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, slot int, job *jobs.JobRun) {
	jc := runtime.NewContext(ctx, w.db, job, w.repo)

	h, ok := w.registry.Get(job.Kind)
	if !ok {
		w.log.Error("No handler registered for job kind",
			"slot", slot,
			"job_id", job.ID,
			"kind", job.Kind,
		)
		jc.Fail("dispatch", fmt.Errorf("no handler registered for kind %q", job.Kind))
		return
	}

	t0 := time.Now()
	w.log.Info("Job started",
		"slot", slot,
		"job_id", job.ID,
		"kind", job.Kind,
		"ref_id", job.RefID,
		"attempt", job.Attempts,
	)

	stopHeartbeat := w.startHeartbeat(ctx, jc)
	defer stopHeartbeat()

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Job handler panic",
				"slot", slot,
				"job_id", job.ID,
				"kind", job.Kind,
				"panic", r,
			)
			w.retryOrFail(jc, fmt.Errorf("panic: %v", r))
			w.observe(jc, t0)
		}
	}()

	if runErr := h.Run(jc); runErr != nil {
		// Pipelines settle the row themselves; an error escaping Run means
		// the handler lost track of it.
		w.log.Error("Job handler returned error",
			"slot", slot,
			"job_id", job.ID,
			"kind", job.Kind,
			"error", runErr,
		)
		w.retryOrFail(jc, runErr)
	}

	w.observe(jc, t0)
	w.log.Info("Job finished",
		"slot", slot,
		"job_id", job.ID,
		"kind", job.Kind,
		"status", job.Status,
		"duration_ms", time.Since(t0).Milliseconds(),
	)
}

// startHeartbeat keeps the claimed row fresh so another worker does not
// steal it mid-run. Heartbeat only touches rows still in status running, so
// the ticker goes quiet on its own once the pipeline settles or requeues
// the job.
func (w *Worker) startHeartbeat(ctx context.Context, jc *runtime.Context) func() {
	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	go func() {
		ticker := time.NewTicker(w.heartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				jc.Heartbeat()
			}
		}
	}()
	return stop
}

// retryOrFail absorbs a fault the handler did not settle: schedule another
// attempt while the job-level budget allows, otherwise fail it for good.
func (w *Worker) retryOrFail(jc *runtime.Context, err error) {
	attempts := 0
	if jc.Job != nil {
		attempts = jc.Job.Attempts
	}
	if attempts < w.maxAttempts {
		at := time.Now().Add(orchestrator.Backoff(orchestrator.RetryPolicy{
			MinBackoff: 5 * time.Second,
			MaxBackoff: 2 * time.Minute,
		}, attempts))
		jc.RetryFail("worker", err, at)
		return
	}
	jc.Fail("worker", err)
}

func (w *Worker) observe(jc *runtime.Context, t0 time.Time) {
	if jc == nil || jc.Job == nil {
		return
	}
	observability.Current().ObserveJob(jc.Job.Kind, jc.Job.Status, time.Since(t0))
}
