package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/carelattice/taxonomy-backend/internal/data/repos/testutil"
	"github.com/carelattice/taxonomy-backend/internal/domain/jobs"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
)

func seedRun(t *testing.T, repo JobRunRepo, txc dbctx.Context, mut func(*jobs.JobRun)) *jobs.JobRun {
	t.Helper()
	run := &jobs.JobRun{
		ID:      uuid.New(),
		Kind:    "test_kind",
		RefID:   uuid.NewString(),
		Status:  jobs.StatusQueued,
		Payload: datatypes.JSON([]byte(`{}`)),
		Result:  datatypes.JSON([]byte(`{}`)),
	}
	if mut != nil {
		mut(run)
	}
	if _, err := repo.Create(txc, []*jobs.JobRun{run}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return run
}

func TestJobRunRepoClaimOrderAndEligibility(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	txc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	queued := seedRun(t, repo, txc, func(r *jobs.JobRun) {
		r.CreatedAt = now.Add(-5 * time.Hour)
	})
	retryDue := seedRun(t, repo, txc, func(r *jobs.JobRun) {
		r.Status = jobs.StatusFailed
		r.Attempts = 1
		r.NextAttemptAt = &past
		r.CreatedAt = now.Add(-4 * time.Hour)
	})
	stale := seedRun(t, repo, txc, func(r *jobs.JobRun) {
		r.Status = jobs.StatusRunning
		hb := now.Add(-2 * time.Hour)
		r.HeartbeatAt = &hb
		r.CreatedAt = now.Add(-3 * time.Hour)
	})

	// Ineligible rows, all older than the claimable ones so any of them
	// surfacing breaks the expected order below.
	seedRun(t, repo, txc, func(r *jobs.JobRun) { // terminal: failed, no scheduled retry
		r.Status = jobs.StatusFailed
		r.Attempts = 1
		r.CreatedAt = now.Add(-6 * time.Hour)
	})
	seedRun(t, repo, txc, func(r *jobs.JobRun) { // backoff not elapsed
		r.Status = jobs.StatusFailed
		r.Attempts = 1
		r.NextAttemptAt = &future
		r.CreatedAt = now.Add(-6 * time.Hour)
	})
	seedRun(t, repo, txc, func(r *jobs.JobRun) { // out of attempts
		r.Status = jobs.StatusFailed
		r.Attempts = 3
		r.NextAttemptAt = &past
		r.CreatedAt = now.Add(-6 * time.Hour)
	})
	seedRun(t, repo, txc, func(r *jobs.JobRun) { // queued but scheduled ahead
		r.NextAttemptAt = &future
		r.CreatedAt = now.Add(-6 * time.Hour)
	})
	seedRun(t, repo, txc, func(r *jobs.JobRun) { // running with a live heartbeat
		r.Status = jobs.StatusRunning
		hb := now
		r.HeartbeatAt = &hb
		r.CreatedAt = now.Add(-6 * time.Hour)
	})

	want := []uuid.UUID{queued.ID, retryDue.ID, stale.ID}
	for i, id := range want {
		got, err := repo.ClaimNextRunnable(txc, "w1", 3, time.Hour)
		if err != nil {
			t.Fatalf("claim #%d: %v", i+1, err)
		}
		if got == nil || got.ID != id {
			t.Fatalf("claim #%d: want %s got %+v", i+1, id, got)
		}
		if got.Status != jobs.StatusRunning || got.LockedBy != "w1" || got.HeartbeatAt == nil {
			t.Fatalf("claim #%d: row not marked running for worker: %+v", i+1, got)
		}
	}
	if got, err := repo.ClaimNextRunnable(txc, "w1", 3, time.Hour); err != nil || got != nil {
		t.Fatalf("claim after drain: want nil, got %v err %v", got, err)
	}
}

func TestJobRunRepoClaimIncrementsAttempts(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	txc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	run := seedRun(t, repo, txc, nil)
	got, err := repo.ClaimNextRunnable(txc, "w1", 3, time.Hour)
	if err != nil || got == nil {
		t.Fatalf("claim: got %v err %v", got, err)
	}
	if got.Attempts != run.Attempts+1 {
		t.Fatalf("claim: attempts = %d, want %d", got.Attempts, run.Attempts+1)
	}
	stored, err := repo.GetByID(txc, run.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetByID: got %v err %v", stored, err)
	}
	if stored.Attempts != got.Attempts || stored.Status != jobs.StatusRunning {
		t.Fatalf("stored row out of sync with claim: %+v", stored)
	}
}

func TestJobRunRepoGuardsAndLookups(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	txc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	refID := uuid.NewString()

	seedRun(t, repo, txc, func(r *jobs.JobRun) {
		r.Kind = jobs.KindLoadProcess
		r.RefID = refID
		r.Status = jobs.StatusSucceeded
		r.CreatedAt = now.Add(-2 * time.Hour)
	})
	newer := seedRun(t, repo, txc, func(r *jobs.JobRun) {
		r.Kind = jobs.KindLoadProcess
		r.RefID = refID
		r.CreatedAt = now.Add(-1 * time.Hour)
	})

	latest, err := repo.GetLatestByRef(txc, jobs.KindLoadProcess, refID)
	if err != nil || latest == nil || latest.ID != newer.ID {
		t.Fatalf("GetLatestByRef: want %s got %+v err %v", newer.ID, latest, err)
	}

	has, err := repo.HasRunnable(txc, jobs.KindLoadProcess, refID)
	if err != nil || !has {
		t.Fatalf("HasRunnable: want true, got %v err %v", has, err)
	}
	has, err = repo.HasRunnable(txc, jobs.KindTaxonomyRemap, refID)
	if err != nil || has {
		t.Fatalf("HasRunnable other kind: want false, got %v err %v", has, err)
	}

	canceled := seedRun(t, repo, txc, func(r *jobs.JobRun) { r.Status = jobs.StatusCanceled })
	ok, err := repo.UpdateFieldsUnlessStatus(txc, canceled.ID, []string{jobs.StatusCanceled}, map[string]interface{}{
		"status": jobs.StatusRunning,
	})
	if err != nil {
		t.Fatalf("UpdateFieldsUnlessStatus: %v", err)
	}
	if ok {
		t.Fatalf("UpdateFieldsUnlessStatus: canceled row was overwritten")
	}
	ok, err = repo.UpdateFieldsUnlessStatus(txc, newer.ID, []string{jobs.StatusCanceled}, map[string]interface{}{
		"stage": "resolve",
	})
	if err != nil || !ok {
		t.Fatalf("UpdateFieldsUnlessStatus live row: want ok, got %v err %v", ok, err)
	}

	// Heartbeat only touches running rows; newer is still queued.
	if err := repo.Heartbeat(txc, newer.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	got, err := repo.GetByID(txc, newer.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: got %v err %v", got, err)
	}
	if got.HeartbeatAt != nil {
		t.Fatalf("Heartbeat wrote to a queued row")
	}

	counts, err := repo.CountByStatus(txc)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[jobs.StatusQueued] < 1 || counts[jobs.StatusSucceeded] < 1 || counts[jobs.StatusCanceled] < 1 {
		t.Fatalf("CountByStatus: unexpected tallies %v", counts)
	}
}
