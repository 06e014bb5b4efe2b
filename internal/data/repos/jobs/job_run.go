package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/carelattice/taxonomy-backend/internal/domain/jobs"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type JobRunRepo interface {
	Create(dbc dbctx.Context, runs []*jobs.JobRun) ([]*jobs.JobRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*jobs.JobRun, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*jobs.JobRun, error)
	GetLatestByRef(dbc dbctx.Context, kind, refID string) (*jobs.JobRun, error)
	ClaimNextRunnable(dbc dbctx.Context, workerID string, maxAttempts int, staleRunning time.Duration) (*jobs.JobRun, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
	HasRunnable(dbc dbctx.Context, kind, refID string) (bool, error)
	CountByStatus(dbc dbctx.Context) (map[string]int64, error)
}

type jobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return &jobRunRepo{
		db:  db,
		log: baseLog.With("repo", "JobRunRepo"),
	}
}

func (r *jobRunRepo) Create(dbc dbctx.Context, runs []*jobs.JobRun) ([]*jobs.JobRun, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(runs) == 0 {
		return []*jobs.JobRun{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *jobRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*jobs.JobRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	rows, err := r.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *jobRunRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*jobs.JobRun, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*jobs.JobRun
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRunRepo) GetLatestByRef(dbc dbctx.Context, kind, refID string) (*jobs.JobRun, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if kind == "" || refID == "" {
		return nil, nil
	}
	var run jobs.JobRun
	err := t.WithContext(dbc.Ctx).
		Where("kind = ? AND ref_id = ?", kind, refID).
		Order("created_at DESC").
		Limit(1).
		Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

// ClaimNextRunnable atomically picks one runnable job with FOR UPDATE SKIP
// LOCKED and marks it running for workerID. Runnable means queued with no
// backoff pending, failed with attempts left and a scheduled retry that has
// come due, or running with a heartbeat old enough to call the previous
// worker dead. A failed row without next_attempt_at is terminal and never
// claimed again.
func (r *jobRunRepo) ClaimNextRunnable(dbc dbctx.Context, workerID string, maxAttempts int, staleRunning time.Duration) (*jobs.JobRun, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	now := time.Now().UTC()
	staleCutoff := now.Add(-staleRunning)
	var claimed *jobs.JobRun
	err := t.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var run jobs.JobRun
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
        (
          (
            status = ?
            AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
          )
          OR (
            status = ?
            AND attempts < ?
            AND next_attempt_at IS NOT NULL
            AND next_attempt_at <= ?
          )
          OR (
            status = ?
            AND heartbeat_at IS NOT NULL
            AND heartbeat_at < ?
          )
        )
      `, jobs.StatusQueued, now, jobs.StatusFailed, maxAttempts, now, jobs.StatusRunning, staleCutoff).
			Order("created_at ASC")
		qErr := q.First(&run).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&jobs.JobRun{}).
			Where("id = ?", run.ID).
			Updates(map[string]interface{}{
				"status":       jobs.StatusRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"locked_by":    workerID,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		run.Status = jobs.StatusRunning
		run.Attempts++
		run.LockedAt = &now
		run.LockedBy = workerID
		run.HeartbeatAt = &now
		run.UpdatedAt = now
		claimed = &run
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *jobRunRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return t.WithContext(dbc.Ctx).
		Model(&jobs.JobRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *jobRunRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}

	q := t.WithContext(dbc.Ctx).
		Model(&jobs.JobRun{}).
		Where("id = ?", id)
	if len(disallowedStatuses) == 1 {
		q = q.Where("status <> ?", disallowedStatuses[0])
	} else if len(disallowedStatuses) > 1 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRunRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	return t.WithContext(dbc.Ctx).
		Model(&jobs.JobRun{}).
		Where("id = ? AND status = ?", id, jobs.StatusRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

// HasRunnable reports whether a queued or running job of this kind already
// points at refID. Enqueue paths use it to avoid doubling work.
func (r *jobRunRepo) HasRunnable(dbc dbctx.Context, kind, refID string) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if kind == "" {
		return false, nil
	}
	q := t.WithContext(dbc.Ctx).
		Model(&jobs.JobRun{}).
		Where("kind = ? AND status IN ?", kind, []string{jobs.StatusQueued, jobs.StatusRunning})
	if refID != "" {
		q = q.Where("ref_id = ?", refID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *jobRunRepo) CountByStatus(dbc dbctx.Context) (map[string]int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var rows []struct {
		Status string
		N      int64
	}
	if err := t.WithContext(dbc.Ctx).
		Model(&jobs.JobRun{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}
