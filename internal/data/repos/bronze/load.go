package bronze

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/domain/bronze"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type LoadRepo interface {
	Create(dbc dbctx.Context, loads []*bronze.Load) ([]*bronze.Load, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*bronze.Load, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*bronze.Load, error)
	ListByTaxonomy(dbc dbctx.Context, taxonomyID int64, limit, offset int) ([]*bronze.Load, error)
	GetLatestCompletedByTaxonomy(dbc dbctx.Context, taxonomyID int64) (*bronze.Load, error)
	GetOldestInProgressForTaxonomy(dbc dbctx.Context, taxonomyID int64) (*bronze.Load, error)
	HasInProgressForTaxonomy(dbc dbctx.Context, taxonomyID int64, excludeID uuid.UUID) (bool, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Finalize(dbc dbctx.Context, id uuid.UUID, status string) error
	MergeDetails(dbc dbctx.Context, id uuid.UUID, patch map[string]interface{}) error
	Withdraw(dbc dbctx.Context, id uuid.UUID) error
}

type loadRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLoadRepo(db *gorm.DB, baseLog *logger.Logger) LoadRepo {
	return &loadRepo{db: db, log: baseLog.With("repo", "LoadRepo")}
}

func (r *loadRepo) Create(dbc dbctx.Context, loads []*bronze.Load) ([]*bronze.Load, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(loads) == 0 {
		return []*bronze.Load{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&loads).Error; err != nil {
		return nil, err
	}
	return loads, nil
}

func (r *loadRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*bronze.Load, error) {
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

func (r *loadRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*bronze.Load, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*bronze.Load
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *loadRepo) ListByTaxonomy(dbc dbctx.Context, taxonomyID int64, limit, offset int) ([]*bronze.Load, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*bronze.Load
	q := t.WithContext(dbc.Ctx).
		Where("taxonomy_id = ?", taxonomyID).
		Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *loadRepo) GetLatestCompletedByTaxonomy(dbc dbctx.Context, taxonomyID int64) (*bronze.Load, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var load bronze.Load
	err := t.WithContext(dbc.Ctx).
		Where("taxonomy_id = ? AND is_active = TRUE AND status IN ?", taxonomyID,
			[]string{bronze.LoadStatusCompleted, bronze.LoadStatusPartiallyCompleted}).
		Order("started_at DESC").
		Limit(1).
		Find(&load).Error
	if err != nil {
		return nil, err
	}
	if load.ID == uuid.Nil {
		return nil, nil
	}
	return &load, nil
}

// GetOldestInProgressForTaxonomy returns the earliest open load on a
// taxonomy. Workers use it as a FIFO gate: a load only processes when it is
// the oldest open one, which keeps writes single-threaded per taxonomy.
func (r *loadRepo) GetOldestInProgressForTaxonomy(dbc dbctx.Context, taxonomyID int64) (*bronze.Load, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var load bronze.Load
	err := t.WithContext(dbc.Ctx).
		Where("taxonomy_id = ? AND status = ? AND is_active = TRUE", taxonomyID, bronze.LoadStatusInProgress).
		Order("started_at ASC, id ASC").
		Limit(1).
		Find(&load).Error
	if err != nil {
		return nil, err
	}
	if load.ID == uuid.Nil {
		return nil, nil
	}
	return &load, nil
}

func (r *loadRepo) HasInProgressForTaxonomy(dbc dbctx.Context, taxonomyID int64, excludeID uuid.UUID) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	q := t.WithContext(dbc.Ctx).
		Model(&bronze.Load{}).
		Where("taxonomy_id = ? AND status = ? AND is_active = TRUE", taxonomyID, bronze.LoadStatusInProgress)
	if excludeID != uuid.Nil {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *loadRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&bronze.Load{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// Finalize stamps a terminal status exactly once: an already-finalized load is
// left untouched so replayed jobs cannot flip a terminal status.
func (r *loadRepo) Finalize(dbc dbctx.Context, id uuid.UUID, status string) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	return t.WithContext(dbc.Ctx).
		Model(&bronze.Load{}).
		Where("id = ? AND status = ?", id, bronze.LoadStatusInProgress).
		Updates(map[string]interface{}{
			"status":      status,
			"finished_at": now,
			"updated_at":  now,
		}).Error
}

// MergeDetails shallow-merges patch into the details JSONB without clobbering
// keys written by other steps.
func (r *loadRepo) MergeDetails(dbc dbctx.Context, id uuid.UUID, patch map[string]interface{}) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil || len(patch) == 0 {
		return nil
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	return t.WithContext(dbc.Ctx).
		Model(&bronze.Load{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"details":    gorm.Expr("COALESCE(details, '{}'::jsonb) || ?::jsonb", string(raw)),
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *loadRepo) Withdraw(dbc dbctx.Context, id uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Model(&bronze.Load{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		}).Error
}
