package bronze

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/domain/bronze"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type LoadRowRepo interface {
	CreateBatch(dbc dbctx.Context, rows []*bronze.LoadRow) ([]*bronze.LoadRow, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*bronze.LoadRow, error)
	GetByLoad(dbc dbctx.Context, loadID uuid.UUID, limit, offset int) ([]*bronze.LoadRow, error)
	ListByLoad(dbc dbctx.Context, loadID uuid.UUID, status string, limit, offset int) ([]*bronze.LoadRow, error)
	GetPendingByLoad(dbc dbctx.Context, loadID uuid.UUID) ([]*bronze.LoadRow, error)
	SetStatus(dbc dbctx.Context, id uuid.UUID, status, errMsg string) error
	CountStatuses(dbc dbctx.Context, loadID uuid.UUID) (map[string]int64, error)
	DeactivateByLoad(dbc dbctx.Context, loadID uuid.UUID) error
}

type loadRowRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLoadRowRepo(db *gorm.DB, baseLog *logger.Logger) LoadRowRepo {
	return &loadRowRepo{db: db, log: baseLog.With("repo", "LoadRowRepo")}
}

func (r *loadRowRepo) CreateBatch(dbc dbctx.Context, rows []*bronze.LoadRow) ([]*bronze.LoadRow, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*bronze.LoadRow{}, nil
	}
	if err := t.WithContext(dbc.Ctx).CreateInBatches(&rows, 500).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *loadRowRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*bronze.LoadRow, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row bronze.LoadRow
	err := t.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *loadRowRepo) GetByLoad(dbc dbctx.Context, loadID uuid.UUID, limit, offset int) ([]*bronze.LoadRow, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*bronze.LoadRow
	if loadID == uuid.Nil {
		return out, nil
	}
	q := t.WithContext(dbc.Ctx).
		Where("load_id = ?", loadID).
		Order("row_index ASC")
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

// ListByLoad is the read-traffic variant of GetByLoad with an optional
// status filter.
func (r *loadRowRepo) ListByLoad(dbc dbctx.Context, loadID uuid.UUID, status string, limit, offset int) ([]*bronze.LoadRow, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*bronze.LoadRow
	if loadID == uuid.Nil {
		return out, nil
	}
	q := t.WithContext(dbc.Ctx).
		Where("load_id = ?", loadID).
		Order("row_index ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
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

// GetPendingByLoad returns rows still in_progress, in input order. Resumed
// jobs pick up here; rows already terminal are never reprocessed.
func (r *loadRowRepo) GetPendingByLoad(dbc dbctx.Context, loadID uuid.UUID) ([]*bronze.LoadRow, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*bronze.LoadRow
	if loadID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("load_id = ? AND status = ?", loadID, bronze.RowStatusInProgress).
		Order("row_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *loadRowRepo) SetStatus(dbc dbctx.Context, id uuid.UUID, status, errMsg string) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Model(&bronze.LoadRow{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"error":      errMsg,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *loadRowRepo) CountStatuses(dbc dbctx.Context, loadID uuid.UUID) (map[string]int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	out := map[string]int64{}
	if loadID == uuid.Nil {
		return out, nil
	}
	var rows []struct {
		Status string
		N      int64
	}
	if err := t.WithContext(dbc.Ctx).
		Model(&bronze.LoadRow{}).
		Select("status, COUNT(*) AS n").
		Where("load_id = ?", loadID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}

func (r *loadRowRepo) DeactivateByLoad(dbc dbctx.Context, loadID uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if loadID == uuid.Nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Model(&bronze.LoadRow{}).
		Where("load_id = ?", loadID).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		}).Error
}
