package gold

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/carelattice/taxonomy-backend/internal/domain/gold"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type ProductionMappingRepo interface {
	ListMappingIDs(dbc dbctx.Context) ([]uuid.UUID, error)
	Upsert(dbc dbctx.Context, rows []*gold.ProductionMapping) error
	DeleteByMappingIDs(dbc dbctx.Context, mappingIDs []uuid.UUID) (int64, error)
	List(dbc dbctx.Context, masterNodeID int64, limit, offset int) ([]*gold.ProductionMapping, error)
	Count(dbc dbctx.Context) (int64, error)
}

type productionMappingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProductionMappingRepo(db *gorm.DB, baseLog *logger.Logger) ProductionMappingRepo {
	return &productionMappingRepo{db: db, log: baseLog.With("repo", "ProductionMappingRepo")}
}

func (r *productionMappingRepo) ListMappingIDs(dbc dbctx.Context) ([]uuid.UUID, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var ids []uuid.UUID
	if err := t.WithContext(dbc.Ctx).
		Model(&gold.ProductionMapping{}).
		Pluck("mapping_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Upsert writes projection rows keyed by mapping_id. Re-promoting a mapping
// refreshes its projected columns in place.
func (r *productionMappingRepo) Upsert(dbc dbctx.Context, rows []*gold.ProductionMapping) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "mapping_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"master_node_id": gorm.Expr("EXCLUDED.master_node_id"),
				"child_node_id":  gorm.Expr("EXCLUDED.child_node_id"),
				"confidence":     gorm.Expr("EXCLUDED.confidence"),
				"promoted_at":    gorm.Expr("EXCLUDED.promoted_at"),
				"updated_at":     gorm.Expr("EXCLUDED.updated_at"),
			}),
		}).
		CreateInBatches(&rows, 500).Error
}

// DeleteByMappingIDs hard-deletes stale projection rows. The projection holds
// no history of its own, so removal is a plain delete.
func (r *productionMappingRepo) DeleteByMappingIDs(dbc dbctx.Context, mappingIDs []uuid.UUID) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(mappingIDs) == 0 {
		return 0, nil
	}
	res := t.WithContext(dbc.Ctx).
		Where("mapping_id IN ?", mappingIDs).
		Delete(&gold.ProductionMapping{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *productionMappingRepo) List(dbc dbctx.Context, masterNodeID int64, limit, offset int) ([]*gold.ProductionMapping, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	q := t.WithContext(dbc.Ctx).Order("promoted_at DESC")
	if masterNodeID != 0 {
		q = q.Where("master_node_id = ?", masterNodeID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var out []*gold.ProductionMapping
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *productionMappingRepo) Count(dbc dbctx.Context) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var count int64
	err := t.WithContext(dbc.Ctx).Model(&gold.ProductionMapping{}).Count(&count).Error
	return count, err
}
