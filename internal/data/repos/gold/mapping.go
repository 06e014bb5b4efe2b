package gold

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/domain/gold"
	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type MappingRepo interface {
	Create(dbc dbctx.Context, rows []*gold.Mapping) ([]*gold.Mapping, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*gold.Mapping, error)
	GetActiveByChildNode(dbc dbctx.Context, childNodeID int64) (*gold.Mapping, error)
	GetActiveByChildNodes(dbc dbctx.Context, childNodeIDs []int64) ([]*gold.Mapping, error)
	ListByTaxonomy(dbc dbctx.Context, taxonomyID int64, status string, limit, offset int) ([]*gold.Mapping, error)
	ListPendingReview(dbc dbctx.Context, taxonomyID int64, limit, offset int) ([]*gold.Mapping, error)
	ListPromotable(dbc dbctx.Context) ([]*gold.Mapping, error)
	Supersede(dbc dbctx.Context, old *gold.Mapping, replacement *gold.Mapping) (*gold.Mapping, error)
	DeactivateByChildNodes(dbc dbctx.Context, childNodeIDs []int64) (int64, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type mappingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMappingRepo(db *gorm.DB, baseLog *logger.Logger) MappingRepo {
	return &mappingRepo{db: db, log: baseLog.With("repo", "MappingRepo")}
}

func (r *mappingRepo) Create(dbc dbctx.Context, rows []*gold.Mapping) ([]*gold.Mapping, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*gold.Mapping{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *mappingRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*gold.Mapping, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row gold.Mapping
	err := t.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *mappingRepo) GetActiveByChildNode(dbc dbctx.Context, childNodeID int64) (*gold.Mapping, error) {
	rows, err := r.GetActiveByChildNodes(dbc, []int64{childNodeID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *mappingRepo) GetActiveByChildNodes(dbc dbctx.Context, childNodeIDs []int64) ([]*gold.Mapping, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*gold.Mapping
	if len(childNodeIDs) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("child_node_id IN ? AND is_active = TRUE", childNodeIDs).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mappingRepo) ListByTaxonomy(dbc dbctx.Context, taxonomyID int64, status string, limit, offset int) ([]*gold.Mapping, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*gold.Mapping
	if taxonomyID == 0 {
		return out, nil
	}
	childIDs := t.Model(&silver.TaxonomyNode{}).Select("id").Where("taxonomy_id = ?", taxonomyID)
	q := t.WithContext(dbc.Ctx).
		Where("child_node_id IN (?)", childIDs).
		Order("created_at DESC")
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

func (r *mappingRepo) ListPendingReview(dbc dbctx.Context, taxonomyID int64, limit, offset int) ([]*gold.Mapping, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	q := t.WithContext(dbc.Ctx).
		Where("status = ? AND is_active = TRUE", gold.MappingStatusPendingReview).
		Order("created_at ASC")
	if taxonomyID != 0 {
		childIDs := t.Model(&silver.TaxonomyNode{}).Select("id").Where("taxonomy_id = ?", taxonomyID)
		q = q.Where("child_node_id IN (?)", childIDs)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var out []*gold.Mapping
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListPromotable returns the mappings eligible for the production set:
// active, approved, and not written by an AI rule. AI output reaches
// production only after a review supersedes it with a human-attributed row.
func (r *mappingRepo) ListPromotable(dbc dbctx.Context) ([]*gold.Mapping, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*gold.Mapping
	if err := t.WithContext(dbc.Ctx).
		Joins("JOIN gold_mapping_rules r ON r.id = gold_mappings.rule_id").
		Where("gold_mappings.is_active = TRUE AND gold_mappings.status = ? AND r.ai_mapping_flag = FALSE", gold.MappingStatusActive).
		Order("gold_mappings.created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Supersede retires old and installs replacement as the next version of the
// same child-node assignment. Deactivation precedes the insert so the
// one-active-mapping-per-child partial index never sees both rows active.
func (r *mappingRepo) Supersede(dbc dbctx.Context, old *gold.Mapping, replacement *gold.Mapping) (*gold.Mapping, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if old == nil || replacement == nil || old.ID == uuid.Nil {
		return nil, nil
	}
	if replacement.ID == uuid.Nil {
		replacement.ID = uuid.New()
	}
	replacement.MappingVersion = old.MappingVersion + 1

	now := time.Now().UTC()
	if err := t.WithContext(dbc.Ctx).
		Model(&gold.Mapping{}).
		Where("id = ?", old.ID).
		Updates(map[string]interface{}{
			"is_active":     false,
			"status":        gold.MappingStatusInactive,
			"superseded_by": replacement.ID,
			"updated_at":    now,
		}).Error; err != nil {
		return nil, err
	}
	if err := t.WithContext(dbc.Ctx).Create(replacement).Error; err != nil {
		return nil, err
	}
	return replacement, nil
}

func (r *mappingRepo) DeactivateByChildNodes(dbc dbctx.Context, childNodeIDs []int64) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(childNodeIDs) == 0 {
		return 0, nil
	}
	res := t.WithContext(dbc.Ctx).
		Model(&gold.Mapping{}).
		Where("child_node_id IN ? AND is_active = TRUE", childNodeIDs).
		Updates(map[string]interface{}{
			"is_active":  false,
			"status":     gold.MappingStatusInactive,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *mappingRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&gold.Mapping{}).
		Where("id = ?", id).
		Updates(updates).Error
}
