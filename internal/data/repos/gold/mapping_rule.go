package gold

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/carelattice/taxonomy-backend/internal/domain/gold"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type MappingRuleRepo interface {
	Create(dbc dbctx.Context, rows []*gold.MappingRule) ([]*gold.MappingRule, error)
	EnsureByName(dbc dbctx.Context, row *gold.MappingRule) (*gold.MappingRule, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*gold.MappingRule, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*gold.MappingRule, error)
	GetByName(dbc dbctx.Context, name string) (*gold.MappingRule, error)
	ListEnabled(dbc dbctx.Context) ([]*gold.MappingRule, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type mappingRuleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMappingRuleRepo(db *gorm.DB, baseLog *logger.Logger) MappingRuleRepo {
	return &mappingRuleRepo{db: db, log: baseLog.With("repo", "MappingRuleRepo")}
}

func (r *mappingRuleRepo) Create(dbc dbctx.Context, rows []*gold.MappingRule) ([]*gold.MappingRule, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*gold.MappingRule{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// EnsureByName inserts the rule unless a rule with that name exists; either
// way the stored row comes back. Seeding is idempotent through this.
func (r *mappingRuleRepo) EnsureByName(dbc dbctx.Context, row *gold.MappingRule) (*gold.MappingRule, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.Name == "" {
		return nil, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	return r.GetByName(dbc, row.Name)
}

func (r *mappingRuleRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*gold.MappingRule, error) {
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

func (r *mappingRuleRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*gold.MappingRule, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*gold.MappingRule
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mappingRuleRepo) GetByName(dbc dbctx.Context, name string) (*gold.MappingRule, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if name == "" {
		return nil, nil
	}
	var row gold.MappingRule
	err := t.WithContext(dbc.Ctx).Where("name = ?", name).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *mappingRuleRepo) ListEnabled(dbc dbctx.Context) ([]*gold.MappingRule, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*gold.MappingRule
	if err := t.WithContext(dbc.Ctx).
		Where("enabled = TRUE").
		Order("name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mappingRuleRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&gold.MappingRule{}).
		Where("id = ?", id).
		Updates(updates).Error
}
