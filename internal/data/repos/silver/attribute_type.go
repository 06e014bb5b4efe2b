package silver

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/normalization"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type AttributeTypeRepo interface {
	GetByID(dbc dbctx.Context, id int64) (*silver.AttributeType, error)
	GetByIDs(dbc dbctx.Context, ids []int64) ([]*silver.AttributeType, error)
	GetByNameKey(dbc dbctx.Context, nameKey string) (*silver.AttributeType, error)
	EnsureByName(dbc dbctx.Context, name string) (*silver.AttributeType, error)
	List(dbc dbctx.Context) ([]*silver.AttributeType, error)
}

type attributeTypeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAttributeTypeRepo(db *gorm.DB, baseLog *logger.Logger) AttributeTypeRepo {
	return &attributeTypeRepo{db: db, log: baseLog.With("repo", "AttributeTypeRepo")}
}

func (r *attributeTypeRepo) GetByID(dbc dbctx.Context, id int64) (*silver.AttributeType, error) {
	if id == 0 {
		return nil, nil
	}
	rows, err := r.GetByIDs(dbc, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *attributeTypeRepo) GetByIDs(dbc dbctx.Context, ids []int64) ([]*silver.AttributeType, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*silver.AttributeType
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *attributeTypeRepo) GetByNameKey(dbc dbctx.Context, nameKey string) (*silver.AttributeType, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if nameKey == "" {
		return nil, nil
	}
	var row silver.AttributeType
	err := t.WithContext(dbc.Ctx).Where("name_key = ?", nameKey).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (r *attributeTypeRepo) EnsureByName(dbc dbctx.Context, name string) (*silver.AttributeType, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	name = normalization.Normalize(name)
	key := normalization.Fold(name)
	if key == "" {
		return nil, nil
	}
	row := &silver.AttributeType{
		Name:    name,
		NameKey: key,
		Status:  silver.StatusActive,
	}
	if err := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name_key"}},
			DoNothing: true,
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	return r.GetByNameKey(dbc, key)
}

func (r *attributeTypeRepo) List(dbc dbctx.Context) ([]*silver.AttributeType, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*silver.AttributeType
	if err := t.WithContext(dbc.Ctx).Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
