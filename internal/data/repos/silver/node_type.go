package silver

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/normalization"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type NodeTypeRepo interface {
	GetByID(dbc dbctx.Context, id int64) (*silver.NodeType, error)
	GetByIDs(dbc dbctx.Context, ids []int64) ([]*silver.NodeType, error)
	GetByNameKey(dbc dbctx.Context, nameKey string) (*silver.NodeType, error)
	EnsureByName(dbc dbctx.Context, name string) (*silver.NodeType, error)
	List(dbc dbctx.Context) ([]*silver.NodeType, error)
}

type nodeTypeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNodeTypeRepo(db *gorm.DB, baseLog *logger.Logger) NodeTypeRepo {
	return &nodeTypeRepo{db: db, log: baseLog.With("repo", "NodeTypeRepo")}
}

func (r *nodeTypeRepo) GetByID(dbc dbctx.Context, id int64) (*silver.NodeType, error) {
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

func (r *nodeTypeRepo) GetByIDs(dbc dbctx.Context, ids []int64) ([]*silver.NodeType, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*silver.NodeType
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *nodeTypeRepo) GetByNameKey(dbc dbctx.Context, nameKey string) (*silver.NodeType, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if nameKey == "" {
		return nil, nil
	}
	var row silver.NodeType
	err := t.WithContext(dbc.Ctx).Where("name_key = ?", nameKey).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

// EnsureByName resolves a level label to its dictionary row, inserting it on
// first sight. The name_key unique index makes concurrent first sights
// converge: the losing insert is a no-op and the reselect returns the winner.
func (r *nodeTypeRepo) EnsureByName(dbc dbctx.Context, name string) (*silver.NodeType, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	name = normalization.Normalize(name)
	key := normalization.Fold(name)
	if key == "" {
		return nil, nil
	}
	row := &silver.NodeType{
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

func (r *nodeTypeRepo) List(dbc dbctx.Context) ([]*silver.NodeType, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*silver.NodeType
	if err := t.WithContext(dbc.Ctx).Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
