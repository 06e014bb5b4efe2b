package silver

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type TaxonomyRepo interface {
	GetByID(dbc dbctx.Context, id int64) (*silver.Taxonomy, error)
	GetByIDs(dbc dbctx.Context, ids []int64) ([]*silver.Taxonomy, error)
	GetMaster(dbc dbctx.Context) (*silver.Taxonomy, error)
	EnsureByID(dbc dbctx.Context, row *silver.Taxonomy) (*silver.Taxonomy, error)
	List(dbc dbctx.Context, customerID, kind, status string, limit, offset int) ([]*silver.Taxonomy, error)
	ListActiveCustomerTaxonomies(dbc dbctx.Context) ([]*silver.Taxonomy, error)
	UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error
}

type taxonomyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaxonomyRepo(db *gorm.DB, baseLog *logger.Logger) TaxonomyRepo {
	return &taxonomyRepo{db: db, log: baseLog.With("repo", "TaxonomyRepo")}
}

func (r *taxonomyRepo) GetByID(dbc dbctx.Context, id int64) (*silver.Taxonomy, error) {
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

func (r *taxonomyRepo) GetByIDs(dbc dbctx.Context, ids []int64) ([]*silver.Taxonomy, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*silver.Taxonomy
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *taxonomyRepo) GetMaster(dbc dbctx.Context) (*silver.Taxonomy, error) {
	return r.GetByID(dbc, silver.MasterTaxonomyID)
}

// EnsureByID inserts the taxonomy if its caller-assigned id is new, otherwise
// returns the stored row untouched. Concurrent first loads for the same id
// collapse onto one row.
func (r *taxonomyRepo) EnsureByID(dbc dbctx.Context, row *silver.Taxonomy) (*silver.Taxonomy, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.ID == 0 {
		return nil, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	return r.GetByID(dbc, row.ID)
}

func (r *taxonomyRepo) List(dbc dbctx.Context, customerID, kind, status string, limit, offset int) ([]*silver.Taxonomy, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	q := t.WithContext(dbc.Ctx).Model(&silver.Taxonomy{})
	if customerID != "" {
		q = q.Where("customer_id = ?", customerID)
	}
	if kind != "" {
		q = q.Where("taxonomy_kind = ?", kind)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	q = q.Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var out []*silver.Taxonomy
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *taxonomyRepo) ListActiveCustomerTaxonomies(dbc dbctx.Context) ([]*silver.Taxonomy, error) {
	return r.List(dbc, "", silver.TaxonomyKindCustomer, silver.StatusActive, 0, 0)
}

func (r *taxonomyRepo) UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == 0 {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return t.WithContext(dbc.Ctx).
		Model(&silver.Taxonomy{}).
		Where("id = ?", id).
		Updates(updates).Error
}
