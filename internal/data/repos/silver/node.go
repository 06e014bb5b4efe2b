package silver

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type NodeRepo interface {
	GetByID(dbc dbctx.Context, id int64) (*silver.TaxonomyNode, error)
	GetByIDs(dbc dbctx.Context, ids []int64) ([]*silver.TaxonomyNode, error)
	GetByNaturalKey(dbc dbctx.Context, taxonomyID, nodeTypeID int64, customerID string, parentNodeID *int64, valueKey string) (*silver.TaxonomyNode, error)
	UpsertByNaturalKey(dbc dbctx.Context, row *silver.TaxonomyNode) (bool, error)
	GetActiveByTaxonomy(dbc dbctx.Context, taxonomyID int64) ([]*silver.TaxonomyNode, error)
	GetActiveByTaxonomyAndType(dbc dbctx.Context, taxonomyID, nodeTypeID int64) ([]*silver.TaxonomyNode, error)
	GetActiveMappableByTaxonomy(dbc dbctx.Context, taxonomyID int64) ([]*silver.TaxonomyNode, error)
	GetVisibleByTaxonomy(dbc dbctx.Context, taxonomyID int64) ([]*silver.TaxonomyNode, error)
	GetTouchedByLoad(dbc dbctx.Context, taxonomyID int64, loadID uuid.UUID) ([]*silver.TaxonomyNode, error)
	DeactivateUntouched(dbc dbctx.Context, taxonomyID int64, loadID uuid.UUID, retain []int64) ([]*silver.TaxonomyNode, error)
	UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error
	CountActiveByTaxonomy(dbc dbctx.Context, taxonomyID int64) (int64, error)
}

type nodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNodeRepo(db *gorm.DB, baseLog *logger.Logger) NodeRepo {
	return &nodeRepo{db: db, log: baseLog.With("repo", "NodeRepo")}
}

func (r *nodeRepo) GetByID(dbc dbctx.Context, id int64) (*silver.TaxonomyNode, error) {
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

func (r *nodeRepo) GetByIDs(dbc dbctx.Context, ids []int64) ([]*silver.TaxonomyNode, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*silver.TaxonomyNode
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *nodeRepo) GetByNaturalKey(dbc dbctx.Context, taxonomyID, nodeTypeID int64, customerID string, parentNodeID *int64, valueKey string) (*silver.TaxonomyNode, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if taxonomyID == 0 || nodeTypeID == 0 || valueKey == "" {
		return nil, nil
	}
	var parent int64
	if parentNodeID != nil {
		parent = *parentNodeID
	}
	var row silver.TaxonomyNode
	err := t.WithContext(dbc.Ctx).
		Where("taxonomy_id = ? AND node_type_id = ? AND customer_id = ? AND COALESCE(parent_node_id, 0) = ? AND value_key = ?",
			taxonomyID, nodeTypeID, customerID, parent, valueKey).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

const nodeUpsertSQL = `
INSERT INTO silver_taxonomy_nodes
  (taxonomy_id, node_type_id, customer_id, parent_node_id, value, value_key, profession, level, status, load_id, row_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, now(), now())
ON CONFLICT (taxonomy_id, node_type_id, customer_id, COALESCE(parent_node_id, 0), value_key)
DO UPDATE SET
  status     = 'active',
  load_id    = EXCLUDED.load_id,
  row_id     = EXCLUDED.row_id,
  updated_at = now()
RETURNING id, value, profession, level, status, created_at, updated_at, (xmax = 0) AS inserted
`

// UpsertByNaturalKey inserts or revives the node addressed by its natural key
// and reports whether a new row was created. The conflict target is the
// expression index on (taxonomy_id, node_type_id, customer_id,
// COALESCE(parent_node_id, 0), value_key), which is what lets two concurrent
// loads write the same sibling without a duplicate. On conflict only status
// and lineage move: the row is reactivated and load_id/row_id point at the
// presenting load, everything else keeps its stored value. The caller's row
// is rewritten from RETURNING so it always reflects what the table holds.
func (r *nodeRepo) UpsertByNaturalKey(dbc dbctx.Context, row *silver.TaxonomyNode) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.TaxonomyID == 0 || row.NodeTypeID == 0 || row.ValueKey == "" {
		return false, nil
	}
	if row.Status == "" {
		row.Status = silver.StatusActive
	}
	var res struct {
		ID         int64     `gorm:"column:id"`
		Value      string    `gorm:"column:value"`
		Profession *string   `gorm:"column:profession"`
		Level      int       `gorm:"column:level"`
		Status     string    `gorm:"column:status"`
		CreatedAt  time.Time `gorm:"column:created_at"`
		UpdatedAt  time.Time `gorm:"column:updated_at"`
		Inserted   bool      `gorm:"column:inserted"`
	}
	err := t.WithContext(dbc.Ctx).
		Raw(nodeUpsertSQL,
			row.TaxonomyID, row.NodeTypeID, row.CustomerID, row.ParentNodeID,
			row.Value, row.ValueKey, row.Profession, row.Level, row.Status,
			row.LoadID, row.RowID).
		Scan(&res).Error
	if err != nil {
		return false, err
	}
	row.ID = res.ID
	row.Value = res.Value
	row.Profession = res.Profession
	row.Level = res.Level
	row.Status = res.Status
	row.CreatedAt = res.CreatedAt
	row.UpdatedAt = res.UpdatedAt
	return res.Inserted, nil
}

func (r *nodeRepo) GetActiveByTaxonomy(dbc dbctx.Context, taxonomyID int64) ([]*silver.TaxonomyNode, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*silver.TaxonomyNode
	if taxonomyID == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("taxonomy_id = ? AND status = ?", taxonomyID, silver.StatusActive).
		Order("level ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *nodeRepo) GetActiveByTaxonomyAndType(dbc dbctx.Context, taxonomyID, nodeTypeID int64) ([]*silver.TaxonomyNode, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*silver.TaxonomyNode
	if taxonomyID == 0 || nodeTypeID == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("taxonomy_id = ? AND node_type_id = ? AND status = ?", taxonomyID, nodeTypeID, silver.StatusActive).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// GetActiveMappableByTaxonomy returns active nodes that may enter the mapping
// engine: gap placeholders are structural filler, never mapping subjects.
func (r *nodeRepo) GetActiveMappableByTaxonomy(dbc dbctx.Context, taxonomyID int64) ([]*silver.TaxonomyNode, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*silver.TaxonomyNode
	if taxonomyID == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("taxonomy_id = ? AND status = ? AND node_type_id <> ?", taxonomyID, silver.StatusActive, silver.NANodeTypeID).
		Order("level ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// GetVisibleByTaxonomy is the read-traffic variant of GetActiveByTaxonomy: a
// withdrawn load (bronze_load.is_active = false) hides every node it last
// touched without the engine rewriting node status.
func (r *nodeRepo) GetVisibleByTaxonomy(dbc dbctx.Context, taxonomyID int64) ([]*silver.TaxonomyNode, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*silver.TaxonomyNode
	if taxonomyID == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("taxonomy_id = ? AND status = ?", taxonomyID, silver.StatusActive).
		Where("load_id IS NULL OR load_id IN (SELECT id FROM bronze_load WHERE is_active = TRUE)").
		Order("level ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *nodeRepo) GetTouchedByLoad(dbc dbctx.Context, taxonomyID int64, loadID uuid.UUID) ([]*silver.TaxonomyNode, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*silver.TaxonomyNode
	if taxonomyID == 0 || loadID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("taxonomy_id = ? AND load_id = ?", taxonomyID, loadID).
		Order("level ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

const deactivateUntouchedSQL = `
UPDATE silver_taxonomy_nodes
SET status = 'inactive', updated_at = now()
WHERE taxonomy_id = ? AND status = 'active' AND load_id <> ?
RETURNING *
`

const deactivateUntouchedRetainSQL = `
UPDATE silver_taxonomy_nodes
SET status = 'inactive', updated_at = now()
WHERE taxonomy_id = ? AND status = 'active' AND load_id <> ? AND id NOT IN ?
RETURNING *
`

// DeactivateUntouched retires every active node the given load did not
// re-present, except ids the caller asks to retain. Update loads call this
// after the last row so the tree converges on exactly the presented set; the
// returned rows feed the version's deactivated list and the audit trail.
func (r *nodeRepo) DeactivateUntouched(dbc dbctx.Context, taxonomyID int64, loadID uuid.UUID, retain []int64) ([]*silver.TaxonomyNode, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*silver.TaxonomyNode
	if taxonomyID == 0 || loadID == uuid.Nil {
		return out, nil
	}
	var err error
	if len(retain) > 0 {
		err = t.WithContext(dbc.Ctx).
			Raw(deactivateUntouchedRetainSQL, taxonomyID, loadID, retain).
			Scan(&out).Error
	} else {
		err = t.WithContext(dbc.Ctx).
			Raw(deactivateUntouchedSQL, taxonomyID, loadID).
			Scan(&out).Error
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *nodeRepo) UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error {
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
		Model(&silver.TaxonomyNode{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *nodeRepo) CountActiveByTaxonomy(dbc dbctx.Context, taxonomyID int64) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if taxonomyID == 0 {
		return 0, nil
	}
	var count int64
	err := t.WithContext(dbc.Ctx).
		Model(&silver.TaxonomyNode{}).
		Where("taxonomy_id = ? AND status = ?", taxonomyID, silver.StatusActive).
		Count(&count).Error
	return count, err
}
