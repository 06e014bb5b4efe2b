package silver

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type NodeAttributeRepo interface {
	GetByID(dbc dbctx.Context, id int64) (*silver.NodeAttribute, error)
	GetByNaturalKey(dbc dbctx.Context, nodeID, attributeTypeID int64, valueKey string) (*silver.NodeAttribute, error)
	GetActiveByNodeIDs(dbc dbctx.Context, nodeIDs []int64) ([]*silver.NodeAttribute, error)
	UpsertByNaturalKey(dbc dbctx.Context, row *silver.NodeAttribute) (bool, error)
	DeactivateUntouchedForTaxonomy(dbc dbctx.Context, taxonomyID int64, loadID uuid.UUID, retainNodes []int64) ([]*silver.NodeAttribute, error)
	UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error
}

type nodeAttributeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNodeAttributeRepo(db *gorm.DB, baseLog *logger.Logger) NodeAttributeRepo {
	return &nodeAttributeRepo{db: db, log: baseLog.With("repo", "NodeAttributeRepo")}
}

func (r *nodeAttributeRepo) GetByID(dbc dbctx.Context, id int64) (*silver.NodeAttribute, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == 0 {
		return nil, nil
	}
	var row silver.NodeAttribute
	err := t.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (r *nodeAttributeRepo) GetByNaturalKey(dbc dbctx.Context, nodeID, attributeTypeID int64, valueKey string) (*silver.NodeAttribute, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if nodeID == 0 || attributeTypeID == 0 || valueKey == "" {
		return nil, nil
	}
	var row silver.NodeAttribute
	err := t.WithContext(dbc.Ctx).
		Where("node_id = ? AND attribute_type_id = ? AND value_key = ?", nodeID, attributeTypeID, valueKey).
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

func (r *nodeAttributeRepo) GetActiveByNodeIDs(dbc dbctx.Context, nodeIDs []int64) ([]*silver.NodeAttribute, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*silver.NodeAttribute
	if len(nodeIDs) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("node_id IN ? AND status = ?", nodeIDs, silver.StatusActive).
		Order("node_id ASC, attribute_type_id ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

const attributeUpsertSQL = `
INSERT INTO silver_node_attributes
  (node_id, attribute_type_id, value, value_key, status, load_id, row_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, now(), now())
ON CONFLICT (node_id, attribute_type_id, value_key)
DO UPDATE SET
  status     = 'active',
  load_id    = EXCLUDED.load_id,
  row_id     = EXCLUDED.row_id,
  updated_at = now()
RETURNING id, value, status, created_at, updated_at, (xmax = 0) AS inserted
`

// UpsertByNaturalKey inserts or revives one (node, attribute type, value)
// record and reports whether a new row was created. Re-presenting an attribute
// reactivates it and refreshes lineage only; a second value of the same type
// is a second row, not a replacement.
func (r *nodeAttributeRepo) UpsertByNaturalKey(dbc dbctx.Context, row *silver.NodeAttribute) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.NodeID == 0 || row.AttributeTypeID == 0 || row.ValueKey == "" {
		return false, nil
	}
	if row.Status == "" {
		row.Status = silver.StatusActive
	}
	var res struct {
		ID        int64     `gorm:"column:id"`
		Value     string    `gorm:"column:value"`
		Status    string    `gorm:"column:status"`
		CreatedAt time.Time `gorm:"column:created_at"`
		UpdatedAt time.Time `gorm:"column:updated_at"`
		Inserted  bool      `gorm:"column:inserted"`
	}
	err := t.WithContext(dbc.Ctx).
		Raw(attributeUpsertSQL,
			row.NodeID, row.AttributeTypeID, row.Value, row.ValueKey, row.Status,
			row.LoadID, row.RowID).
		Scan(&res).Error
	if err != nil {
		return false, err
	}
	row.ID = res.ID
	row.Value = res.Value
	row.Status = res.Status
	row.CreatedAt = res.CreatedAt
	row.UpdatedAt = res.UpdatedAt
	return res.Inserted, nil
}

const deactivateUntouchedAttributesSQL = `
UPDATE silver_node_attributes a
SET status = 'inactive', updated_at = now()
FROM silver_taxonomy_nodes n
WHERE a.node_id = n.id
  AND n.taxonomy_id = ?
  AND a.status = 'active'
  AND a.load_id <> ?
RETURNING a.*
`

const deactivateUntouchedAttributesRetainSQL = `
UPDATE silver_node_attributes a
SET status = 'inactive', updated_at = now()
FROM silver_taxonomy_nodes n
WHERE a.node_id = n.id
  AND n.taxonomy_id = ?
  AND a.status = 'active'
  AND a.load_id <> ?
  AND a.node_id NOT IN ?
RETURNING a.*
`

// DeactivateUntouchedForTaxonomy retires attributes the given load did not
// re-present, across every node of the taxonomy. Attributes hanging off
// retained nodes are kept with them.
func (r *nodeAttributeRepo) DeactivateUntouchedForTaxonomy(dbc dbctx.Context, taxonomyID int64, loadID uuid.UUID, retainNodes []int64) ([]*silver.NodeAttribute, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*silver.NodeAttribute
	if taxonomyID == 0 || loadID == uuid.Nil {
		return out, nil
	}
	var err error
	if len(retainNodes) > 0 {
		err = t.WithContext(dbc.Ctx).
			Raw(deactivateUntouchedAttributesRetainSQL, taxonomyID, loadID, retainNodes).
			Scan(&out).Error
	} else {
		err = t.WithContext(dbc.Ctx).
			Raw(deactivateUntouchedAttributesSQL, taxonomyID, loadID).
			Scan(&out).Error
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *nodeAttributeRepo) UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error {
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
		Model(&silver.NodeAttribute{}).
		Where("id = ?", id).
		Updates(updates).Error
}
