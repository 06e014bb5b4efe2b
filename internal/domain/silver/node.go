package silver

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaxonomyNode is one vertex of a taxonomy tree.
//
// Natural key: (taxonomy_id, node_type_id, customer_id, parent_node_id,
// value_key). The unique index uses COALESCE(parent_node_id, 0) so null-parent
// roots participate; node ids never take the value 0. Two siblings with the
// same folded value under the same parent collapse to one row; the same value
// under different parents is two rows.
//
// Invariants: a parent belongs to the same taxonomy and sits at a strictly
// smaller level; null parent only at level 0; non-N/A values are non-empty
// after normalization.
type TaxonomyNode struct {
	ID           int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	TaxonomyID   int64   `gorm:"column:taxonomy_id;not null;index:idx_silver_nodes_taxonomy,priority:1" json:"taxonomy_id"`
	NodeTypeID   int64   `gorm:"column:node_type_id;not null;index" json:"node_type_id"`
	CustomerID   string  `gorm:"column:customer_id;size:255;not null" json:"customer_id"`
	ParentNodeID *int64  `gorm:"column:parent_node_id;index" json:"parent_node_id,omitempty"`
	Value        string  `gorm:"column:value;not null" json:"value"`
	ValueKey     string  `gorm:"column:value_key;not null;index" json:"value_key"`
	Profession   *string `gorm:"column:profession" json:"profession,omitempty"`
	Level        int     `gorm:"column:level;not null;index:idx_silver_nodes_taxonomy,priority:2" json:"level"`
	Status       string  `gorm:"column:status;not null;default:'active';index" json:"status"`

	// Lineage: the load and bronze row that last touched this node.
	LoadID uuid.UUID `gorm:"type:uuid;column:load_id;not null;index" json:"load_id"`
	RowID  uuid.UUID `gorm:"type:uuid;column:row_id;not null" json:"row_id"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (TaxonomyNode) TableName() string { return "silver_taxonomy_nodes" }

// IsNA reports whether the node is a gap placeholder. N/A nodes never enter
// mapping candidate sets and are excluded from display paths.
func (n *TaxonomyNode) IsNA() bool { return n != nil && n.NodeTypeID == NANodeTypeID }

// NodeAttribute is one (attribute_type, value) record on a node. Natural key:
// (node_id, attribute_type_id, value_key); multiple values of the same type
// are permitted.
type NodeAttribute struct {
	ID              int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	NodeID          int64  `gorm:"column:node_id;not null;index" json:"node_id"`
	AttributeTypeID int64  `gorm:"column:attribute_type_id;not null;index" json:"attribute_type_id"`
	Value           string `gorm:"column:value;not null" json:"value"`
	ValueKey        string `gorm:"column:value_key;not null" json:"value_key"`
	Status          string `gorm:"column:status;not null;default:'active';index" json:"status"`

	LoadID uuid.UUID `gorm:"type:uuid;column:load_id;not null;index" json:"load_id"`
	RowID  uuid.UUID `gorm:"type:uuid;column:row_id;not null" json:"row_id"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (NodeAttribute) TableName() string { return "silver_node_attributes" }
