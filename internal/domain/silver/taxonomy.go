package silver

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

const (
	TaxonomyKindMaster   = "master"
	TaxonomyKindCustomer = "customer"
)

// Reserved identifiers. The master taxonomy row is seeded with MasterTaxonomyID
// and owner MasterCustomerID; the N/A placeholder node type with NANodeTypeID.
// These rows exist in the tables like any other, which is why the tree-side
// entities carry int64 keys.
const (
	MasterTaxonomyID int64  = -1
	MasterCustomerID string = "-1"
	NANodeTypeID     int64  = -1
	NANodeValue      string = "N/A"
)

// Taxonomy is a named tree owned by a customer (or the operator, for the
// master). Created by the first load that references its owner, mutated by
// subsequent loads, soft-inactivated only. IDs are caller-assigned (they
// arrive in load filenames), so no sequence backs this table.
type Taxonomy struct {
	ID             int64          `gorm:"primaryKey;autoIncrement:false" json:"id"`
	CustomerID     string         `gorm:"column:customer_id;size:255;not null;index:idx_silver_taxonomy_owner,priority:1" json:"customer_id"`
	Name           string         `gorm:"column:name;not null" json:"name"`
	TaxonomyKind   string         `gorm:"column:taxonomy_kind;not null;index" json:"taxonomy_kind"`
	Status         string         `gorm:"column:status;not null;default:'active';index" json:"status"`
	CurrentVersion int            `gorm:"column:current_version;not null;default:0" json:"current_version"`
	LastLoadID     *uuid.UUID     `gorm:"type:uuid;column:last_load_id" json:"last_load_id,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Taxonomy) TableName() string { return "silver_taxonomy" }

func (t *Taxonomy) IsMaster() bool { return t != nil && t.TaxonomyKind == TaxonomyKindMaster }

// NodeType is a level label ("Industry", "Profession"). Globally shared
// across taxonomies, append-only. NameKey is Fold(Name) and carries the
// uniqueness; concurrent creation races resolve through insert-or-reselect.
type NodeType struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string         `gorm:"column:name;not null" json:"name"`
	NameKey   string         `gorm:"column:name_key;not null" json:"name_key"`
	Status    string         `gorm:"column:status;not null;default:'active'" json:"status"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (NodeType) TableName() string { return "silver_node_type" }

// AttributeType names an attribute kind ("State", "License Type").
// Append-only dictionary like NodeType.
type AttributeType struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string         `gorm:"column:name;not null" json:"name"`
	NameKey   string         `gorm:"column:name_key;not null" json:"name_key"`
	Status    string         `gorm:"column:status;not null;default:'active'" json:"status"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (AttributeType) TableName() string { return "silver_attribute_type" }
