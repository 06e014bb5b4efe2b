package gold

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Mapping statuses. A mapping is written active at confidence >= 70 and
// pending_review below; superseded rows go inactive.
const (
	MappingStatusActive        = "active"
	MappingStatusPendingReview = "pending_review"
	MappingStatusInactive      = "inactive"
)

// ActiveStatusThreshold is the 0-100 confidence at which a computed mapping
// skips review.
const ActiveStatusThreshold = 70

// Mapping assigns one customer node to one master node. Identity: at most one
// row with is_active=true per (master_node_id, child_node_id) pair, and at
// most one active mapping per child node; both enforced by partial unique
// indexes. Confidence is the matcher's 0.0-1.0 score stored as 0-100.
type Mapping struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RuleID         uuid.UUID      `gorm:"type:uuid;column:rule_id;not null;index" json:"rule_id"`
	MasterNodeID   int64          `gorm:"column:master_node_id;not null;index" json:"master_node_id"`
	ChildNodeID    int64          `gorm:"column:child_node_id;not null;index" json:"child_node_id"`
	Confidence     int            `gorm:"column:confidence;not null" json:"confidence"`
	Status         string         `gorm:"column:status;not null;index" json:"status"`
	IsActive       bool           `gorm:"column:is_active;not null;default:true;index" json:"is_active"`
	MappingVersion int            `gorm:"column:mapping_version;not null;default:1" json:"mapping_version"`
	SupersededBy   *uuid.UUID     `gorm:"type:uuid;column:superseded_by" json:"superseded_by,omitempty"`
	CreatedBy      string         `gorm:"column:created_by;not null" json:"created_by"`
	Details        datatypes.JSON `gorm:"column:details;type:jsonb" json:"details,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Mapping) TableName() string { return "gold_mappings" }

// MappingDetails is the shape of Mapping.Details: which strategy produced the
// match and why.
type MappingDetails struct {
	Strategy  string   `json:"strategy"`
	Reasoning string   `json:"reasoning,omitempty"`
	Remainder []string `json:"remainder,omitempty"`
	LoadID    string   `json:"load_id,omitempty"`
}

// MappingVersion change types.
const (
	MappingChangeNew        = "new"
	MappingChangeSuperseded = "superseded"
	MappingChangeReviewed   = "reviewed"
)

// MappingVersion records one link of a mapping's supersession chain.
type MappingVersion struct {
	ID                uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	MappingID         uuid.UUID  `gorm:"type:uuid;column:mapping_id;not null;index" json:"mapping_id"`
	VersionNumber     int        `gorm:"column:version_number;not null" json:"version_number"`
	PreviousMappingID *uuid.UUID `gorm:"type:uuid;column:previous_mapping_id" json:"previous_mapping_id,omitempty"`
	ChangeType        string     `gorm:"column:change_type;not null" json:"change_type"`
	EffectiveFrom     time.Time  `gorm:"column:effective_from;not null" json:"effective_from"`
	EffectiveTo       *time.Time `gorm:"column:effective_to" json:"effective_to,omitempty"`
	CreatedAt         time.Time  `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"not null;default:now();index" json:"updated_at"`
}

func (MappingVersion) TableName() string { return "gold_mapping_versions" }

// ProductionMapping is one member of the read-optimized production set: it
// mirrors exactly the mappings that are active, approved, and not produced by
// an AI rule. Maintained only by the promotion projector.
type ProductionMapping struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	MappingID    uuid.UUID `gorm:"type:uuid;column:mapping_id;not null;uniqueIndex" json:"mapping_id"`
	MasterNodeID int64     `gorm:"column:master_node_id;not null;index" json:"master_node_id"`
	ChildNodeID  int64     `gorm:"column:child_node_id;not null;index" json:"child_node_id"`
	Confidence   int       `gorm:"column:confidence;not null" json:"confidence"`
	PromotedAt   time.Time `gorm:"column:promoted_at;not null" json:"promoted_at"`
	CreatedAt    time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null;default:now();index" json:"updated_at"`
}

func (ProductionMapping) TableName() string { return "gold_production_mappings" }
