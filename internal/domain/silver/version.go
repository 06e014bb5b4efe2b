package silver

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Node/attribute change kinds recorded in a version's affected lists.
const (
	ChangeNew         = "new"
	ChangeModified    = "modified"
	ChangeDeactivated = "deactivated"
)

// Remapping statuses on a version row. The mapping engine moves pending →
// in_progress → completed/failed as it reprocesses.
const (
	RemapStatusNone       = "none"
	RemapStatusPending    = "pending"
	RemapStatusInProgress = "in_progress"
	RemapStatusCompleted  = "completed"
	RemapStatusFailed     = "failed"
)

// AffectedEntity is one element of a version's affected_nodes /
// affected_attributes JSON lists.
type AffectedEntity struct {
	ID     int64  `json:"id"`
	Change string `json:"change"`
}

// TaxonomyVersion is an immutable interval describing one structural snapshot
// of a taxonomy. Exactly one row per taxonomy has a null version_to_date at
// any instant; close-and-open transitions are serialized by a per-taxonomy
// advisory lock.
type TaxonomyVersion struct {
	ID                 uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TaxonomyID         int64          `gorm:"column:taxonomy_id;not null;index:idx_silver_versions_taxonomy,priority:1" json:"taxonomy_id"`
	VersionNumber      int            `gorm:"column:version_number;not null;index:idx_silver_versions_taxonomy,priority:2" json:"version_number"`
	ChangeType         string         `gorm:"column:change_type;not null" json:"change_type"`
	AffectedNodes      datatypes.JSON `gorm:"column:affected_nodes;type:jsonb" json:"affected_nodes,omitempty"`
	AffectedAttributes datatypes.JSON `gorm:"column:affected_attributes;type:jsonb" json:"affected_attributes,omitempty"`
	RemappingFlag      bool           `gorm:"column:remapping_flag;not null;default:false" json:"remapping_flag"`
	RemappingReason    string         `gorm:"column:remapping_reason" json:"remapping_reason,omitempty"`
	RemapProcessed     int            `gorm:"column:remap_processed;not null;default:0" json:"remap_processed"`
	RemapChanged       int            `gorm:"column:remap_changed;not null;default:0" json:"remap_changed"`
	RemapUnchanged     int            `gorm:"column:remap_unchanged;not null;default:0" json:"remap_unchanged"`
	RemapFailed        int            `gorm:"column:remap_failed;not null;default:0" json:"remap_failed"`
	RemapNew           int            `gorm:"column:remap_new;not null;default:0" json:"remap_new"`
	RemappingStatus    string         `gorm:"column:remapping_status;not null;default:'none'" json:"remapping_status"`
	VersionFromDate    time.Time      `gorm:"column:version_from_date;not null" json:"version_from_date"`
	VersionToDate      *time.Time     `gorm:"column:version_to_date;index" json:"version_to_date,omitempty"`
	LoadID             uuid.UUID      `gorm:"type:uuid;column:load_id;not null;index" json:"load_id"`
	CreatedAt          time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
}

func (TaxonomyVersion) TableName() string { return "silver_taxonomy_versions" }
