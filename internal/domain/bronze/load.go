package bronze

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Load statuses. Spelled the same in the database, the API, and callback
// payloads. Loads are never re-opened after reaching a terminal status.
const (
	LoadStatusInProgress         = "in_progress"
	LoadStatusCompleted          = "completed"
	LoadStatusPartiallyCompleted = "partially_completed"
	LoadStatusFailed             = "failed"
)

const (
	LoadKindNew    = "new"
	LoadKindUpdate = "update"
)

const (
	TaxonomyKindMaster   = "master"
	TaxonomyKindCustomer = "customer"
)

// Load is one ingestion batch: opened before the first bronze row is written,
// finalized exactly once after the last row.
type Load struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CustomerID   string         `gorm:"column:customer_id;size:255;not null;index" json:"customer_id"`
	TaxonomyID   int64          `gorm:"column:taxonomy_id;not null;index" json:"taxonomy_id"`
	LoadKind     string         `gorm:"column:load_kind;not null" json:"load_kind"`
	TaxonomyKind string         `gorm:"column:taxonomy_kind;not null" json:"taxonomy_kind"`
	Status       string         `gorm:"column:status;not null;index" json:"status"`
	IsActive     bool           `gorm:"column:is_active;not null;default:true;index" json:"is_active"`
	StartedAt    time.Time      `gorm:"column:started_at;not null;default:now()" json:"started_at"`
	FinishedAt   *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	Details      datatypes.JSON `gorm:"column:details;type:jsonb" json:"details,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
}

func (Load) TableName() string { return "bronze_load" }

// LoadDetails is the shape of Load.Details. Everything here is free-form
// bookkeeping; nothing in the silver layer depends on it.
type LoadDetails struct {
	InputFormat string          `json:"input_format,omitempty"` // "json" | "csv"
	RequestID   string          `json:"request_id,omitempty"`
	SourceURL   string          `json:"source_url,omitempty"`
	CallbackURL string          `json:"callback_url,omitempty"`
	Layout      json.RawMessage `json:"layout,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Row statuses transition monotonically: in_progress is written at insert,
// then exactly one of completed/failed/skipped.
const (
	RowStatusInProgress = "in_progress"
	RowStatusCompleted  = "completed"
	RowStatusFailed     = "failed"
	RowStatusSkipped    = "skipped"
)

// LoadRow preserves one raw input row verbatim for audit and replay. Payload
// is the column-name to cell-text map exactly as received.
type LoadRow struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	LoadID     uuid.UUID      `gorm:"type:uuid;not null;index:idx_bronze_load_row_load,priority:1" json:"load_id"`
	CustomerID string         `gorm:"column:customer_id;size:255;not null" json:"customer_id"`
	TaxonomyID int64          `gorm:"column:taxonomy_id;not null;index" json:"taxonomy_id"`
	RowIndex   int            `gorm:"column:row_index;not null;index:idx_bronze_load_row_load,priority:2" json:"row_index"`
	Payload    datatypes.JSON `gorm:"column:payload;type:jsonb;not null" json:"payload"`
	Status     string         `gorm:"column:status;not null;index" json:"status"`
	Error      string         `gorm:"column:error" json:"error,omitempty"`
	IsActive   bool           `gorm:"column:is_active;not null;default:true;index" json:"is_active"`
	CreatedAt  time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
}

func (LoadRow) TableName() string { return "bronze_load_row" }
