package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Job kinds processed by the background worker.
const (
	KindLoadProcess    = "load_process"
	KindTaxonomyRemap  = "taxonomy_remap"
	KindMappingPromote = "mapping_promote"
	KindLoadCallback   = "load_callback"
	KindGraphProject   = "graph_project"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// PromoteRefID is the shared ref for mapping_promote jobs. Promotion
// converges the whole production set, so one queued run covers every caller.
const PromoteRefID = "production"

// JobRun is one unit of asynchronous work, claimed by workers with
// FOR UPDATE SKIP LOCKED. RefID points at the subject: a load id for
// load_process/load_callback, a taxonomy id (decimal string) for
// taxonomy_remap/graph_project, empty for mapping_promote.
type JobRun struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Kind          string         `gorm:"column:kind;not null;index" json:"kind"`
	RefID         string         `gorm:"column:ref_id;index" json:"ref_id,omitempty"`
	Status        string         `gorm:"column:status;not null;index" json:"status"`
	Stage         string         `gorm:"column:stage;not null;default:''" json:"stage"`
	Progress      int            `gorm:"column:progress;not null;default:0" json:"progress"`
	Attempts      int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError     string         `gorm:"column:last_error" json:"last_error,omitempty"`
	LockedAt      *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	LockedBy      string         `gorm:"column:locked_by" json:"locked_by,omitempty"`
	HeartbeatAt   *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	NextAttemptAt *time.Time     `gorm:"column:next_attempt_at;index" json:"next_attempt_at,omitempty"`
	Payload       datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	Result        datatypes.JSON `gorm:"column:result;type:jsonb" json:"result"`
	CreatedAt     time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (JobRun) TableName() string { return "job_runs" }
