package audit

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// AuditLog is one append-only before/after snapshot of a silver or gold row.
// OldRow is null on insert, NewRow is null on delete. Rows are written in the
// same transaction as the mutation they describe.
type AuditLog struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EntityTable string         `gorm:"column:entity_table;not null;index:idx_audit_logs_entity,priority:1" json:"entity_table"`
	EntityID    string         `gorm:"column:entity_id;not null;index:idx_audit_logs_entity,priority:2" json:"entity_id"`
	Operation   string         `gorm:"column:operation;not null" json:"operation"`
	OldRow      datatypes.JSON `gorm:"column:old_row;type:jsonb" json:"old_row,omitempty"`
	NewRow      datatypes.JSON `gorm:"column:new_row;type:jsonb" json:"new_row,omitempty"`
	Actor       string         `gorm:"column:actor;not null" json:"actor"`
	LoadID      *uuid.UUID     `gorm:"type:uuid;column:load_id;index" json:"load_id,omitempty"`
	OccurredAt  time.Time      `gorm:"column:occurred_at;not null;default:now();index" json:"occurred_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
