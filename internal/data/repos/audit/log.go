package audit

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/domain/audit"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type AuditLogRepo interface {
	Append(dbc dbctx.Context, entries []*audit.AuditLog) error
	ListByEntity(dbc dbctx.Context, entityTable, entityID string, limit, offset int) ([]*audit.AuditLog, error)
	ListByLoad(dbc dbctx.Context, loadID uuid.UUID, limit, offset int) ([]*audit.AuditLog, error)
}

type auditLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditLogRepo(db *gorm.DB, baseLog *logger.Logger) AuditLogRepo {
	return &auditLogRepo{db: db, log: baseLog.With("repo", "AuditLogRepo")}
}

// Append writes audit entries. Callers pass the transaction that performed the
// mutation so the snapshot and the change commit or roll back together.
func (r *auditLogRepo) Append(dbc dbctx.Context, entries []*audit.AuditLog) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(entries) == 0 {
		return nil
	}
	return t.WithContext(dbc.Ctx).CreateInBatches(&entries, 500).Error
}

func (r *auditLogRepo) ListByEntity(dbc dbctx.Context, entityTable, entityID string, limit, offset int) ([]*audit.AuditLog, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*audit.AuditLog
	if entityTable == "" || entityID == "" {
		return out, nil
	}
	q := t.WithContext(dbc.Ctx).
		Where("entity_table = ? AND entity_id = ?", entityTable, entityID).
		Order("occurred_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *auditLogRepo) ListByLoad(dbc dbctx.Context, loadID uuid.UUID, limit, offset int) ([]*audit.AuditLog, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*audit.AuditLog
	if loadID == uuid.Nil {
		return out, nil
	}
	q := t.WithContext(dbc.Ctx).
		Where("load_id = ?", loadID).
		Order("occurred_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
