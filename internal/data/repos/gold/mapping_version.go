package gold

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/domain/gold"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type MappingVersionRepo interface {
	Append(dbc dbctx.Context, rows []*gold.MappingVersion) ([]*gold.MappingVersion, error)
	CloseCurrent(dbc dbctx.Context, mappingID uuid.UUID) error
	ListByMapping(dbc dbctx.Context, mappingID uuid.UUID) ([]*gold.MappingVersion, error)
}

type mappingVersionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMappingVersionRepo(db *gorm.DB, baseLog *logger.Logger) MappingVersionRepo {
	return &mappingVersionRepo{db: db, log: baseLog.With("repo", "MappingVersionRepo")}
}

func (r *mappingVersionRepo) Append(dbc dbctx.Context, rows []*gold.MappingVersion) ([]*gold.MappingVersion, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*gold.MappingVersion{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CloseCurrent stamps effective_to on the open chain link of a mapping, if
// one exists.
func (r *mappingVersionRepo) CloseCurrent(dbc dbctx.Context, mappingID uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if mappingID == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	return t.WithContext(dbc.Ctx).
		Model(&gold.MappingVersion{}).
		Where("mapping_id = ? AND effective_to IS NULL", mappingID).
		Updates(map[string]interface{}{
			"effective_to": now,
			"updated_at":   now,
		}).Error
}

func (r *mappingVersionRepo) ListByMapping(dbc dbctx.Context, mappingID uuid.UUID) ([]*gold.MappingVersion, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*gold.MappingVersion
	if mappingID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("mapping_id = ?", mappingID).
		Order("version_number ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
