package silver

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	"github.com/carelattice/taxonomy-backend/internal/pkg/errors"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type VersionRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*silver.TaxonomyVersion, error)
	GetOpen(dbc dbctx.Context, taxonomyID int64) (*silver.TaxonomyVersion, error)
	ListByTaxonomy(dbc dbctx.Context, taxonomyID int64, limit, offset int) ([]*silver.TaxonomyVersion, error)
	ListByRemapStatus(dbc dbctx.Context, taxonomyID int64, statuses []string) ([]*silver.TaxonomyVersion, error)
	Transition(dbc dbctx.Context, taxonomyID int64, loadID uuid.UUID, changeType string, affectedNodes, affectedAttributes []silver.AffectedEntity, remapFlag bool, remapReason string) (*silver.TaxonomyVersion, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	IncrementRemapCounters(dbc dbctx.Context, id uuid.UUID, processed, changed, unchanged, failed, added int) error
	SetRemappingStatus(dbc dbctx.Context, id uuid.UUID, status string) error
}

type versionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVersionRepo(db *gorm.DB, baseLog *logger.Logger) VersionRepo {
	return &versionRepo{db: db, log: baseLog.With("repo", "VersionRepo")}
}

func (r *versionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*silver.TaxonomyVersion, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row silver.TaxonomyVersion
	err := t.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *versionRepo) GetOpen(dbc dbctx.Context, taxonomyID int64) (*silver.TaxonomyVersion, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if taxonomyID == 0 {
		return nil, nil
	}
	var row silver.TaxonomyVersion
	err := t.WithContext(dbc.Ctx).
		Where("taxonomy_id = ? AND version_to_date IS NULL", taxonomyID).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *versionRepo) ListByTaxonomy(dbc dbctx.Context, taxonomyID int64, limit, offset int) ([]*silver.TaxonomyVersion, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*silver.TaxonomyVersion
	if taxonomyID == 0 {
		return out, nil
	}
	q := t.WithContext(dbc.Ctx).
		Where("taxonomy_id = ?", taxonomyID).
		Order("version_number DESC")
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

func (r *versionRepo) ListByRemapStatus(dbc dbctx.Context, taxonomyID int64, statuses []string) ([]*silver.TaxonomyVersion, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*silver.TaxonomyVersion
	if len(statuses) == 0 {
		return out, nil
	}
	q := t.WithContext(dbc.Ctx).
		Where("remapping_flag = TRUE AND remapping_status IN ?", statuses).
		Order("created_at ASC")
	if taxonomyID != 0 {
		q = q.Where("taxonomy_id = ?", taxonomyID)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

const versionAdvisoryLockSQL = `SELECT pg_advisory_xact_lock(hashtextextended('silver_taxonomy_version:' || ?::text, 0))`

const closeOpenVersionSQL = `
UPDATE silver_taxonomy_versions
SET version_to_date = ?, updated_at = ?
WHERE taxonomy_id = ? AND version_to_date IS NULL
RETURNING version_number
`

// Transition closes the open version interval for the taxonomy and opens the
// next one, all under a per-taxonomy transaction-scoped advisory lock so
// concurrent writers serialize instead of racing the one-open-version
// invariant. A writer that cannot take the lock inside lock_timeout gets
// ErrVersionLockTimeout; its silver writes stay committed and only the
// version step fails.
func (r *versionRepo) Transition(dbc dbctx.Context, taxonomyID int64, loadID uuid.UUID, changeType string, affectedNodes, affectedAttributes []silver.AffectedEntity, remapFlag bool, remapReason string) (*silver.TaxonomyVersion, error) {
	if taxonomyID == 0 || loadID == uuid.Nil {
		return nil, errors.ErrInvalidArgument
	}

	nodesJSON, err := marshalAffected(affectedNodes)
	if err != nil {
		return nil, err
	}
	attrsJSON, err := marshalAffected(affectedAttributes)
	if err != nil {
		return nil, err
	}

	remapStatus := silver.RemapStatusNone
	if remapFlag {
		remapStatus = silver.RemapStatusPending
	}

	var next *silver.TaxonomyVersion
	run := func(tx *gorm.DB) error {
		if err := tx.Exec(`SET LOCAL lock_timeout = '30s'`).Error; err != nil {
			return err
		}
		if err := tx.Exec(versionAdvisoryLockSQL, taxonomyID).Error; err != nil {
			if isLockTimeout(err) {
				return errors.ErrVersionLockTimeout
			}
			return err
		}

		now := time.Now().UTC()
		var prev struct {
			VersionNumber int `gorm:"column:version_number"`
		}
		if err := tx.Raw(closeOpenVersionSQL, now, now, taxonomyID).Scan(&prev).Error; err != nil {
			return err
		}

		row := &silver.TaxonomyVersion{
			TaxonomyID:         taxonomyID,
			VersionNumber:      prev.VersionNumber + 1,
			ChangeType:         changeType,
			AffectedNodes:      nodesJSON,
			AffectedAttributes: attrsJSON,
			RemappingFlag:      remapFlag,
			RemappingReason:    remapReason,
			RemappingStatus:    remapStatus,
			VersionFromDate:    now,
			LoadID:             loadID,
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}

		if err := tx.Model(&silver.Taxonomy{}).
			Where("id = ?", taxonomyID).
			Updates(map[string]interface{}{
				"current_version": row.VersionNumber,
				"last_load_id":    loadID,
				"updated_at":      now,
			}).Error; err != nil {
			return err
		}

		next = row
		return nil
	}

	if dbc.Tx != nil {
		err = run(dbc.Tx.WithContext(dbc.Ctx))
	} else {
		err = r.db.WithContext(dbc.Ctx).Transaction(run)
	}
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (r *versionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return t.WithContext(dbc.Ctx).
		Model(&silver.TaxonomyVersion{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *versionRepo) IncrementRemapCounters(dbc dbctx.Context, id uuid.UUID, processed, changed, unchanged, failed, added int) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Model(&silver.TaxonomyVersion{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"remap_processed": gorm.Expr("remap_processed + ?", processed),
			"remap_changed":   gorm.Expr("remap_changed + ?", changed),
			"remap_unchanged": gorm.Expr("remap_unchanged + ?", unchanged),
			"remap_failed":    gorm.Expr("remap_failed + ?", failed),
			"remap_new":       gorm.Expr("remap_new + ?", added),
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (r *versionRepo) SetRemappingStatus(dbc dbctx.Context, id uuid.UUID, status string) error {
	return r.UpdateFields(dbc, id, map[string]interface{}{"remapping_status": status})
}

func marshalAffected(entities []silver.AffectedEntity) (datatypes.JSON, error) {
	if len(entities) == 0 {
		return datatypes.JSON(`[]`), nil
	}
	raw, err := json.Marshal(entities)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// isLockTimeout spots Postgres lock_not_available (SQLSTATE 55P03) without
// binding the repo layer to a driver error type.
func isLockTimeout(err error) bool {
	return err != nil && strings.Contains(err.Error(), "55P03")
}
