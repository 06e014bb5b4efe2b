// Package promotion maintains the read-optimized production projection of
// the mapping set. The projector reconciles gold_production_mappings against
// the eligible mappings (active, approved, not produced by an AI rule):
// missing members are inserted, drifted members refreshed, stale members
// removed. Every run converges to the same state, so re-running is free.
package promotion

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/data/repos"
	auditdom "github.com/carelattice/taxonomy-backend/internal/domain/audit"
	"github.com/carelattice/taxonomy-backend/internal/domain/gold"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type UsecasesDeps struct {
	DB  *gorm.DB
	Log *logger.Logger

	Mappings   repos.MappingRepo
	Production repos.ProductionMappingRepo
	Audit      repos.AuditLogRepo
}

type Usecases struct {
	deps UsecasesDeps
}

func New(deps UsecasesDeps) Usecases { return Usecases{deps: deps} }

func (u Usecases) WithLog(log *logger.Logger) Usecases {
	u.deps.Log = log
	return u
}

// SyncOutput tallies one projection run.
type SyncOutput struct {
	Eligible  int
	Promoted  int
	Refreshed int
	Removed   int
}

// SyncProduction converges the production projection in one transaction.
// Rows already projected and unchanged are left alone, so promoted_at keeps
// the time a mapping actually entered the set.
func (u Usecases) SyncProduction(ctx context.Context, actor string) (SyncOutput, error) {
	var out SyncOutput
	err := u.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}

		eligible, err := u.deps.Mappings.ListPromotable(txc)
		if err != nil {
			return err
		}
		current, err := u.deps.Production.List(txc, 0, 0, 0)
		if err != nil {
			return err
		}
		out.Eligible = len(eligible)

		currentByMapping := make(map[uuid.UUID]*gold.ProductionMapping, len(current))
		for _, row := range current {
			currentByMapping[row.MappingID] = row
		}

		now := time.Now().UTC()
		var upserts []*gold.ProductionMapping
		eligibleIDs := make(map[uuid.UUID]bool, len(eligible))
		for _, m := range eligible {
			eligibleIDs[m.ID] = true
			projected := &gold.ProductionMapping{
				ID:           uuid.New(),
				MappingID:    m.ID,
				MasterNodeID: m.MasterNodeID,
				ChildNodeID:  m.ChildNodeID,
				Confidence:   m.Confidence,
				PromotedAt:   now,
			}
			prev := currentByMapping[m.ID]
			switch {
			case prev == nil:
				out.Promoted++
				upserts = append(upserts, projected)
				if err := u.appendAudit(txc, auditdom.OpInsert, nil, projected, actor); err != nil {
					return err
				}
			case prev.MasterNodeID != m.MasterNodeID || prev.ChildNodeID != m.ChildNodeID || prev.Confidence != m.Confidence:
				out.Refreshed++
				upserts = append(upserts, projected)
				if err := u.appendAudit(txc, auditdom.OpUpdate, prev, projected, actor); err != nil {
					return err
				}
			}
		}
		if err := u.deps.Production.Upsert(txc, upserts); err != nil {
			return err
		}

		var staleIDs []uuid.UUID
		for _, row := range current {
			if eligibleIDs[row.MappingID] {
				continue
			}
			staleIDs = append(staleIDs, row.MappingID)
			if err := u.appendAudit(txc, auditdom.OpDelete, row, nil, actor); err != nil {
				return err
			}
		}
		removed, err := u.deps.Production.DeleteByMappingIDs(txc, staleIDs)
		if err != nil {
			return err
		}
		out.Removed = int(removed)
		return nil
	})
	if err != nil {
		return out, err
	}
	u.deps.Log.Info("Production projection synced",
		"eligible", out.Eligible,
		"promoted", out.Promoted,
		"refreshed", out.Refreshed,
		"removed", out.Removed)
	return out, nil
}

// ListProduction reads the projection, optionally filtered to one master node.
func (u Usecases) ListProduction(ctx context.Context, masterNodeID int64, limit, offset int) ([]*gold.ProductionMapping, error) {
	return u.deps.Production.List(dbctx.Context{Ctx: ctx}, masterNodeID, limit, offset)
}

func (u Usecases) appendAudit(txc dbctx.Context, op string, oldRow, newRow *gold.ProductionMapping, actor string) error {
	entry := &auditdom.AuditLog{
		EntityTable: gold.ProductionMapping{}.TableName(),
		Operation:   op,
		Actor:       actor,
		OccurredAt:  time.Now().UTC(),
	}
	switch {
	case newRow != nil:
		entry.EntityID = newRow.MappingID.String()
	case oldRow != nil:
		entry.EntityID = oldRow.MappingID.String()
	}
	if oldRow != nil {
		raw, err := json.Marshal(oldRow)
		if err != nil {
			return err
		}
		entry.OldRow = datatypes.JSON(raw)
	}
	if newRow != nil {
		raw, err := json.Marshal(newRow)
		if err != nil {
			return err
		}
		entry.NewRow = datatypes.JSON(raw)
	}
	return u.deps.Audit.Append(txc, []*auditdom.AuditLog{entry})
}
