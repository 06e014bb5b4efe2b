package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/domain/audit"
	"github.com/carelattice/taxonomy-backend/internal/domain/bronze"
	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	pkgerrors "github.com/carelattice/taxonomy-backend/internal/pkg/errors"
)

type LoadFinalizeInput struct {
	LoadID uuid.UUID
	Actor  string
}

type LoadFinalizeOutput struct {
	Load         *bronze.Load
	AlreadyFinal bool
	Status       string

	Completed int64
	Failed    int64
	Skipped   int64
	Pending   int64

	NodesDeactivated      int
	AttributesDeactivated int

	Version        *silver.TaxonomyVersion
	VersionSkipped bool
}

// LoadFinalize settles a load exactly once: it tallies row outcomes, runs the
// full-replace reconcile for update loads, transitions the taxonomy version,
// and stamps the terminal status. Safe to rerun after a crash at any point;
// each stage detects work it already did. Rows still in_progress here mean the
// run was aborted, and they count against the load.
func (u Usecases) LoadFinalize(ctx context.Context, in LoadFinalizeInput) (*LoadFinalizeOutput, error) {
	dbc := dbctx.Context{Ctx: ctx}

	load, err := u.deps.Loads.GetByID(dbc, in.LoadID)
	if err != nil {
		return nil, err
	}
	if load == nil {
		return nil, fmt.Errorf("%w: load %s", pkgerrors.ErrNotFound, in.LoadID)
	}
	out := &LoadFinalizeOutput{Load: load, Status: load.Status}
	if load.Status != bronze.LoadStatusInProgress {
		out.AlreadyFinal = true
		return out, nil
	}

	tallies, err := u.deps.LoadRows.CountStatuses(dbc, load.ID)
	if err != nil {
		return nil, err
	}
	out.Completed = tallies[bronze.RowStatusCompleted]
	out.Failed = tallies[bronze.RowStatusFailed]
	out.Skipped = tallies[bronze.RowStatusSkipped]
	out.Pending = tallies[bronze.RowStatusInProgress]
	out.Status = statusFromTallies(tallies)

	// Update loads replace: whatever an update did not re-present goes
	// inactive, along with attributes and mappings hanging off it. Gated on
	// at least one completed row so a dead file cannot empty a taxonomy.
	if load.LoadKind == bronze.LoadKindUpdate && out.Completed > 0 {
		if err := u.reconcile(ctx, load, in.Actor, out); err != nil {
			return nil, err
		}
	}

	if out.Status != bronze.LoadStatusFailed {
		if err := u.transitionVersion(ctx, load, out); err != nil {
			return nil, err
		}
	}

	patch := map[string]interface{}{
		"counts": map[string]int64{
			"completed": out.Completed,
			"failed":    out.Failed,
			"skipped":   out.Skipped,
			"pending":   out.Pending,
		},
	}
	if out.VersionSkipped {
		patch["version_skipped"] = true
	}
	err = u.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := u.deps.Loads.MergeDetails(txc, load.ID, patch); err != nil {
			return err
		}
		return u.deps.Loads.Finalize(txc, load.ID, out.Status)
	})
	if err != nil {
		return nil, err
	}
	load.Status = out.Status

	if u.deps.Log != nil {
		u.deps.Log.Info("load finalized",
			"load_id", load.ID.String(),
			"taxonomy_id", load.TaxonomyID,
			"status", out.Status,
			"completed", out.Completed,
			"failed", out.Failed,
			"skipped", out.Skipped,
			"nodes_deactivated", out.NodesDeactivated)
	}
	return out, nil
}

// reconcile retires everything the update load did not touch. Runs in one
// transaction so the tree, its attributes, and dependent mappings flip
// together; rerunning finds nothing left to retire.
func (u Usecases) reconcile(ctx context.Context, load *bronze.Load, actor string, out *LoadFinalizeOutput) error {
	return u.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}

		nodes, err := u.deps.Nodes.DeactivateUntouched(txc, load.TaxonomyID, load.ID, nil)
		if err != nil {
			return err
		}
		attrs, err := u.deps.NodeAttributes.DeactivateUntouchedForTaxonomy(txc, load.TaxonomyID, load.ID, nil)
		if err != nil {
			return err
		}
		out.NodesDeactivated = len(nodes)
		out.AttributesDeactivated = len(attrs)
		if len(nodes) == 0 && len(attrs) == 0 {
			return nil
		}

		nodeIDs := make([]int64, 0, len(nodes))
		entries := make([]*audit.AuditLog, 0, len(nodes)+len(attrs))
		for _, n := range nodes {
			nodeIDs = append(nodeIDs, n.ID)
			entries = append(entries, deactivationEntry(n.TableName(), n.ID, n, load, actor))
		}
		for _, a := range attrs {
			entries = append(entries, deactivationEntry(a.TableName(), a.ID, a, load, actor))
		}

		if len(nodeIDs) > 0 {
			if _, err := u.deps.Mappings.DeactivateByChildNodes(txc, nodeIDs); err != nil {
				return err
			}
		}
		return u.deps.Audit.Append(txc, entries)
	})
}

// deactivationEntry builds the audit record for a reconcile flip. The stored
// row is already inactive; the old image is the same row with status active,
// which is the only field reconcile changes.
func deactivationEntry(table string, id int64, row interface{}, load *bronze.Load, actor string) *audit.AuditLog {
	entry := &audit.AuditLog{
		EntityTable: table,
		EntityID:    strconv.FormatInt(id, 10),
		Operation:   audit.OpUpdate,
		Actor:       actor,
		LoadID:      &load.ID,
		OccurredAt:  time.Now().UTC(),
	}
	if raw, err := json.Marshal(row); err == nil {
		entry.NewRow = datatypes.JSON(raw)
		var old map[string]interface{}
		if err := json.Unmarshal(raw, &old); err == nil {
			old["status"] = silver.StatusActive
			if oldRaw, err := json.Marshal(old); err == nil {
				entry.OldRow = datatypes.JSON(oldRaw)
			}
		}
	}
	return entry
}

// transitionVersion closes the open version interval and opens the next one,
// with affected lists rebuilt from this load's audit trail. Rebuilding from
// the database rather than from in-memory counters keeps the step stable
// across retries; a rerun that finds its own open version skips out. A load
// that changed nothing leaves the open interval as it is: rerunning the same
// file mints no version rows.
func (u Usecases) transitionVersion(ctx context.Context, load *bronze.Load, out *LoadFinalizeOutput) error {
	dbc := dbctx.Context{Ctx: ctx}

	open, err := u.deps.Versions.GetOpen(dbc, load.TaxonomyID)
	if err != nil {
		return err
	}
	if open != nil && open.LoadID == load.ID {
		out.Version = open
		return nil
	}

	affNodes, affAttrs, err := u.affectedFromAudit(dbc, load.ID)
	if err != nil {
		return err
	}
	if len(affNodes) == 0 && len(affAttrs) == 0 {
		out.Version = open
		return nil
	}

	// Remapping is owed when the master tree moved, or when deactivations may
	// have stranded existing mappings. A customer load that only added nodes
	// gets its new nodes mapped by its own follow-up, not a remap.
	deactivated := countDeactivated(affNodes) + countDeactivated(affAttrs)
	remapFlag := load.TaxonomyID == silver.MasterTaxonomyID || deactivated > 0
	remapReason := ""
	switch {
	case load.TaxonomyID == silver.MasterTaxonomyID:
		remapReason = fmt.Sprintf("master load %s changed %d nodes, %d attributes", load.ID, len(affNodes), len(affAttrs))
	case remapFlag:
		remapReason = fmt.Sprintf("load %s deactivated %d entities", load.ID, deactivated)
	}

	v, err := u.deps.Versions.Transition(dbc, load.TaxonomyID, load.ID, load.LoadKind, affNodes, affAttrs, remapFlag, remapReason)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrVersionLockTimeout) {
			out.VersionSkipped = true
			if u.deps.Log != nil {
				u.deps.Log.Warn("version transition skipped, lock not acquired",
					"load_id", load.ID.String(),
					"taxonomy_id", load.TaxonomyID)
			}
			return nil
		}
		return err
	}
	out.Version = v
	return nil
}

// affectedFromAudit folds the load's audit entries into the version's
// affected lists: inserts are new, updates are modified or deactivated by
// the stored status. Entries for other tables (taxonomy creation) are
// ignored.
func (u Usecases) affectedFromAudit(dbc dbctx.Context, loadID uuid.UUID) ([]silver.AffectedEntity, []silver.AffectedEntity, error) {
	entries, err := u.deps.Audit.ListByLoad(dbc, loadID, 0, 0)
	if err != nil {
		return nil, nil, err
	}

	nodeTable := silver.TaxonomyNode{}.TableName()
	attrTable := silver.NodeAttribute{}.TableName()

	var nodes, attrs []silver.AffectedEntity
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.EntityTable != nodeTable && e.EntityTable != attrTable {
			continue
		}
		key := e.EntityTable + ":" + e.EntityID
		if seen[key] {
			continue
		}
		seen[key] = true

		var change string
		switch e.Operation {
		case audit.OpInsert:
			change = silver.ChangeNew
		case audit.OpUpdate:
			var probe struct {
				Status string `json:"status"`
			}
			_ = json.Unmarshal(e.NewRow, &probe)
			if probe.Status == silver.StatusInactive {
				change = silver.ChangeDeactivated
			} else {
				change = silver.ChangeModified
			}
		default:
			continue
		}

		id, err := strconv.ParseInt(e.EntityID, 10, 64)
		if err != nil {
			continue
		}
		if e.EntityTable == nodeTable {
			nodes = append(nodes, silver.AffectedEntity{ID: id, Change: change})
		} else {
			attrs = append(attrs, silver.AffectedEntity{ID: id, Change: change})
		}
	}
	return nodes, attrs, nil
}

func countDeactivated(list []silver.AffectedEntity) int {
	n := 0
	for _, e := range list {
		if e.Change == silver.ChangeDeactivated {
			n++
		}
	}
	return n
}

// statusFromTallies derives the terminal load status from row outcomes. Rows
// still pending mean the run aborted mid-load. A load whose rows were all
// skipped, or that had no rows at all, completes vacuously.
func statusFromTallies(tallies map[string]int64) string {
	completed := tallies[bronze.RowStatusCompleted]
	failed := tallies[bronze.RowStatusFailed]
	pending := tallies[bronze.RowStatusInProgress]

	switch {
	case pending > 0:
		if completed > 0 {
			return bronze.LoadStatusPartiallyCompleted
		}
		return bronze.LoadStatusFailed
	case failed == 0:
		return bronze.LoadStatusCompleted
	case completed > 0:
		return bronze.LoadStatusPartiallyCompleted
	default:
		return bronze.LoadStatusFailed
	}
}
