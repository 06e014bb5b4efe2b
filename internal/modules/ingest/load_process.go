package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/domain/bronze"
	"github.com/carelattice/taxonomy-backend/internal/normalization"
	"github.com/carelattice/taxonomy-backend/internal/observability"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	pkgerrors "github.com/carelattice/taxonomy-backend/internal/pkg/errors"
)

type LoadProcessInput struct {
	LoadID uuid.UUID
	Actor  string
	// Report, when set, is called after every row with (done, total).
	Report func(done, total int)
}

type LoadProcessOutput struct {
	Load         *bronze.Load
	AlreadyFinal bool
	Completed    int
	Failed       int
	Skipped      int
}

// LoadProcess walks a load's bronze rows in input order and writes each one
// into the silver tree under its own transaction. A row failure marks that
// row failed and moves on; infrastructure failures abort and bubble up so the
// job runtime can retry. Reruns are safe: terminal rows keep their status and
// completed rows are replayed through the same upserts purely to rebuild the
// rolling ancestry.
func (u Usecases) LoadProcess(ctx context.Context, in LoadProcessInput) (*LoadProcessOutput, error) {
	dbc := dbctx.Context{Ctx: ctx}

	load, err := u.deps.Loads.GetByID(dbc, in.LoadID)
	if err != nil {
		return nil, err
	}
	if load == nil {
		return nil, fmt.Errorf("%w: load %s", pkgerrors.ErrNotFound, in.LoadID)
	}
	out := &LoadProcessOutput{Load: load}
	if load.Status != bronze.LoadStatusInProgress {
		out.AlreadyFinal = true
		return out, nil
	}

	// Writes are single-threaded per taxonomy: only the oldest open load may
	// proceed, everything younger waits its turn.
	oldest, err := u.deps.Loads.GetOldestInProgressForTaxonomy(dbc, load.TaxonomyID)
	if err != nil {
		return nil, err
	}
	if oldest != nil && oldest.ID != load.ID {
		return nil, fmt.Errorf("%w: load %s is behind %s", pkgerrors.ErrTaxonomyBusy, load.ID, oldest.ID)
	}

	var details bronze.LoadDetails
	if len(load.Details) > 0 {
		if err := json.Unmarshal(load.Details, &details); err != nil {
			return u.failLoad(ctx, out, load, fmt.Sprintf("load details unreadable: %v", err))
		}
	}
	layout, err := ParseLayout(details.Layout, load.TaxonomyKind)
	if err != nil {
		return u.failLoad(ctx, out, load, err.Error())
	}

	typeIDs, attrIDs, err := u.resolveDictionaries(dbc, layout)
	if err != nil {
		return nil, err
	}
	builder := newTreeBuilder(u.deps, load, layout, typeIDs, attrIDs, in.Actor)

	rows, err := u.deps.LoadRows.GetByLoad(dbc, load.ID, 0, 0)
	if err != nil {
		return nil, err
	}

	if u.deps.Log != nil {
		u.deps.Log.Info("processing load",
			"load_id", load.ID.String(),
			"taxonomy_id", load.TaxonomyID,
			"load_kind", load.LoadKind,
			"rows", len(rows))
	}

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := u.processRow(ctx, builder, row, out); err != nil {
			return nil, err
		}
		if in.Report != nil {
			in.Report(i+1, len(rows))
		}
	}

	if u.deps.Log != nil {
		u.deps.Log.Info("rows processed",
			"load_id", load.ID.String(),
			"completed", out.Completed,
			"failed", out.Failed,
			"skipped", out.Skipped)
	}
	return out, nil
}

// processRow handles exactly one bronze row. It returns an error only for
// transient failures that should abort the run; row-local problems are
// recorded on the row and swallowed. The rolling ancestry advances strictly
// after the row's transaction commits.
func (u Usecases) processRow(ctx context.Context, b *treeBuilder, row *bronze.LoadRow, out *LoadProcessOutput) error {
	if !row.IsActive {
		return nil
	}
	switch row.Status {
	case bronze.RowStatusFailed:
		out.Failed++
		return nil
	case bronze.RowStatusSkipped:
		out.Skipped++
		return nil
	}

	dbc := dbctx.Context{Ctx: ctx}

	var cells map[string]string
	if err := json.Unmarshal(row.Payload, &cells); err != nil {
		return u.failRow(dbc, out, row, fmt.Errorf("%w: payload unreadable: %v", pkgerrors.ErrInvalidArgument, err))
	}

	dec, err := DecodeRow(b.layout, cells)
	if err != nil {
		if pkgerrors.IsRowLocal(err) {
			return u.failRow(dbc, out, row, err)
		}
		return err
	}
	if dec.Blank {
		if row.Status == bronze.RowStatusInProgress {
			if err := u.deps.LoadRows.SetStatus(dbc, row.ID, bronze.RowStatusSkipped, ""); err != nil {
				return err
			}
		}
		out.Skipped++
		return nil
	}

	var res rowResult
	txErr := u.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		var werr error
		res, werr = b.writeRow(txc, row, dec)
		if werr != nil {
			return werr
		}
		if row.Status == bronze.RowStatusInProgress {
			return u.deps.LoadRows.SetStatus(txc, row.ID, bronze.RowStatusCompleted, "")
		}
		return nil
	})
	if txErr != nil {
		if pkgerrors.IsRowLocal(txErr) {
			return u.failRow(dbc, out, row, txErr)
		}
		return txErr
	}

	if res.RootID != 0 {
		b.ancestry.Advance(0, res.RootID)
	}
	b.ancestry.Advance(res.Level, res.FirstNodeID)
	out.Completed++
	return nil
}

func (u Usecases) failRow(dbc dbctx.Context, out *LoadProcessOutput, row *bronze.LoadRow, cause error) error {
	if u.deps.Log != nil {
		u.deps.Log.Warn("row failed",
			"load_id", row.LoadID.String(),
			"row_index", row.RowIndex,
			"error", cause.Error())
	}
	if m := observability.Current(); m != nil {
		m.IncDataQuality("load_process", observability.ClassifyRowError(cause), "")
	}
	out.Failed++
	if row.Status != bronze.RowStatusInProgress {
		return nil
	}
	return u.deps.LoadRows.SetStatus(dbc, row.ID, bronze.RowStatusFailed, truncateErr(cause.Error()))
}

// failLoad terminates a load that cannot start at all, before any row runs.
// Row statuses are left as staged; the terminal load status retires them.
func (u Usecases) failLoad(ctx context.Context, out *LoadProcessOutput, load *bronze.Load, reason string) (*LoadProcessOutput, error) {
	err := u.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := u.deps.Loads.MergeDetails(dbc, load.ID, map[string]interface{}{"error": reason}); err != nil {
			return err
		}
		return u.deps.Loads.Finalize(dbc, load.ID, bronze.LoadStatusFailed)
	})
	if err != nil {
		return nil, err
	}
	load.Status = bronze.LoadStatusFailed
	if u.deps.Log != nil {
		u.deps.Log.Warn("load failed before processing",
			"load_id", load.ID.String(),
			"error", reason)
	}
	return out, nil
}

func (u Usecases) resolveDictionaries(dbc dbctx.Context, layout *Layout) (map[int]int64, map[string]int64, error) {
	typeIDs := make(map[int]int64, len(layout.NodeLevels))
	for _, ln := range layout.NodeLevels {
		nt, err := u.deps.NodeTypes.EnsureByName(dbc, ln.Name)
		if err != nil {
			return nil, nil, err
		}
		typeIDs[ln.Level] = nt.ID
	}
	attrIDs := make(map[string]int64, len(layout.AttributeTypes))
	for _, name := range layout.AttributeTypes {
		at, err := u.deps.AttributeTypes.EnsureByName(dbc, name)
		if err != nil {
			return nil, nil, err
		}
		attrIDs[normalization.Fold(name)] = at.ID
	}
	return typeIDs, attrIDs, nil
}

func truncateErr(s string) string {
	const max = 500
	if len(s) <= max {
		return s
	}
	return s[:max]
}
