package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/domain/audit"
	"github.com/carelattice/taxonomy-backend/internal/domain/bronze"
	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	pkgerrors "github.com/carelattice/taxonomy-backend/internal/pkg/errors"
)

type LoadOpenInput struct {
	// FileName carries the load identity: "<owner> <customer_id> <taxonomy_id> [note].<ext>".
	FileName string

	// Layout wins when set; otherwise the layout is derived from Headers.
	Layout  *LayoutSpec
	Headers []string

	// Rows are raw column-name to cell-text maps, in file order.
	Rows []map[string]string

	// LoadKind forces "new" or "update". Empty means derive it: the first
	// finished load on a taxonomy is new, everything after is an update.
	LoadKind string

	InputFormat string
	RequestID   string
	SourceURL   string
	CallbackURL string
	Actor       string
}

type LoadOpenOutput struct {
	Load     *bronze.Load
	Taxonomy *silver.Taxonomy
	RowCount int
}

// LoadOpen validates the load identity, ensures the target taxonomy exists,
// and stages every raw row in bronze under a fresh in_progress load. Nothing
// silver-side is touched here except first-contact taxonomy creation; rows are
// decoded later by LoadProcess. The whole open is one transaction, so a load
// either exists with all its rows staged or not at all.
func (u Usecases) LoadOpen(ctx context.Context, in LoadOpenInput) (*LoadOpenOutput, error) {
	name, err := ParseLoadName(in.FileName)
	if err != nil {
		return nil, err
	}

	switch in.LoadKind {
	case "", bronze.LoadKindNew, bronze.LoadKindUpdate:
	default:
		return nil, fmt.Errorf("%w: load kind %q", pkgerrors.ErrLoadInvalid, in.LoadKind)
	}

	spec := in.Layout
	if spec == nil {
		if len(in.Headers) == 0 {
			return nil, fmt.Errorf("%w: no layout and no header row", pkgerrors.ErrLoadInvalid)
		}
		derived, err := LayoutSpecFromHeaders(in.Headers)
		if err != nil {
			return nil, err
		}
		spec = &derived
	}
	layoutJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("marshal layout: %w", err)
	}

	format := in.InputFormat
	if format == "" {
		if name.Ext == "json" {
			format = "json"
		} else {
			format = "csv"
		}
	}

	out := &LoadOpenOutput{RowCount: len(in.Rows)}
	err = u.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		tax, err := u.ensureTaxonomy(dbc, name, in.Actor)
		if err != nil {
			return err
		}
		out.Taxonomy = tax

		kind := in.LoadKind
		if kind == "" {
			prev, err := u.deps.Loads.GetLatestCompletedByTaxonomy(dbc, tax.ID)
			if err != nil {
				return err
			}
			if prev == nil {
				kind = bronze.LoadKindNew
			} else {
				kind = bronze.LoadKindUpdate
			}
		}

		details, err := json.Marshal(bronze.LoadDetails{
			InputFormat: format,
			RequestID:   in.RequestID,
			SourceURL:   in.SourceURL,
			CallbackURL: in.CallbackURL,
			Layout:      layoutJSON,
		})
		if err != nil {
			return fmt.Errorf("marshal load details: %w", err)
		}

		load := &bronze.Load{
			CustomerID:   name.CustomerID,
			TaxonomyID:   tax.ID,
			LoadKind:     kind,
			TaxonomyKind: name.TaxonomyKind,
			Status:       bronze.LoadStatusInProgress,
			IsActive:     true,
			StartedAt:    time.Now().UTC(),
			Details:      datatypes.JSON(details),
		}
		if _, err := u.deps.Loads.Create(dbc, []*bronze.Load{load}); err != nil {
			return err
		}
		out.Load = load

		rows := make([]*bronze.LoadRow, 0, len(in.Rows))
		for i, cells := range in.Rows {
			payload, err := json.Marshal(cells)
			if err != nil {
				return fmt.Errorf("marshal row %d: %w", i, err)
			}
			rows = append(rows, &bronze.LoadRow{
				LoadID:     load.ID,
				CustomerID: name.CustomerID,
				TaxonomyID: tax.ID,
				RowIndex:   i,
				Payload:    datatypes.JSON(payload),
				Status:     bronze.RowStatusInProgress,
				IsActive:   true,
			})
		}
		_, err = u.deps.LoadRows.CreateBatch(dbc, rows)
		return err
	})
	if err != nil {
		return nil, err
	}

	if u.deps.Log != nil {
		u.deps.Log.Info("load opened",
			"load_id", out.Load.ID.String(),
			"taxonomy_id", out.Load.TaxonomyID,
			"customer_id", out.Load.CustomerID,
			"load_kind", out.Load.LoadKind,
			"rows", out.RowCount)
	}
	return out, nil
}

// ensureTaxonomy resolves the taxonomy named by the load file, creating it on
// first contact. An existing taxonomy must agree with the filename on owner
// and kind; a mismatch means the file was named for somebody else's tree.
func (u Usecases) ensureTaxonomy(dbc dbctx.Context, name LoadName, actor string) (*silver.Taxonomy, error) {
	tax, err := u.deps.Taxonomies.GetByID(dbc, name.TaxonomyID)
	if err != nil {
		return nil, err
	}
	if tax != nil {
		if tax.CustomerID != name.CustomerID || tax.TaxonomyKind != name.TaxonomyKind {
			return nil, fmt.Errorf("%w: taxonomy %d is owned by %q (%s), file says %q (%s)",
				pkgerrors.ErrLoadInvalid, tax.ID, tax.CustomerID, tax.TaxonomyKind, name.CustomerID, name.TaxonomyKind)
		}
		return tax, nil
	}

	taxName := name.Note
	if taxName == "" {
		if name.TaxonomyKind == silver.TaxonomyKindMaster {
			taxName = "Master Taxonomy"
		} else {
			taxName = fmt.Sprintf("Taxonomy %d", name.TaxonomyID)
		}
	}
	tax, err = u.deps.Taxonomies.EnsureByID(dbc, &silver.Taxonomy{
		ID:           name.TaxonomyID,
		CustomerID:   name.CustomerID,
		Name:         taxName,
		TaxonomyKind: name.TaxonomyKind,
		Status:       silver.StatusActive,
	})
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(tax)
	if err != nil {
		return nil, err
	}
	entry := &audit.AuditLog{
		EntityTable: tax.TableName(),
		EntityID:    strconv.FormatInt(tax.ID, 10),
		Operation:   audit.OpInsert,
		NewRow:      datatypes.JSON(raw),
		Actor:       actor,
		OccurredAt:  time.Now().UTC(),
	}
	if err := u.deps.Audit.Append(dbc, []*audit.AuditLog{entry}); err != nil {
		return nil, err
	}
	return tax, nil
}
