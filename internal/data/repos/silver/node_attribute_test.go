package silver

import (
	"context"
	"testing"

	"github.com/carelattice/taxonomy-backend/internal/data/repos/testutil"
	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/normalization"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
)

func TestAttributeUpsertAllowsMultipleValuesPerType(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	txc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewNodeAttributeRepo(db, testutil.Logger(t))

	tax := testutil.SeedTaxonomy(t, ctx, tx, 9201, "evercheck-719", silver.TaxonomyKindCustomer)
	nt := testutil.SeedNodeType(t, ctx, tx, "Profession")
	at := testutil.SeedAttributeType(t, ctx, tx, "State")
	load := testutil.SeedLoad(t, ctx, tx, tax.ID, tax.CustomerID, "new")
	row := testutil.SeedLoadRow(t, ctx, tx, load.ID, tax.ID, tax.CustomerID, 0, `{}`)
	node := testutil.SeedNode(t, ctx, tx, tax.ID, nt.ID, tax.CustomerID, nil, "Registered Nurse", 0, load.ID, row.ID)

	upsert := func(value string) (*silver.NodeAttribute, bool) {
		attr := &silver.NodeAttribute{
			NodeID:          node.ID,
			AttributeTypeID: at.ID,
			Value:           normalization.Normalize(value),
			ValueKey:        normalization.Fold(value),
			LoadID:          load.ID,
			RowID:           row.ID,
		}
		created, err := repo.UpsertByNaturalKey(txc, attr)
		if err != nil {
			t.Fatalf("UpsertByNaturalKey(%q): %v", value, err)
		}
		return attr, created
	}

	ca, created := upsert("CA")
	if !created {
		t.Fatalf("first value should insert")
	}
	ny, created := upsert("NY")
	if !created {
		t.Fatalf("second value of the same type should be a second row")
	}
	if ca.ID == ny.ID {
		t.Fatalf("multi-valued attribute collapsed")
	}

	// Re-presenting CA is a lineage refresh, not a new row.
	again, created := upsert("ca")
	if created || again.ID != ca.ID {
		t.Fatalf("expected idempotent re-present of %d, got id=%d created=%v", ca.ID, again.ID, created)
	}

	attrs, err := repo.GetActiveByNodeIDs(txc, []int64{node.ID})
	if err != nil {
		t.Fatalf("GetActiveByNodeIDs: %v", err)
	}
	if len(attrs) != 2 {
		t.Fatalf("expected 2 active attributes, got %d", len(attrs))
	}
}
