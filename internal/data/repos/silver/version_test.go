package silver

import (
	"context"
	"testing"

	"github.com/carelattice/taxonomy-backend/internal/data/repos/testutil"
	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
)

func TestVersionTransitionKeepsOneOpenInterval(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	txc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewVersionRepo(db, testutil.Logger(t))

	tax := testutil.SeedTaxonomy(t, ctx, tx, 9101, "evercheck-719", silver.TaxonomyKindCustomer)
	loadA := testutil.SeedLoad(t, ctx, tx, tax.ID, tax.CustomerID, "new")
	loadB := testutil.SeedLoad(t, ctx, tx, tax.ID, tax.CustomerID, "update")

	v1, err := repo.Transition(txc, tax.ID, loadA.ID, "new",
		[]silver.AffectedEntity{{ID: 1, Change: silver.ChangeNew}}, nil, false, "")
	if err != nil {
		t.Fatalf("first Transition: %v", err)
	}
	if v1.VersionNumber != 1 {
		t.Fatalf("first version should be 1, got %d", v1.VersionNumber)
	}
	if v1.VersionToDate != nil {
		t.Fatalf("new version must be open")
	}

	v2, err := repo.Transition(txc, tax.ID, loadB.ID, "update",
		[]silver.AffectedEntity{{ID: 1, Change: silver.ChangeDeactivated}}, nil, true, "node deactivated")
	if err != nil {
		t.Fatalf("second Transition: %v", err)
	}
	if v2.VersionNumber != 2 {
		t.Fatalf("expected version 2, got %d", v2.VersionNumber)
	}
	if v2.RemappingStatus != silver.RemapStatusPending {
		t.Fatalf("remap flag should queue remapping, status %q", v2.RemappingStatus)
	}

	closed, err := repo.GetByID(txc, v1.ID)
	if err != nil {
		t.Fatalf("GetByID(v1): %v", err)
	}
	if closed.VersionToDate == nil {
		t.Fatalf("previous version should be closed")
	}

	open, err := repo.GetOpen(txc, tax.ID)
	if err != nil {
		t.Fatalf("GetOpen: %v", err)
	}
	if open == nil || open.ID != v2.ID {
		t.Fatalf("open version should be v2, got %+v", open)
	}

	refreshed := &silver.Taxonomy{}
	if err := tx.WithContext(ctx).Where("id = ?", tax.ID).First(refreshed).Error; err != nil {
		t.Fatalf("reload taxonomy: %v", err)
	}
	if refreshed.CurrentVersion != 2 {
		t.Fatalf("taxonomy current_version should track, got %d", refreshed.CurrentVersion)
	}
}

func TestVersionRemapCountersAccumulate(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	txc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewVersionRepo(db, testutil.Logger(t))

	tax := testutil.SeedTaxonomy(t, ctx, tx, 9102, "evercheck-719", silver.TaxonomyKindCustomer)
	load := testutil.SeedLoad(t, ctx, tx, tax.ID, tax.CustomerID, "new")

	v, err := repo.Transition(txc, tax.ID, load.ID, "new", nil, nil, true, "master changed")
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}

	if err := repo.IncrementRemapCounters(txc, v.ID, 5, 2, 2, 1, 3); err != nil {
		t.Fatalf("IncrementRemapCounters: %v", err)
	}
	if err := repo.IncrementRemapCounters(txc, v.ID, 5, 0, 5, 0, 0); err != nil {
		t.Fatalf("IncrementRemapCounters (second): %v", err)
	}

	got, err := repo.GetByID(txc, v.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.RemapProcessed != 10 || got.RemapChanged != 2 || got.RemapUnchanged != 7 || got.RemapFailed != 1 || got.RemapNew != 3 {
		t.Fatalf("counter drift: %+v", got)
	}
}
