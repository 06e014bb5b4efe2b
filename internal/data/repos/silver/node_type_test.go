package silver

import (
	"context"
	"testing"

	"github.com/carelattice/taxonomy-backend/internal/data/repos/testutil"
	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
)

func TestEnsureByNameConvergesOnFoldedKey(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	txc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewNodeTypeRepo(db, testutil.Logger(t))

	first, err := repo.EnsureByName(txc, "License  Type")
	if err != nil {
		t.Fatalf("EnsureByName: %v", err)
	}
	if first == nil || first.ID == 0 {
		t.Fatalf("expected a dictionary row, got %+v", first)
	}
	if first.Name != "License Type" {
		t.Fatalf("name should be normalized, got %q", first.Name)
	}

	// A concurrent load presenting the same label in another case lands on
	// the same row through the ON CONFLICT DO NOTHING + reselect idiom.
	second, err := repo.EnsureByName(txc, "license type")
	if err != nil {
		t.Fatalf("EnsureByName (reselect): %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("dictionary should converge: %d vs %d", first.ID, second.ID)
	}
	if second.Name != "License Type" {
		t.Fatalf("first writer's spelling wins, got %q", second.Name)
	}
}

func TestEnsureByNameIgnoresBlankLabels(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	txc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewNodeTypeRepo(db, testutil.Logger(t))

	row, err := repo.EnsureByName(txc, "   ")
	if err != nil {
		t.Fatalf("EnsureByName: %v", err)
	}
	if row != nil {
		t.Fatalf("blank label should not create a dictionary entry, got %+v", row)
	}
}

func TestNAPlaceholderTypeIsSeeded(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	txc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewNodeTypeRepo(db, testutil.Logger(t))

	na, err := repo.GetByID(txc, silver.NANodeTypeID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if na == nil || na.Name != "N/A" {
		t.Fatalf("reserved N/A type missing or renamed: %+v", na)
	}
}
