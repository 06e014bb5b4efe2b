package gold

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/carelattice/taxonomy-backend/internal/data/repos/testutil"
	"github.com/carelattice/taxonomy-backend/internal/domain/gold"
	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
)

type mappingFixture struct {
	txc      dbctx.Context
	repo     MappingRepo
	rule     *gold.MappingRule
	master   *silver.TaxonomyNode
	children []*silver.TaxonomyNode
}

func seedMappingWorld(t *testing.T, taxonomyID int64, ruleCommand string, childCount int) mappingFixture {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	txc := dbctx.Context{Ctx: ctx, Tx: tx}

	masterTax := testutil.SeedTaxonomy(t, ctx, tx, taxonomyID, "-1", silver.TaxonomyKindMaster)
	childTax := testutil.SeedTaxonomy(t, ctx, tx, taxonomyID+1, "evercheck-719", silver.TaxonomyKindCustomer)
	nt := testutil.SeedNodeType(t, ctx, tx, "Profession")
	load := testutil.SeedLoad(t, ctx, tx, childTax.ID, childTax.CustomerID, "new")
	row := testutil.SeedLoadRow(t, ctx, tx, load.ID, childTax.ID, childTax.CustomerID, 0, `{}`)

	f := mappingFixture{
		txc:    txc,
		repo:   NewMappingRepo(db, testutil.Logger(t)),
		rule:   testutil.SeedRule(t, ctx, tx, "rule-"+uuid.NewString(), ruleCommand),
		master: testutil.SeedNode(t, ctx, tx, masterTax.ID, nt.ID, masterTax.CustomerID, nil, "Registered Nurse", 0, load.ID, row.ID),
	}
	values := []string{"RN", "LPN", "CNA", "ARNP"}
	for i := 0; i < childCount && i < len(values); i++ {
		f.children = append(f.children,
			testutil.SeedNode(t, ctx, tx, childTax.ID, nt.ID, childTax.CustomerID, nil, values[i], 0, load.ID, row.ID))
	}
	return f
}

func TestSupersedeAdvancesTheChain(t *testing.T) {
	f := seedMappingWorld(t, 9301, gold.RuleCommandEquals, 1)
	child := f.children[0]

	old := testutil.SeedMapping(t, f.txc.Ctx, f.txc.Tx, f.rule.ID, f.master.ID, child.ID, 80, gold.MappingStatusActive)

	replacement := &gold.Mapping{
		RuleID:       f.rule.ID,
		MasterNodeID: f.master.ID,
		ChildNodeID:  child.ID,
		Confidence:   100,
		Status:       gold.MappingStatusActive,
		IsActive:     true,
		CreatedBy:    "reviewer@carelattice.com",
	}
	got, err := f.repo.Supersede(f.txc, old, replacement)
	if err != nil {
		t.Fatalf("Supersede: %v", err)
	}
	if got.MappingVersion != old.MappingVersion+1 {
		t.Fatalf("replacement version should advance, got %d", got.MappingVersion)
	}

	retired, err := f.repo.GetByID(f.txc, old.ID)
	if err != nil {
		t.Fatalf("GetByID(old): %v", err)
	}
	if retired.IsActive || retired.Status != gold.MappingStatusInactive {
		t.Fatalf("old mapping should be retired, got active=%v status=%q", retired.IsActive, retired.Status)
	}
	if retired.SupersededBy == nil || *retired.SupersededBy != got.ID {
		t.Fatalf("supersession pointer should reference %s, got %v", got.ID, retired.SupersededBy)
	}

	active, err := f.repo.GetActiveByChildNode(f.txc, child.ID)
	if err != nil {
		t.Fatalf("GetActiveByChildNode: %v", err)
	}
	if active == nil || active.ID != got.ID {
		t.Fatalf("active mapping should be the replacement, got %+v", active)
	}
}

func TestOneActiveMappingPerChildEnforced(t *testing.T) {
	f := seedMappingWorld(t, 9311, gold.RuleCommandEquals, 1)
	child := f.children[0]

	testutil.SeedMapping(t, f.txc.Ctx, f.txc.Tx, f.rule.ID, f.master.ID, child.ID, 90, gold.MappingStatusActive)

	// Second active row for the same child hits the partial unique index.
	// Nothing else runs after this: the violation aborts the test transaction.
	_, err := f.repo.Create(f.txc, []*gold.Mapping{{
		ID:           uuid.New(),
		RuleID:       f.rule.ID,
		MasterNodeID: f.master.ID,
		ChildNodeID:  child.ID,
		Confidence:   95,
		Status:       gold.MappingStatusActive,
		IsActive:     true,
		CreatedBy:    "test",
	}})
	if err == nil {
		t.Fatalf("expected unique violation for second active mapping of child %d", child.ID)
	}
}

func TestDeactivateByChildNodesRetiresOnlyListed(t *testing.T) {
	f := seedMappingWorld(t, 9321, gold.RuleCommandEquals, 3)

	for _, child := range f.children {
		testutil.SeedMapping(t, f.txc.Ctx, f.txc.Tx, f.rule.ID, f.master.ID, child.ID, 85, gold.MappingStatusActive)
	}

	n, err := f.repo.DeactivateByChildNodes(f.txc, []int64{f.children[0].ID, f.children[1].ID})
	if err != nil {
		t.Fatalf("DeactivateByChildNodes: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows retired, got %d", n)
	}

	ids := []int64{f.children[0].ID, f.children[1].ID, f.children[2].ID}
	remaining, err := f.repo.GetActiveByChildNodes(f.txc, ids)
	if err != nil {
		t.Fatalf("GetActiveByChildNodes: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ChildNodeID != f.children[2].ID {
		t.Fatalf("only the unlisted child should stay mapped, got %+v", remaining)
	}
}

func TestListPromotableExcludesAIAndPendingRows(t *testing.T) {
	f := seedMappingWorld(t, 9331, gold.RuleCommandEquals, 3)
	ctx, tx := f.txc.Ctx, f.txc.Tx
	aiRule := testutil.SeedRule(t, ctx, tx, "rule-"+uuid.NewString(), gold.RuleCommandAI)

	wanted := testutil.SeedMapping(t, ctx, tx, f.rule.ID, f.master.ID, f.children[0].ID, 100, gold.MappingStatusActive)
	testutil.SeedMapping(t, ctx, tx, aiRule.ID, f.master.ID, f.children[1].ID, 90, gold.MappingStatusActive)
	testutil.SeedMapping(t, ctx, tx, f.rule.ID, f.master.ID, f.children[2].ID, 60, gold.MappingStatusPendingReview)

	promotable, err := f.repo.ListPromotable(f.txc)
	if err != nil {
		t.Fatalf("ListPromotable: %v", err)
	}
	found := false
	for _, m := range promotable {
		switch m.ChildNodeID {
		case f.children[1].ID:
			t.Fatalf("AI-attributed mapping must not be promotable")
		case f.children[2].ID:
			t.Fatalf("pending review mapping must not be promotable")
		case f.children[0].ID:
			found = m.ID == wanted.ID
		}
	}
	if !found {
		t.Fatalf("approved non-AI mapping missing from promotable set")
	}
}
