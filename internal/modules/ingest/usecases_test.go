package ingest

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/data/repos"
	"github.com/carelattice/taxonomy-backend/internal/data/repos/testutil"
	"github.com/carelattice/taxonomy-backend/internal/domain/bronze"
	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	pkgerrors "github.com/carelattice/taxonomy-backend/internal/pkg/errors"
)

func newTestUsecases(tb testing.TB, tx *gorm.DB) Usecases {
	tb.Helper()
	log := testutil.Logger(tb)
	return New(UsecasesDeps{
		DB:             tx,
		Log:            log,
		Loads:          repos.NewLoadRepo(tx, log),
		LoadRows:       repos.NewLoadRowRepo(tx, log),
		Taxonomies:     repos.NewTaxonomyRepo(tx, log),
		NodeTypes:      repos.NewNodeTypeRepo(tx, log),
		AttributeTypes: repos.NewAttributeTypeRepo(tx, log),
		Nodes:          repos.NewNodeRepo(tx, log),
		NodeAttributes: repos.NewNodeAttributeRepo(tx, log),
		Versions:       repos.NewVersionRepo(tx, log),
		Mappings:       repos.NewMappingRepo(tx, log),
		Audit:          repos.NewAuditLogRepo(tx, log),
	})
}

// runMasterLoad opens, processes, and finalizes one master load over the
// standard three-level layout.
func runMasterLoad(tb testing.TB, u Usecases, rows []map[string]string) (*LoadOpenOutput, *LoadProcessOutput, *LoadFinalizeOutput) {
	tb.Helper()
	ctx := context.Background()

	spec := masterSpec()
	opened, err := u.LoadOpen(ctx, LoadOpenInput{
		FileName: "Master -1 -1.csv",
		Layout:   &spec,
		Rows:     rows,
		Actor:    "test",
	})
	if err != nil {
		tb.Fatalf("LoadOpen: %v", err)
	}
	processed, err := u.LoadProcess(ctx, LoadProcessInput{LoadID: opened.Load.ID, Actor: "test"})
	if err != nil {
		tb.Fatalf("LoadProcess: %v", err)
	}
	finalized, err := u.LoadFinalize(ctx, LoadFinalizeInput{LoadID: opened.Load.ID, Actor: "test"})
	if err != nil {
		tb.Fatalf("LoadFinalize: %v", err)
	}
	return opened, processed, finalized
}

func nodeByValue(tb testing.TB, tx *gorm.DB, taxonomyID int64, value string) *silver.TaxonomyNode {
	tb.Helper()
	var rows []*silver.TaxonomyNode
	if err := tx.Where("taxonomy_id = ? AND value = ?", taxonomyID, value).Order("id").Find(&rows).Error; err != nil {
		tb.Fatalf("query node %q: %v", value, err)
	}
	if len(rows) != 1 {
		tb.Fatalf("node %q: got %d rows, want 1", value, len(rows))
	}
	return rows[0]
}

func TestLoadBuildsSimpleChain(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	u := newTestUsecases(t, tx)

	_, processed, finalized := runMasterLoad(t, u, []map[string]string{
		{"Industry": "Healthcare"},
		{"Profession Group": "Nursing"},
		{"Specialty": "Cardiology", "Profession": "Registered Nurse", "License State": "CA"},
	})

	if processed.Completed != 3 || processed.Failed != 0 || processed.Skipped != 0 {
		t.Fatalf("tallies: %+v", processed)
	}
	if finalized.Status != bronze.LoadStatusCompleted {
		t.Fatalf("status: got=%q", finalized.Status)
	}

	industry := nodeByValue(t, tx, silver.MasterTaxonomyID, "Healthcare")
	group := nodeByValue(t, tx, silver.MasterTaxonomyID, "Nursing")
	specialty := nodeByValue(t, tx, silver.MasterTaxonomyID, "Cardiology")

	if industry.Level != 0 || industry.ParentNodeID != nil {
		t.Fatalf("industry node: %+v", industry)
	}
	if group.Level != 1 || group.ParentNodeID == nil || *group.ParentNodeID != industry.ID {
		t.Fatalf("group node: %+v", group)
	}
	if specialty.Level != 2 || specialty.ParentNodeID == nil || *specialty.ParentNodeID != group.ID {
		t.Fatalf("specialty node: %+v", specialty)
	}
	if specialty.Profession == nil || *specialty.Profession != "Registered Nurse" {
		t.Fatalf("specialty profession: %+v", specialty.Profession)
	}

	var attrs []*silver.NodeAttribute
	if err := tx.Where("node_id = ?", specialty.ID).Order("id").Find(&attrs).Error; err != nil {
		t.Fatalf("query attributes: %v", err)
	}
	if len(attrs) != 2 {
		t.Fatalf("specialty attributes: got %d, want 2", len(attrs))
	}

	if finalized.Version == nil || finalized.Version.VersionNumber != 1 {
		t.Fatalf("version: %+v", finalized.Version)
	}
	if !finalized.Version.RemappingFlag {
		t.Fatalf("master change should flag remapping: %+v", finalized.Version)
	}
	var tax silver.Taxonomy
	if err := tx.Where("id = ?", silver.MasterTaxonomyID).First(&tax).Error; err != nil {
		t.Fatalf("reload taxonomy: %v", err)
	}
	if tax.CurrentVersion != 1 || tax.LastLoadID == nil || *tax.LastLoadID != finalized.Load.ID {
		t.Fatalf("taxonomy version fields: current=%d last=%v", tax.CurrentVersion, tax.LastLoadID)
	}
}

func TestLoadFillsLevelGapsWithPlaceholders(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	u := newTestUsecases(t, tx)

	_, processed, _ := runMasterLoad(t, u, []map[string]string{
		{"Industry": "Healthcare"},
		{"Specialty": "Oncology"},
		{"Profession Group": "Nursing"},
		{"Specialty": "Cardiology"},
	})
	if processed.Completed != 4 {
		t.Fatalf("tallies: %+v", processed)
	}

	industry := nodeByValue(t, tx, silver.MasterTaxonomyID, "Healthcare")
	oncology := nodeByValue(t, tx, silver.MasterTaxonomyID, "Oncology")
	group := nodeByValue(t, tx, silver.MasterTaxonomyID, "Nursing")
	cardiology := nodeByValue(t, tx, silver.MasterTaxonomyID, "Cardiology")

	// Oncology at level 2 with only a level-0 ancestor forces an N/A node at
	// level 1.
	if oncology.ParentNodeID == nil {
		t.Fatalf("oncology has no parent")
	}
	var na silver.TaxonomyNode
	if err := tx.Where("id = ?", *oncology.ParentNodeID).First(&na).Error; err != nil {
		t.Fatalf("load N/A parent: %v", err)
	}
	if na.Value != silver.NANodeValue || na.NodeTypeID != silver.NANodeTypeID || na.Level != 1 {
		t.Fatalf("gap node: %+v", na)
	}
	if na.ParentNodeID == nil || *na.ParentNodeID != industry.ID {
		t.Fatalf("gap node parent: %+v", na.ParentNodeID)
	}

	// The placeholder never becomes an ancestor of later rows: Nursing hangs
	// off Healthcare, and Cardiology off Nursing.
	if group.ParentNodeID == nil || *group.ParentNodeID != industry.ID {
		t.Fatalf("group parent: %+v", group.ParentNodeID)
	}
	if cardiology.ParentNodeID == nil || *cardiology.ParentNodeID != group.ID {
		t.Fatalf("cardiology parent: %+v", cardiology.ParentNodeID)
	}
}

func TestLoadSplitsSiblingCells(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	u := newTestUsecases(t, tx)

	_, processed, _ := runMasterLoad(t, u, []map[string]string{
		{"Industry": "Healthcare"},
		{"Profession Group": "Nursing"},
		{"Specialty": "Acute; Critical", "License State": "NY"},
	})
	if processed.Completed != 3 {
		t.Fatalf("tallies: %+v", processed)
	}

	group := nodeByValue(t, tx, silver.MasterTaxonomyID, "Nursing")
	acute := nodeByValue(t, tx, silver.MasterTaxonomyID, "Acute")
	critical := nodeByValue(t, tx, silver.MasterTaxonomyID, "Critical")

	for _, n := range []*silver.TaxonomyNode{acute, critical} {
		if n.Level != 2 || n.ParentNodeID == nil || *n.ParentNodeID != group.ID {
			t.Fatalf("sibling %q: %+v", n.Value, n)
		}
		var count int64
		if err := tx.Model(&silver.NodeAttribute{}).Where("node_id = ?", n.ID).Count(&count).Error; err != nil {
			t.Fatalf("count attributes: %v", err)
		}
		if count != 1 {
			t.Fatalf("sibling %q attributes: got %d, want 1", n.Value, count)
		}
	}
}

func TestLoadBranchSwitchResetsDeeperAncestors(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	u := newTestUsecases(t, tx)

	runMasterLoad(t, u, []map[string]string{
		{"Industry": "Healthcare"},
		{"Profession Group": "Nursing"},
		{"Specialty": "Cardiology"},
		{"Profession Group": "Therapy"},
		{"Specialty": "Physical"},
	})

	nursing := nodeByValue(t, tx, silver.MasterTaxonomyID, "Nursing")
	therapy := nodeByValue(t, tx, silver.MasterTaxonomyID, "Therapy")
	cardiology := nodeByValue(t, tx, silver.MasterTaxonomyID, "Cardiology")
	physical := nodeByValue(t, tx, silver.MasterTaxonomyID, "Physical")

	if cardiology.ParentNodeID == nil || *cardiology.ParentNodeID != nursing.ID {
		t.Fatalf("cardiology parent: %+v", cardiology.ParentNodeID)
	}
	if physical.ParentNodeID == nil || *physical.ParentNodeID != therapy.ID {
		t.Fatalf("physical should follow the new branch: %+v", physical.ParentNodeID)
	}
}

func TestLoadRowFailuresAreIsolated(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	u := newTestUsecases(t, tx)

	opened, processed, finalized := runMasterLoad(t, u, []map[string]string{
		{"Industry": "Healthcare"},
		{"Specialty": "Cardiology", "Mystery": "boom"},
		{"Industry": "", "Specialty": ""},
		{"Profession Group": "Nursing"},
	})

	if processed.Completed != 2 || processed.Failed != 1 || processed.Skipped != 1 {
		t.Fatalf("tallies: %+v", processed)
	}
	if finalized.Status != bronze.LoadStatusPartiallyCompleted {
		t.Fatalf("status: got=%q", finalized.Status)
	}

	// The failed row left no silver residue and did not move the ancestry:
	// Nursing still hangs off Healthcare.
	var count int64
	if err := tx.Model(&silver.TaxonomyNode{}).
		Where("taxonomy_id = ? AND value = ?", silver.MasterTaxonomyID, "Cardiology").
		Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("failed row wrote %d nodes", count)
	}
	industry := nodeByValue(t, tx, silver.MasterTaxonomyID, "Healthcare")
	group := nodeByValue(t, tx, silver.MasterTaxonomyID, "Nursing")
	if group.ParentNodeID == nil || *group.ParentNodeID != industry.ID {
		t.Fatalf("group parent: %+v", group.ParentNodeID)
	}

	var failed []*bronze.LoadRow
	if err := tx.Where("load_id = ? AND status = ?", opened.Load.ID, bronze.RowStatusFailed).Find(&failed).Error; err != nil {
		t.Fatalf("query failed rows: %v", err)
	}
	if len(failed) != 1 || failed[0].RowIndex != 1 || failed[0].Error == "" {
		t.Fatalf("failed rows: %+v", failed)
	}
}

func TestLoadProcessIsIdempotent(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	u := newTestUsecases(t, tx)
	ctx := context.Background()

	spec := masterSpec()
	opened, err := u.LoadOpen(ctx, LoadOpenInput{
		FileName: "Master -1 -1.csv",
		Layout:   &spec,
		Rows: []map[string]string{
			{"Industry": "Healthcare"},
			{"Profession Group": "Nursing"},
		},
		Actor: "test",
	})
	if err != nil {
		t.Fatalf("LoadOpen: %v", err)
	}

	// First run, then a rerun before finalize, as the retry coordinator
	// would do after a crash.
	if _, err := u.LoadProcess(ctx, LoadProcessInput{LoadID: opened.Load.ID}); err != nil {
		t.Fatalf("LoadProcess: %v", err)
	}
	second, err := u.LoadProcess(ctx, LoadProcessInput{LoadID: opened.Load.ID})
	if err != nil {
		t.Fatalf("LoadProcess rerun: %v", err)
	}
	if second.Completed != 2 {
		t.Fatalf("rerun tallies: %+v", second)
	}

	var count int64
	if err := tx.Model(&silver.TaxonomyNode{}).Where("taxonomy_id = ?", silver.MasterTaxonomyID).Count(&count).Error; err != nil {
		t.Fatalf("count nodes: %v", err)
	}
	if count != 2 {
		t.Fatalf("nodes after rerun: got %d, want 2", count)
	}

	first, err := u.LoadFinalize(ctx, LoadFinalizeInput{LoadID: opened.Load.ID})
	if err != nil {
		t.Fatalf("LoadFinalize: %v", err)
	}
	again, err := u.LoadFinalize(ctx, LoadFinalizeInput{LoadID: opened.Load.ID})
	if err != nil {
		t.Fatalf("LoadFinalize rerun: %v", err)
	}
	if !again.AlreadyFinal || again.Status != first.Status {
		t.Fatalf("finalize rerun: %+v", again)
	}

	processed, err := u.LoadProcess(ctx, LoadProcessInput{LoadID: opened.Load.ID})
	if err != nil {
		t.Fatalf("LoadProcess after finalize: %v", err)
	}
	if !processed.AlreadyFinal {
		t.Fatalf("process after finalize should be a no-op: %+v", processed)
	}
}

func TestUpdateLoadReconcilesAndVersions(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	u := newTestUsecases(t, tx)

	_, _, first := runMasterLoad(t, u, []map[string]string{
		{"Industry": "Healthcare"},
		{"Profession Group": "Nursing"},
		{"Specialty": "Cardiology", "License State": "CA"},
	})
	if first.Version == nil || first.Version.VersionNumber != 1 {
		t.Fatalf("first version: %+v", first.Version)
	}

	// The update re-presents everything except Cardiology.
	opened, _, second := runMasterLoad(t, u, []map[string]string{
		{"Industry": "Healthcare"},
		{"Profession Group": "Nursing"},
	})
	if second.Load.LoadKind != bronze.LoadKindUpdate {
		t.Fatalf("second load kind: got=%q", second.Load.LoadKind)
	}
	if second.NodesDeactivated != 1 || second.AttributesDeactivated != 1 {
		t.Fatalf("reconcile counts: %+v", second)
	}

	cardiology := nodeByValue(t, tx, silver.MasterTaxonomyID, "Cardiology")
	if cardiology.Status != silver.StatusInactive {
		t.Fatalf("cardiology status: got=%q", cardiology.Status)
	}
	healthcare := nodeByValue(t, tx, silver.MasterTaxonomyID, "Healthcare")
	if healthcare.Status != silver.StatusActive || healthcare.LoadID != opened.Load.ID {
		t.Fatalf("healthcare after update: status=%q load=%s", healthcare.Status, healthcare.LoadID)
	}

	// Version chain: 1 closed, 2 open, owned by the update load, flagged for
	// remapping because structure changed.
	var versions []*silver.TaxonomyVersion
	if err := tx.Where("taxonomy_id = ?", silver.MasterTaxonomyID).Order("version_number").Find(&versions).Error; err != nil {
		t.Fatalf("query versions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("versions: got %d, want 2", len(versions))
	}
	if versions[0].VersionToDate == nil {
		t.Fatalf("version 1 still open")
	}
	if versions[1].VersionToDate != nil || versions[1].LoadID != opened.Load.ID || !versions[1].RemappingFlag {
		t.Fatalf("version 2: %+v", versions[1])
	}
}

func TestUpdateLoadReactivatesRepresentedNodes(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	u := newTestUsecases(t, tx)

	runMasterLoad(t, u, []map[string]string{
		{"Industry": "Healthcare"},
		{"Profession Group": "Nursing"},
	})
	runMasterLoad(t, u, []map[string]string{
		{"Industry": "Healthcare"},
	})
	nursing := nodeByValue(t, tx, silver.MasterTaxonomyID, "Nursing")
	if nursing.Status != silver.StatusInactive {
		t.Fatalf("nursing should be retired: %q", nursing.Status)
	}

	// Re-presenting the same folded value revives the stored row instead of
	// minting a new one, and keeps the originally stored spelling.
	_, _, third := runMasterLoad(t, u, []map[string]string{
		{"Industry": "Healthcare"},
		{"Profession Group": "  NURSING "},
	})
	revived := nodeByValue(t, tx, silver.MasterTaxonomyID, "Nursing")
	if revived.ID != nursing.ID || revived.Status != silver.StatusActive {
		t.Fatalf("revived node: %+v", revived)
	}
	if revived.Value != "Nursing" {
		t.Fatalf("revived value rewritten: %q", revived.Value)
	}
	if third.Version == nil || !third.Version.RemappingFlag {
		t.Fatalf("reactivation should flag remapping: %+v", third.Version)
	}
}

func TestFlatCustomerListLoads(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	u := newTestUsecases(t, tx)
	ctx := context.Background()

	opened, err := u.LoadOpen(ctx, LoadOpenInput{
		FileName: "Customer 42 7.csv",
		Layout:   &LayoutSpec{ProfessionColumn: "Profession"},
		Rows: []map[string]string{
			{"Profession": "Travel Nurse"},
			{"Profession": "Surgical Tech"},
		},
		Actor: "test",
	})
	if err != nil {
		t.Fatalf("LoadOpen: %v", err)
	}
	if opened.Taxonomy.ID != 7 || opened.Taxonomy.CustomerID != "42" {
		t.Fatalf("taxonomy: %+v", opened.Taxonomy)
	}

	processed, err := u.LoadProcess(ctx, LoadProcessInput{LoadID: opened.Load.ID})
	if err != nil {
		t.Fatalf("LoadProcess: %v", err)
	}
	if processed.Completed != 2 {
		t.Fatalf("tallies: %+v", processed)
	}
	if _, err := u.LoadFinalize(ctx, LoadFinalizeInput{LoadID: opened.Load.ID}); err != nil {
		t.Fatalf("LoadFinalize: %v", err)
	}

	// Both professions hang off one reusable N/A root at level 0.
	root := nodeByValue(t, tx, 7, silver.NANodeValue)
	if root.Level != 0 || root.ParentNodeID != nil || root.NodeTypeID != silver.NANodeTypeID {
		t.Fatalf("flat root: %+v", root)
	}
	for _, v := range []string{"Travel Nurse", "Surgical Tech"} {
		n := nodeByValue(t, tx, 7, v)
		if n.Level != 1 || n.ParentNodeID == nil || *n.ParentNodeID != root.ID {
			t.Fatalf("profession node %q: %+v", v, n)
		}
		if n.Profession == nil || *n.Profession != v {
			t.Fatalf("profession field %q: %+v", v, n.Profession)
		}
	}
}

func TestLoadFailsOnInvalidLayout(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	u := newTestUsecases(t, tx)
	ctx := context.Background()

	opened, err := u.LoadOpen(ctx, LoadOpenInput{
		FileName: "Master -1 -1.csv",
		Layout: &LayoutSpec{
			Nodes:      []LayoutNode{{Level: 0, Name: "Industry"}},
			Attributes: []string{"License State"},
			// No profession column: invalid for a master load.
		},
		Rows:  []map[string]string{{"Industry": "Healthcare"}},
		Actor: "test",
	})
	if err != nil {
		t.Fatalf("LoadOpen: %v", err)
	}

	processed, err := u.LoadProcess(ctx, LoadProcessInput{LoadID: opened.Load.ID})
	if err != nil {
		t.Fatalf("LoadProcess: %v", err)
	}
	if processed.Load.Status != bronze.LoadStatusFailed {
		t.Fatalf("load status: got=%q", processed.Load.Status)
	}

	var count int64
	if err := tx.Model(&silver.TaxonomyNode{}).Where("taxonomy_id = ?", silver.MasterTaxonomyID).Count(&count).Error; err != nil {
		t.Fatalf("count nodes: %v", err)
	}
	if count != 0 {
		t.Fatalf("failed layout wrote %d nodes", count)
	}

	status, err := u.GetLoadStatus(ctx, opened.Load.ID)
	if err != nil {
		t.Fatalf("GetLoadStatus: %v", err)
	}
	if status.Details.Error == "" {
		t.Fatalf("details should carry the layout error: %+v", status.Details)
	}
}

func TestLoadProcessDefersToOlderLoad(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	u := newTestUsecases(t, tx)
	ctx := context.Background()

	spec := masterSpec()
	first, err := u.LoadOpen(ctx, LoadOpenInput{
		FileName: "Master -1 -1.csv",
		Layout:   &spec,
		Rows:     []map[string]string{{"Industry": "Healthcare"}},
	})
	if err != nil {
		t.Fatalf("LoadOpen first: %v", err)
	}
	second, err := u.LoadOpen(ctx, LoadOpenInput{
		FileName: "Master -1 -1.csv",
		Layout:   &spec,
		Rows:     []map[string]string{{"Industry": "Tech"}},
	})
	if err != nil {
		t.Fatalf("LoadOpen second: %v", err)
	}

	if _, err := u.LoadProcess(ctx, LoadProcessInput{LoadID: second.Load.ID}); !errors.Is(err, pkgerrors.ErrTaxonomyBusy) {
		t.Fatalf("younger load should defer: got err=%v", err)
	}
	if !pkgerrors.IsTransient(pkgerrors.ErrTaxonomyBusy) {
		t.Fatalf("busy must be retryable")
	}

	// Once the older load settles, the younger one may run.
	if _, err := u.LoadProcess(ctx, LoadProcessInput{LoadID: first.Load.ID}); err != nil {
		t.Fatalf("LoadProcess first: %v", err)
	}
	if _, err := u.LoadFinalize(ctx, LoadFinalizeInput{LoadID: first.Load.ID}); err != nil {
		t.Fatalf("LoadFinalize first: %v", err)
	}
	if _, err := u.LoadProcess(ctx, LoadProcessInput{LoadID: second.Load.ID}); err != nil {
		t.Fatalf("LoadProcess second: %v", err)
	}
}

func TestWithdrawHidesLoadContribution(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	u := newTestUsecases(t, tx)
	ctx := context.Background()

	opened, _, _ := runMasterLoad(t, u, []map[string]string{
		{"Industry": "Healthcare"},
		{"Profession Group": "Nursing"},
	})

	tree, err := u.GetTaxonomyTree(ctx, silver.MasterTaxonomyID)
	if err != nil {
		t.Fatalf("GetTaxonomyTree: %v", err)
	}
	if tree.Count != 2 || len(tree.Roots) != 1 {
		t.Fatalf("tree before withdraw: count=%d roots=%d", tree.Count, len(tree.Roots))
	}

	if _, err := u.LoadWithdraw(ctx, LoadWithdrawInput{LoadID: opened.Load.ID, Actor: "admin"}); err != nil {
		t.Fatalf("LoadWithdraw: %v", err)
	}

	tree, err = u.GetTaxonomyTree(ctx, silver.MasterTaxonomyID)
	if err != nil {
		t.Fatalf("GetTaxonomyTree after withdraw: %v", err)
	}
	if tree.Count != 0 {
		t.Fatalf("withdrawn load still visible: count=%d", tree.Count)
	}

	// Rows stay stored, flipped inactive, and the withdraw is idempotent.
	var rows []*bronze.LoadRow
	if err := tx.Where("load_id = ?", opened.Load.ID).Find(&rows).Error; err != nil {
		t.Fatalf("query rows: %v", err)
	}
	for _, r := range rows {
		if r.IsActive {
			t.Fatalf("row %d still active", r.RowIndex)
		}
	}
	if _, err := u.LoadWithdraw(ctx, LoadWithdrawInput{LoadID: opened.Load.ID, Actor: "admin"}); err != nil {
		t.Fatalf("LoadWithdraw rerun: %v", err)
	}
}

func TestEmptyLoadCompletesVacuously(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	u := newTestUsecases(t, tx)

	_, processed, finalized := runMasterLoad(t, u, nil)
	if processed.Completed != 0 || processed.Failed != 0 || processed.Skipped != 0 {
		t.Fatalf("tallies: %+v", processed)
	}
	if finalized.Status != bronze.LoadStatusCompleted {
		t.Fatalf("empty load status: got=%q", finalized.Status)
	}
}

func TestUnchangedRerunCreatesNoNewVersion(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	u := newTestUsecases(t, tx)

	rows := []map[string]string{
		{"Industry": "Healthcare"},
		{"Profession Group": "Nursing"},
	}
	_, _, first := runMasterLoad(t, u, rows)
	if first.Version == nil || first.Version.VersionNumber != 1 {
		t.Fatalf("first version: %+v", first.Version)
	}

	// The same file again: every row re-presents an active node, nothing is
	// retired, so the open interval stays put.
	_, _, second := runMasterLoad(t, u, rows)
	if second.Status != bronze.LoadStatusCompleted {
		t.Fatalf("rerun status: %q", second.Status)
	}
	if second.Version == nil || second.Version.ID != first.Version.ID {
		t.Fatalf("rerun should keep version 1 open: %+v", second.Version)
	}

	var count int64
	if err := tx.Model(&silver.TaxonomyVersion{}).Where("taxonomy_id = ?", silver.MasterTaxonomyID).Count(&count).Error; err != nil {
		t.Fatalf("count versions: %v", err)
	}
	if count != 1 {
		t.Fatalf("versions after unchanged rerun: got %d, want 1", count)
	}
}

func TestCustomerRemapFlagTracksDeactivations(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	u := newTestUsecases(t, tx)
	ctx := context.Background()

	run := func(rows []map[string]string) *LoadFinalizeOutput {
		t.Helper()
		opened, err := u.LoadOpen(ctx, LoadOpenInput{
			FileName: "Customer 42 7.csv",
			Layout:   &LayoutSpec{ProfessionColumn: "Profession"},
			Rows:     rows,
			Actor:    "test",
		})
		if err != nil {
			t.Fatalf("LoadOpen: %v", err)
		}
		if _, err := u.LoadProcess(ctx, LoadProcessInput{LoadID: opened.Load.ID}); err != nil {
			t.Fatalf("LoadProcess: %v", err)
		}
		finalized, err := u.LoadFinalize(ctx, LoadFinalizeInput{LoadID: opened.Load.ID})
		if err != nil {
			t.Fatalf("LoadFinalize: %v", err)
		}
		return finalized
	}

	// Customer loads that only add nodes leave the flag down; the new nodes
	// get their first mapping pass without disturbing existing mappings.
	first := run([]map[string]string{{"Profession": "Travel Nurse"}})
	if first.Version == nil || first.Version.RemappingFlag {
		t.Fatalf("add-only load raised the flag: %+v", first.Version)
	}
	second := run([]map[string]string{
		{"Profession": "Travel Nurse"},
		{"Profession": "Surgical Tech"},
	})
	if second.Version == nil || second.Version.VersionNumber != 2 || second.Version.RemappingFlag {
		t.Fatalf("add-only update raised the flag: %+v", second.Version)
	}

	// Shrinking the list deactivates a node, which may strand its mapping.
	third := run([]map[string]string{{"Profession": "Travel Nurse"}})
	if third.Version == nil || !third.Version.RemappingFlag {
		t.Fatalf("deactivating update should raise the flag: %+v", third.Version)
	}
}

func TestTreeSplicesGapPlaceholders(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	u := newTestUsecases(t, tx)
	ctx := context.Background()

	// Advanced CNS at level 2 with only a level-0 ancestor forces a stored
	// placeholder at level 1; the display tree must not show it.
	runMasterLoad(t, u, []map[string]string{
		{"Industry": "Healthcare"},
		{"Specialty": "Advanced CNS"},
		{"Profession Group": "Nursing"},
	})

	tree, err := u.GetTaxonomyTree(ctx, silver.MasterTaxonomyID)
	if err != nil {
		t.Fatalf("GetTaxonomyTree: %v", err)
	}
	if tree.Count != 3 || len(tree.Roots) != 1 {
		t.Fatalf("tree shape: count=%d roots=%d", tree.Count, len(tree.Roots))
	}

	var walk func(*TreeNode)
	walk = func(tn *TreeNode) {
		if tn.Node.IsNA() {
			t.Fatalf("placeholder surfaced in display tree: %+v", tn.Node)
		}
		for _, c := range tn.Children {
			walk(c)
		}
	}
	for _, r := range tree.Roots {
		walk(r)
	}

	// The gapped leaf re-parents to its nearest real ancestor.
	root := tree.Roots[0]
	if root.Node.Value != "Healthcare" {
		t.Fatalf("root: %+v", root.Node)
	}
	children := map[string]bool{}
	for _, c := range root.Children {
		children[c.Node.Value] = true
	}
	if !children["Advanced CNS"] || !children["Nursing"] {
		t.Fatalf("spliced children: %v", children)
	}

	// The stored hierarchy still carries the placeholder.
	leaf := nodeByValue(t, tx, silver.MasterTaxonomyID, "Advanced CNS")
	var na silver.TaxonomyNode
	if err := tx.Where("id = ?", *leaf.ParentNodeID).First(&na).Error; err != nil {
		t.Fatalf("load stored parent: %v", err)
	}
	if !na.IsNA() {
		t.Fatalf("stored parent should be the placeholder: %+v", na)
	}
}

func TestLoadOpenRejectsForeignTaxonomy(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	u := newTestUsecases(t, tx)
	ctx := context.Background()

	if _, err := u.LoadOpen(ctx, LoadOpenInput{
		FileName: "Customer 42 7.csv",
		Layout:   &LayoutSpec{ProfessionColumn: "Profession"},
	}); err != nil {
		t.Fatalf("LoadOpen: %v", err)
	}

	// Same taxonomy id claimed by a different owner.
	_, err := u.LoadOpen(ctx, LoadOpenInput{
		FileName: "Customer 99 7.csv",
		Layout:   &LayoutSpec{ProfessionColumn: "Profession"},
	})
	if !errors.Is(err, pkgerrors.ErrLoadInvalid) {
		t.Fatalf("foreign taxonomy: got err=%v", err)
	}
}
