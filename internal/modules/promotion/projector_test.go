package promotion

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/data/repos"
	"github.com/carelattice/taxonomy-backend/internal/data/repos/testutil"
	auditdom "github.com/carelattice/taxonomy-backend/internal/domain/audit"
	"github.com/carelattice/taxonomy-backend/internal/domain/gold"
	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
)

func newTestUsecases(tb testing.TB, tx *gorm.DB) Usecases {
	tb.Helper()
	log := testutil.Logger(tb)
	return New(UsecasesDeps{
		DB:         tx,
		Log:        log,
		Mappings:   repos.NewMappingRepo(tx, log),
		Production: repos.NewProductionMappingRepo(tx, log),
		Audit:      repos.NewAuditLogRepo(tx, log),
	})
}

func ruleByName(tb testing.TB, tx *gorm.DB, name string) *gold.MappingRule {
	tb.Helper()
	var rows []*gold.MappingRule
	if err := tx.Where("name = ?", name).Find(&rows).Error; err != nil {
		tb.Fatalf("query rule %q: %v", name, err)
	}
	if len(rows) != 1 {
		tb.Fatalf("rule %q: got %d rows, want 1", name, len(rows))
	}
	return rows[0]
}

func findProjected(rows []*gold.ProductionMapping, mappingID uuid.UUID) *gold.ProductionMapping {
	for _, row := range rows {
		if row.MappingID == mappingID {
			return row
		}
	}
	return nil
}

func auditCount(tb testing.TB, tx *gorm.DB, op string) int64 {
	tb.Helper()
	var count int64
	if err := tx.Model(&auditdom.AuditLog{}).
		Where("entity_table = ? AND operation = ?", gold.ProductionMapping{}.TableName(), op).
		Count(&count).Error; err != nil {
		tb.Fatalf("count %s audits: %v", op, err)
	}
	return count
}

func TestSyncProductionConverges(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()

	masterLoad := testutil.SeedLoad(t, ctx, tx, silver.MasterTaxonomyID, silver.MasterCustomerID, "master_full")
	masterRow := testutil.SeedLoadRow(t, ctx, tx, masterLoad.ID, silver.MasterTaxonomyID, silver.MasterCustomerID, 0, `{}`)
	profType := testutil.SeedNodeType(t, ctx, tx, "Profession")
	rn := testutil.SeedNode(t, ctx, tx, silver.MasterTaxonomyID, profType.ID, silver.MasterCustomerID, nil, "Registered Nurse", 0, masterLoad.ID, masterRow.ID)
	np := testutil.SeedNode(t, ctx, tx, silver.MasterTaxonomyID, profType.ID, silver.MasterCustomerID, nil, "Nurse Practitioner", 0, masterLoad.ID, masterRow.ID)

	tax := testutil.SeedTaxonomy(t, ctx, tx, 7, "acme", silver.TaxonomyKindCustomer)
	childType := testutil.SeedNodeType(t, ctx, tx, "Job Title")
	load := testutil.SeedLoad(t, ctx, tx, tax.ID, tax.CustomerID, "customer_full")
	row := testutil.SeedLoadRow(t, ctx, tx, load.ID, tax.ID, tax.CustomerID, 0, `{}`)
	child := func(value string) *silver.TaxonomyNode {
		return testutil.SeedNode(t, ctx, tx, tax.ID, childType.ID, tax.CustomerID, nil, value, 0, load.ID, row.ID)
	}
	c1 := child("Staff RN")
	c2 := child("Psych NP")
	c3 := child("Travel Nurse")
	c4 := child("Charge Nurse")

	exact := ruleByName(t, tx, "Exact Match")
	ai := ruleByName(t, tx, "Semantic Match")
	human := ruleByName(t, tx, "Human Override")

	m1 := testutil.SeedMapping(t, ctx, tx, exact.ID, rn.ID, c1.ID, 100, gold.MappingStatusActive)
	testutil.SeedMapping(t, ctx, tx, ai.ID, np.ID, c2.ID, 80, gold.MappingStatusActive)
	m3 := testutil.SeedMapping(t, ctx, tx, exact.ID, rn.ID, c3.ID, 65, gold.MappingStatusPendingReview)
	m4 := testutil.SeedMapping(t, ctx, tx, human.ID, np.ID, c4.ID, 100, gold.MappingStatusActive)

	u := newTestUsecases(t, tx)

	// First sync projects the active non-AI rows: the AI verdict and the
	// pending row stay out.
	out, err := u.SyncProduction(ctx, "scheduler")
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if out.Eligible != 2 || out.Promoted != 2 || out.Refreshed != 0 || out.Removed != 0 {
		t.Fatalf("first sync: %+v", out)
	}
	rows, err := u.ListProduction(ctx, 0, 0, 0)
	if err != nil {
		t.Fatalf("list projection: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("projection size: got %d, want 2", len(rows))
	}
	p1 := findProjected(rows, m1.ID)
	if p1 == nil || p1.MasterNodeID != rn.ID || p1.ChildNodeID != c1.ID || p1.Confidence != 100 {
		t.Fatalf("projected m1: %+v", p1)
	}
	if findProjected(rows, m4.ID) == nil {
		t.Fatalf("human mapping missing from projection")
	}

	// Retire one mapping and approve the pending one; the next sync swaps
	// them in place.
	if err := tx.Model(&gold.Mapping{}).Where("id = ?", m1.ID).
		Updates(map[string]interface{}{"is_active": false, "status": gold.MappingStatusInactive}).Error; err != nil {
		t.Fatalf("retire m1: %v", err)
	}
	if err := tx.Model(&gold.Mapping{}).Where("id = ?", m3.ID).
		Update("status", gold.MappingStatusActive).Error; err != nil {
		t.Fatalf("approve m3: %v", err)
	}

	out, err = u.SyncProduction(ctx, "scheduler")
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if out.Eligible != 2 || out.Promoted != 1 || out.Refreshed != 0 || out.Removed != 1 {
		t.Fatalf("second sync: %+v", out)
	}
	rows, err = u.ListProduction(ctx, 0, 0, 0)
	if err != nil {
		t.Fatalf("list projection: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("projection size after swap: got %d, want 2", len(rows))
	}
	if findProjected(rows, m1.ID) != nil {
		t.Fatalf("retired mapping still projected")
	}
	p3 := findProjected(rows, m3.ID)
	if p3 == nil || p3.Confidence != 65 {
		t.Fatalf("approved mapping projected wrong: %+v", p3)
	}
	p4 := findProjected(rows, m4.ID)
	if p4 == nil {
		t.Fatalf("m4 missing after swap")
	}
	promotedAt := p4.PromotedAt

	// A rerun with nothing changed touches nothing.
	out, err = u.SyncProduction(ctx, "scheduler")
	if err != nil {
		t.Fatalf("idempotent sync: %v", err)
	}
	if out.Promoted != 0 || out.Refreshed != 0 || out.Removed != 0 {
		t.Fatalf("idempotent sync: %+v", out)
	}
	rows, err = u.ListProduction(ctx, 0, 0, 0)
	if err != nil {
		t.Fatalf("list projection: %v", err)
	}
	p4 = findProjected(rows, m4.ID)
	if p4 == nil || !p4.PromotedAt.Equal(promotedAt) {
		t.Fatalf("untouched row re-promoted: %+v", p4)
	}

	// A confidence drift refreshes the projected columns.
	if err := tx.Model(&gold.Mapping{}).Where("id = ?", m4.ID).
		Update("confidence", 90).Error; err != nil {
		t.Fatalf("drift m4: %v", err)
	}
	out, err = u.SyncProduction(ctx, "scheduler")
	if err != nil {
		t.Fatalf("refresh sync: %v", err)
	}
	if out.Refreshed != 1 || out.Promoted != 0 || out.Removed != 0 {
		t.Fatalf("refresh sync: %+v", out)
	}
	rows, err = u.ListProduction(ctx, 0, 0, 0)
	if err != nil {
		t.Fatalf("list projection: %v", err)
	}
	p4 = findProjected(rows, m4.ID)
	if p4 == nil || p4.Confidence != 90 {
		t.Fatalf("refreshed row: %+v", p4)
	}

	if got := auditCount(t, tx, auditdom.OpInsert); got != 3 {
		t.Fatalf("projection insert audits: got %d, want 3", got)
	}
	if got := auditCount(t, tx, auditdom.OpUpdate); got != 1 {
		t.Fatalf("projection update audits: got %d, want 1", got)
	}
	if got := auditCount(t, tx, auditdom.OpDelete); got != 1 {
		t.Fatalf("projection delete audits: got %d, want 1", got)
	}
}

func TestListProductionFiltersByMaster(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()

	masterLoad := testutil.SeedLoad(t, ctx, tx, silver.MasterTaxonomyID, silver.MasterCustomerID, "master_full")
	masterRow := testutil.SeedLoadRow(t, ctx, tx, masterLoad.ID, silver.MasterTaxonomyID, silver.MasterCustomerID, 0, `{}`)
	profType := testutil.SeedNodeType(t, ctx, tx, "Profession")
	rn := testutil.SeedNode(t, ctx, tx, silver.MasterTaxonomyID, profType.ID, silver.MasterCustomerID, nil, "Registered Nurse", 0, masterLoad.ID, masterRow.ID)
	np := testutil.SeedNode(t, ctx, tx, silver.MasterTaxonomyID, profType.ID, silver.MasterCustomerID, nil, "Nurse Practitioner", 0, masterLoad.ID, masterRow.ID)

	tax := testutil.SeedTaxonomy(t, ctx, tx, 7, "acme", silver.TaxonomyKindCustomer)
	childType := testutil.SeedNodeType(t, ctx, tx, "Job Title")
	load := testutil.SeedLoad(t, ctx, tx, tax.ID, tax.CustomerID, "customer_full")
	row := testutil.SeedLoadRow(t, ctx, tx, load.ID, tax.ID, tax.CustomerID, 0, `{}`)
	c1 := testutil.SeedNode(t, ctx, tx, tax.ID, childType.ID, tax.CustomerID, nil, "Staff RN", 0, load.ID, row.ID)
	c2 := testutil.SeedNode(t, ctx, tx, tax.ID, childType.ID, tax.CustomerID, nil, "Psych NP", 0, load.ID, row.ID)

	exact := ruleByName(t, tx, "Exact Match")
	testutil.SeedMapping(t, ctx, tx, exact.ID, rn.ID, c1.ID, 100, gold.MappingStatusActive)
	m2 := testutil.SeedMapping(t, ctx, tx, exact.ID, np.ID, c2.ID, 95, gold.MappingStatusActive)

	u := newTestUsecases(t, tx)
	if _, err := u.SyncProduction(ctx, "scheduler"); err != nil {
		t.Fatalf("sync: %v", err)
	}

	rows, err := u.ListProduction(ctx, np.ID, 0, 0)
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(rows) != 1 || rows[0].MappingID != m2.ID {
		t.Fatalf("filtered projection: %+v", rows)
	}
}
