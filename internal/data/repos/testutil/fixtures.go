package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	bronzedom "github.com/carelattice/taxonomy-backend/internal/domain/bronze"
	golddom "github.com/carelattice/taxonomy-backend/internal/domain/gold"
	silverdom "github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/normalization"
)

func SeedTaxonomy(tb testing.TB, ctx context.Context, tx *gorm.DB, id int64, customerID, kind string) *silverdom.Taxonomy {
	tb.Helper()
	t := &silverdom.Taxonomy{
		ID:           id,
		CustomerID:   customerID,
		Name:         "taxonomy",
		TaxonomyKind: kind,
		Status:       silverdom.StatusActive,
	}
	if err := tx.WithContext(ctx).Create(t).Error; err != nil {
		tb.Fatalf("seed taxonomy: %v", err)
	}
	return t
}

func SeedNodeType(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *silverdom.NodeType {
	tb.Helper()
	nt := &silverdom.NodeType{
		Name:    name,
		NameKey: normalization.Fold(name),
		Status:  silverdom.StatusActive,
	}
	if err := tx.WithContext(ctx).Create(nt).Error; err != nil {
		tb.Fatalf("seed node type: %v", err)
	}
	return nt
}

func SeedAttributeType(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *silverdom.AttributeType {
	tb.Helper()
	at := &silverdom.AttributeType{
		Name:    name,
		NameKey: normalization.Fold(name),
		Status:  silverdom.StatusActive,
	}
	if err := tx.WithContext(ctx).Create(at).Error; err != nil {
		tb.Fatalf("seed attribute type: %v", err)
	}
	return at
}

func SeedLoad(tb testing.TB, ctx context.Context, tx *gorm.DB, taxonomyID int64, customerID, kind string) *bronzedom.Load {
	tb.Helper()
	l := &bronzedom.Load{
		ID:           uuid.New(),
		CustomerID:   customerID,
		TaxonomyID:   taxonomyID,
		LoadKind:     kind,
		TaxonomyKind: bronzedom.TaxonomyKindCustomer,
		Status:       bronzedom.LoadStatusInProgress,
		IsActive:     true,
		StartedAt:    time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(l).Error; err != nil {
		tb.Fatalf("seed load: %v", err)
	}
	return l
}

func SeedLoadRow(tb testing.TB, ctx context.Context, tx *gorm.DB, loadID uuid.UUID, taxonomyID int64, customerID string, index int, payload string) *bronzedom.LoadRow {
	tb.Helper()
	row := &bronzedom.LoadRow{
		ID:         uuid.New(),
		LoadID:     loadID,
		CustomerID: customerID,
		TaxonomyID: taxonomyID,
		RowIndex:   index,
		Payload:    datatypes.JSON([]byte(payload)),
		Status:     bronzedom.RowStatusInProgress,
		IsActive:   true,
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		tb.Fatalf("seed load row: %v", err)
	}
	return row
}

func SeedNode(tb testing.TB, ctx context.Context, tx *gorm.DB, taxonomyID, nodeTypeID int64, customerID string, parentID *int64, value string, level int, loadID, rowID uuid.UUID) *silverdom.TaxonomyNode {
	tb.Helper()
	n := &silverdom.TaxonomyNode{
		TaxonomyID:   taxonomyID,
		NodeTypeID:   nodeTypeID,
		CustomerID:   customerID,
		ParentNodeID: parentID,
		Value:        normalization.Normalize(value),
		ValueKey:     normalization.Fold(value),
		Level:        level,
		Status:       silverdom.StatusActive,
		LoadID:       loadID,
		RowID:        rowID,
	}
	if err := tx.WithContext(ctx).Create(n).Error; err != nil {
		tb.Fatalf("seed node: %v", err)
	}
	return n
}

func SeedRule(tb testing.TB, ctx context.Context, tx *gorm.DB, name, command string) *golddom.MappingRule {
	tb.Helper()
	r := &golddom.MappingRule{
		ID:               uuid.New(),
		Name:             name,
		Command:          command,
		AIMappingFlag:    command == golddom.RuleCommandAI,
		HumanMappingFlag: command == golddom.RuleCommandHuman,
		Enabled:          true,
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed rule: %v", err)
	}
	return r
}

func SeedMapping(tb testing.TB, ctx context.Context, tx *gorm.DB, ruleID uuid.UUID, masterNodeID, childNodeID int64, confidence int, status string) *golddom.Mapping {
	tb.Helper()
	m := &golddom.Mapping{
		ID:             uuid.New(),
		RuleID:         ruleID,
		MasterNodeID:   masterNodeID,
		ChildNodeID:    childNodeID,
		Confidence:     confidence,
		Status:         status,
		IsActive:       true,
		MappingVersion: 1,
		CreatedBy:      "test",
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed mapping: %v", err)
	}
	return m
}

func PtrInt64(v int64) *int64 { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
