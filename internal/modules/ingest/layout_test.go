package ingest

import (
	"errors"
	"reflect"
	"testing"

	"github.com/carelattice/taxonomy-backend/internal/domain/bronze"
	pkgerrors "github.com/carelattice/taxonomy-backend/internal/pkg/errors"
)

func masterSpec() LayoutSpec {
	return LayoutSpec{
		Nodes: []LayoutNode{
			{Level: 2, Name: "Specialty"},
			{Level: 0, Name: "Industry"},
			{Level: 1, Name: "Profession Group"},
		},
		Attributes:       []string{"Profession", "License State"},
		ProfessionColumn: "Profession",
	}
}

func TestResolveLayoutMaster(t *testing.T) {
	t.Parallel()

	l, err := ResolveLayout(masterSpec(), bronze.TaxonomyKindMaster)
	if err != nil {
		t.Fatalf("ResolveLayout: %v", err)
	}
	if l.Flat {
		t.Fatalf("master layout resolved flat")
	}

	wantLevels := []LayoutNode{
		{Level: 0, Name: "Industry"},
		{Level: 1, Name: "Profession Group"},
		{Level: 2, Name: "Specialty"},
	}
	if !reflect.DeepEqual(l.NodeLevels, wantLevels) {
		t.Fatalf("NodeLevels: got=%+v want=%+v", l.NodeLevels, wantLevels)
	}
	if !reflect.DeepEqual(l.AttributeTypes, []string{"Profession", "License State"}) {
		t.Fatalf("AttributeTypes: got=%+v", l.AttributeTypes)
	}
	if l.ProfessionColumn != "Profession" {
		t.Fatalf("ProfessionColumn: got=%q", l.ProfessionColumn)
	}

	// Lookup folds, so header casing and spacing do not matter.
	spec, ok := l.Lookup("  profession   GROUP ")
	if !ok || spec.kind != columnNode || spec.level != 1 {
		t.Fatalf("Lookup folded node column: got=%+v ok=%v", spec, ok)
	}
	spec, ok = l.Lookup("PROFESSION")
	if !ok || spec.kind != columnProfession || !spec.isAttribute {
		t.Fatalf("profession column should double as attribute: got=%+v ok=%v", spec, ok)
	}
}

func TestResolveLayoutMasterRequiresProfession(t *testing.T) {
	t.Parallel()

	spec := masterSpec()
	spec.ProfessionColumn = ""
	if _, err := ResolveLayout(spec, bronze.TaxonomyKindMaster); !errors.Is(err, pkgerrors.ErrProfessionColumnMissing) {
		t.Fatalf("missing profession column: got err=%v", err)
	}

	spec = masterSpec()
	spec.Attributes = []string{"License State"}
	if _, err := ResolveLayout(spec, bronze.TaxonomyKindMaster); !errors.Is(err, pkgerrors.ErrLayoutInvalid) {
		t.Fatalf("profession not listed as attribute: got err=%v", err)
	}

	spec = masterSpec()
	spec.Nodes = nil
	if _, err := ResolveLayout(spec, bronze.TaxonomyKindMaster); !errors.Is(err, pkgerrors.ErrLayoutInvalid) {
		t.Fatalf("master without node columns: got err=%v", err)
	}
}

func TestResolveLayoutRejectsCollisions(t *testing.T) {
	t.Parallel()

	spec := masterSpec()
	spec.Nodes = append(spec.Nodes, LayoutNode{Level: 2, Name: "Subspecialty"})
	if _, err := ResolveLayout(spec, bronze.TaxonomyKindMaster); !errors.Is(err, pkgerrors.ErrDuplicateLevel) {
		t.Fatalf("duplicate level: got err=%v", err)
	}

	spec = masterSpec()
	spec.Nodes = append(spec.Nodes, LayoutNode{Level: 3, Name: "industry"})
	if _, err := ResolveLayout(spec, bronze.TaxonomyKindMaster); !errors.Is(err, pkgerrors.ErrLayoutInvalid) {
		t.Fatalf("folded name collision: got err=%v", err)
	}

	spec = masterSpec()
	spec.Attributes = append(spec.Attributes, "Specialty")
	if _, err := ResolveLayout(spec, bronze.TaxonomyKindMaster); !errors.Is(err, pkgerrors.ErrLayoutInvalid) {
		t.Fatalf("attribute colliding with node column: got err=%v", err)
	}

	spec = masterSpec()
	spec.IgnoredColumns = []string{"Industry"}
	if _, err := ResolveLayout(spec, bronze.TaxonomyKindMaster); !errors.Is(err, pkgerrors.ErrLayoutInvalid) {
		t.Fatalf("ignored column colliding with node column: got err=%v", err)
	}

	if _, err := ResolveLayout(masterSpec(), "gold"); !errors.Is(err, pkgerrors.ErrLayoutInvalid) {
		t.Fatalf("unknown taxonomy kind: got err=%v", err)
	}
}

func TestResolveLayoutCustomerFlat(t *testing.T) {
	t.Parallel()

	l, err := ResolveLayout(LayoutSpec{ProfessionColumn: "Profession"}, bronze.TaxonomyKindCustomer)
	if err != nil {
		t.Fatalf("ResolveLayout flat: %v", err)
	}
	if !l.Flat {
		t.Fatalf("customer layout without nodes should be flat")
	}
	want := []LayoutNode{{Level: 1, Name: FlatNodeTypeName}}
	if !reflect.DeepEqual(l.NodeLevels, want) {
		t.Fatalf("flat NodeLevels: got=%+v want=%+v", l.NodeLevels, want)
	}

	// No node columns and no profession column leaves nothing to ingest.
	if _, err := ResolveLayout(LayoutSpec{Attributes: []string{"State"}}, bronze.TaxonomyKindCustomer); !errors.Is(err, pkgerrors.ErrLayoutInvalid) {
		t.Fatalf("customer layout with no node source: got err=%v", err)
	}

	// Customer trees with explicit node columns are not flat and need no
	// profession column.
	l, err = ResolveLayout(LayoutSpec{Nodes: []LayoutNode{{Level: 0, Name: "Department"}}}, bronze.TaxonomyKindCustomer)
	if err != nil {
		t.Fatalf("ResolveLayout customer tree: %v", err)
	}
	if l.Flat {
		t.Fatalf("customer tree layout resolved flat")
	}
}

func TestLayoutSpecFromHeaders(t *testing.T) {
	t.Parallel()

	headers := []string{
		"Industry (Node 0)",
		"Profession Group (Node 1)",
		"Specialty (Node 2)",
		"Profession (Profession)",
		"License State (Attribute)",
		"Profession (Attribute)",
		"Internal Notes",
		"Reviewed (yes/no)",
		"  ",
	}
	spec, err := LayoutSpecFromHeaders(headers)
	if err != nil {
		t.Fatalf("LayoutSpecFromHeaders: %v", err)
	}

	wantNodes := []LayoutNode{
		{Level: 0, Name: "Industry"},
		{Level: 1, Name: "Profession Group"},
		{Level: 2, Name: "Specialty"},
	}
	if !reflect.DeepEqual(spec.Nodes, wantNodes) {
		t.Fatalf("Nodes: got=%+v want=%+v", spec.Nodes, wantNodes)
	}
	if !reflect.DeepEqual(spec.Attributes, []string{"License State", "Profession"}) {
		t.Fatalf("Attributes: got=%+v", spec.Attributes)
	}
	if spec.ProfessionColumn != "Profession" {
		t.Fatalf("ProfessionColumn: got=%q", spec.ProfessionColumn)
	}
	if !reflect.DeepEqual(spec.IgnoredColumns, []string{"Internal Notes", "Reviewed (yes/no)"}) {
		t.Fatalf("IgnoredColumns: got=%+v", spec.IgnoredColumns)
	}

	if _, err := LayoutSpecFromHeaders([]string{"Specialty (Node two)"}); !errors.Is(err, pkgerrors.ErrLayoutInvalid) {
		t.Fatalf("non-integer node level: got err=%v", err)
	}
}

func TestLayoutRoundTripsThroughJSON(t *testing.T) {
	t.Parallel()

	spec := masterSpec()
	raw := mustJSON(t, spec)
	l, err := ParseLayout(raw, bronze.TaxonomyKindMaster)
	if err != nil {
		t.Fatalf("ParseLayout: %v", err)
	}
	if len(l.NodeLevels) != 3 || l.ProfessionColumn != "Profession" {
		t.Fatalf("round-tripped layout: got=%+v", l)
	}

	if _, err := ParseLayout(nil, bronze.TaxonomyKindMaster); !errors.Is(err, pkgerrors.ErrLayoutInvalid) {
		t.Fatalf("nil raw layout: got err=%v", err)
	}
	if _, err := ParseLayout([]byte(`{"Nodes":`), bronze.TaxonomyKindMaster); !errors.Is(err, pkgerrors.ErrLayoutInvalid) {
		t.Fatalf("truncated raw layout: got err=%v", err)
	}
}
