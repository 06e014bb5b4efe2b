package ingest

import (
	"errors"
	"reflect"
	"testing"

	"github.com/carelattice/taxonomy-backend/internal/domain/bronze"
	pkgerrors "github.com/carelattice/taxonomy-backend/internal/pkg/errors"
)

func TestDecodeRowSingleNodeColumn(t *testing.T) {
	t.Parallel()
	l := mustLayout(t, masterSpec(), bronze.TaxonomyKindMaster)

	dec, err := DecodeRow(l, map[string]string{"Industry": " Healthcare "})
	if err != nil {
		t.Fatalf("DecodeRow: %v", err)
	}
	if dec.Blank || dec.Level != 0 || !reflect.DeepEqual(dec.Values, []string{"Healthcare"}) {
		t.Fatalf("decoded: %+v", dec)
	}

	dec, err = DecodeRow(l, map[string]string{
		"Specialty":     "Cardiology",
		"Profession":    "Registered Nurse",
		"License State": "CA",
	})
	if err != nil {
		t.Fatalf("DecodeRow specialty: %v", err)
	}
	if dec.Level != 2 || !reflect.DeepEqual(dec.Values, []string{"Cardiology"}) {
		t.Fatalf("decoded: %+v", dec)
	}
	if dec.Profession != "Registered Nurse" {
		t.Fatalf("profession: got=%q", dec.Profession)
	}
	wantAttrs := []AttributeValue{
		{Type: "Profession", Value: "Registered Nurse"},
		{Type: "License State", Value: "CA"},
	}
	if !reflect.DeepEqual(dec.Attributes, wantAttrs) {
		t.Fatalf("attributes: got=%+v want=%+v", dec.Attributes, wantAttrs)
	}
}

func TestDecodeRowSplitsSiblings(t *testing.T) {
	t.Parallel()
	l := mustLayout(t, masterSpec(), bronze.TaxonomyKindMaster)

	dec, err := DecodeRow(l, map[string]string{"Specialty": "Acute; Critical ;; Pediatric"})
	if err != nil {
		t.Fatalf("DecodeRow: %v", err)
	}
	want := []string{"Acute", "Critical", "Pediatric"}
	if !reflect.DeepEqual(dec.Values, want) {
		t.Fatalf("siblings: got=%+v want=%+v", dec.Values, want)
	}

	if _, err := DecodeRow(l, map[string]string{"Specialty": " ; ;; "}); !errors.Is(err, pkgerrors.ErrEmptyValue) {
		t.Fatalf("separator-only cell: got err=%v", err)
	}
}

func TestDecodeRowRejections(t *testing.T) {
	t.Parallel()
	l := mustLayout(t, masterSpec(), bronze.TaxonomyKindMaster)

	if _, err := DecodeRow(l, map[string]string{"Industry": "Healthcare", "Specialty": "Cardiology"}); !errors.Is(err, pkgerrors.ErrMultiNodeRow) {
		t.Fatalf("two node cells: got err=%v", err)
	}
	if _, err := DecodeRow(l, map[string]string{"License State": "CA"}); !errors.Is(err, pkgerrors.ErrEmptyNodeRow) {
		t.Fatalf("no node cell: got err=%v", err)
	}
	if _, err := DecodeRow(l, map[string]string{"Industry": "Healthcare", "Bonus": "x"}); !errors.Is(err, pkgerrors.ErrUnknownColumn) {
		t.Fatalf("undeclared column with content: got err=%v", err)
	}
}

func TestDecodeRowTolerance(t *testing.T) {
	t.Parallel()

	spec := masterSpec()
	spec.IgnoredColumns = []string{"Internal Notes"}
	l := mustLayout(t, spec, bronze.TaxonomyKindMaster)

	// Blank cells in undeclared columns are tolerated; ignored columns may
	// hold anything.
	dec, err := DecodeRow(l, map[string]string{
		"Industry":       "Healthcare",
		"Bonus":          "  ",
		"Internal Notes": "reviewed by KL",
	})
	if err != nil {
		t.Fatalf("DecodeRow: %v", err)
	}
	if !reflect.DeepEqual(dec.Values, []string{"Healthcare"}) {
		t.Fatalf("decoded: %+v", dec)
	}

	// Header casing differences collapse onto the same column. Conflicting
	// duplicates fail the row.
	dec, err = DecodeRow(l, map[string]string{"industry": "Healthcare", "INDUSTRY ": "Healthcare"})
	if err != nil {
		t.Fatalf("duplicate same-value cells: %v", err)
	}
	if !reflect.DeepEqual(dec.Values, []string{"Healthcare"}) {
		t.Fatalf("decoded: %+v", dec)
	}
	if _, err := DecodeRow(l, map[string]string{"industry": "Healthcare", "INDUSTRY ": "Tech"}); !errors.Is(err, pkgerrors.ErrUnknownColumn) {
		t.Fatalf("conflicting duplicate cells: got err=%v", err)
	}

	// All-blank rows are skipped, not failed.
	dec, err = DecodeRow(l, map[string]string{"Industry": "   ", "Specialty": ""})
	if err != nil {
		t.Fatalf("blank row: %v", err)
	}
	if !dec.Blank {
		t.Fatalf("blank row not marked: %+v", dec)
	}
	dec, err = DecodeRow(l, map[string]string{})
	if err != nil || !dec.Blank {
		t.Fatalf("empty payload: dec=%+v err=%v", dec, err)
	}
}

func TestDecodeRowFlatLayout(t *testing.T) {
	t.Parallel()
	l := flatLayout(t)

	dec, err := DecodeRow(l, map[string]string{"Profession": "Travel Nurse", "Region": "West"})
	if err != nil {
		t.Fatalf("DecodeRow flat: %v", err)
	}
	if dec.Level != 1 || !reflect.DeepEqual(dec.Values, []string{"Travel Nurse"}) {
		t.Fatalf("decoded: %+v", dec)
	}
	if dec.Profession != "Travel Nurse" {
		t.Fatalf("profession: got=%q", dec.Profession)
	}
	if !reflect.DeepEqual(dec.Attributes, []AttributeValue{{Type: "Region", Value: "West"}}) {
		t.Fatalf("attributes: %+v", dec.Attributes)
	}

	if _, err := DecodeRow(l, map[string]string{"Region": "West"}); !errors.Is(err, pkgerrors.ErrEmptyNodeRow) {
		t.Fatalf("flat row without profession: got err=%v", err)
	}
}
