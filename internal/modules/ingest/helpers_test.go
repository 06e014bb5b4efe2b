package ingest

import (
	"encoding/json"
	"testing"

	"github.com/carelattice/taxonomy-backend/internal/domain/bronze"
)

func mustJSON(tb testing.TB, v interface{}) []byte {
	tb.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		tb.Fatalf("marshal %T: %v", v, err)
	}
	return raw
}

func mustLayout(tb testing.TB, spec LayoutSpec, kind string) *Layout {
	tb.Helper()
	l, err := ResolveLayout(spec, kind)
	if err != nil {
		tb.Fatalf("resolve layout: %v", err)
	}
	return l
}

func flatLayout(tb testing.TB) *Layout {
	tb.Helper()
	return mustLayout(tb, LayoutSpec{
		ProfessionColumn: "Profession",
		Attributes:       []string{"Region"},
	}, bronze.TaxonomyKindCustomer)
}
