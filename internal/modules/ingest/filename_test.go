package ingest

import (
	"errors"
	"testing"

	pkgerrors "github.com/carelattice/taxonomy-backend/internal/pkg/errors"
)

func TestParseLoadNameAcceptsWellFormedNames(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want LoadName
	}{
		{
			in:   "Master -1 -1.xlsx",
			want: LoadName{TaxonomyKind: "master", CustomerID: "-1", TaxonomyID: -1, Ext: "xlsx"},
		},
		{
			in:   "master -1 -1 v2 refresh.csv",
			want: LoadName{TaxonomyKind: "master", CustomerID: "-1", TaxonomyID: -1, Note: "v2 refresh", Ext: "csv"},
		},
		{
			in:   "Customer 42 7.csv",
			want: LoadName{TaxonomyKind: "customer", CustomerID: "42", TaxonomyID: 7, Ext: "csv"},
		},
		{
			in:   "uploads/2026/Customer acme-health 12 Q3.JSON",
			want: LoadName{TaxonomyKind: "customer", CustomerID: "acme-health", TaxonomyID: 12, Note: "Q3", Ext: "json"},
		},
		{
			in:   `inbox\Customer 9 3.xlsx`,
			want: LoadName{TaxonomyKind: "customer", CustomerID: "9", TaxonomyID: 3, Ext: "xlsx"},
		},
		{
			in:   "  Customer   77   15  .csv",
			want: LoadName{TaxonomyKind: "customer", CustomerID: "77", TaxonomyID: 15, Ext: "csv"},
		},
	}
	for _, tc := range cases {
		got, err := ParseLoadName(tc.in)
		if err != nil {
			t.Fatalf("ParseLoadName(%q): unexpected error %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseLoadName(%q): got=%+v want=%+v", tc.in, got, tc.want)
		}
	}
}

func TestParseLoadNameRejectsMalformedNames(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in     string
		reason string
	}{
		{"", "empty"},
		{"   ", "blank"},
		{"Master -1.csv", "too few fields"},
		{"Partner 42 7.csv", "unknown kind"},
		{"Customer 42 seven.csv", "non-integer taxonomy id"},
		{"Master 42 7.csv", "master must use the reserved ids"},
		{"Master -1 7.csv", "master taxonomy id must be reserved"},
		{"Customer -1 7.csv", "customer may not use the reserved owner"},
		{"Customer 42 -1.csv", "customer may not use the reserved taxonomy"},
		{"Customer 42 0.csv", "taxonomy ids start at 1"},
	}
	for _, tc := range cases {
		if _, err := ParseLoadName(tc.in); !errors.Is(err, pkgerrors.ErrLoadNameInvalid) {
			t.Fatalf("ParseLoadName(%q) [%s]: got err=%v want ErrLoadNameInvalid", tc.in, tc.reason, err)
		}
	}
}
