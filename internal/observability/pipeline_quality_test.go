package observability

import (
	"fmt"
	"testing"

	pkgerrors "github.com/carelattice/taxonomy-backend/internal/pkg/errors"
)

func TestClassifyRowError(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{fmt.Errorf("%w: %q", pkgerrors.ErrUnknownColumn, "Specialty"), "unknown_column"},
		{pkgerrors.ErrEmptyValue, "empty_value"},
		{pkgerrors.ErrEmptyNodeRow, "empty_value"},
		{fmt.Errorf("%w: %q and %q", pkgerrors.ErrMultiNodeRow, "Industry", "Profession"), "multi_node_row"},
		{pkgerrors.ErrRootLevelMismatch, "orphan_row"},
		{pkgerrors.ErrNaturalKeyConflict, "natural_key_conflict"},
		{fmt.Errorf("%w: header mangled", pkgerrors.ErrLayoutInvalid), "layout_invalid"},
		{pkgerrors.ErrDuplicateLevel, "layout_invalid"},
		{fmt.Errorf("some transient thing"), "row_rejected"},
	}
	for _, tc := range cases {
		if got := ClassifyRowError(tc.err); got != tc.want {
			t.Errorf("ClassifyRowError(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
