package ingest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/carelattice/taxonomy-backend/internal/normalization"
	pkgerrors "github.com/carelattice/taxonomy-backend/internal/pkg/errors"
)

// siblingSeparator splits one node cell into sibling values.
const siblingSeparator = ";"

// AttributeValue is one decoded (type, value) pair from an attribute column.
type AttributeValue struct {
	Type  string
	Value string
}

// DecodedRow is the decoder's view of one bronze row: the declared level of
// its single populated node column, the sibling values from that cell, the
// attribute cells, and the profession cell when present. Blank marks a row
// with no content at all; such rows are skipped rather than failed.
type DecodedRow struct {
	Level      int
	Values     []string
	Attributes []AttributeValue
	Profession string
	Blank      bool
}

// DecodeRow classifies every cell of a raw payload against the layout.
// Exactly one node column may be populated; a semicolon-delimited node cell
// yields sibling values. Cells in ignored columns are dropped, non-blank
// cells in undeclared columns fail the row, and blank cells never matter.
func DecodeRow(layout *Layout, payload map[string]string) (DecodedRow, error) {
	var dec DecodedRow
	if layout == nil {
		return dec, fmt.Errorf("%w: nil layout", pkgerrors.ErrLayoutInvalid)
	}

	// Index cells by folded column name; deterministic key order keeps error
	// messages stable.
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cells := map[string]string{}
	anyContent := false
	for _, k := range keys {
		v := payload[k]
		spec, ok := layout.Lookup(k)
		if !ok {
			if normalization.IsBlank(v) {
				continue
			}
			return dec, fmt.Errorf("%w: %q", pkgerrors.ErrUnknownColumn, k)
		}
		if normalization.IsBlank(v) {
			continue
		}
		anyContent = true
		if spec.kind == columnIgnored {
			continue
		}
		fk := normalization.Fold(spec.name)
		if prev, dup := cells[fk]; dup && prev != v {
			return dec, fmt.Errorf("%w: %q appears twice with different values", pkgerrors.ErrUnknownColumn, spec.name)
		}
		cells[fk] = v
	}

	if !anyContent {
		dec.Blank = true
		return dec, nil
	}

	// Locate the node cell. Flat layouts draw it from the profession column.
	var nodeCell string
	if layout.Flat {
		nodeCell = cells[normalization.Fold(layout.ProfessionColumn)]
		dec.Level = layout.NodeLevels[0].Level
		if nodeCell == "" {
			return dec, pkgerrors.ErrEmptyNodeRow
		}
	} else {
		found := ""
		for _, n := range layout.NodeLevels {
			cell := cells[normalization.Fold(n.Name)]
			if cell == "" {
				continue
			}
			if nodeCell != "" {
				return dec, fmt.Errorf("%w: %q and %q", pkgerrors.ErrMultiNodeRow, found, n.Name)
			}
			nodeCell = cell
			found = n.Name
			dec.Level = n.Level
		}
		if nodeCell == "" {
			return dec, pkgerrors.ErrEmptyNodeRow
		}
	}

	for _, part := range strings.Split(nodeCell, siblingSeparator) {
		v := normalization.Normalize(part)
		if v != "" {
			dec.Values = append(dec.Values, v)
		}
	}
	if len(dec.Values) == 0 {
		return dec, fmt.Errorf("%w: node cell holds only separators", pkgerrors.ErrEmptyValue)
	}

	for _, name := range layout.AttributeTypes {
		cell := cells[normalization.Fold(name)]
		if cell == "" {
			continue
		}
		dec.Attributes = append(dec.Attributes, AttributeValue{Type: name, Value: normalization.Normalize(cell)})
	}

	if layout.ProfessionColumn != "" {
		if cell := cells[normalization.Fold(layout.ProfessionColumn)]; cell != "" {
			dec.Profession = normalization.Normalize(cell)
		}
	}

	return dec, nil
}
