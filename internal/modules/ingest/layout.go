package ingest

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/carelattice/taxonomy-backend/internal/domain/bronze"
	"github.com/carelattice/taxonomy-backend/internal/normalization"
	pkgerrors "github.com/carelattice/taxonomy-backend/internal/pkg/errors"
)

// FlatNodeTypeName is the node type given to the implicit level-1 node of a
// flat customer profession list.
const FlatNodeTypeName = "Profession"

// LayoutNode declares one node column and its explicit tree level.
type LayoutNode struct {
	Level int    `json:"Level"`
	Name  string `json:"Name"`
}

// LayoutSpec is the declared shape of tabular input as it travels: in JSON
// ingest payloads, in load details, and as the output of header-tag parsing.
// IgnoredColumns records untagged spreadsheet headers so the decoder can
// tolerate their cells; JSON payloads normally leave it empty.
type LayoutSpec struct {
	Nodes            []LayoutNode `json:"Nodes,omitempty"`
	Attributes       []string     `json:"Attributes,omitempty"`
	ProfessionColumn string       `json:"ProfessionColumn,omitempty"`
	IgnoredColumns   []string     `json:"IgnoredColumns,omitempty"`
}

type columnKind int

const (
	columnIgnored columnKind = iota
	columnNode
	columnAttribute
	columnProfession
)

// columnSpec is the resolved role of one input column. A master profession
// column doubles as an attribute, so attribute membership is a separate flag
// rather than a kind.
type columnSpec struct {
	kind        columnKind
	name        string
	level       int
	isAttribute bool
}

// Layout is a validated LayoutSpec with the per-column lookup the decoder
// needs. NodeLevels is sorted ascending; sparse level sequences are fine
// because the rolling-ancestor resolver fills gaps.
type Layout struct {
	NodeLevels       []LayoutNode
	AttributeTypes   []string
	ProfessionColumn string

	// Flat marks a customer profession list with no explicit node columns:
	// the profession column supplies a single implicit level-1 node per row.
	Flat bool

	cols map[string]columnSpec
}

// Lookup resolves a payload key to its column role. Keys are matched on the
// folded form so header casing and stray whitespace do not matter.
func (l *Layout) Lookup(key string) (columnSpec, bool) {
	spec, ok := l.cols[normalization.Fold(key)]
	return spec, ok
}

// ParseLayout unmarshals a layout object and resolves it for the given
// taxonomy kind.
func ParseLayout(raw []byte, taxonomyKind string) (*Layout, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: layout missing", pkgerrors.ErrLayoutInvalid)
	}
	var spec LayoutSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrLayoutInvalid, err)
	}
	return ResolveLayout(spec, taxonomyKind)
}

// headerTagRe captures a trailing parenthesized tag: "Specialty (Node 2)",
// "License State (Attribute)", "Profession (Profession)".
var headerTagRe = regexp.MustCompile(`^(.*)\(([^()]*)\)\s*$`)

// LayoutSpecFromHeaders reads header tags into a LayoutSpec. Headers without
// a recognized tag become ignored columns; a Node tag with a malformed level
// is an error rather than a silently dropped column.
func LayoutSpecFromHeaders(headers []string) (LayoutSpec, error) {
	var spec LayoutSpec
	for _, h := range headers {
		if normalization.IsBlank(h) {
			continue
		}
		m := headerTagRe.FindStringSubmatch(h)
		if m == nil {
			spec.IgnoredColumns = append(spec.IgnoredColumns, normalization.Normalize(h))
			continue
		}
		name := normalization.Normalize(m[1])
		tag := strings.Fields(strings.ToLower(m[2]))
		switch {
		case len(tag) == 2 && tag[0] == "node":
			level, err := strconv.Atoi(tag[1])
			if err != nil {
				return LayoutSpec{}, fmt.Errorf("%w: header %q has a non-integer node level", pkgerrors.ErrLayoutInvalid, h)
			}
			spec.Nodes = append(spec.Nodes, LayoutNode{Level: level, Name: name})
		case len(tag) == 1 && tag[0] == "attribute":
			spec.Attributes = append(spec.Attributes, name)
		case len(tag) == 1 && tag[0] == "profession":
			spec.ProfessionColumn = name
		default:
			// Parenthesized text that is not a tag stays part of the name.
			spec.IgnoredColumns = append(spec.IgnoredColumns, normalization.Normalize(h))
		}
	}
	return spec, nil
}

// ResolveLayout validates a LayoutSpec against the rules for the taxonomy
// kind and builds the column index. Master layouts need node columns and a
// profession column that is also listed as an attribute. Customer layouts
// without node columns resolve to a flat profession list.
func ResolveLayout(spec LayoutSpec, taxonomyKind string) (*Layout, error) {
	if taxonomyKind != bronze.TaxonomyKindMaster && taxonomyKind != bronze.TaxonomyKindCustomer {
		return nil, fmt.Errorf("%w: unknown taxonomy kind %q", pkgerrors.ErrLayoutInvalid, taxonomyKind)
	}

	l := &Layout{cols: map[string]columnSpec{}}

	seenLevels := map[int]string{}
	for _, n := range spec.Nodes {
		name := normalization.Normalize(n.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: node column at level %d has no name", pkgerrors.ErrLayoutInvalid, n.Level)
		}
		if n.Level < 0 {
			return nil, fmt.Errorf("%w: node column %q has negative level %d", pkgerrors.ErrLayoutInvalid, name, n.Level)
		}
		if prev, dup := seenLevels[n.Level]; dup {
			return nil, fmt.Errorf("%w: level %d declared by both %q and %q", pkgerrors.ErrDuplicateLevel, n.Level, prev, name)
		}
		seenLevels[n.Level] = name
		key := normalization.Fold(name)
		if _, taken := l.cols[key]; taken {
			return nil, fmt.Errorf("%w: column name %q declared twice", pkgerrors.ErrLayoutInvalid, name)
		}
		l.cols[key] = columnSpec{kind: columnNode, name: name, level: n.Level}
		l.NodeLevels = append(l.NodeLevels, LayoutNode{Level: n.Level, Name: name})
	}
	sort.Slice(l.NodeLevels, func(i, j int) bool { return l.NodeLevels[i].Level < l.NodeLevels[j].Level })

	profession := normalization.Normalize(spec.ProfessionColumn)
	professionKey := normalization.Fold(profession)
	if profession != "" {
		if _, taken := l.cols[professionKey]; taken {
			return nil, fmt.Errorf("%w: profession column %q collides with a node column", pkgerrors.ErrLayoutInvalid, profession)
		}
		l.cols[professionKey] = columnSpec{kind: columnProfession, name: profession}
		l.ProfessionColumn = profession
	}

	for _, a := range spec.Attributes {
		name := normalization.Normalize(a)
		if name == "" {
			return nil, fmt.Errorf("%w: blank attribute name", pkgerrors.ErrLayoutInvalid)
		}
		key := normalization.Fold(name)
		if existing, taken := l.cols[key]; taken {
			switch existing.kind {
			case columnProfession:
				// The profession column doubling as an attribute is the
				// required master shape.
				existing.isAttribute = true
				l.cols[key] = existing
				l.AttributeTypes = append(l.AttributeTypes, existing.name)
				continue
			case columnAttribute:
				continue // duplicate listing, keep the first
			default:
				return nil, fmt.Errorf("%w: attribute %q collides with a node column", pkgerrors.ErrLayoutInvalid, name)
			}
		}
		l.cols[key] = columnSpec{kind: columnAttribute, name: name, isAttribute: true}
		l.AttributeTypes = append(l.AttributeTypes, name)
	}

	for _, ig := range spec.IgnoredColumns {
		name := normalization.Normalize(ig)
		if name == "" {
			continue
		}
		key := normalization.Fold(name)
		if _, taken := l.cols[key]; taken {
			return nil, fmt.Errorf("%w: column %q is both declared and ignored", pkgerrors.ErrLayoutInvalid, name)
		}
		l.cols[key] = columnSpec{kind: columnIgnored, name: name}
	}

	switch taxonomyKind {
	case bronze.TaxonomyKindMaster:
		if len(l.NodeLevels) == 0 {
			return nil, fmt.Errorf("%w: master layout has no node columns", pkgerrors.ErrLayoutInvalid)
		}
		if l.ProfessionColumn == "" {
			return nil, pkgerrors.ErrProfessionColumnMissing
		}
		if col := l.cols[professionKey]; !col.isAttribute {
			return nil, fmt.Errorf("%w: profession column %q must also be listed as an attribute", pkgerrors.ErrLayoutInvalid, l.ProfessionColumn)
		}
	case bronze.TaxonomyKindCustomer:
		if len(l.NodeLevels) == 0 {
			if l.ProfessionColumn == "" {
				return nil, fmt.Errorf("%w: layout declares no node source", pkgerrors.ErrLayoutInvalid)
			}
			l.Flat = true
			l.NodeLevels = []LayoutNode{{Level: 1, Name: FlatNodeTypeName}}
		}
	}

	return l, nil
}
