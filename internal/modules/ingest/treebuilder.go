package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gorm.io/datatypes"

	"github.com/carelattice/taxonomy-backend/internal/domain/audit"
	"github.com/carelattice/taxonomy-backend/internal/domain/bronze"
	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/normalization"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	pkgerrors "github.com/carelattice/taxonomy-backend/internal/pkg/errors"
)

// rowResult reports what one decoded row did to the tree. RootID is non-zero
// only when this row realized the N/A root of a flat list; the caller feeds
// RootID and FirstNodeID into the ancestry map after the row's transaction
// commits, never before.
type rowResult struct {
	RootID      int64
	FirstNodeID int64
	Level       int

	NodesNew       int
	NodesModified  int
	NodesUnchanged int
	GapNodes       int

	AttributesNew       int
	AttributesModified  int
	AttributesUnchanged int
}

// treeBuilder writes one load's rows into the silver hierarchy. It reads the
// rolling ancestry but never advances it; ancestry moves only on committed
// rows, so a rolled-back row leaves parent state exactly where it was.
type treeBuilder struct {
	deps     UsecasesDeps
	load     *bronze.Load
	layout   *Layout
	actor    string
	typeIDs  map[int]int64
	attrIDs  map[string]int64
	ancestry *Ancestry

	pending []*audit.AuditLog
}

func newTreeBuilder(deps UsecasesDeps, load *bronze.Load, layout *Layout, typeIDs map[int]int64, attrIDs map[string]int64, actor string) *treeBuilder {
	return &treeBuilder{
		deps:     deps,
		load:     load,
		layout:   layout,
		actor:    actor,
		typeIDs:  typeIDs,
		attrIDs:  attrIDs,
		ancestry: NewAncestry(),
	}
}

// writeRow upserts everything one decoded row implies: the N/A chain for
// skipped levels, each sibling value, and the row's attributes on every
// sibling. All writes and their audit entries go through dbc's transaction;
// the caller owns commit and rollback.
func (b *treeBuilder) writeRow(dbc dbctx.Context, row *bronze.LoadRow, dec DecodedRow) (rowResult, error) {
	res := rowResult{Level: dec.Level}
	b.pending = b.pending[:0]

	parentID, parentLevel, ok := b.ancestry.Parent(dec.Level)
	var parent *int64
	switch {
	case ok:
		parent = &parentID
	case b.layout.Flat:
		// First row of a flat list: realize the reusable N/A root the
		// implicit level-1 professions hang from.
		root, err := b.upsertNode(dbc, &res, b.naNode(row, nil, 0))
		if err != nil {
			return res, err
		}
		res.RootID = root.ID
		res.GapNodes++
		parent = &root.ID
		parentLevel = 0
	case dec.Level != 0:
		return res, fmt.Errorf("%w: level %d row has no realized ancestor", pkgerrors.ErrRootLevelMismatch, dec.Level)
	default:
		parent = nil
		parentLevel = -1
	}

	// Gap fill: one N/A node per skipped level, chained parent to child.
	for m := parentLevel + 1; m < dec.Level; m++ {
		na, err := b.upsertNode(dbc, &res, b.naNode(row, parent, m))
		if err != nil {
			return res, err
		}
		res.GapNodes++
		parent = &na.ID
	}

	for i, v := range dec.Values {
		node := &silver.TaxonomyNode{
			TaxonomyID:   b.load.TaxonomyID,
			NodeTypeID:   b.typeIDs[dec.Level],
			CustomerID:   b.load.CustomerID,
			ParentNodeID: parent,
			Value:        v,
			ValueKey:     normalization.Fold(v),
			Level:        dec.Level,
			Status:       silver.StatusActive,
			LoadID:       b.load.ID,
			RowID:        row.ID,
		}
		if b.layout.Flat {
			p := v
			node.Profession = &p
		} else if dec.Profession != "" {
			p := dec.Profession
			node.Profession = &p
		}
		written, err := b.upsertNode(dbc, &res, node)
		if err != nil {
			return res, err
		}
		if i == 0 {
			res.FirstNodeID = written.ID
		}

		for _, av := range dec.Attributes {
			typeID, known := b.attrIDs[normalization.Fold(av.Type)]
			if !known {
				return res, fmt.Errorf("%w: attribute type %q", pkgerrors.ErrUnknownColumn, av.Type)
			}
			attr := &silver.NodeAttribute{
				NodeID:          written.ID,
				AttributeTypeID: typeID,
				Value:           av.Value,
				ValueKey:        normalization.Fold(av.Value),
				Status:          silver.StatusActive,
				LoadID:          b.load.ID,
				RowID:           row.ID,
			}
			if err := b.upsertAttribute(dbc, &res, attr); err != nil {
				return res, err
			}
		}
	}

	if len(b.pending) > 0 {
		if err := b.deps.Audit.Append(dbc, b.pending); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (b *treeBuilder) naNode(row *bronze.LoadRow, parent *int64, level int) *silver.TaxonomyNode {
	return &silver.TaxonomyNode{
		TaxonomyID:   b.load.TaxonomyID,
		NodeTypeID:   silver.NANodeTypeID,
		CustomerID:   b.load.CustomerID,
		ParentNodeID: parent,
		Value:        silver.NANodeValue,
		ValueKey:     normalization.Fold(silver.NANodeValue),
		Level:        level,
		Status:       silver.StatusActive,
		LoadID:       b.load.ID,
		RowID:        row.ID,
	}
}

// upsertNode writes one node by natural key and classifies the outcome:
// inserted rows are new, reactivated rows are modified, already-active rows
// re-presented by this load are unchanged and leave no audit entry. A key hit
// at a different level means the caller's payload contradicts the stored
// tree, which fails the row rather than corrupting it.
func (b *treeBuilder) upsertNode(dbc dbctx.Context, res *rowResult, node *silver.TaxonomyNode) (*silver.TaxonomyNode, error) {
	before, err := b.deps.Nodes.GetByNaturalKey(dbc, node.TaxonomyID, node.NodeTypeID, node.CustomerID, node.ParentNodeID, node.ValueKey)
	if err != nil {
		return nil, err
	}
	if before != nil && before.Level != node.Level {
		return nil, fmt.Errorf("%w: %q exists at level %d, row says %d",
			pkgerrors.ErrNaturalKeyConflict, node.Value, before.Level, node.Level)
	}

	inserted, err := b.deps.Nodes.UpsertByNaturalKey(dbc, node)
	if err != nil {
		return nil, err
	}

	switch {
	case inserted:
		res.NodesNew++
		b.audit(node.TableName(), strconv.FormatInt(node.ID, 10), audit.OpInsert, nil, node)
	case before != nil && before.Status == silver.StatusInactive:
		res.NodesModified++
		b.audit(node.TableName(), strconv.FormatInt(node.ID, 10), audit.OpUpdate, before, node)
	default:
		res.NodesUnchanged++
	}
	return node, nil
}

func (b *treeBuilder) upsertAttribute(dbc dbctx.Context, res *rowResult, attr *silver.NodeAttribute) error {
	before, err := b.deps.NodeAttributes.GetByNaturalKey(dbc, attr.NodeID, attr.AttributeTypeID, attr.ValueKey)
	if err != nil {
		return err
	}

	inserted, err := b.deps.NodeAttributes.UpsertByNaturalKey(dbc, attr)
	if err != nil {
		return err
	}

	switch {
	case inserted:
		res.AttributesNew++
		b.audit(attr.TableName(), strconv.FormatInt(attr.ID, 10), audit.OpInsert, nil, attr)
	case before != nil && before.Status == silver.StatusInactive:
		res.AttributesModified++
		b.audit(attr.TableName(), strconv.FormatInt(attr.ID, 10), audit.OpUpdate, before, attr)
	default:
		res.AttributesUnchanged++
	}
	return nil
}

func (b *treeBuilder) audit(table, entityID, op string, oldRow, newRow interface{}) {
	entry := &audit.AuditLog{
		EntityTable: table,
		EntityID:    entityID,
		Operation:   op,
		Actor:       b.actor,
		LoadID:      &b.load.ID,
		OccurredAt:  time.Now().UTC(),
	}
	if oldRow != nil {
		if raw, err := json.Marshal(oldRow); err == nil {
			entry.OldRow = datatypes.JSON(raw)
		}
	}
	if newRow != nil {
		if raw, err := json.Marshal(newRow); err == nil {
			entry.NewRow = datatypes.JSON(raw)
		}
	}
	b.pending = append(b.pending, entry)
}
