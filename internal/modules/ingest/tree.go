package ingest

import (
	"context"
	"fmt"

	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	pkgerrors "github.com/carelattice/taxonomy-backend/internal/pkg/errors"
)

// TreeNode is one vertex of the assembled taxonomy tree, with its active
// attributes and children in stable id order.
type TreeNode struct {
	Node       *silver.TaxonomyNode    `json:"node"`
	Attributes []*silver.NodeAttribute `json:"attributes,omitempty"`
	Children   []*TreeNode             `json:"children,omitempty"`
}

type TaxonomyTreeOutput struct {
	Taxonomy *silver.Taxonomy `json:"taxonomy"`
	Roots    []*TreeNode      `json:"roots"`
	Count    int              `json:"count"`
}

// GetTaxonomyTree assembles the visible tree for one taxonomy: active nodes
// whose lineage points at an active load, with their active attributes.
// Gap placeholders are spliced out of the display tree: their children hang
// off the nearest real ancestor instead. Nodes arrive level-ordered from the
// store, so every parent is indexed before its children show up.
func (u Usecases) GetTaxonomyTree(ctx context.Context, taxonomyID int64) (*TaxonomyTreeOutput, error) {
	dbc := dbctx.Context{Ctx: ctx}

	tax, err := u.deps.Taxonomies.GetByID(dbc, taxonomyID)
	if err != nil {
		return nil, err
	}
	if tax == nil {
		return nil, fmt.Errorf("%w: taxonomy %d", pkgerrors.ErrNotFound, taxonomyID)
	}

	nodes, err := u.deps.Nodes.GetVisibleByTaxonomy(dbc, taxonomyID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(nodes))
	for _, n := range nodes {
		if !n.IsNA() {
			ids = append(ids, n.ID)
		}
	}
	attrs, err := u.deps.NodeAttributes.GetActiveByNodeIDs(dbc, ids)
	if err != nil {
		return nil, err
	}
	attrsByNode := make(map[int64][]*silver.NodeAttribute, len(nodes))
	for _, a := range attrs {
		attrsByNode[a.NodeID] = append(attrsByNode[a.NodeID], a)
	}

	out := &TaxonomyTreeOutput{Taxonomy: tax}
	index := make(map[int64]*TreeNode, len(nodes))
	// splice maps a placeholder to its effective parent. Values are already
	// fully resolved when stored, because parents precede children.
	splice := make(map[int64]*int64)
	for _, n := range nodes {
		parentID := n.ParentNodeID
		if parentID != nil {
			if eff, ok := splice[*parentID]; ok {
				parentID = eff
			}
		}
		if n.IsNA() {
			splice[n.ID] = parentID
			continue
		}
		tn := &TreeNode{Node: n, Attributes: attrsByNode[n.ID]}
		index[n.ID] = tn
		out.Count++
		if parentID == nil {
			out.Roots = append(out.Roots, tn)
			continue
		}
		parent, ok := index[*parentID]
		if !ok {
			// Parent hidden by a withdrawn load; surface the orphan as a
			// root rather than dropping the subtree.
			out.Roots = append(out.Roots, tn)
			continue
		}
		parent.Children = append(parent.Children, tn)
	}
	return out, nil
}
