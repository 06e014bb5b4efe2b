package mapping

import (
	"sort"
	"strings"

	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/normalization"
)

// SkipToken marks an N/A gap placeholder inside a path handed to the
// semantic matcher. Placeholders keep the structural shape visible without
// pretending to carry a value.
const SkipToken = "[n/a]"

// Candidate is one master node prepared for matching: folded keys and the
// full root-first path, precomputed once per run.
type Candidate struct {
	Node          *silver.TaxonomyNode
	TokenKey      string
	ProfessionKey string
	Path          []string
	AncestorKeys  []string
}

// ChildNode is one customer node entering the cascade, carrying the same
// precomputed lineage as a Candidate.
type ChildNode struct {
	Node          *silver.TaxonomyNode
	TokenKey      string
	ProfessionKey string
	Path          []string
	AncestorKeys  []string
}

// tokenKey is the comparison form used by the qualifier and fuzzy matchers:
// folded tokens joined by single spaces, so "RN - ICU" and "rn icu" collide.
func tokenKey(value string) string {
	return strings.Join(normalization.Tokenize(value), " ")
}

// lineage resolves the root-first value path of one node against the id
// index of its taxonomy. N/A placeholders render as SkipToken in the path
// and are dropped from the folded ancestor keys.
func lineage(node *silver.TaxonomyNode, byID map[int64]*silver.TaxonomyNode) (path []string, ancestorKeys []string) {
	chain := []*silver.TaxonomyNode{node}
	seen := map[int64]bool{node.ID: true}
	for cur := node; cur.ParentNodeID != nil; {
		parent := byID[*cur.ParentNodeID]
		if parent == nil || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		chain = append(chain, parent)
		cur = parent
	}
	path = make([]string, 0, len(chain))
	ancestorKeys = make([]string, 0, len(chain)-1)
	for i := len(chain) - 1; i >= 0; i-- {
		n := chain[i]
		if n.IsNA() {
			path = append(path, SkipToken)
			continue
		}
		path = append(path, n.Value)
		if i > 0 {
			ancestorKeys = append(ancestorKeys, normalization.Fold(n.Value))
		}
	}
	return path, ancestorKeys
}

// masterIndex holds one taxonomy's active nodes keyed for candidate lookup.
// Gap placeholders participate in path walks but are never candidates.
type masterIndex struct {
	byID   map[int64]*silver.TaxonomyNode
	byType map[int64][]*Candidate
}

func newMasterIndex(nodes []*silver.TaxonomyNode) *masterIndex {
	ix := &masterIndex{
		byID:   make(map[int64]*silver.TaxonomyNode, len(nodes)),
		byType: map[int64][]*Candidate{},
	}
	for _, n := range nodes {
		if n == nil {
			continue
		}
		ix.byID[n.ID] = n
	}
	for _, n := range nodes {
		if n == nil || n.IsNA() || n.Status != silver.StatusActive {
			continue
		}
		path, ancestors := lineage(n, ix.byID)
		c := &Candidate{
			Node:         n,
			TokenKey:     tokenKey(n.Value),
			Path:         path,
			AncestorKeys: ancestors,
		}
		if n.Profession != nil {
			c.ProfessionKey = normalization.Fold(*n.Profession)
		}
		ix.byType[n.NodeTypeID] = append(ix.byType[n.NodeTypeID], c)
	}
	for _, cands := range ix.byType {
		sort.Slice(cands, func(i, j int) bool { return cands[i].Node.ID < cands[j].Node.ID })
	}
	return ix
}

// typeIDs returns the candidate-bearing node types of the index.
func (ix *masterIndex) typeIDs() []int64 {
	out := make([]int64, 0, len(ix.byType))
	for id := range ix.byType {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// deepestTypeID returns the type holding the lowest-level (most specific)
// candidates, the fallback pairing for child types absent from the master.
func (ix *masterIndex) deepestTypeID() int64 {
	var typeID int64
	maxLevel := -1
	for id, cands := range ix.byType {
		for _, c := range cands {
			if c.Node.Level > maxLevel || (c.Node.Level == maxLevel && id < typeID) {
				maxLevel = c.Node.Level
				typeID = id
			}
		}
	}
	return typeID
}

// typePool is the merged candidate view one cascade runs against: every
// candidate of the assigned master types, keyed for the exact strategy, with
// the qualifier vocabulary prebuilt.
type typePool struct {
	all          []*Candidate
	byValue      map[string][]*Candidate
	byProfession map[string][]*Candidate
	vocab        *vocabulary
}

func newTypePool(ix *masterIndex, masterTypeIDs []int64) *typePool {
	p := &typePool{
		byValue:      map[string][]*Candidate{},
		byProfession: map[string][]*Candidate{},
	}
	seen := map[int64]bool{}
	for _, typeID := range masterTypeIDs {
		if seen[typeID] {
			continue
		}
		seen[typeID] = true
		for _, c := range ix.byType[typeID] {
			p.all = append(p.all, c)
			key := normalization.Fold(c.Node.Value)
			p.byValue[key] = append(p.byValue[key], c)
			if c.Node.Profession != nil {
				pk := normalization.Fold(*c.Node.Profession)
				if pk != "" {
					p.byProfession[pk] = append(p.byProfession[pk], c)
				}
			}
		}
	}
	sort.Slice(p.all, func(i, j int) bool { return p.all[i].Node.ID < p.all[j].Node.ID })
	p.vocab = buildVocabulary(p.all)
	return p
}

// buildChildren prepares the customer nodes entering a run, excluding gap
// placeholders and resolving lineage against the taxonomy's full active set.
func buildChildren(targets []*silver.TaxonomyNode, allActive []*silver.TaxonomyNode) []*ChildNode {
	byID := make(map[int64]*silver.TaxonomyNode, len(allActive))
	for _, n := range allActive {
		if n != nil {
			byID[n.ID] = n
		}
	}
	out := make([]*ChildNode, 0, len(targets))
	for _, n := range targets {
		if n == nil || n.IsNA() || n.Status != silver.StatusActive {
			continue
		}
		path, ancestors := lineage(n, byID)
		c := &ChildNode{
			Node:         n,
			TokenKey:     tokenKey(n.Value),
			Path:         path,
			AncestorKeys: ancestors,
		}
		if n.Profession != nil {
			c.ProfessionKey = normalization.Fold(*n.Profession)
		}
		out = append(out, c)
	}
	return out
}
