package mapping

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/carelattice/taxonomy-backend/internal/data/repos/testutil"
	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/normalization"
)

const (
	industryTypeID   = int64(10)
	professionTypeID = int64(20)
)

func ptrID(v int64) *int64 { return &v }

// newMasterNode builds an in-memory master node for the pure matcher tests.
// DB-backed tests seed through testutil instead.
func newMasterNode(id, typeID int64, parentID *int64, value string, level int, profession string) *silver.TaxonomyNode {
	n := &silver.TaxonomyNode{
		ID:           id,
		TaxonomyID:   silver.MasterTaxonomyID,
		NodeTypeID:   typeID,
		CustomerID:   silver.MasterCustomerID,
		ParentNodeID: parentID,
		Value:        value,
		ValueKey:     normalization.Fold(value),
		Level:        level,
		Status:       silver.StatusActive,
	}
	if profession != "" {
		n.Profession = &profession
	}
	return n
}

// masterFixture is the master tree the matcher tests run against: two
// industry roots, a profession level under "Healthcare", and a "Technician"
// leaf under each root so ancestor disambiguation has something to decide.
func masterFixture() []*silver.TaxonomyNode {
	return []*silver.TaxonomyNode{
		newMasterNode(1, industryTypeID, nil, "Healthcare", 0, ""),
		newMasterNode(2, industryTypeID, nil, "Allied Health", 0, ""),
		newMasterNode(101, professionTypeID, ptrID(1), "Registered Nurse", 1, "Registered Nurse"),
		newMasterNode(102, professionTypeID, ptrID(1), "Nurse Practitioner", 1, "Nurse Practitioner"),
		newMasterNode(103, professionTypeID, ptrID(1), "Critical Care Nurse Practitioner", 1, "Nurse Practitioner"),
		newMasterNode(104, professionTypeID, ptrID(1), "Psychiatrist", 1, "Physician"),
		newMasterNode(105, professionTypeID, ptrID(1), "Pediatric Registered Nurse", 1, "Registered Nurse"),
		newMasterNode(106, professionTypeID, ptrID(1), "Nurse", 1, "Registered Nurse"),
		newMasterNode(110, professionTypeID, ptrID(1), "Technician", 1, ""),
		newMasterNode(111, professionTypeID, ptrID(2), "Technician", 1, ""),
	}
}

// masterPool indexes the fixture and merges its profession level into one
// candidate pool.
func masterPool() *typePool {
	return newTypePool(newMasterIndex(masterFixture()), []int64{professionTypeID})
}

// poolOf builds a pool over an explicit candidate subset, spanning whatever
// types the nodes carry.
func poolOf(nodes ...*silver.TaxonomyNode) *typePool {
	ix := newMasterIndex(nodes)
	return newTypePool(ix, ix.typeIDs())
}

var childSeq int64 = 9000

// newChild wraps a customer value, its optional profession, and its ancestor
// values as a cascade input without touching the database.
func newChild(value, profession string, ancestors ...string) *ChildNode {
	n := &silver.TaxonomyNode{
		ID:         atomic.AddInt64(&childSeq, 1),
		TaxonomyID: 7,
		NodeTypeID: 30,
		CustomerID: "cust-7",
		Value:      value,
		ValueKey:   normalization.Fold(value),
		Level:      len(ancestors),
		Status:     silver.StatusActive,
	}
	if profession != "" {
		n.Profession = &profession
	}
	c := &ChildNode{
		Node:     n,
		TokenKey: tokenKey(value),
		Path:     append(append([]string{}, ancestors...), value),
	}
	if profession != "" {
		c.ProfessionKey = normalization.Fold(profession)
	}
	for _, a := range ancestors {
		c.AncestorKeys = append(c.AncestorKeys, normalization.Fold(a))
	}
	return c
}

// scriptedMatcher returns canned semantic decisions keyed by child value and
// records every request it receives.
type scriptedMatcher struct {
	mu        sync.Mutex
	decisions map[string]*SemanticDecision
	err       error
	requests  []SemanticRequest
}

func (s *scriptedMatcher) Match(_ context.Context, req SemanticRequest) (*SemanticDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return s.decisions[req.Value], nil
}

func (s *scriptedMatcher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// semanticUsecases builds a Usecases carrying only what the semantic step
// touches.
func semanticUsecases(tb testing.TB, m SemanticMatcher) Usecases {
	tb.Helper()
	return New(UsecasesDeps{Log: testutil.Logger(tb), Matcher: m})
}
