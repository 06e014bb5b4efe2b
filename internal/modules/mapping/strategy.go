package mapping

import (
	"context"
	"fmt"
)

// Strategy names recorded in mapping details. The cascade order is fixed;
// rule assignments only switch strategies on or off per type pair.
const (
	StrategyExact    = "exact"
	StrategyNLP      = "nlp_qualifier"
	StrategyFuzzy    = "fuzzy"
	StrategySemantic = "semantic"
)

// Match is one strategy's verdict for a child node.
type Match struct {
	Candidate  *Candidate
	Confidence float64
	Strategy   string
	Reasoning  string
	Remainder  []string
}

// strategyFunc is a pure decision over precomputed candidates. Only the
// semantic strategy uses the context or returns errors; a nil match with a
// nil error means "not my case, ask the next strategy".
type strategyFunc func(ctx context.Context, child *ChildNode, pool *typePool) (*Match, error)

// pickCandidate disambiguates between candidates carrying the same matched
// value: most shared ancestor values wins, ties break to the smallest
// master node id.
func pickCandidate(child *ChildNode, cands []*Candidate) *Candidate {
	if len(cands) == 0 {
		return nil
	}
	if len(cands) == 1 {
		return cands[0]
	}
	childAncestors := make(map[string]bool, len(child.AncestorKeys))
	for _, k := range child.AncestorKeys {
		childAncestors[k] = true
	}
	best := cands[0]
	bestScore := ancestorAgreement(childAncestors, cands[0])
	for _, c := range cands[1:] {
		score := ancestorAgreement(childAncestors, c)
		switch {
		case score > bestScore:
			best, bestScore = c, score
		case score == bestScore && c.Node.ID < best.Node.ID:
			best = c
		}
	}
	return best
}

func ancestorAgreement(childAncestors map[string]bool, c *Candidate) int {
	n := 0
	for _, k := range c.AncestorKeys {
		if childAncestors[k] {
			n++
		}
	}
	return n
}

func describeCandidate(c *Candidate) string {
	return fmt.Sprintf("%q (node %d)", c.Node.Value, c.Node.ID)
}
