package mapping

import (
	"context"
	"fmt"
)

// Exact-strategy confidences: a folded-value hit is certain, a profession
// hit nearly so.
const (
	exactValueConfidence      = 1.0
	exactProfessionConfidence = 0.95
)

// matchExact resolves folded-value equality against the candidate pool,
// then folded-profession equality as the secondary key. A single hit wins
// outright; multiple hits disambiguate by ancestor agreement.
func matchExact(_ context.Context, child *ChildNode, pool *typePool) (*Match, error) {
	if cands := pool.byValue[child.Node.ValueKey]; len(cands) > 0 {
		c := pickCandidate(child, cands)
		reasoning := fmt.Sprintf("value equals %s", describeCandidate(c))
		if len(cands) > 1 {
			reasoning = fmt.Sprintf("value equals %d candidates, ancestor agreement chose %s", len(cands), describeCandidate(c))
		}
		return &Match{
			Candidate:  c,
			Confidence: exactValueConfidence,
			Strategy:   StrategyExact,
			Reasoning:  reasoning,
		}, nil
	}

	if child.ProfessionKey != "" {
		if cands := pool.byProfession[child.ProfessionKey]; len(cands) > 0 {
			c := pickCandidate(child, cands)
			reasoning := fmt.Sprintf("profession equals %s", describeCandidate(c))
			if len(cands) > 1 {
				reasoning = fmt.Sprintf("profession equals %d candidates, ancestor agreement chose %s", len(cands), describeCandidate(c))
			}
			return &Match{
				Candidate:  c,
				Confidence: exactProfessionConfidence,
				Strategy:   StrategyExact,
				Reasoning:  reasoning,
			}, nil
		}
	}
	return nil, nil
}
