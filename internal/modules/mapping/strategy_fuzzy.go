package mapping

import (
	"context"
	"fmt"

	"github.com/carelattice/taxonomy-backend/internal/matching"
)

// Fuzzy acceptance gates: bigram similarity at least 0.70 AND no more than
// 3 whole-token edits. The distance gate keeps high-overlap but structurally
// distant labels out.
const (
	fuzzyMinSimilarity    = 0.70
	fuzzyMaxTokenDistance = 3
	fuzzyProfessionScale  = 0.90
)

// matchFuzzy scores every candidate by bigram Dice similarity on values,
// then on professions scaled down, and returns the best acceptable one.
// Confidence is the similarity itself.
func matchFuzzy(_ context.Context, child *ChildNode, pool *typePool) (*Match, error) {
	if m := bestFuzzy(child, pool.all, child.TokenKey, false); m != nil {
		return m, nil
	}
	if child.ProfessionKey != "" {
		if m := bestFuzzy(child, pool.all, child.ProfessionKey, true); m != nil {
			return m, nil
		}
	}
	return nil, nil
}

func bestFuzzy(child *ChildNode, cands []*Candidate, childKey string, profession bool) *Match {
	var best *Candidate
	bestSim := 0.0
	bestDist := 0
	for _, c := range cands {
		key := c.TokenKey
		if profession {
			if c.ProfessionKey == "" {
				continue
			}
			key = c.ProfessionKey
		}
		sim := matching.Dice(childKey, key)
		if sim < fuzzyMinSimilarity || sim < bestSim {
			continue
		}
		dist := matching.TokenDistance(childKey, key)
		if dist > fuzzyMaxTokenDistance {
			continue
		}
		if sim > bestSim || (sim == bestSim && best != nil && c.Node.ID < best.Node.ID) {
			best, bestSim, bestDist = c, sim, dist
		}
	}
	if best == nil {
		return nil
	}
	confidence := bestSim
	source := "value"
	if profession {
		confidence *= fuzzyProfessionScale
		source = "profession"
	}
	return &Match{
		Candidate:  best,
		Confidence: confidence,
		Strategy:   StrategyFuzzy,
		Reasoning:  fmt.Sprintf("%s similarity %.2f, token distance %d to %s", source, bestSim, bestDist, describeCandidate(best)),
	}
}
