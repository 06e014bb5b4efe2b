package mapping

import (
	"context"
	"sort"
	"time"

	"github.com/carelattice/taxonomy-backend/internal/matching"
)

// SemanticMatcher is the external collaborator consulted when the lexical
// strategies fail. Implementations must choose among the offered candidates
// only; a nil decision or nil MasterNodeID means no acceptable candidate.
type SemanticMatcher interface {
	Match(ctx context.Context, req SemanticRequest) (*SemanticDecision, error)
}

// SemanticRequest carries one child node and its shortlist. Paths include
// gap placeholders as SkipToken so the collaborator sees the tree shape.
type SemanticRequest struct {
	Value      string
	Path       []string
	Candidates []SemanticCandidate
}

type SemanticCandidate struct {
	MasterNodeID int64
	Value        string
	Path         []string
}

type SemanticDecision struct {
	MasterNodeID *int64
	Confidence   float64
	Reasoning    string
}

// semanticMinConfidence is the acceptance floor for collaborator verdicts.
const semanticMinConfidence = 0.50

// semanticStrategy wraps the collaborator as a cascade step. The semaphore
// bounds in-flight calls independently of the node worker pool; each call
// carries its own timeout so a slow collaborator fails one node, not the
// run.
func (u Usecases) semanticStrategy(sem chan struct{}, topK int, timeout time.Duration) strategyFunc {
	return func(ctx context.Context, child *ChildNode, pool *typePool) (*Match, error) {
		if u.deps.Matcher == nil {
			return nil, nil
		}
		shortlist := rankCandidates(child, pool.all, topK)
		if len(shortlist) == 0 {
			return nil, nil
		}

		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		req := SemanticRequest{
			Value:      child.Node.Value,
			Path:       child.Path,
			Candidates: make([]SemanticCandidate, 0, len(shortlist)),
		}
		byID := make(map[int64]*Candidate, len(shortlist))
		for _, c := range shortlist {
			byID[c.Node.ID] = c
			req.Candidates = append(req.Candidates, SemanticCandidate{
				MasterNodeID: c.Node.ID,
				Value:        c.Node.Value,
				Path:         c.Path,
			})
		}

		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		dec, err := u.deps.Matcher.Match(cctx, req)
		if err != nil {
			return nil, err
		}
		if dec == nil || dec.MasterNodeID == nil || dec.Confidence < semanticMinConfidence {
			return nil, nil
		}
		c := byID[*dec.MasterNodeID]
		if c == nil {
			u.deps.Log.Warn("Semantic matcher chose a node outside the offered shortlist",
				"child_node_id", child.Node.ID, "master_node_id", *dec.MasterNodeID)
			return nil, nil
		}
		confidence := dec.Confidence
		if confidence > 1 {
			confidence = 1
		}
		return &Match{
			Candidate:  c,
			Confidence: confidence,
			Strategy:   StrategySemantic,
			Reasoning:  dec.Reasoning,
		}, nil
	}
}

// rankCandidates orders the pool by bigram similarity to the child value
// and keeps the top k, so the collaborator sees the most plausible masters
// first and the request stays bounded.
func rankCandidates(child *ChildNode, cands []*Candidate, k int) []*Candidate {
	if k <= 0 || len(cands) == 0 {
		return nil
	}
	type scored struct {
		c   *Candidate
		sim float64
	}
	ranked := make([]scored, 0, len(cands))
	for _, c := range cands {
		ranked = append(ranked, scored{c: c, sim: matching.Dice(child.TokenKey, c.TokenKey)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].sim != ranked[j].sim {
			return ranked[i].sim > ranked[j].sim
		}
		return ranked[i].c.Node.ID < ranked[j].c.Node.ID
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]*Candidate, 0, len(ranked))
	for _, s := range ranked {
		out = append(out, s.c)
	}
	return out
}
