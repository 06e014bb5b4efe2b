package mapping

import (
	"context"
	"fmt"
	"strings"

	"github.com/carelattice/taxonomy-backend/internal/normalization"
)

const (
	nlpStrongConfidence    = 0.95
	nlpQualifiedConfidence = 0.90
)

// matchNLP runs the qualifier patterns over the child's token stream. A
// contained strong head (multi-word master phrase) wins at 0.95; otherwise
// the stream is parsed as qualifier-then-head (suffix) and head-then-
// qualifier (prefix), both at 0.90, with recognized qualifier tokens
// ranking the two parses against each other.
func matchNLP(_ context.Context, child *ChildNode, pool *typePool) (*Match, error) {
	tokens := normalization.Tokenize(child.Node.Value)
	if len(tokens) == 0 {
		return nil, nil
	}
	v := pool.vocab

	for _, phrase := range v.strongHeads {
		if _, ok := containsPhrase(tokens, phrase.tokens); !ok {
			continue
		}
		c := pickCandidate(child, phrase.nodes)
		return &Match{
			Candidate:  c,
			Confidence: nlpStrongConfidence,
			Strategy:   StrategyNLP,
			Reasoning:  fmt.Sprintf("contains strong head %q of %s", phrase.key, describeCandidate(c)),
		}, nil
	}

	suffix := parseQualified(child, tokens, v, true)
	prefix := parseQualified(child, tokens, v, false)
	switch {
	case suffix == nil && prefix == nil:
		return nil, nil
	case suffix == nil:
		return prefix.match, nil
	case prefix == nil:
		return suffix.match, nil
	case prefix.rank > suffix.rank:
		return prefix.match, nil
	default:
		return suffix.match, nil
	}
}

// qualifiedParse is one way of reading the token stream as head plus
// qualifier segment, ranked by how many qualifier tokens the vocabulary
// recognizes.
type qualifiedParse struct {
	match *Match
	rank  int
}

// parseQualified finds the longest known head at one end of the stream. The
// reconstructed full phrase (head value plus qualifier segment) is looked up
// before falling back to the bare head's node, so a master entry for the
// qualified form wins over its base form.
func parseQualified(child *ChildNode, tokens []string, v *vocabulary, suffix bool) *qualifiedParse {
	for headLen := len(tokens) - 1; headLen >= 1; headLen-- {
		var head, remainder []string
		if suffix {
			head = tokens[len(tokens)-headLen:]
			remainder = tokens[:len(tokens)-headLen]
		} else {
			head = tokens[:headLen]
			remainder = tokens[headLen:]
		}
		cands := v.lookupHead(head)
		if len(cands) == 0 {
			continue
		}
		pattern := "qualified prefix"
		if suffix {
			pattern = "qualified suffix"
		}

		c := pickCandidate(child, cands)
		expanded := c.TokenKey + " " + strings.Join(remainder, " ")
		if suffix {
			expanded = strings.Join(remainder, " ") + " " + c.TokenKey
		}
		if full := v.heads[expanded]; len(full) > 0 {
			fc := pickCandidate(child, full)
			return &qualifiedParse{
				match: &Match{
					Candidate:  fc,
					Confidence: nlpQualifiedConfidence,
					Strategy:   StrategyNLP,
					Reasoning:  fmt.Sprintf("%s: full phrase %q maps to %s", pattern, expanded, describeCandidate(fc)),
					Remainder:  remainder,
				},
				rank: v.qualifierHits(remainder),
			}
		}

		return &qualifiedParse{
			match: &Match{
				Candidate:  c,
				Confidence: nlpQualifiedConfidence,
				Strategy:   StrategyNLP,
				Reasoning:  fmt.Sprintf("%s: head %q with qualifier %q maps to %s", pattern, strings.Join(head, " "), strings.Join(remainder, " "), describeCandidate(c)),
				Remainder:  remainder,
			},
			rank: v.qualifierHits(remainder),
		}
	}
	return nil
}
