package matching

import (
	"github.com/agnivade/levenshtein"

	"github.com/carelattice/taxonomy-backend/internal/normalization"
)

// Dice returns the Sorensen-Dice coefficient of the bigram multisets of a
// and b, in [0,1]. Identical token streams score 1.0; streams sharing no
// bigram score 0. Word order does not matter.
func Dice(a, b string) float64 {
	ga, gb := Bigrams(a), Bigrams(b)
	na, nb := gramTotal(ga), gramTotal(gb)
	if na == 0 || nb == 0 {
		return 0
	}
	shared := 0
	for g, ca := range ga {
		cb := gb[g]
		if cb == 0 {
			continue
		}
		if ca < cb {
			shared += ca
		} else {
			shared += cb
		}
	}
	return 2 * float64(shared) / float64(na+nb)
}

// TokenDistance returns the Levenshtein distance between the token streams
// of a and b. Whole tokens are the edit unit: substituting or inserting one
// word costs 1 regardless of its length, so "icu nurse practitioner" is 2
// edits from "critical care nurse practitioner".
func TokenDistance(a, b string) int {
	ta, tb := normalization.Tokenize(a), normalization.Tokenize(b)
	if len(ta) == 0 {
		return len(tb)
	}
	if len(tb) == 0 {
		return len(ta)
	}
	// Map each distinct token to one rune so the rune-wise Levenshtein
	// library computes a token-wise distance.
	dict := make(map[string]rune, len(ta)+len(tb))
	next := rune(0xE000)
	encode := func(tokens []string) string {
		out := make([]rune, 0, len(tokens))
		for _, tok := range tokens {
			r, ok := dict[tok]
			if !ok {
				r = next
				next++
				dict[tok] = r
			}
			out = append(out, r)
		}
		return string(out)
	}
	return levenshtein.ComputeDistance(encode(ta), encode(tb))
}
