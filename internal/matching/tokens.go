// Package matching provides the string-similarity primitives behind the
// fuzzy matcher: word-aware character bigrams, Sorensen-Dice overlap, and
// token-level edit distance.
package matching

import (
	"github.com/carelattice/taxonomy-backend/internal/normalization"
)

// Bigrams returns the multiset of character bigrams of s, built token by
// token so grams never span word boundaries. Single-rune tokens contribute
// themselves as a one-rune gram.
func Bigrams(s string) map[string]int {
	grams := map[string]int{}
	for _, tok := range normalization.Tokenize(s) {
		runes := []rune(tok)
		if len(runes) == 1 {
			grams[string(runes)]++
			continue
		}
		for i := 0; i+1 < len(runes); i++ {
			grams[string(runes[i:i+2])]++
		}
	}
	return grams
}

func gramTotal(grams map[string]int) int {
	n := 0
	for _, c := range grams {
		n += c
	}
	return n
}
