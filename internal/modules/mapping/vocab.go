package mapping

import (
	"sort"
	"strings"

	"github.com/carelattice/taxonomy-backend/internal/normalization"
)

// vocabulary is the lexical knowledge extracted from one candidate pool:
// head phrases (master values plus initialism aliases), strong multi-word
// heads for containment scans, and qualifier tokens harvested from master
// values that extend another master value.
type vocabulary struct {
	heads       map[string][]*Candidate
	strongHeads []vocabPhrase
	qualifiers  map[string]bool
}

// vocabPhrase is one multi-token head with the candidates bearing it.
type vocabPhrase struct {
	tokens []string
	key    string
	nodes  []*Candidate
}

func buildVocabulary(cands []*Candidate) *vocabulary {
	v := &vocabulary{
		heads:      map[string][]*Candidate{},
		qualifiers: map[string]bool{},
	}
	strong := map[string]*vocabPhrase{}

	for _, c := range cands {
		tokens := normalization.Tokenize(c.Node.Value)
		if len(tokens) == 0 {
			continue
		}
		key := strings.Join(tokens, " ")
		v.heads[key] = append(v.heads[key], c)

		if len(tokens) >= 2 {
			if p, ok := strong[key]; ok {
				p.nodes = append(p.nodes, c)
			} else {
				strong[key] = &vocabPhrase{tokens: tokens, key: key, nodes: []*Candidate{c}}
			}
			if alias := initialism(tokens); alias != "" && alias != key {
				v.heads[alias] = append(v.heads[alias], c)
			}
		}
	}

	// Harvest qualifiers: tokens of a master value left over once another
	// master value is stripped from its front or back. "Pediatric Nurse"
	// alongside "Nurse" yields the qualifier "pediatric".
	for key := range strong {
		tokens := strong[key].tokens
		for cut := 1; cut < len(tokens); cut++ {
			if v.headExists(strings.Join(tokens[cut:], " "), key) {
				for _, q := range tokens[:cut] {
					v.qualifiers[q] = true
				}
			}
			if v.headExists(strings.Join(tokens[:len(tokens)-cut], " "), key) {
				for _, q := range tokens[len(tokens)-cut:] {
					v.qualifiers[q] = true
				}
			}
		}
	}

	v.strongHeads = make([]vocabPhrase, 0, len(strong))
	for _, p := range strong {
		v.strongHeads = append(v.strongHeads, *p)
	}
	sort.Slice(v.strongHeads, func(i, j int) bool {
		if len(v.strongHeads[i].tokens) != len(v.strongHeads[j].tokens) {
			return len(v.strongHeads[i].tokens) > len(v.strongHeads[j].tokens)
		}
		return v.strongHeads[i].key < v.strongHeads[j].key
	})
	return v
}

func (v *vocabulary) headExists(key, self string) bool {
	if key == "" || key == self {
		return false
	}
	return len(v.heads[key]) > 0
}

// lookupHead returns the candidates registered under a token-joined phrase
// or alias, nil when unknown.
func (v *vocabulary) lookupHead(tokens []string) []*Candidate {
	if len(tokens) == 0 {
		return nil
	}
	return v.heads[strings.Join(tokens, " ")]
}

// qualifierHits counts how many of the tokens are known master qualifiers.
func (v *vocabulary) qualifierHits(tokens []string) int {
	n := 0
	for _, t := range tokens {
		if v.qualifiers[t] {
			n++
		}
	}
	return n
}

// initialism joins the first rune of each token: "registered nurse" becomes
// "rn". Two-token minimum keeps single words from aliasing themselves.
func initialism(tokens []string) string {
	if len(tokens) < 2 {
		return ""
	}
	var b strings.Builder
	for _, t := range tokens {
		r := []rune(t)
		if len(r) == 0 {
			return ""
		}
		b.WriteRune(r[0])
	}
	return b.String()
}

// containsPhrase reports whether needle occurs as a contiguous token run
// inside haystack, and where.
func containsPhrase(haystack, needle []string) (int, bool) {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return 0, false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i, true
		}
	}
	return 0, false
}
