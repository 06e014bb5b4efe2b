package normalization

import (
	"strings"
)

// Normalize trims leading/trailing whitespace and collapses internal runs of
// whitespace to single spaces. Values are stored as returned from here.
func Normalize(input string) string {
	return strings.Join(strings.Fields(input), " ")
}

// Fold is the identity form used wherever node or attribute text is compared:
// the natural-key value_key columns, exact matching, and vocabulary lookups.
func Fold(input string) string {
	return strings.ToLower(Normalize(input))
}

func FoldPtr(input *string) *string {
	if input == nil {
		return nil
	}
	folded := Fold(*input)
	return &folded
}

// IsBlank reports whether input normalizes to the empty string.
func IsBlank(input string) bool {
	return Normalize(input) == ""
}

// tokenSeparators covers the punctuation that joins words inside profession
// labels ("RN - ICU", "Nurse/Midwife", "Peds, Acute").
func isTokenSeparator(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '-', '–', '/', '\\', ',', ';', ':', '(', ')', '[', ']', '&', '+', '.':
		return true
	default:
		return false
	}
}

// Tokenize lowercases input and splits it into word tokens on whitespace and
// joining punctuation. Used by the qualifier and fuzzy matchers.
func Tokenize(input string) []string {
	fields := strings.FieldsFunc(strings.ToLower(input), isTokenSeparator)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
