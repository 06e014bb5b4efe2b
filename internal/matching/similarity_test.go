package matching

import (
	"testing"
)

func TestBigramsAreWordAware(t *testing.T) {
	t.Parallel()

	grams := Bigrams("X Ray")
	want := map[string]int{"x": 1, "ra": 1, "ay": 1}
	if len(grams) != len(want) {
		t.Fatalf("Bigrams = %v, want %v", grams, want)
	}
	for g, c := range want {
		if grams[g] != c {
			t.Fatalf("Bigrams[%q] = %d, want %d", g, grams[g], c)
		}
	}
}

func TestDice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{name: "identical", a: "Registered Nurse", b: "registered   nurse", min: 1, max: 1},
		{name: "word order ignored", a: "nurse registered", b: "registered nurse", min: 1, max: 1},
		{name: "single short token", a: "RN", b: "rn", min: 1, max: 1},
		{name: "close profession labels", a: "ICU Nurse Practitioner", b: "Critical Care Nurse Practitioner", min: 0.70, max: 0.95},
		{name: "unrelated", a: "Xyzzy", b: "Nurse", min: 0, max: 0},
		{name: "empty left", a: "", b: "nurse", min: 0, max: 0},
		{name: "both empty", a: "", b: "", min: 0, max: 0},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Dice(tc.a, tc.b)
			if got < tc.min || got > tc.max {
				t.Fatalf("Dice(%q, %q) = %v, want in [%v, %v]", tc.a, tc.b, got, tc.min, tc.max)
			}
		})
	}
}

func TestDiceIsSymmetric(t *testing.T) {
	t.Parallel()

	a, b := "Pediatric Acute Care", "Acute Pediatric Nursing"
	if Dice(a, b) != Dice(b, a) {
		t.Fatalf("Dice(%q, %q) = %v, reversed = %v", a, b, Dice(a, b), Dice(b, a))
	}
}

func TestTokenDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b string
		want int
	}{
		{name: "identical", a: "Registered Nurse", b: "registered nurse", want: 0},
		{name: "punctuation folds away", a: "RN - ICU", b: "rn icu", want: 0},
		{name: "one substitution one insert", a: "ICU Nurse Practitioner", b: "Critical Care Nurse Practitioner", want: 2},
		{name: "distant labels", a: "Advanced Practice Psychiatric Nurses", b: "Psychiatric Mental Health Nurse Practitioner", want: 5},
		{name: "abbreviation expansion", a: "RN", b: "Registered Nurse", want: 2},
		{name: "empty right", a: "a b c", b: "", want: 3},
		{name: "both empty", a: "", b: "", want: 0},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := TokenDistance(tc.a, tc.b); got != tc.want {
				t.Fatalf("TokenDistance(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
			}
		})
	}
}
