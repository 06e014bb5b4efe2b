package normalization

import (
	"reflect"
	"testing"
)

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"Registered Nurse", "Registered Nurse"},
		{"  Registered   Nurse  ", "Registered Nurse"},
		{"Registered\tNurse", "Registered Nurse"},
		{"Registered\n Nurse", "Registered Nurse"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q): got=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestFoldLowersAfterNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"Registered  Nurse", "registered nurse"},
		{" N/A ", "n/a"},
		{"ICU", "icu"},
	}
	for _, tc := range cases {
		if got := Fold(tc.in); got != tc.want {
			t.Fatalf("Fold(%q): got=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestFoldPtr(t *testing.T) {
	t.Parallel()

	if got := FoldPtr(nil); got != nil {
		t.Fatalf("FoldPtr(nil): got=%v want=nil", got)
	}
	in := " Acute  Care "
	got := FoldPtr(&in)
	if got == nil || *got != "acute care" {
		t.Fatalf("FoldPtr(%q): got=%v want=%q", in, got, "acute care")
	}
	if in != " Acute  Care " {
		t.Fatalf("FoldPtr mutated its input: %q", in)
	}
}

func TestIsBlank(t *testing.T) {
	t.Parallel()

	if !IsBlank("  \t ") {
		t.Fatalf("IsBlank whitespace: got=false want=true")
	}
	if IsBlank(" x ") {
		t.Fatalf("IsBlank(\" x \"): got=true want=false")
	}
}

func TestTokenizeSplitsJoiningPunctuation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want []string
	}{
		{"RN - ICU", []string{"rn", "icu"}},
		{"Nurse/Midwife", []string{"nurse", "midwife"}},
		{"Advanced Practice Psychiatric Nurses", []string{"advanced", "practice", "psychiatric", "nurses"}},
		{"Peds, Acute & Critical", []string{"peds", "acute", "critical"}},
		{"", nil},
		{"---", nil},
	}
	for _, tc := range cases {
		got := Tokenize(tc.in)
		if len(got) == 0 && len(tc.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("Tokenize(%q): got=%v want=%v", tc.in, got, tc.want)
		}
	}
}
