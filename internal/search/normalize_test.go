package search

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"whitespace only", "  \t\n ", nil},
		{"lower-cases", "The MATRIX", []string{"the", "matrix"}},
		{"dots", "The.Matrix.1999.1080p.mkv", []string{"the", "matrix", "1999", "1080p", "mkv"}},
		{"brackets split words", "Movie[2019](HD){x264}", []string{"movie", "2019", "hd", "x264"}},
		{"separators", "a_b-c.d+e", []string{"a", "b", "c", "d", "e"}},
		{"collapses runs", "  a   --  b  ", []string{"a", "b"}},
		{"keeps other punctuation", "ocean's eleven!", []string{"ocean's", "eleven!"}},
		{"unicode lower", "ÜBER Straße", []string{"über", "straße"}},
		{"cyrillic", "МАТРИЦА_1999", []string{"матрица", "1999"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Normalize(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"The.Matrix.1999.1080p.BluRay.x264-[GROUP].mkv",
		"  Spaces   and\ttabs\n",
		"Ä.B_C-D+E(F)[G]{H}",
		"already normalized text",
		"..__--++",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(Join(once))
		if diff := cmp.Diff(once, twice, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("Normalize not idempotent for %q (-once +twice):\n%s", in, diff)
		}
	}
}

func TestSearchName(t *testing.T) {
	if got, want := SearchName("The.Matrix.1999.1080p"), "the matrix 1999 1080p"; got != want {
		t.Errorf("SearchName = %q, want %q", got, want)
	}
	if got := SearchName(""); got != "" {
		t.Errorf("SearchName(\"\") = %q, want empty", got)
	}
}

func TestTerms_CapsQueryLength(t *testing.T) {
	got := Terms("one two three four five six seven eight")
	want := []string{"one", "two", "three", "four", "five", "six"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Terms mismatch (-want +got):\n%s", diff)
	}
}
