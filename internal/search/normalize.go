// Package search turns free text into the match terms used by the media
// catalog. The same normalization runs when an entry is indexed and when a
// user query arrives, so spellings that differ only in punctuation match.
package search

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MaxQueryTerms bounds how many terms a user query contributes to a match.
const MaxQueryTerms = 6

// Brackets and separators both become spaces so that "[x264]" or
// "the.matrix" do not glue neighbouring words together.
var punctuation = strings.NewReplacer(
	"(", " ", ")", " ",
	"[", " ", "]", " ",
	"{", " ", "}", " ",
	"_", " ", "-", " ",
	".", " ", "+", " ",
)

// Normalize lower-cases text, replaces brackets and separators with spaces
// and splits the result on whitespace. Empty input yields no terms.
func Normalize(text string) []string {
	// Casers keep state; one per call keeps Normalize safe for concurrent use.
	lower := cases.Lower(language.Und).String(text)
	return strings.Fields(punctuation.Replace(lower))
}

// Join re-assembles terms with single spaces.
func Join(terms []string) string {
	return strings.Join(terms, " ")
}

// SearchName is the stored match projection of a display name.
func SearchName(displayName string) string {
	return Join(Normalize(displayName))
}

// Terms normalizes a user query and keeps at most MaxQueryTerms terms.
func Terms(query string) []string {
	terms := Normalize(query)
	if len(terms) > MaxQueryTerms {
		terms = terms[:MaxQueryTerms]
	}
	return terms
}
