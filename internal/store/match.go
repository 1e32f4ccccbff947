package store

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// hasWordsFunc is the SQL name of hasWords.
const hasWordsFunc = "mv_has_words"

// hasWords reports whether text contains every space-separated term in
// terms as a whole word, ignoring case. A term is a whole word when the
// characters on either side of it fall on a word boundary, where word
// characters are letters, digits and underscore. An empty term list
// matches everything.
func hasWords(text, terms string) bool {
	fields := strings.Fields(terms)
	if len(fields) == 0 {
		return true
	}
	haystack := cases.Lower(language.Und).String(text)
	for _, term := range fields {
		if !containsWord(haystack, term) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// containsWord reports whether term occurs in s bounded on both sides.
func containsWord(s, term string) bool {
	first, _ := utf8.DecodeRuneInString(term)
	last, _ := utf8.DecodeLastRuneInString(term)
	firstWord, lastWord := isWordRune(first), isWordRune(last)

	for from := 0; from <= len(s)-len(term); {
		i := strings.Index(s[from:], term)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(term)

		before := false
		if start > 0 {
			r, _ := utf8.DecodeLastRuneInString(s[:start])
			before = isWordRune(r)
		}
		after := false
		if end < len(s) {
			r, _ := utf8.DecodeRuneInString(s[end:])
			after = isWordRune(r)
		}
		if before != firstWord && after != lastWord {
			return true
		}

		_, size := utf8.DecodeRuneInString(s[start:])
		from = start + size
	}
	return false
}

// ftsPhrase quotes term as an FTS5 phrase. Terms without any letter or
// digit tokenize to nothing and return "".
func ftsPhrase(term string) string {
	hasToken := false
	for _, r := range term {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			hasToken = true
			break
		}
	}
	if !hasToken {
		return ""
	}
	return `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
}

// ftsMatchExpr builds an FTS5 MATCH expression that selects a superset of
// the rows hasWords accepts. column restricts the phrases to one column;
// empty means any column. Returns "" when no term can be prefiltered.
func ftsMatchExpr(terms []string, column string) string {
	var parts []string
	for _, term := range terms {
		phrase := ftsPhrase(term)
		if phrase == "" {
			continue
		}
		if column != "" {
			phrase = column + " : " + phrase
		}
		parts = append(parts, phrase)
	}
	return strings.Join(parts, " AND ")
}
