package search

import (
	"strings"
)

// Kinds a query may filter on with the kind: operator.
var validKinds = map[string]bool{
	"video":    true,
	"audio":    true,
	"document": true,
}

// Query is a user query split into free text and operator filters.
type Query struct {
	Text string // Free text, still un-normalized
	Kind string // kind: or type: filter, empty when absent
}

// Terms returns the normalized match terms for the free text.
func (q *Query) Terms() []string {
	return Terms(q.Text)
}

// IsEmpty returns true if the query has no text and no filters.
func (q *Query) IsEmpty() bool {
	return len(q.Terms()) == 0 && q.Kind == ""
}

// Parse splits a query string into text and filters.
//
// Supported operators:
//   - kind: or type: - video, audio or document
//   - Bare words and "quoted phrases" - matched as terms
//
// An operator with an unknown name or value is treated as text.
func Parse(queryStr string) *Query {
	q := &Query{}
	var text []string
	for _, token := range tokenize(queryStr) {
		if isQuotedPhrase(token) {
			text = append(text, unquote(token))
			continue
		}
		if idx := strings.Index(token, ":"); idx != -1 {
			op := strings.ToLower(token[:idx])
			value := strings.ToLower(unquote(token[idx+1:]))
			if (op == "kind" || op == "type") && validKinds[value] {
				q.Kind = value
				continue
			}
		}
		text = append(text, token)
	}
	q.Text = strings.Join(text, " ")
	return q
}

// unquote removes surrounding double quotes from a string if present.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// isQuotedPhrase returns true if the token is a double-quoted phrase.
func isQuotedPhrase(token string) bool {
	return len(token) > 2 && token[0] == '"' && token[len(token)-1] == '"'
}

// tokenize splits a query string on spaces, keeping "quoted phrases"
// together. Apostrophes are ordinary characters so titles like
// "ocean's eleven" survive.
func tokenize(queryStr string) []string {
	var tokens []string
	var current strings.Builder
	inQuotes := false

	for _, char := range queryStr {
		switch {
		case char == '"' && !inQuotes:
			inQuotes = true
			if current.Len() > 0 && !strings.HasSuffix(current.String(), ":") {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			current.WriteRune(char)
		case char == '"' && inQuotes:
			inQuotes = false
			current.WriteRune(char)
			tokens = append(tokens, current.String())
			current.Reset()
		case (char == ' ' || char == '\t') && !inQuotes:
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(char)
		}
	}

	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}
