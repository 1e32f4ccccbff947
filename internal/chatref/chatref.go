// Package chatref parses the ways a Telegram chat can be written and folds
// them into one key.
package chatref

import (
	"strconv"
	"strings"
)

// Parse splits a chat reference into a numeric id or a channel username
// with a leading @. Exactly one of the results is set for valid input.
func Parse(chat string) (int64, string) {
	chat = strings.TrimSpace(chat)
	if chat == "" {
		return 0, ""
	}
	if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
		return id, ""
	}
	if strings.HasPrefix(chat, "@") {
		chat = chat[1:]
	}
	if chat == "" {
		return 0, ""
	}
	return 0, "@" + chat
}

// Canonical returns the key used for floors, configured sources and
// archive lookups: the decimal id, or the lower-cased username with a
// leading @. Telegram usernames are case-insensitive, so "Films", "@films"
// and a t.me/Films link share a key. Invalid input yields "".
func Canonical(chat string) string {
	id, name := Parse(chat)
	switch {
	case name != "":
		return strings.ToLower(name)
	case id != 0:
		return strconv.FormatInt(id, 10)
	default:
		return ""
	}
}

// Equal reports whether a and b name the same chat.
func Equal(a, b string) bool {
	ca := Canonical(a)
	return ca != "" && ca == Canonical(b)
}
