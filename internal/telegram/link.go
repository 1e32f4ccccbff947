package telegram

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidLink is returned for text that is not a message link.
var ErrInvalidLink = errors.New("telegram: not a message link")

var messageLinkRe = regexp.MustCompile(`^(?:https?://)?(?:t\.me|telegram\.me|telegram\.dog)/(c/)?([A-Za-z0-9_]+)/(\d+)/?$`)

// ParseMessageLink extracts the chat and message id from a message link
// such as https://t.me/c/1234567/89 or t.me/somechannel/89. Numeric chat
// ids are returned in their -100 prefixed channel form.
func ParseMessageLink(text string) (chat string, messageID int, err error) {
	m := messageLinkRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", 0, ErrInvalidLink
	}
	messageID, err = strconv.Atoi(m[3])
	if err != nil || messageID <= 0 {
		return "", 0, ErrInvalidLink
	}

	chat = m[2]
	if _, numErr := strconv.ParseInt(chat, 10, 64); numErr == nil {
		return "-100" + chat, messageID, nil
	}
	if m[1] != "" {
		// Private links always carry a numeric id.
		return "", 0, ErrInvalidLink
	}
	return "@" + chat, messageID, nil
}
