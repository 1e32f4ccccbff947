package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mediavault/mediavault/internal/chatref"
	"github.com/mediavault/mediavault/internal/ingest"
)

// ForwardSource reads a chat's history through a bot. The Bot API cannot
// fetch arbitrary messages, so each position is forwarded into a dump chat
// the bot administers, read from the forwarded copy and then deleted.
type ForwardSource struct {
	bot      *tgbotapi.BotAPI
	dumpChat int64
	logger   *slog.Logger
}

// NewForwardSource creates a source forwarding into dumpChat.
func NewForwardSource(bot *tgbotapi.BotAPI, dumpChat int64) *ForwardSource {
	return &ForwardSource{bot: bot, dumpChat: dumpChat, logger: slog.Default()}
}

// WithLogger sets the logger.
func (s *ForwardSource) WithLogger(logger *slog.Logger) *ForwardSource {
	s.logger = logger
	return s
}

// Fetch forwards ids one by one. Positions the bot cannot forward because
// they were deleted are left out of the result.
func (s *ForwardSource) Fetch(ctx context.Context, chat string, ids []int) ([]ingest.Message, error) {
	chatID, username := chatref.Parse(chat)
	if chatID == 0 && username == "" {
		return nil, fmt.Errorf("telegram: invalid chat %q", chat)
	}

	out := make([]ingest.Message, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		copied, err := s.forward(chatID, username, id)
		if err != nil {
			if isMissingMessage(err) {
				continue
			}
			return nil, fmt.Errorf("forward message %d: %w", id, classify(err))
		}

		out = append(out, ConvertMessage(id, copied))
		s.discard(copied.MessageID)
	}
	return out, nil
}

// forward copies one message into the dump chat. tgbotapi.ForwardConfig
// only sends numeric source chats, so the request is built by hand to
// accept a public channel's @username as from_chat_id.
func (s *ForwardSource) forward(fromID int64, fromUsername string, messageID int) (*tgbotapi.Message, error) {
	params := make(tgbotapi.Params)
	params.AddNonZero64("chat_id", s.dumpChat)
	if err := params.AddFirstValid("from_chat_id", fromID, fromUsername); err != nil {
		return nil, err
	}
	params.AddNonZero("message_id", messageID)
	params.AddBool("disable_notification", true)

	resp, err := s.bot.MakeRequest("forwardMessage", params)
	if err != nil {
		return nil, err
	}
	var copied tgbotapi.Message
	if err := json.Unmarshal(resp.Result, &copied); err != nil {
		return nil, fmt.Errorf("decode forwarded message: %w", err)
	}
	return &copied, nil
}

// discard deletes a forwarded copy. Failures only leave clutter in the
// dump chat.
func (s *ForwardSource) discard(messageID int) {
	if _, err := s.bot.Request(tgbotapi.NewDeleteMessage(s.dumpChat, messageID)); err != nil {
		s.logger.Debug("delete forwarded copy failed", "message", messageID, "error", err)
	}
}

func isMissingMessage(err error) bool {
	return hasDescription(err, "message to forward not found") ||
		hasDescription(err, "message_id_invalid")
}

var _ ingest.Source = (*ForwardSource)(nil)
