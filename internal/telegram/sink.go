package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mediavault/mediavault/internal/ingest"
)

// EditSink reports progress by editing one status message. While the run
// is active the message carries a cancel button.
type EditSink struct {
	bot       *tgbotapi.BotAPI
	chatID    int64
	messageID int
}

// NewEditSink creates a sink editing messageID in chatID.
func NewEditSink(bot *tgbotapi.BotAPI, chatID int64, messageID int) *EditSink {
	return &EditSink{bot: bot, chatID: chatID, messageID: messageID}
}

// Notify edits the status message to show snap.
func (s *EditSink) Notify(ctx context.Context, snap ingest.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var edit tgbotapi.EditMessageTextConfig
	if snap.Final {
		edit = tgbotapi.NewEditMessageText(s.chatID, s.messageID, FormatProgress(snap))
	} else {
		edit = tgbotapi.NewEditMessageTextAndMarkup(s.chatID, s.messageID, FormatProgress(snap), CancelKeyboard())
	}
	if _, err := s.bot.Request(edit); err != nil {
		// Telegram rejects edits that change nothing.
		if hasDescription(err, "message is not modified") {
			return nil
		}
		return classify(err)
	}
	return nil
}

// CancelKeyboard is the inline keyboard attached to running progress
// messages.
func CancelKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Cancel", CancelCallback),
		),
	)
}

// FormatProgress renders snap as a status message.
func FormatProgress(snap ingest.Snapshot) string {
	var b strings.Builder
	switch snap.Status {
	case ingest.StatusCompleted:
		b.WriteString("Index completed\n\n")
	case ingest.StatusCancelled:
		b.WriteString("Index cancelled\n\n")
	case ingest.StatusFailed:
		fmt.Fprintf(&b, "Index failed: %s\n\n", snap.Error)
	default:
		fmt.Fprintf(&b, "Indexing %s (%d/%d)\n\n", snap.Chat, snap.Cursor, snap.Last)
	}
	c := snap.Counters
	fmt.Fprintf(&b, "Messages processed: %d\n", snap.Processed)
	fmt.Fprintf(&b, "Saved: %d\n", c.Saved)
	fmt.Fprintf(&b, "Duplicates skipped: %d\n", c.Duplicate)
	fmt.Fprintf(&b, "Deleted skipped: %d\n", c.Deleted)
	fmt.Fprintf(&b, "Non-media skipped: %d\n", c.NonMedia+c.Unsupported)
	fmt.Fprintf(&b, "Errors: %d", c.Error)
	return b.String()
}

var _ ingest.ProgressSink = (*EditSink)(nil)
