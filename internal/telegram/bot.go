// Package telegram connects the ingestion pipeline to the Telegram Bot API:
// message sources, progress sinks, message links and the update listener.
package telegram

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mediavault/mediavault/internal/ingest"
)

// CancelCallback is the callback data of the cancel button attached to
// progress messages.
const CancelCallback = "index_cancel"

// defaultRetryAfter is used when a 429 response carries no retry_after.
const defaultRetryAfter = 5 * time.Second

// NewBot creates a Bot API client. endpoint may be empty for the public
// API; otherwise it is a format string like tgbotapi.APIEndpoint. client
// may be nil.
func NewBot(token, endpoint string, client *http.Client, logger *slog.Logger) (*tgbotapi.BotAPI, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram: bot token is not configured")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger != nil {
		_ = tgbotapi.SetLogger(&slogBotLogger{log: logger})
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect bot: %w", err)
	}
	return bot, nil
}

// slogBotLogger adapts slog.Logger to tgbotapi.BotLogger.
type slogBotLogger struct {
	log *slog.Logger
}

func (s *slogBotLogger) Println(v ...any) {
	s.log.Debug(fmt.Sprint(v...))
}

func (s *slogBotLogger) Printf(format string, v ...any) {
	s.log.Debug(fmt.Sprintf(format, v...))
}

// classify maps Bot API throttling to *ingest.RateLimitedError and leaves
// other errors untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		wait := time.Duration(apiErr.RetryAfter) * time.Second
		if wait <= 0 {
			wait = defaultRetryAfter
		}
		return &ingest.RateLimitedError{RetryAfter: wait, Err: err}
	}
	return err
}

// hasDescription reports whether err is a Bot API error whose description
// contains substr (case-insensitive).
func hasDescription(err error, substr string) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Message), substr)
}
