package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mediavault/mediavault/internal/ingest"
	"github.com/mediavault/mediavault/internal/store"
)

// Indexer is the part of the ingestion pipeline the listener drives.
type Indexer interface {
	Start(ctx context.Context, opts ingest.Options, sink ingest.ProgressSink, done func(*ingest.Result)) (string, error)
	Cancel() bool
}

// ScopeStore stores default search settings for chats the bot meets.
type ScopeStore interface {
	EnsureScopeDefault(ctx context.Context, scope string, def store.ScopeSettings) error
}

// Listener long-polls bot updates. Admins start an index run by sending a
// message link; the cancel button on the progress message stops it.
type Listener struct {
	bot     *tgbotapi.BotAPI
	indexer Indexer
	floors  ingest.FloorStore
	admins  map[int64]bool
	logger  *slog.Logger

	scopes     ScopeStore
	scopeDef   store.ScopeSettings
	mu         sync.Mutex
	seenScopes map[int64]bool
}

// NewListener creates a listener. With no admins, anyone may start or
// cancel runs.
func NewListener(bot *tgbotapi.BotAPI, indexer Indexer, floors ingest.FloorStore, admins []int64) *Listener {
	set := make(map[int64]bool, len(admins))
	for _, id := range admins {
		set[id] = true
	}
	return &Listener{bot: bot, indexer: indexer, floors: floors, admins: set, logger: slog.Default()}
}

// WithLogger sets the logger.
func (l *Listener) WithLogger(logger *slog.Logger) *Listener {
	l.logger = logger
	return l
}

// WithScopeDefaults records def as the search settings of every chat the
// bot first hears from, unless the chat already has settings.
func (l *Listener) WithScopeDefaults(scopes ScopeStore, def store.ScopeSettings) *Listener {
	l.scopes = scopes
	l.scopeDef = def
	l.seenScopes = make(map[int64]bool)
	return l
}

// Run processes updates until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	cfg.AllowedUpdates = []string{"message", "callback_query"}
	updates := l.bot.GetUpdatesChan(cfg)
	defer l.bot.StopReceivingUpdates()

	l.logger.Info("telegram listener started", "bot", l.bot.Self.UserName)
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("telegram listener stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return errors.New("telegram: update channel closed")
			}
			l.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate dispatches one update.
func (l *Listener) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		l.handleCallback(update.CallbackQuery)
	case update.Message != nil:
		l.ensureScope(ctx, update.Message.Chat)
		l.handleMessage(ctx, update.Message)
	}
}

// ensureScope stores default settings for chat once per process.
func (l *Listener) ensureScope(ctx context.Context, chat *tgbotapi.Chat) {
	if l.scopes == nil || chat == nil {
		return
	}
	l.mu.Lock()
	seen := l.seenScopes[chat.ID]
	l.seenScopes[chat.ID] = true
	l.mu.Unlock()
	if seen {
		return
	}
	scope := strconv.FormatInt(chat.ID, 10)
	if err := l.scopes.EnsureScopeDefault(ctx, scope, l.scopeDef); err != nil {
		l.logger.Warn("store default scope settings failed", "scope", scope, "error", err)
		l.mu.Lock()
		delete(l.seenScopes, chat.ID)
		l.mu.Unlock()
	}
}

func (l *Listener) allowed(user *tgbotapi.User) bool {
	if len(l.admins) == 0 {
		return true
	}
	return user != nil && l.admins[user.ID]
}

func (l *Listener) handleCallback(q *tgbotapi.CallbackQuery) {
	if q.Data != CancelCallback {
		return
	}
	answer := "Cancelling index..."
	switch {
	case !l.allowed(q.From):
		answer = "You are not allowed to cancel this run."
	case !l.indexer.Cancel():
		answer = "No index run is active."
	default:
		l.logger.Info("index cancel requested", "user", q.From.ID)
	}
	if _, err := l.bot.Request(tgbotapi.NewCallback(q.ID, answer)); err != nil {
		l.logger.Warn("answer callback failed", "error", err)
	}
}

func (l *Listener) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	if m.Chat == nil || !l.allowed(m.From) {
		return
	}
	chat, last, err := l.linkOf(m)
	if err != nil {
		return
	}

	opts, err := ingest.OptionsFor(ctx, l.floors, chat, last)
	if err != nil {
		l.reply(m, fmt.Sprintf("Cannot index %s: %v", chat, err))
		return
	}

	status := tgbotapi.NewMessage(m.Chat.ID, fmt.Sprintf("Starting index of %s from message %d to %d...", opts.Chat, opts.Floor+1, last))
	status.ReplyToMessageID = m.MessageID
	status.ReplyMarkup = CancelKeyboard()
	sent, err := l.bot.Send(status)
	if err != nil {
		l.logger.Warn("send status message failed", "error", err)
		return
	}

	sink := NewEditSink(l.bot, m.Chat.ID, sent.MessageID)
	_, err = l.indexer.Start(ctx, opts, sink, func(res *ingest.Result) {
		l.logger.Info("bot index run finished", "job", res.JobID, "status", res.Status)
	})
	if err != nil {
		reason := err.Error()
		if errors.Is(err, ingest.ErrConcurrentRun) {
			reason = "another index run is in progress"
		}
		_ = sink.Notify(ctx, ingest.Snapshot{Chat: chat, Status: ingest.StatusFailed, Error: reason, Final: true})
	}
}

// linkOf returns the chat and last message id a message points at: either
// a message link in its text or the origin of a forwarded channel post.
func (l *Listener) linkOf(m *tgbotapi.Message) (string, int, error) {
	if m.ForwardFromChat != nil && m.ForwardFromMessageID > 0 {
		return fmt.Sprintf("%d", m.ForwardFromChat.ID), m.ForwardFromMessageID, nil
	}
	return ParseMessageLink(strings.TrimSpace(m.Text))
}

func (l *Listener) reply(m *tgbotapi.Message, text string) {
	msg := tgbotapi.NewMessage(m.Chat.ID, text)
	msg.ReplyToMessageID = m.MessageID
	if _, err := l.bot.Send(msg); err != nil {
		l.logger.Warn("send reply failed", "error", err)
	}
}
