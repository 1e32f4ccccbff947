package cmd

import (
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mediavault/mediavault/internal/config"
	"github.com/mediavault/mediavault/internal/fileutil"
	"github.com/mediavault/mediavault/internal/ingest"
	"github.com/mediavault/mediavault/internal/query"
	"github.com/mediavault/mediavault/internal/store"
	"github.com/mediavault/mediavault/internal/telegram"
)

// openStore opens the catalog and brings its schema up to date.
func openStore() (*store.Store, error) {
	s, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := s.InitSchema(); err != nil {
		s.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if err := fileutil.RestrictFile(cfg.DatabasePath()); err != nil {
		logger.Warn("could not restrict database permissions", "path", cfg.DatabasePath(), "error", err)
	}
	if !s.FTS5Available() {
		logger.Debug("FTS5 unavailable, lookups scan the catalog", "hint", "build with -tags sqlite_fts5")
	}
	return s, nil
}

func searchOptions(c *config.Config) query.Options {
	return query.Options{
		MaxResults:   c.Search.MaxResults,
		UnboundedCap: c.Search.UnboundedCap,
		Defaults:     store.ScopeSettings{UseCaptionFilter: c.Search.UseCaptionFilter},
	}
}

func newSearchService(s *store.Store) *query.Service {
	return query.NewService(s, searchOptions(cfg)).WithLogger(logger)
}

func pipelineConfig(c *config.Config) ingest.Config {
	pc := ingest.DefaultConfig()
	pc.BatchSize = c.Ingest.BatchSize
	pc.ProgressEvery = c.Ingest.ProgressEvery
	pc.FetchSize = c.Ingest.FetchSize
	return pc
}

func newPipeline(s *store.Store, src ingest.Source) *ingest.Pipeline {
	return ingest.New(s, src, pipelineConfig(cfg)).WithLogger(logger)
}

// connectBot connects the configured bot.
func connectBot() (*tgbotapi.BotAPI, error) {
	return telegram.NewBot(cfg.Telegram.BotToken, cfg.Telegram.APIEndpoint, nil, logger)
}

// forwardSource reads messages through the bot by forwarding them to the
// dump chat.
func forwardSource(bot *tgbotapi.BotAPI) (*telegram.ForwardSource, error) {
	if cfg.Telegram.DumpChatID == 0 {
		return nil, errors.New("telegram.dump_chat_id is required for the bot source")
	}
	return telegram.NewForwardSource(bot, cfg.Telegram.DumpChatID).WithLogger(logger), nil
}

// sourceRouter builds the per-chat source used by long-running commands:
// the archive by default, with chats configured as source = "bot" read
// through bot when it is non-nil.
func sourceRouter(c *config.Config, archive *telegram.ArchiveSource, bot *tgbotapi.BotAPI) (*telegram.ChatRouter, error) {
	router := telegram.NewChatRouter(archive)
	var fwd *telegram.ForwardSource
	for _, s := range c.Sources {
		if s.SourceKind() != config.SourceBot {
			continue
		}
		if bot == nil {
			return nil, fmt.Errorf("source %s uses the bot but telegram.bot_token is not set", s.Chat)
		}
		if fwd == nil {
			var err error
			if fwd, err = forwardSource(bot); err != nil {
				return nil, err
			}
		}
		router.Route(s.Chat, fwd)
	}
	return router, nil
}
