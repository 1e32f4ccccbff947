package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mediavault/mediavault/internal/api"
	"github.com/mediavault/mediavault/internal/config"
	"github.com/mediavault/mediavault/internal/ingest"
	"github.com/mediavault/mediavault/internal/scheduler"
	"github.com/mediavault/mediavault/internal/telegram"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, scheduled indexing and the Telegram bot",
	Long: `Run mediavault as a long-running daemon.

The daemon runs in the foreground and performs:
  - HTTP API server on the configured port (default: 8080)
  - Scheduled index runs for the sources in config.toml
  - The Telegram bot listener when telegram.bot_token is set

Configure schedules in config.toml:
  [[sources]]
  chat = "@films"
  schedule = "0 2 * * *"   # 2am daily (cron format)
  enabled = true

Cron format: minute hour day-of-month month day-of-week
  Examples:
    0 2 * * *     = 2:00 AM daily
    */15 * * * *  = Every 15 minutes
    0 0 * * 0     = Midnight on Sundays

Use Ctrl+C to stop the daemon gracefully.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Validate security posture before doing any work
	if err := cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	if !s.FTS5Available() {
		logger.Warn("FTS5 unavailable, lookups scan the whole catalog", "hint", "build with -tags sqlite_fts5")
	}

	var bot *tgbotapi.BotAPI
	if cfg.Telegram.BotToken != "" {
		if bot, err = connectBot(); err != nil {
			return err
		}
	}

	archive := telegram.NewArchiveSource(cfg.ArchiveDir())
	router, err := sourceRouter(cfg, archive, bot)
	if err != nil {
		return err
	}
	pipeline := newPipeline(s, router)

	sched := scheduler.New(func(ctx context.Context, chat string) error {
		return runScheduledIndex(ctx, chat, s, archive, pipeline)
	}).WithLogger(logger)
	count, errs := sched.AddSourcesFromConfig(cfg)
	for _, err := range errs {
		logger.Error("failed to schedule source", "error", err)
	}
	sched.Start()

	apiServer := api.NewServer(cfg, api.Deps{
		Catalog:   s,
		Searcher:  newSearchService(s),
		Indexer:   pipeline,
		Scheduler: sched,
	}, logger)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	if bot != nil {
		listener := telegram.NewListener(bot, pipeline, s, cfg.Telegram.Admins).
			WithScopeDefaults(s, searchOptions(cfg).Defaults).
			WithLogger(logger)
		g.Go(func() error {
			return listener.Run(ctx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		fmt.Println("Shutting down API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("API server shutdown error", "error", err)
		}
		return nil
	})

	fmt.Printf("mediavault daemon started\n")
	fmt.Printf("  API server: http://%s\n", cfg.ListenAddr())
	fmt.Printf("  Scheduled sources: %d\n", count)
	fmt.Printf("  Archive directory: %s\n", cfg.ArchiveDir())
	if bot != nil {
		fmt.Printf("  Telegram bot: @%s\n", bot.Self.UserName)
	}
	fmt.Println()
	for _, status := range sched.Status() {
		fmt.Printf("  %s: next index at %s\n", status.Chat, status.NextRun.Local().Format(time.DateTime))
	}
	fmt.Println("\nPress Ctrl+C to stop.")

	runErr := g.Wait()
	if runErr != nil {
		logger.Error("daemon stopped", "error", runErr)
	}

	fmt.Println("Waiting for running index jobs to stop...")
	pipeline.Cancel()
	schedCtx := sched.Stop()
	select {
	case <-schedCtx.Done():
		fmt.Println("Shutdown complete.")
	case <-time.After(30 * time.Second):
		fmt.Println("Shutdown timed out after 30 seconds.")
	}
	return runErr
}

// lastSource reports the last message id of a chat's archive.
type lastSource interface {
	LastMessageID(chat string) (int, error)
}

// runScheduledIndex indexes chat up to its configured last message, or the
// newest archived message, and advances the floor when the run completes.
func runScheduledIndex(ctx context.Context, chat string, floors ingest.FloorStore, archive lastSource, p *ingest.Pipeline) error {
	src := cfg.GetSource(chat)
	if src == nil {
		return fmt.Errorf("source %s is not configured", chat)
	}

	last := src.LastMessageID
	if last == 0 {
		if src.SourceKind() == config.SourceBot {
			return fmt.Errorf("source %s: last_message_id is required with the bot source", chat)
		}
		var err error
		if last, err = archive.LastMessageID(chat); err != nil {
			return err
		}
	}

	opts, err := ingest.OptionsFor(ctx, floors, chat, last)
	if errors.Is(err, ingest.ErrInvalidRange) {
		logger.Info("nothing new to index", "chat", chat, "last", last)
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info("starting scheduled index", "chat", chat, "floor", opts.Floor, "last", last)
	res, err := p.Run(ctx, opts, ingest.LogSink{Logger: logger})
	if err != nil {
		return err
	}
	if err := ingest.AdvanceFloor(context.WithoutCancel(ctx), floors, res); err != nil {
		return fmt.Errorf("save ingest floor: %w", err)
	}
	logger.Info("scheduled index finished",
		"chat", chat,
		"status", res.Status,
		"saved", res.Counters.Saved,
		"duration", res.Elapsed,
	)
	return nil
}
