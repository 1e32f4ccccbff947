package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mediavault/mediavault/internal/chatref"
	"github.com/mediavault/mediavault/internal/config"
	"github.com/mediavault/mediavault/internal/ingest"
	"github.com/mediavault/mediavault/internal/store"
	"github.com/mediavault/mediavault/internal/telegram"
)

var (
	indexLast   int
	indexFloor  int
	indexSource string
)

var indexCmd = &cobra.Command{
	Use:   "index <chat|message-link>",
	Short: "Catalog the media posted in a chat",
	Long: `Walk a chat's messages and add every video, audio file and document to
the catalog.

The chat is a numeric id (-1001234567890) or a @username. A message link
such as https://t.me/c/1234567890/500 names both the chat and the last
message to visit. Without a link or --last, the archive's newest message
is used.

The walk starts after the chat's ingest floor (see setskip) unless
--floor is given. A completed run raises the floor to the last message
visited, so the next run only looks at newer posts.

Sources:
  archive   JSONL exports under telegram.archive_dir (default)
  bot       forward each message to telegram.dump_chat_id through the bot

Examples:
  mediavault index @films
  mediavault index https://t.me/films/1200
  mediavault index -1001234567890 --last 5000 --floor 0 --source bot`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chat, last, err := resolveTarget(args[0], indexLast)
		if err != nil {
			return err
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		kind := indexSource
		if kind == "" {
			kind = config.SourceArchive
			if src := cfg.GetSource(chat); src != nil {
				kind = src.SourceKind()
			}
		}

		var src ingest.Source
		switch kind {
		case config.SourceArchive:
			archive := telegram.NewArchiveSource(cfg.ArchiveDir())
			if last == 0 {
				if last, err = archive.LastMessageID(chat); err != nil {
					return err
				}
			}
			src = archive
		case config.SourceBot:
			if last == 0 {
				return errors.New("--last or a message link is required with the bot source")
			}
			bot, err := connectBot()
			if err != nil {
				return err
			}
			if src, err = forwardSource(bot); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown source %q (want archive or bot)", kind)
		}

		var opts ingest.Options
		if cmd.Flags().Changed("floor") {
			opts = ingest.Options{Chat: chat, Last: last, Floor: indexFloor}
		} else if opts, err = ingest.OptionsFor(cmd.Context(), s, chat, last); err != nil {
			return err
		}

		return runIndex(cmd.Context(), cmd.OutOrStdout(), s, newPipeline(s, src), opts, progressSink())
	},
}

// resolveTarget turns the index argument into a chat and last message id.
// A non-zero last overrides the id carried by a message link.
func resolveTarget(arg string, last int) (string, int, error) {
	if last < 0 {
		return "", 0, fmt.Errorf("--last must not be negative, got %d", last)
	}
	chat, linkLast, err := telegram.ParseMessageLink(arg)
	switch {
	case err == nil:
		if last == 0 {
			last = linkLast
		}
		return chatref.Canonical(chat), last, nil
	case strings.Contains(arg, "/"):
		return "", 0, fmt.Errorf("%q is not a message link", arg)
	}
	chat = chatref.Canonical(arg)
	if chat == "" {
		return "", 0, fmt.Errorf("invalid chat %q", arg)
	}
	return chat, last, nil
}

func runIndex(ctx context.Context, out io.Writer, floors ingest.FloorStore, p *ingest.Pipeline, opts ingest.Options, sink ingest.ProgressSink) error {
	fmt.Fprintf(out, "Indexing %s from message %d to %d\n\n", opts.Chat, opts.Floor+1, opts.Last)

	res, err := p.Run(ctx, opts, sink)
	if res == nil {
		return err
	}

	c := res.Counters
	fmt.Fprintln(out)
	switch res.Status {
	case ingest.StatusCompleted:
		fmt.Fprintln(out, "Index complete!")
	case ingest.StatusCancelled:
		fmt.Fprintln(out, "Index interrupted. Run again to continue; catalogued media is skipped.")
	default:
		fmt.Fprintln(out, "Index failed.")
	}
	fmt.Fprintf(out, "  Duration:      %s\n", formatDuration(res.Elapsed))
	fmt.Fprintf(out, "  Messages:      %d processed, last visited %d\n", res.Processed, res.Cursor)
	fmt.Fprintf(out, "  Saved:         %d\n", c.Saved)
	fmt.Fprintf(out, "  Duplicates:    %d\n", c.Duplicate)
	fmt.Fprintf(out, "  Skipped:       %d deleted, %d without media, %d unsupported\n", c.Deleted, c.NonMedia, c.Unsupported)
	if c.Error > 0 {
		fmt.Fprintf(out, "  Errors:        %d\n", c.Error)
	}
	if err != nil {
		return fmt.Errorf("index %s: %w", opts.Chat, err)
	}

	if err := ingest.AdvanceFloor(context.WithoutCancel(ctx), floors, res); err != nil {
		return fmt.Errorf("save ingest floor: %w", err)
	}
	if res.Status == ingest.StatusCompleted && res.Cursor > res.Floor {
		fmt.Fprintf(out, "  Next run starts after message %d\n", res.Cursor)
	}
	return nil
}

var _ ingest.FloorStore = (*store.Store)(nil)

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().IntVar(&indexLast, "last", 0, "Last message id to visit (default: from the link or the archive)")
	indexCmd.Flags().IntVar(&indexFloor, "floor", 0, "Skip messages up to this id (default: the stored ingest floor)")
	indexCmd.Flags().StringVar(&indexSource, "source", "", "Message source: archive or bot (default: the chat's configured source)")
}
