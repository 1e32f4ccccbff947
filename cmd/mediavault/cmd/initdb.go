package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mediavault/mediavault/internal/store"
)

var rebuildFTS bool

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Initialize the database schema",
	Long: `Initialize the mediavault database with the required schema.

This command creates the media catalog, its search index, scope settings
and ingest floors. It is safe to run multiple times - tables are only
created if they don't already exist.

Use --rebuild-fts to repopulate the full-text search index from the
catalog, for example after restoring a database copied without it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Info("initializing database", "path", cfg.DatabasePath())

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		logger.Info("database initialized successfully", "fts5", s.FTS5Available())
		if !s.FTS5Available() {
			fmt.Fprintln(cmd.OutOrStdout(), "Warning: this binary was built without FTS5 (go build -tags sqlite_fts5, or make build).")
			fmt.Fprintln(cmd.OutOrStdout(), "Searches still work but scan every catalog row.")
		}

		if rebuildFTS {
			n, err := s.RebuildFTS(cmd.Context())
			if err != nil {
				return fmt.Errorf("rebuild search index: %w", err)
			}
			if s.FTS5Available() {
				fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt search index for %d entries.\n", n)
			}
		}

		stats, err := s.GetStats()
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}
		printStats(cmd.OutOrStdout(), cfg.DatabasePath(), stats)
		return nil
	},
}

func printStats(w io.Writer, dbPath string, stats *store.Stats) {
	fmt.Fprintf(w, "Database: %s\n", dbPath)
	fmt.Fprintf(w, "  Media:       %d\n", stats.MediaCount)
	fmt.Fprintf(w, "  Videos:      %d\n", stats.VideoCount)
	fmt.Fprintf(w, "  Audio:       %d\n", stats.AudioCount)
	fmt.Fprintf(w, "  Documents:   %d\n", stats.DocumentCount)
	fmt.Fprintf(w, "  Media size:  %s\n", formatSize(stats.TotalBytes))
	fmt.Fprintf(w, "  Scopes:      %d\n", stats.ScopeCount)
	fmt.Fprintf(w, "  Size:        %.2f MB\n", float64(stats.DatabaseSize)/(1024*1024))
}

func init() {
	initDBCmd.Flags().BoolVar(&rebuildFTS, "rebuild-fts", false, "repopulate the full-text search index")
	rootCmd.AddCommand(initDBCmd)
}
