package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mediavault/mediavault/internal/store"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <content-key>",
	Short: "Show one catalog entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		e, err := s.GetMedia(cmd.Context(), args[0])
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no media with key %q", args[0])
		}
		if err != nil {
			return err
		}

		if showJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(toResultJSON(e))
		}
		printMedia(cmd.OutOrStdout(), e)
		return nil
	},
}

func printMedia(w io.Writer, e *store.MediaEntry) {
	fmt.Fprintf(w, "Key:          %s\n", e.ContentKey)
	fmt.Fprintf(w, "Access token: %s\n", e.AccessToken)
	fmt.Fprintf(w, "Name:         %s\n", e.DisplayName)
	fmt.Fprintf(w, "Kind:         %s\n", e.Kind)
	fmt.Fprintf(w, "Size:         %s (%d bytes)\n", formatSize(e.SizeBytes), e.SizeBytes)
	if e.MimeType.Valid {
		fmt.Fprintf(w, "MIME type:    %s\n", e.MimeType.String)
	}
	if e.SourceChat.Valid {
		fmt.Fprintf(w, "Source:       %s message %d\n", e.SourceChat.String, e.SourceMessageID.Int64)
	}
	fmt.Fprintf(w, "Indexed:      %s\n", e.IndexedAt.Local().Format(time.DateTime))
	if e.Caption.Valid && e.Caption.String != "" {
		fmt.Fprintf(w, "\n%s\n", e.Caption.String)
	}
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")
}
