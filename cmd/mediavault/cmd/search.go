package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mediavault/mediavault/internal/query"
	"github.com/mediavault/mediavault/internal/search"
	"github.com/mediavault/mediavault/internal/store"
)

var (
	searchKind   string
	searchScope  string
	searchOffset string
	searchAll    bool
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the catalog by file name",
	Long: `Search the media catalog. Every word must appear as a whole word in the
file name; punctuation, case and accents are ignored, so "spider man"
finds Spider-Man.2002.mkv.

Supported operators:
  kind:  video, audio or document (type: is an alias)

Results are newest first. A page holds search.max_results entries unless
the scope's settings say otherwise; pass the printed offset to --offset
for the next page, or use --all to list every match.

Examples:
  mediavault search avengers endgame
  mediavault search kind:audio "dark side"
  mediavault search matrix --scope @films --offset 10`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := search.Parse(strings.Join(args, " "))
		if searchKind != "" {
			q.Kind = strings.ToLower(searchKind)
		}
		if q.IsEmpty() {
			return fmt.Errorf("empty search query")
		}
		offset, err := query.ParseOffset(searchOffset)
		if err != nil {
			return err
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		svc := newSearchService(s)
		out := cmd.OutOrStdout()

		if searchAll {
			entries, total, err := svc.SearchUnbounded(cmd.Context(), q.Text, q.Kind)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			if searchJSON {
				return outputSearchResultsJSON(out, entries, total, "")
			}
			return outputSearchResultsTable(out, entries, total, "")
		}

		page, err := svc.Search(cmd.Context(), query.Request{
			Scope:  searchScope,
			Query:  q.Text,
			Offset: offset,
			Kind:   q.Kind,
		})
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		if searchJSON {
			return outputSearchResultsJSON(out, page.Entries, page.Total, page.NextOffset)
		}
		return outputSearchResultsTable(out, page.Entries, page.Total, page.NextOffset)
	},
}

func outputSearchResultsTable(out io.Writer, entries []store.MediaEntry, total int, next string) error {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No media found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tKIND\tNAME\tSIZE\tINDEXED")
	fmt.Fprintln(w, "───\t────\t────\t────\t───────")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncate(e.ContentKey, 24), e.Kind, truncate(e.DisplayName, 60),
			formatSize(e.SizeBytes), e.IndexedAt.Local().Format("2006-01-02"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nShowing %d of %d results\n", len(entries), total)
	if next != "" {
		fmt.Fprintf(out, "More results: --offset %s\n", next)
	}
	return nil
}

type searchResultJSON struct {
	Key         string `json:"key"`
	AccessToken string `json:"access_token"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	SizeBytes   int64  `json:"size_bytes"`
	MimeType    string `json:"mime_type,omitempty"`
	Caption     string `json:"caption,omitempty"`
	SourceChat  string `json:"source_chat,omitempty"`
	SourceMsgID int64  `json:"source_message_id,omitempty"`
	IndexedAt   string `json:"indexed_at"`
}

func toResultJSON(e *store.MediaEntry) searchResultJSON {
	return searchResultJSON{
		Key:         e.ContentKey,
		AccessToken: e.AccessToken,
		Name:        e.DisplayName,
		Kind:        e.Kind,
		SizeBytes:   e.SizeBytes,
		MimeType:    e.MimeType.String,
		Caption:     e.Caption.String,
		SourceChat:  e.SourceChat.String,
		SourceMsgID: e.SourceMessageID.Int64,
		IndexedAt:   e.IndexedAt.UTC().Format(time.RFC3339),
	}
}

func outputSearchResultsJSON(out io.Writer, entries []store.MediaEntry, total int, next string) error {
	results := make([]searchResultJSON, len(entries))
	for i := range entries {
		results[i] = toResultJSON(&entries[i])
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Total      int                `json:"total"`
		NextOffset string             `json:"next_offset,omitempty"`
		Results    []searchResultJSON `json:"results"`
	}{total, next, results})
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVar(&searchKind, "kind", "", "Only media of this kind (video, audio, document)")
	searchCmd.Flags().StringVar(&searchScope, "scope", "", "Chat whose search settings apply")
	searchCmd.Flags().StringVar(&searchOffset, "offset", "", "Offset printed by a previous page")
	searchCmd.Flags().BoolVar(&searchAll, "all", false, "List every match, ignoring pages")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output as JSON")
}
