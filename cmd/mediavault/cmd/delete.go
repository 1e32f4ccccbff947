package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mediavault/mediavault/internal/metrics"
	"github.com/mediavault/mediavault/internal/search"
	"github.com/mediavault/mediavault/internal/store"
)

func newDeleteCmd() *cobra.Command {
	var (
		queryStr string
		kind     string
		yes      bool
	)

	cmd := &cobra.Command{
		Use:   "delete [content-key...]",
		Short: "Remove entries from the catalog",
		Long: `Remove catalog entries by content key, or every entry matching a search
with --query. Matching a query asks for confirmation unless --yes is set.

Examples:
  mediavault delete AgADxxxx AgADyyyy
  mediavault delete --query "kind:video cam rip"
  mediavault delete --query sample --kind video --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (queryStr == "") == (len(args) == 0) {
				return errors.New("give either content keys or --query")
			}

			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			out := cmd.OutOrStdout()

			if queryStr == "" {
				deleted := 0
				for _, key := range args {
					ok, err := s.DeleteMedia(cmd.Context(), key)
					if err != nil {
						return fmt.Errorf("delete %s: %w", key, err)
					}
					if !ok {
						fmt.Fprintf(out, "%s: not in catalog\n", key)
						continue
					}
					metrics.MediaDeletedTotal.Inc()
					deleted++
				}
				fmt.Fprintf(out, "Deleted %d of %d entries.\n", deleted, len(args))
				return nil
			}

			q := search.Parse(queryStr)
			if kind != "" {
				q.Kind = strings.ToLower(kind)
			}
			if q.IsEmpty() {
				return errors.New("empty search query")
			}
			if q.Kind != "" && !store.ValidKind(q.Kind) {
				return fmt.Errorf("invalid kind %q", q.Kind)
			}

			svc := newSearchService(s)
			matches, total, err := svc.SearchUnbounded(cmd.Context(), q.Text, q.Kind)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			if total == 0 {
				fmt.Fprintln(out, "No media found.")
				return nil
			}
			if err := outputSearchResultsTable(out, matches, total, ""); err != nil {
				return err
			}

			if !yes {
				fmt.Fprintf(out, "\nDelete %d entries? [y/N] ", len(matches))
				scanner := bufio.NewScanner(cmd.InOrStdin())
				scanner.Scan()
				answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
				if answer != "y" && answer != "yes" {
					fmt.Fprintln(out, "Aborted.")
					return nil
				}
			}

			res, err := svc.Purge(cmd.Context(), q.Text, q.Kind, func(done, total int) {
				fmt.Fprintf(out, "\r  Deleted %d/%d", done, total)
			})
			fmt.Fprintln(out)
			if err != nil {
				return fmt.Errorf("purge: %w", err)
			}
			fmt.Fprintf(out, "Deleted %d entries", res.Deleted)
			if res.Missing > 0 {
				fmt.Fprintf(out, " (%d already gone)", res.Missing)
			}
			fmt.Fprintln(out, ".")
			if total > res.Matched {
				fmt.Fprintf(out, "%d more matches remain; run again to continue.\n", total-res.Matched)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&queryStr, "query", "q", "", "Delete every entry matching this search")
	cmd.Flags().StringVar(&kind, "kind", "", "Only media of this kind (with --query)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")
	return cmd
}

func init() {
	rootCmd.AddCommand(newDeleteCmd())
}
