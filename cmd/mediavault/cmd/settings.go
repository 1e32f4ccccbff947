package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mediavault/mediavault/internal/store"
)

func newSettingsCmd() *cobra.Command {
	var pageUnrestricted, caption bool

	cmd := &cobra.Command{
		Use:   "settings <scope>",
		Short: "Show or change the search settings of a scope",
		Long: `Show the search settings of a scope (the chat a search comes from), or
change them with flags. Scopes without stored settings use the defaults
from the [search] config section.

  --page-unrestricted  use the fixed default page size instead of search.max_results
  --caption            also match queries against captions

Examples:
  mediavault settings @films
  mediavault settings @films --caption
  mediavault settings @films --page-unrestricted=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope := strings.TrimSpace(args[0])
			if scope == "" {
				return fmt.Errorf("scope must not be empty")
			}

			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			def := searchOptions(cfg).Defaults
			settings, err := s.ResolveScope(cmd.Context(), scope, def)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("page-unrestricted") || flags.Changed("caption") {
				if flags.Changed("page-unrestricted") {
					settings.PageUnrestricted = pageUnrestricted
				}
				if flags.Changed("caption") {
					settings.UseCaptionFilter = caption
				}
				if err := s.SetScope(cmd.Context(), scope, settings); err != nil {
					return err
				}
			}

			printScope(cmd, scope, settings, newSearchService(s).PageSize(settings))
			return nil
		},
	}

	cmd.Flags().BoolVar(&pageUnrestricted, "page-unrestricted", false, "Use the fixed default page size")
	cmd.Flags().BoolVar(&caption, "caption", false, "Match queries against captions too")
	return cmd
}

func printScope(cmd *cobra.Command, scope string, settings store.ScopeSettings, pageSize int) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scope: %s\n", scope)
	fmt.Fprintf(out, "  Page size:          %d\n", pageSize)
	fmt.Fprintf(out, "  Page unrestricted:  %t\n", settings.PageUnrestricted)
	fmt.Fprintf(out, "  Caption matching:   %t\n", settings.UseCaptionFilter)
}

func init() {
	rootCmd.AddCommand(newSettingsCmd())
}
