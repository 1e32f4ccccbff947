package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		stats, err := s.GetStats()
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}
		printStats(cmd.OutOrStdout(), cfg.DatabasePath(), stats)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
