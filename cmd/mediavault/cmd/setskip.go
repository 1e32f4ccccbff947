package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mediavault/mediavault/internal/chatref"
)

func newSetskipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setskip <chat> <message-id>",
		Short: "Set the message id an index run starts after",
		Long: `Set the ingest floor of a chat. Index runs that do not pass --floor skip
every message up to and including this id. Use 0 to walk the chat from
the start again.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chat := chatref.Canonical(args[0])
			if chat == "" {
				return fmt.Errorf("invalid chat %q", args[0])
			}
			floor, err := strconv.Atoi(args[1])
			if err != nil || floor < 0 {
				return fmt.Errorf("invalid message id %q", args[1])
			}

			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			prev, err := s.IngestFloor(cmd.Context(), chat)
			if err != nil {
				return err
			}
			if err := s.SetIngestFloor(cmd.Context(), chat, floor); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ingest floor for %s: %d (was %d)\n", chat, floor, prev)
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(newSetskipCmd())
}
