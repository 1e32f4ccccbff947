package cmd

import (
	"github.com/spf13/cobra"

	mcpserver "github.com/mediavault/mediavault/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run MCP server for Claude Desktop integration",
	Long: `Start an MCP (Model Context Protocol) server over stdio.

This allows Claude Desktop (or any MCP client) to search the media
catalog using tools like search_media, search_all, get_media,
catalog_stats and decode_file_id.

Add to Claude Desktop config:
  {
    "mcpServers": {
      "mediavault": {
        "command": "mediavault",
        "args": ["mcp"]
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		return mcpserver.Serve(cmd.Context(), s, newSearchService(s), nil, Version)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
