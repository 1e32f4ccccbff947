// Package mcp exposes the media catalog to MCP clients over stdio.
package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mediavault/mediavault/internal/ingest"
	"github.com/mediavault/mediavault/internal/query"
	"github.com/mediavault/mediavault/internal/store"
)

// Tool name constants.
const (
	ToolSearchMedia   = "search_media"
	ToolSearchAll     = "search_all"
	ToolGetMedia      = "get_media"
	ToolCatalogStats  = "catalog_stats"
	ToolIndexStatus   = "index_status"
	ToolDecodeFileRef = "decode_file_id"
)

// Catalog is the read side of the store the tools need.
type Catalog interface {
	GetStats() (*store.Stats, error)
	GetMedia(ctx context.Context, key string) (*store.MediaEntry, error)
}

// Searcher runs paged and unbounded searches.
type Searcher interface {
	Search(ctx context.Context, req query.Request) (*query.Page, error)
	SearchUnbounded(ctx context.Context, q, kind string) ([]store.MediaEntry, int, error)
}

// StatusReporter reports the indexer's latest snapshot.
type StatusReporter interface {
	Status() ingest.Snapshot
}

var (
	_ Catalog  = (*store.Store)(nil)
	_ Searcher = (*query.Service)(nil)
)

func withKind() mcp.ToolOption {
	return mcp.WithString("kind",
		mcp.Description("Only media of this kind"),
		mcp.Enum(store.KindVideo, store.KindAudio, store.KindDocument),
	)
}

func withQuery() mcp.ToolOption {
	return mcp.WithString("query",
		mcp.Required(),
		mcp.Description("File name words to match, e.g. 'matrix 1999'. Supports kind:video, kind:audio and kind:document."),
	)
}

// NewServer builds an MCP server with the catalog tools. status may be nil,
// in which case index_status is not offered.
func NewServer(catalog Catalog, searcher Searcher, status StatusReporter, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"mediavault",
		version,
		server.WithToolCapabilities(false),
	)

	h := &handlers{catalog: catalog, searcher: searcher, status: status}

	s.AddTool(searchMediaTool(), h.searchMedia)
	s.AddTool(searchAllTool(), h.searchAll)
	s.AddTool(getMediaTool(), h.getMedia)
	s.AddTool(catalogStatsTool(), h.catalogStats)
	s.AddTool(decodeFileIDTool(), h.decodeFileID)
	if status != nil {
		s.AddTool(indexStatusTool(), h.indexStatus)
	}
	return s
}

// Serve runs the catalog tools over stdio. It blocks until stdin is closed
// or the context is cancelled.
func Serve(ctx context.Context, catalog Catalog, searcher Searcher, status StatusReporter, version string) error {
	stdio := server.NewStdioServer(NewServer(catalog, searcher, status, version))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func searchMediaTool() mcp.Tool {
	return mcp.NewTool(ToolSearchMedia,
		mcp.WithDescription("Search the media catalog by file name. Every word must appear as a whole word. Results are newest first and paged; pass next_offset back as offset for the following page."),
		mcp.WithReadOnlyHintAnnotation(true),
		withQuery(),
		mcp.WithString("scope",
			mcp.Description("Chat whose search settings apply (page size, caption matching)"),
		),
		mcp.WithString("offset",
			mcp.Description("Cursor from a previous next_offset (default start)"),
		),
		withKind(),
	)
}

func searchAllTool() mcp.Tool {
	return mcp.NewTool(ToolSearchAll,
		mcp.WithDescription("Return every catalog entry matching the query, up to the configured cap, ignoring paging."),
		mcp.WithReadOnlyHintAnnotation(true),
		withQuery(),
		withKind(),
	)
}

func getMediaTool() mcp.Tool {
	return mcp.NewTool(ToolGetMedia,
		mcp.WithDescription("Get one catalog entry by its content key."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("Content key (from a search result)"),
		),
	)
}

func catalogStatsTool() mcp.Tool {
	return mcp.NewTool(ToolCatalogStats,
		mcp.WithDescription("Get catalog overview: entry counts per kind, total size and database size."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func indexStatusTool() mcp.Tool {
	return mcp.NewTool(ToolIndexStatus,
		mcp.WithDescription("Get the progress counters of the current or last index run."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func decodeFileIDTool() mcp.Tool {
	return mcp.NewTool(ToolDecodeFileRef,
		mcp.WithDescription("Decode a Telegram Bot API file_id into its catalog content key and access token."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("file_id",
			mcp.Required(),
			mcp.Description("Bot API file_id"),
		),
	)
}
