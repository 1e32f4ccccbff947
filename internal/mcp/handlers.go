package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mediavault/mediavault/internal/fileref"
	"github.com/mediavault/mediavault/internal/query"
	"github.com/mediavault/mediavault/internal/search"
	"github.com/mediavault/mediavault/internal/store"
)

type handlers struct {
	catalog  Catalog
	searcher Searcher
	status   StatusReporter
}

// mediaJSON is the tool representation of a catalog entry.
type mediaJSON struct {
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

func toJSON(e *store.MediaEntry) mediaJSON {
	return mediaJSON{
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

func toJSONList(entries []store.MediaEntry) []mediaJSON {
	out := make([]mediaJSON, len(entries))
	for i := range entries {
		out[i] = toJSON(&entries[i])
	}
	return out
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

// parseQuery applies search operators from the query argument. An explicit
// kind argument wins over a kind: operator.
func parseQuery(args map[string]any) (*search.Query, error) {
	raw := stringArg(args, "query")
	if raw == "" {
		return nil, errors.New("query parameter is required")
	}
	q := search.Parse(raw)
	if k := stringArg(args, "kind"); k != "" {
		q.Kind = k
	}
	if q.IsEmpty() {
		return nil, errors.New("query has no searchable words")
	}
	return q, nil
}

func (h *handlers) searchMedia(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	q, err := parseQuery(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	offset, err := query.ParseOffset(stringArg(args, "offset"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	page, err := h.searcher.Search(ctx, query.Request{
		Scope:  stringArg(args, "scope"),
		Query:  q.Text,
		Offset: offset,
		Kind:   q.Kind,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	resp := struct {
		Total      int         `json:"total"`
		PageSize   int         `json:"page_size"`
		NextOffset string      `json:"next_offset,omitempty"`
		Results    []mediaJSON `json:"results"`
	}{
		Total:      page.Total,
		PageSize:   page.PageSize,
		NextOffset: page.NextOffset,
		Results:    toJSONList(page.Entries),
	}
	return jsonResult(resp)
}

func (h *handlers) searchAll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := parseQuery(req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	entries, total, err := h.searcher.SearchUnbounded(ctx, q.Text, q.Kind)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	resp := struct {
		Total     int         `json:"total"`
		Truncated bool        `json:"truncated"`
		Results   []mediaJSON `json:"results"`
	}{
		Total:     total,
		Truncated: total > len(entries),
		Results:   toJSONList(entries),
	}
	return jsonResult(resp)
}

func (h *handlers) getMedia(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key := stringArg(req.GetArguments(), "key")
	if key == "" {
		return mcp.NewToolResultError("key parameter is required"), nil
	}

	entry, err := h.catalog.GetMedia(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError("media not found"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get media failed: %v", err)), nil
	}
	return jsonResult(toJSON(entry))
}

func (h *handlers) catalogStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := h.catalog.GetStats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stats failed: %v", err)), nil
	}

	resp := struct {
		Media        int64 `json:"media"`
		Videos       int64 `json:"videos"`
		Audio        int64 `json:"audio"`
		Documents    int64 `json:"documents"`
		TotalBytes   int64 `json:"total_bytes"`
		Scopes       int64 `json:"scopes"`
		DatabaseSize int64 `json:"database_size_bytes"`
	}{
		Media:        stats.MediaCount,
		Videos:       stats.VideoCount,
		Audio:        stats.AudioCount,
		Documents:    stats.DocumentCount,
		TotalBytes:   stats.TotalBytes,
		Scopes:       stats.ScopeCount,
		DatabaseSize: stats.DatabaseSize,
	}
	return jsonResult(resp)
}

func (h *handlers) indexStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.status == nil {
		return mcp.NewToolResultError("indexer not available"), nil
	}
	return jsonResult(h.status.Status())
}

func (h *handlers) decodeFileID(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fileID := stringArg(req.GetArguments(), "file_id")
	if fileID == "" {
		return mcp.NewToolResultError("file_id parameter is required"), nil
	}

	ref, err := fileref.Decode(fileID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	key, token, err := fileref.Unpack(fileID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp := struct {
		Key         string `json:"key"`
		AccessToken string `json:"access_token"`
		Type        int32  `json:"type"`
		DCID        int32  `json:"dc_id"`
		MediaID     int64  `json:"media_id"`
		Version     string `json:"version"`
	}{
		Key:         key,
		AccessToken: token,
		Type:        int32(ref.Type),
		DCID:        ref.DCID,
		MediaID:     ref.MediaID,
		Version:     fmt.Sprintf("%d.%d", ref.Major, ref.Minor),
	}
	return jsonResult(resp)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
