package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mediavault/mediavault/internal/chatref"
	"github.com/mediavault/mediavault/internal/ingest"
	"github.com/mediavault/mediavault/internal/metrics"
	"github.com/mediavault/mediavault/internal/query"
	"github.com/mediavault/mediavault/internal/search"
	"github.com/mediavault/mediavault/internal/store"
)

// StatsResponse represents catalog statistics.
type StatsResponse struct {
	TotalMedia    int64  `json:"total_media"`
	Videos        int64  `json:"videos"`
	Audio         int64  `json:"audio"`
	Documents     int64  `json:"documents"`
	TotalBytes    int64  `json:"total_bytes"`
	Scopes        int64  `json:"scopes"`
	DatabaseSize  int64  `json:"database_size_bytes"`
	IndexerStatus string `json:"indexer_status,omitempty"`
}

// MediaResponse is one catalog entry.
type MediaResponse struct {
	Key             string `json:"key"`
	AccessToken     string `json:"access_token"`
	Name            string `json:"name"`
	Kind            string `json:"kind"`
	SizeBytes       int64  `json:"size_bytes"`
	MimeType        string `json:"mime_type,omitempty"`
	Caption         string `json:"caption,omitempty"`
	SourceChat      string `json:"source_chat,omitempty"`
	SourceMessageID int64  `json:"source_message_id,omitempty"`
	IndexedAt       string `json:"indexed_at"`
}

// SearchResponse is one page of search results.
type SearchResponse struct {
	Query      string          `json:"query"`
	Kind       string          `json:"kind,omitempty"`
	Total      int             `json:"total"`
	PageSize   int             `json:"page_size"`
	NextOffset string          `json:"next_offset,omitempty"`
	Results    []MediaResponse `json:"results"`
}

// ScopeResponse carries the search settings of a scope.
type ScopeResponse struct {
	Scope            string `json:"scope"`
	PageUnrestricted bool   `json:"page_unrestricted"`
	UseCaptionFilter bool   `json:"use_caption_filter"`
}

// IndexRequest starts an index run. A nil Floor resumes from the chat's
// stored floor.
type IndexRequest struct {
	Chat          string `json:"chat"`
	LastMessageID int    `json:"last_message_id"`
	Floor         *int   `json:"floor,omitempty"`
}

// SchedulerStatusResponse represents scheduler status.
type SchedulerStatusResponse struct {
	Running bool           `json:"running"`
	Sources []SourceStatus `json:"sources"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

func toMediaResponse(e *store.MediaEntry) MediaResponse {
	return MediaResponse{
		Key:             e.ContentKey,
		AccessToken:     e.AccessToken,
		Name:            e.DisplayName,
		Kind:            e.Kind,
		SizeBytes:       e.SizeBytes,
		MimeType:        e.MimeType.String,
		Caption:         e.Caption.String,
		SourceChat:      e.SourceChat.String,
		SourceMessageID: e.SourceMessageID.Int64,
		IndexedAt:       e.IndexedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) requireCatalog(w http.ResponseWriter) bool {
	if s.catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Database not available")
		return false
	}
	return true
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireCatalog(w) {
		return
	}
	stats, err := s.catalog.GetStats()
	if err != nil {
		s.logger.Error("failed to get stats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve statistics")
		return
	}

	resp := StatsResponse{
		TotalMedia:   stats.MediaCount,
		Videos:       stats.VideoCount,
		Audio:        stats.AudioCount,
		Documents:    stats.DocumentCount,
		TotalBytes:   stats.TotalBytes,
		Scopes:       stats.ScopeCount,
		DatabaseSize: stats.DatabaseSize,
	}
	if s.indexer != nil {
		resp.IndexerStatus = string(s.indexer.Status().Status)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSearch runs one paginated search. Operators such as kind:video in
// q are honoured; an explicit kind parameter wins over them.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.searcher == nil {
		writeError(w, http.StatusServiceUnavailable, "search_unavailable", "Search not available")
		return
	}

	params := r.URL.Query()
	q := search.Parse(params.Get("q"))
	if k := params.Get("kind"); k != "" {
		q.Kind = k
	}
	if q.IsEmpty() {
		writeError(w, http.StatusBadRequest, "missing_query", "Query parameter 'q' is required")
		return
	}
	offset, err := query.ParseOffset(params.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_offset", err.Error())
		return
	}

	page, err := s.searcher.Search(r.Context(), query.Request{
		Scope:  params.Get("scope"),
		Query:  q.Text,
		Offset: offset,
		Kind:   q.Kind,
	})
	if err != nil {
		if errors.Is(err, query.ErrInvalidOffset) || errors.Is(err, store.ErrInvalidKind) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		s.logger.Error("search failed", "query", q.Text, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Search failed")
		return
	}

	results := make([]MediaResponse, len(page.Entries))
	for i := range page.Entries {
		results[i] = toMediaResponse(&page.Entries[i])
	}
	writeJSON(w, http.StatusOK, SearchResponse{
		Query:      q.Text,
		Kind:       q.Kind,
		Total:      page.Total,
		PageSize:   page.PageSize,
		NextOffset: page.NextOffset,
		Results:    results,
	})
}

func (s *Server) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	if !s.requireCatalog(w) {
		return
	}
	key := chi.URLParam(r, "key")
	entry, err := s.catalog.GetMedia(r.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Media not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get media", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve media")
		return
	}
	writeJSON(w, http.StatusOK, toMediaResponse(entry))
}

func (s *Server) handleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	if !s.requireCatalog(w) {
		return
	}
	key := chi.URLParam(r, "key")
	deleted, err := s.catalog.DeleteMedia(r.Context(), key)
	if err != nil {
		s.logger.Error("failed to delete media", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to delete media")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not_found", "Media not found")
		return
	}
	metrics.MediaDeletedTotal.Inc()
	s.logger.Info("media deleted via API", "key", key)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetScope(w http.ResponseWriter, r *http.Request) {
	if !s.requireCatalog(w) {
		return
	}
	scope := chi.URLParam(r, "scope")
	def := store.ScopeSettings{UseCaptionFilter: s.cfg.Search.UseCaptionFilter}
	settings, err := s.catalog.ResolveScope(r.Context(), scope, def)
	if err != nil {
		s.logger.Error("failed to resolve scope", "scope", scope, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to read scope settings")
		return
	}
	writeJSON(w, http.StatusOK, ScopeResponse{
		Scope:            scope,
		PageUnrestricted: settings.PageUnrestricted,
		UseCaptionFilter: settings.UseCaptionFilter,
	})
}

func (s *Server) handlePutScope(w http.ResponseWriter, r *http.Request) {
	if !s.requireCatalog(w) {
		return
	}
	scope := chi.URLParam(r, "scope")
	var body ScopeResponse
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	settings := store.ScopeSettings{
		PageUnrestricted: body.PageUnrestricted,
		UseCaptionFilter: body.UseCaptionFilter,
	}
	if err := s.catalog.SetScope(r.Context(), scope, settings); err != nil {
		s.logger.Error("failed to set scope", "scope", scope, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to store scope settings")
		return
	}
	body.Scope = scope
	writeJSON(w, http.StatusOK, body)
}

// handleStartIndex starts a background run. Progress goes to the log; poll
// /index/status for snapshots.
func (s *Server) handleStartIndex(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		writeError(w, http.StatusServiceUnavailable, "indexer_unavailable", "Indexer not available")
		return
	}
	if !s.requireCatalog(w) {
		return
	}

	var req IndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	chat := chatref.Canonical(req.Chat)
	if chat == "" {
		writeError(w, http.StatusBadRequest, "invalid_chat", fmt.Sprintf("invalid chat %q", req.Chat))
		return
	}

	var opts ingest.Options
	if req.Floor != nil {
		opts = ingest.Options{Chat: chat, Last: req.LastMessageID, Floor: *req.Floor}
	} else {
		var err error
		opts, err = ingest.OptionsFor(r.Context(), s.catalog, chat, req.LastMessageID)
		if err != nil && !errors.Is(err, ingest.ErrInvalidRange) {
			s.logger.Error("failed to read floor", "chat", chat, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to read index floor")
			return
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
			return
		}
	}

	// The run outlives the request.
	ctx := context.WithoutCancel(r.Context())
	jobID, err := s.indexer.Start(ctx, opts, ingest.LogSink{Logger: s.logger}, func(res *ingest.Result) {
		s.logger.Info("API index run finished",
			"job", res.JobID, "chat", res.Chat, "status", res.Status, "saved", res.Counters.Saved)
	})
	switch {
	case errors.Is(err, ingest.ErrConcurrentRun):
		writeError(w, http.StatusConflict, "index_running", err.Error())
		return
	case errors.Is(err, ingest.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
		return
	case err != nil:
		s.logger.Error("failed to start index", "chat", req.Chat, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to start index run")
		return
	}

	s.logger.Info("index started via API", "job", jobID, "chat", opts.Chat, "floor", opts.Floor, "last", opts.Last)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "accepted",
		"job_id": jobID,
		"chat":   opts.Chat,
		"floor":  opts.Floor,
		"last":   opts.Last,
	})
}

func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		writeError(w, http.StatusServiceUnavailable, "indexer_unavailable", "Indexer not available")
		return
	}
	writeJSON(w, http.StatusOK, s.indexer.Status())
}

func (s *Server) handleCancelIndex(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		writeError(w, http.StatusServiceUnavailable, "indexer_unavailable", "Indexer not available")
		return
	}
	if !s.indexer.Cancel() {
		writeError(w, http.StatusConflict, "not_running", "No index run in progress")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeJSON(w, http.StatusOK, SchedulerStatusResponse{Sources: []SourceStatus{}})
		return
	}
	writeJSON(w, http.StatusOK, SchedulerStatusResponse{
		Running: s.scheduler.IsRunning(),
		Sources: s.scheduler.Status(),
	})
}

func (s *Server) handleTriggerIndex(w http.ResponseWriter, r *http.Request) {
	chat := chi.URLParam(r, "chat")
	if s.scheduler == nil || !s.scheduler.IsScheduled(chat) {
		writeError(w, http.StatusNotFound, "not_scheduled", "Chat "+chat+" is not scheduled")
		return
	}

	if err := s.scheduler.TriggerIndex(chat); err != nil {
		s.logger.Error("failed to trigger index", "chat", chat, "error", err)
		writeError(w, http.StatusConflict, "index_error", err.Error())
		return
	}

	s.logger.Info("index triggered via API", "chat", chat)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": "Index started for " + chat,
	})
}
