// Package query answers catalog lookups: paginated searches for end users
// and unbounded searches for bulk cleanup.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mediavault/mediavault/internal/metrics"
	"github.com/mediavault/mediavault/internal/search"
	"github.com/mediavault/mediavault/internal/store"
)

// DefaultPageSize is the page size used for scopes with unrestricted
// paging enabled.
const DefaultPageSize = 10

// ErrInvalidOffset is returned for a malformed or negative offset cursor.
var ErrInvalidOffset = errors.New("query: invalid offset")

// Options configures a Service.
type Options struct {
	// MaxResults is the page size for scopes without unrestricted paging.
	MaxResults int
	// Defaults apply to scopes that have no stored settings.
	Defaults store.ScopeSettings
	// UnboundedCap bounds SearchUnbounded results.
	UnboundedCap int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxResults:   10,
		UnboundedCap: 1000,
	}
}

// Request is one paginated search.
type Request struct {
	Scope  string // Chat the query came from; empty uses Options.Defaults
	Query  string
	Offset int
	Kind   string // Optional media kind filter
}

// Page is one page of search results.
type Page struct {
	Entries    []store.MediaEntry
	NextOffset string // Empty when this is the last page
	Total      int
	PageSize   int
}

// Service answers searches against a catalog.
type Service struct {
	store  Store
	opts   Options
	logger *slog.Logger
}

// NewService creates a search service.
func NewService(st Store, opts Options) *Service {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultOptions().MaxResults
	}
	if opts.UnboundedCap <= 0 {
		opts.UnboundedCap = DefaultOptions().UnboundedCap
	}
	return &Service{
		store:  st,
		opts:   opts,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// Settings resolves the search settings for scope.
func (s *Service) Settings(ctx context.Context, scope string) (store.ScopeSettings, error) {
	if scope == "" {
		return s.opts.Defaults, nil
	}
	return s.store.ResolveScope(ctx, scope, s.opts.Defaults)
}

// PageSize returns the page size for the given settings.
func (s *Service) PageSize(settings store.ScopeSettings) int {
	if settings.PageUnrestricted {
		return DefaultPageSize
	}
	return s.opts.MaxResults
}

// Search returns one page of entries matching req, newest first. The next
// offset is derived from the total count, not from the page length, so a
// catalog that grows during pagination never yields a cursor past the end
// of the counted results.
func (s *Service) Search(ctx context.Context, req Request) (page *Page, err error) {
	start := time.Now()
	defer func() { observe("paged", start, err) }()

	if req.Offset < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOffset, req.Offset)
	}
	if req.Kind != "" && !store.ValidKind(req.Kind) {
		return nil, fmt.Errorf("%w: %q", store.ErrInvalidKind, req.Kind)
	}

	settings, err := s.Settings(ctx, req.Scope)
	if err != nil {
		return nil, err
	}
	size := s.PageSize(settings)

	filter := store.Filter{
		Terms:          search.Terms(req.Query),
		Kind:           req.Kind,
		IncludeCaption: settings.UseCaptionFilter,
	}

	total, err := s.store.CountMedia(ctx, filter)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.FindMedia(ctx, filter, size, req.Offset)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("search",
		"scope", req.Scope,
		"terms", filter.Terms,
		"kind", req.Kind,
		"offset", req.Offset,
		"total", total,
	)

	return &Page{
		Entries:    entries,
		NextOffset: NextOffset(req.Offset, size, total),
		Total:      total,
		PageSize:   size,
	}, nil
}

// SearchUnbounded returns every entry matching query, newest first, up to
// the configured cap. It ignores scope settings and paging; captions are
// matched when the default settings enable it. The second result is the
// uncapped match count.
func (s *Service) SearchUnbounded(ctx context.Context, query, kind string) (entries []store.MediaEntry, total int, err error) {
	start := time.Now()
	defer func() { observe("unbounded", start, err) }()

	if kind != "" && !store.ValidKind(kind) {
		return nil, 0, fmt.Errorf("%w: %q", store.ErrInvalidKind, kind)
	}
	filter := store.Filter{
		Terms:          search.Terms(query),
		Kind:           kind,
		IncludeCaption: s.opts.Defaults.UseCaptionFilter,
	}
	total, err = s.store.CountMedia(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	entries, err = s.store.FindMedia(ctx, filter, s.opts.UnboundedCap, 0)
	if err != nil {
		return nil, 0, err
	}
	if total > len(entries) {
		s.logger.Warn("unbounded search capped", "query", query, "total", total, "cap", s.opts.UnboundedCap)
	}
	return entries, total, nil
}

// NextOffset returns the cursor for the page after offset, or "" when
// offset+size reaches total.
func NextOffset(offset, size, total int) string {
	next := offset + size
	if next >= total {
		return ""
	}
	return strconv.Itoa(next)
}

// ParseOffset parses a cursor produced by NextOffset. Empty means 0.
func ParseOffset(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, s)
	}
	return n, nil
}

func observe(mode string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.SearchesTotal.WithLabelValues(mode, status).Inc()
	metrics.SearchDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}
