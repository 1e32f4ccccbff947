// Package api provides the HTTP API server for mediavault.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mediavault/mediavault/internal/config"
	"github.com/mediavault/mediavault/internal/ingest"
	"github.com/mediavault/mediavault/internal/metrics"
	"github.com/mediavault/mediavault/internal/query"
	"github.com/mediavault/mediavault/internal/scheduler"
	"github.com/mediavault/mediavault/internal/store"
)

// Catalog defines the store operations the API needs.
type Catalog interface {
	ingest.FloorStore
	GetStats() (*StoreStats, error)
	GetMedia(ctx context.Context, key string) (*store.MediaEntry, error)
	DeleteMedia(ctx context.Context, key string) (bool, error)
	ResolveScope(ctx context.Context, scope string, def store.ScopeSettings) (store.ScopeSettings, error)
	SetScope(ctx context.Context, scope string, settings store.ScopeSettings) error
}

// StoreStats is an alias for store.Stats.
type StoreStats = store.Stats

// Searcher answers paginated catalog searches.
type Searcher interface {
	Search(ctx context.Context, req query.Request) (*query.Page, error)
}

// Indexer runs index passes in the background, one at a time.
type Indexer interface {
	Start(ctx context.Context, opts ingest.Options, sink ingest.ProgressSink, done func(*ingest.Result)) (string, error)
	Cancel() bool
	Status() ingest.Snapshot
}

// IndexScheduler defines the scheduler operations the API needs.
type IndexScheduler interface {
	IsScheduled(chat string) bool
	TriggerIndex(chat string) error
	Status() []SourceStatus
	IsRunning() bool
}

// SourceStatus is an alias for scheduler.SourceStatus.
type SourceStatus = scheduler.SourceStatus

// Server represents the HTTP API server.
type Server struct {
	cfg         *config.Config
	catalog     Catalog
	searcher    Searcher
	indexer     Indexer
	scheduler   IndexScheduler
	logger      *slog.Logger
	router      chi.Router
	server      *http.Server
	rateLimiter *RateLimiter
}

// Deps are the collaborators a Server dispatches to. Nil members disable
// the routes that need them.
type Deps struct {
	Catalog   Catalog
	Searcher  Searcher
	Indexer   Indexer
	Scheduler IndexScheduler
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		catalog:   deps.Catalog,
		searcher:  deps.Searcher,
		indexer:   deps.Indexer,
		scheduler: deps.Scheduler,
		logger:    logger,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(MetricsMiddleware)

	// CORS is disabled when no origins are configured
	r.Use(CORSMiddleware(CORSConfig{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         86400,
	}))

	if s.cfg.Server.RateLimit > 0 {
		s.rateLimiter = NewRateLimiter(s.cfg.Server.RateLimit, s.cfg.Server.RateBurst)
		r.Use(RateLimitMiddleware(s.rateLimiter))
	}

	// Unauthenticated
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/stats", s.handleStats)

		r.Get("/search", s.handleSearch)
		r.Get("/media/{key}", s.handleGetMedia)
		r.Delete("/media/{key}", s.handleDeleteMedia)

		r.Get("/scopes/{scope}", s.handleGetScope)
		r.Put("/scopes/{scope}", s.handlePutScope)

		r.Post("/index", s.handleStartIndex)
		r.Get("/index/status", s.handleIndexStatus)
		r.Post("/index/cancel", s.handleCancelIndex)

		r.Get("/scheduler/status", s.handleSchedulerStatus)
		r.Post("/scheduler/run/{chat}", s.handleTriggerIndex)
	})

	return r
}

// Start begins listening for HTTP requests. It refuses to expose the API
// beyond loopback without an API key.
func (s *Server) Start() error {
	if err := s.cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	addr := s.cfg.ListenAddr()
	if s.cfg.Server.APIKey == "" {
		s.logger.Warn("API server running without authentication; set [server] api_key in config.toml")
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// MetricsMiddleware records request counts and latency per route pattern.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// authMiddleware validates the API key.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("Authorization")
		if key == "" {
			key = r.Header.Get("X-API-Key")
		}
		if len(key) > 7 && key[:7] == "Bearer " {
			key = key[7:]
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Server.APIKey)) != 1 {
			s.logger.Warn("unauthorized API request",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
