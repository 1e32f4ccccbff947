package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mediavault/mediavault/internal/config"
	"github.com/mediavault/mediavault/internal/ingest"
)

// testLogger returns a logger for tests that only prints errors.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Server.RateLimit = 0
	return cfg
}

// mockScheduler implements IndexScheduler for tests.
type mockScheduler struct {
	scheduled map[string]bool
	running   bool
	statuses  []SourceStatus
	triggerFn func(chat string) error
	triggered []string
}

func newMockScheduler() *mockScheduler {
	return &mockScheduler{
		scheduled: make(map[string]bool),
		running:   true,
	}
}

func (m *mockScheduler) IsScheduled(chat string) bool { return m.scheduled[chat] }

func (m *mockScheduler) TriggerIndex(chat string) error {
	m.triggered = append(m.triggered, chat)
	if m.triggerFn != nil {
		return m.triggerFn(chat)
	}
	return nil
}

func (m *mockScheduler) Status() []SourceStatus { return m.statuses }
func (m *mockScheduler) IsRunning() bool        { return m.running }

// mockIndexer implements Indexer for tests.
type mockIndexer struct {
	mu       sync.Mutex
	startErr error
	started  []ingest.Options
	status   ingest.Snapshot
	running  bool
}

func (m *mockIndexer) Start(_ context.Context, opts ingest.Options, _ ingest.ProgressSink, _ func(*ingest.Result)) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return "", m.startErr
	}
	m.started = append(m.started, opts)
	m.running = true
	return "job-1", nil
}

func (m *mockIndexer) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *mockIndexer) Status() ingest.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func serve(t *testing.T, srv *Server, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(testConfig(), Deps{}, testLogger())

	w := serve(t, srv, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", w.Code, http.StatusOK)
	}
	if resp := decode[map[string]string](t, w); resp["status"] != "ok" {
		t.Errorf("health status = %q, want 'ok'", resp["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := NewServer(testConfig(), Deps{}, testLogger())

	// Generate one observation for the route metric.
	serve(t, srv, "GET", "/health", "")

	w := serve(t, srv, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `mediavault_http_requests_total{method="GET",route="/health",status="200"}`) {
		t.Error("metrics output missing /health request counter")
	}
}

func TestAuthMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.Server.APIKey = "secret-key"
	srv := NewServer(cfg, Deps{}, testLogger())

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
	}{
		{"no auth", "", "", http.StatusUnauthorized},
		{"wrong key", "Authorization", "wrong-key", http.StatusUnauthorized},
		// 503 because there is no catalog behind the server
		{"correct key", "Authorization", "secret-key", http.StatusServiceUnavailable},
		{"bearer prefix", "Authorization", "Bearer secret-key", http.StatusServiceUnavailable},
		{"x-api-key header", "X-API-Key", "secret-key", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers []string
			if tt.header != "" {
				headers = []string{tt.header, tt.value}
			}
			w := serve(t, srv, "GET", "/api/v1/stats", "", headers...)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}

	// Health stays open.
	if w := serve(t, srv, "GET", "/health", ""); w.Code != http.StatusOK {
		t.Errorf("GET /health with auth configured = %d", w.Code)
	}
}

func TestAuthMiddlewareNoKeyConfigured(t *testing.T) {
	srv := NewServer(testConfig(), Deps{Scheduler: newMockScheduler()}, testLogger())

	if w := serve(t, srv, "GET", "/api/v1/scheduler/status", ""); w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d when no API key configured", w.Code, http.StatusOK)
	}
}

func TestSchedulerStatusEndpoint(t *testing.T) {
	sched := newMockScheduler()
	sched.statuses = []SourceStatus{
		{Chat: "@films", Schedule: "0 2 * * *", NextRun: time.Now().Add(time.Hour)},
	}
	srv := NewServer(testConfig(), Deps{Scheduler: sched}, testLogger())

	w := serve(t, srv, "GET", "/api/v1/scheduler/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decode[SchedulerStatusResponse](t, w)
	if !resp.Running {
		t.Error("expected scheduler to be running")
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Chat != "@films" {
		t.Errorf("sources = %+v", resp.Sources)
	}

	sched.running = false
	if resp := decode[SchedulerStatusResponse](t, serve(t, srv, "GET", "/api/v1/scheduler/status", "")); resp.Running {
		t.Error("expected scheduler to NOT be running")
	}
}

func TestSchedulerStatusWithoutScheduler(t *testing.T) {
	srv := NewServer(testConfig(), Deps{}, testLogger())

	resp := decode[SchedulerStatusResponse](t, serve(t, srv, "GET", "/api/v1/scheduler/status", ""))
	if resp.Running || len(resp.Sources) != 0 {
		t.Errorf("resp = %+v, want idle and empty", resp)
	}
}

func TestTriggerIndex(t *testing.T) {
	sched := newMockScheduler()
	sched.scheduled["@films"] = true
	srv := NewServer(testConfig(), Deps{Scheduler: sched}, testLogger())

	if w := serve(t, srv, "POST", "/api/v1/scheduler/run/@films", ""); w.Code != http.StatusAccepted {
		t.Errorf("trigger status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if w := serve(t, srv, "POST", "/api/v1/scheduler/run/@unknown", ""); w.Code != http.StatusNotFound {
		t.Errorf("unscheduled trigger status = %d, want %d", w.Code, http.StatusNotFound)
	}

	sched.triggerFn = func(string) error { return ingest.ErrConcurrentRun }
	if w := serve(t, srv, "POST", "/api/v1/scheduler/run/@films", ""); w.Code != http.StatusConflict {
		t.Errorf("busy trigger status = %d, want %d", w.Code, http.StatusConflict)
	}
	if len(sched.triggered) != 2 {
		t.Errorf("triggered = %v, want 2 calls", sched.triggered)
	}
}

func TestNilDepsReturn503(t *testing.T) {
	srv := NewServer(testConfig(), Deps{}, testLogger())

	endpoints := []struct{ method, path, body string }{
		{"GET", "/api/v1/stats", ""},
		{"GET", "/api/v1/search?q=matrix", ""},
		{"GET", "/api/v1/media/abc", ""},
		{"DELETE", "/api/v1/media/abc", ""},
		{"GET", "/api/v1/scopes/-1001", ""},
		{"POST", "/api/v1/index", `{"chat":"@films","last_message_id":10}`},
		{"GET", "/api/v1/index/status", ""},
		{"POST", "/api/v1/index/cancel", ""},
	}
	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			w := serve(t, srv, ep.method, ep.path, ep.body)
			if w.Code != http.StatusServiceUnavailable {
				t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
			}
		})
	}
}

func TestStartRefusesInsecureBind(t *testing.T) {
	cfg := testConfig()
	cfg.Server.BindAddr = "0.0.0.0"
	srv := NewServer(cfg, Deps{}, testLogger())

	if err := srv.Start(); err == nil {
		t.Error("Start() on a public address without api_key = nil, want error")
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() = %v", err)
	}
}
