package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mediavault/mediavault/internal/ingest"
	"github.com/mediavault/mediavault/internal/query"
	"github.com/mediavault/mediavault/internal/store"
	"github.com/mediavault/mediavault/internal/testutil"
)

type testEnv struct {
	srv     *Server
	store   *store.Store
	indexer *mockIndexer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := testutil.NewTestStore(t)
	ctx := context.Background()
	entries := []*store.MediaEntry{
		testutil.NewMedia("k1").WithName("The.Matrix.1999.1080p.mkv").WithSource("-1001", 11).Build(),
		testutil.NewMedia("k2").WithName("The Matrix Reloaded.mkv").WithCaption("sequel").Build(),
		testutil.NewMedia("k3").WithName("Matrix OST.mp3").WithKind(store.KindAudio).WithMime("audio/mpeg").Build(),
		testutil.NewMedia("k4").WithName("Report.pdf").WithKind(store.KindDocument).WithCaption("matrix notes").Build(),
	}
	for _, e := range entries {
		testutil.MustNoErr(t, st.InsertMedia(ctx, e), "InsertMedia")
	}

	cfg := testConfig()
	svc := query.NewService(st, query.Options{MaxResults: 2}).WithLogger(testLogger())
	idx := &mockIndexer{status: ingest.Snapshot{Status: ingest.StatusIdle}}
	srv := NewServer(cfg, Deps{Catalog: st, Searcher: svc, Indexer: idx, Scheduler: newMockScheduler()}, testLogger())
	return &testEnv{srv: srv, store: st, indexer: idx}
}

func resultKeys(resp SearchResponse) []string {
	keys := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		keys[i] = r.Key
	}
	return keys
}

func TestHandleStats(t *testing.T) {
	env := newTestEnv(t)

	w := serve(t, env.srv, "GET", "/api/v1/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decode[StatsResponse](t, w)
	want := StatsResponse{
		TotalMedia:    4,
		Videos:        2,
		Audio:         1,
		Documents:     1,
		TotalBytes:    4096,
		IndexerStatus: "idle",
	}
	resp.DatabaseSize = 0
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleSearch(t *testing.T) {
	env := newTestEnv(t)

	w := serve(t, env.srv, "GET", "/api/v1/search?q=matrix", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body)
	}
	resp := decode[SearchResponse](t, w)
	if resp.Total != 3 || resp.PageSize != 2 || resp.NextOffset != "2" {
		t.Errorf("page = total %d size %d next %q, want 3/2/\"2\"", resp.Total, resp.PageSize, resp.NextOffset)
	}
	testutil.AssertStrings(t, resultKeys(resp), "k3", "k2")

	resp = decode[SearchResponse](t, serve(t, env.srv, "GET", "/api/v1/search?q=matrix&offset=2", ""))
	testutil.AssertStrings(t, resultKeys(resp), "k1")
	if resp.NextOffset != "" {
		t.Errorf("last page NextOffset = %q, want empty", resp.NextOffset)
	}
}

func TestHandleSearchKindOperator(t *testing.T) {
	env := newTestEnv(t)

	resp := decode[SearchResponse](t, serve(t, env.srv, "GET", "/api/v1/search?q=kind:audio+matrix", ""))
	testutil.AssertStrings(t, resultKeys(resp), "k3")
	if resp.Kind != "audio" || resp.Query != "matrix" {
		t.Errorf("parsed query = %q kind %q", resp.Query, resp.Kind)
	}

	// The kind parameter overrides the operator.
	resp = decode[SearchResponse](t, serve(t, env.srv, "GET", "/api/v1/search?q=kind:audio+matrix&kind=video", ""))
	testutil.AssertStrings(t, resultKeys(resp), "k2", "k1")
}

func TestHandleSearchScopeCaptionFilter(t *testing.T) {
	env := newTestEnv(t)
	testutil.MustNoErr(t, env.store.SetScope(context.Background(), "-1002", store.ScopeSettings{UseCaptionFilter: true, PageUnrestricted: true}), "SetScope")

	resp := decode[SearchResponse](t, serve(t, env.srv, "GET", "/api/v1/search?q=notes&scope=-1002", ""))
	testutil.AssertStrings(t, resultKeys(resp), "k4")
	if resp.PageSize != query.DefaultPageSize {
		t.Errorf("PageSize = %d, want %d", resp.PageSize, query.DefaultPageSize)
	}

	resp = decode[SearchResponse](t, serve(t, env.srv, "GET", "/api/v1/search?q=notes", ""))
	if resp.Total != 0 {
		t.Errorf("caption match without caption filter: total = %d", resp.Total)
	}
}

func TestHandleSearchBadRequests(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name, path, wantErr string
	}{
		{"missing query", "/api/v1/search", "missing_query"},
		{"punctuation only", "/api/v1/search?q=..", "missing_query"},
		{"bad offset", "/api/v1/search?q=matrix&offset=abc", "invalid_offset"},
		{"negative offset", "/api/v1/search?q=matrix&offset=-5", "invalid_offset"},
		{"unknown kind param", "/api/v1/search?q=matrix&kind=photo", "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, env.srv, "GET", tt.path, "")
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if resp := decode[ErrorResponse](t, w); resp.Error != tt.wantErr {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantErr)
			}
		})
	}
}

func TestHandleGetMedia(t *testing.T) {
	env := newTestEnv(t)

	w := serve(t, env.srv, "GET", "/api/v1/media/k1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decode[MediaResponse](t, w)
	if resp.Name != "The.Matrix.1999.1080p.mkv" || resp.SourceChat != "-1001" || resp.SourceMessageID != 11 {
		t.Errorf("media = %+v", resp)
	}
	if resp.AccessToken != "tok-k1" || resp.Kind != "video" {
		t.Errorf("media = %+v", resp)
	}

	if w := serve(t, env.srv, "GET", "/api/v1/media/missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing media status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleDeleteMedia(t *testing.T) {
	env := newTestEnv(t)

	if w := serve(t, env.srv, "DELETE", "/api/v1/media/k2", ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w := serve(t, env.srv, "DELETE", "/api/v1/media/k2", ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if _, err := env.store.GetMedia(context.Background(), "k2"); err != store.ErrNotFound {
		t.Errorf("GetMedia after delete = %v, want ErrNotFound", err)
	}
}

func TestHandleScopes(t *testing.T) {
	env := newTestEnv(t)

	resp := decode[ScopeResponse](t, serve(t, env.srv, "GET", "/api/v1/scopes/-1001", ""))
	if diff := cmp.Diff(ScopeResponse{Scope: "-1001"}, resp); diff != "" {
		t.Errorf("default scope mismatch (-want +got):\n%s", diff)
	}

	w := serve(t, env.srv, "PUT", "/api/v1/scopes/-1001", `{"page_unrestricted":true,"use_caption_filter":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", w.Code, w.Body)
	}

	resp = decode[ScopeResponse](t, serve(t, env.srv, "GET", "/api/v1/scopes/-1001", ""))
	want := ScopeResponse{Scope: "-1001", PageUnrestricted: true, UseCaptionFilter: true}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("stored scope mismatch (-want +got):\n%s", diff)
	}

	if w := serve(t, env.srv, "PUT", "/api/v1/scopes/-1001", `{not json`); w.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleStartIndex(t *testing.T) {
	env := newTestEnv(t)
	testutil.MustNoErr(t, env.store.SetIngestFloor(context.Background(), "-1001", 40), "SetIngestFloor")

	w := serve(t, env.srv, "POST", "/api/v1/index", `{"chat":"-1001","last_message_id":120}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusAccepted, w.Body)
	}
	if resp := decode[map[string]interface{}](t, w); resp["job_id"] != "job-1" {
		t.Errorf("job_id = %v", resp["job_id"])
	}

	w = serve(t, env.srv, "POST", "/api/v1/index", `{"chat":"-1002","last_message_id":50,"floor":10}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("explicit floor status = %d", w.Code)
	}

	// A floor stored under one spelling of a username applies to the others.
	testutil.MustNoErr(t, env.store.SetIngestFloor(context.Background(), "Films", 500), "SetIngestFloor films")
	w = serve(t, env.srv, "POST", "/api/v1/index", `{"chat":"@FILMS","last_message_id":900}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("username status = %d: %s", w.Code, w.Body)
	}

	want := []ingest.Options{
		{Chat: "-1001", Last: 120, Floor: 40},
		{Chat: "-1002", Last: 50, Floor: 10},
		{Chat: "@films", Last: 900, Floor: 500},
	}
	if diff := cmp.Diff(want, env.indexer.started); diff != "" {
		t.Errorf("started runs mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleStartIndexErrors(t *testing.T) {
	env := newTestEnv(t)
	testutil.MustNoErr(t, env.store.SetIngestFloor(context.Background(), "-1001", 200), "SetIngestFloor")

	if w := serve(t, env.srv, "POST", "/api/v1/index", `{"chat":"-1001","last_message_id":120}`); w.Code != http.StatusBadRequest {
		t.Errorf("floor above last status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if w := serve(t, env.srv, "POST", "/api/v1/index", `nope`); w.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	env.indexer.startErr = ingest.ErrInvalidRange
	if w := serve(t, env.srv, "POST", "/api/v1/index", `{"chat":"","last_message_id":5,"floor":0}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid range status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	env.indexer.startErr = ingest.ErrConcurrentRun
	w := serve(t, env.srv, "POST", "/api/v1/index", `{"chat":"-1003","last_message_id":5}`)
	if w.Code != http.StatusConflict {
		t.Errorf("concurrent run status = %d, want %d", w.Code, http.StatusConflict)
	}
	if resp := decode[ErrorResponse](t, w); resp.Error != "index_running" {
		t.Errorf("error = %q, want index_running", resp.Error)
	}
}

func TestHandleIndexStatusAndCancel(t *testing.T) {
	env := newTestEnv(t)

	if w := serve(t, env.srv, "POST", "/api/v1/index/cancel", ""); w.Code != http.StatusConflict {
		t.Errorf("cancel while idle = %d, want %d", w.Code, http.StatusConflict)
	}

	env.indexer.running = true
	env.indexer.status = ingest.Snapshot{
		JobID:     "job-1",
		Chat:      "-1001",
		Status:    ingest.StatusRunning,
		Processed: 73,
		Counters:  ingest.Counters{Saved: 73},
	}

	snap := decode[ingest.Snapshot](t, serve(t, env.srv, "GET", "/api/v1/index/status", ""))
	if snap.Status != ingest.StatusRunning || snap.Counters.Saved != 73 || snap.JobID != "job-1" {
		t.Errorf("status snapshot = %+v", snap)
	}

	if w := serve(t, env.srv, "POST", "/api/v1/index/cancel", ""); w.Code != http.StatusAccepted {
		t.Errorf("cancel while running = %d, want %d", w.Code, http.StatusAccepted)
	}
}
