package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clipcast/internal/config"
	"clipcast/internal/jobs"
	"clipcast/internal/media"
	"clipcast/internal/pipeline"
	"clipcast/internal/platform"
	"clipcast/internal/registry"
	"clipcast/internal/scheduler"
	"clipcast/internal/uploader"
	"clipcast/internal/uploadlog"
	"clipcast/internal/youtube"
	logx "clipcast/pkg/logx"
)

type stubAdapter struct{ authed bool }

func (a stubAdapter) Authenticate(context.Context, string) (bool, error) { return a.authed, nil }
func (a stubAdapter) Refresh(context.Context, string) (bool, error)      { return a.authed, nil }
func (a stubAdapter) Publish(context.Context, string, platform.PublishRequest) (platform.PublishResult, error) {
	return platform.PublishResult{RemoteID: "stub"}, nil
}

type stubTranscoder struct{}

func (stubTranscoder) Probe(context.Context, string) (media.Metadata, error) {
	return media.Metadata{Duration: 130, Width: 1080, Height: 1920, Codec: "h264"}, nil
}
func (stubTranscoder) Mux(_ context.Context, _, _, out string) error {
	return os.WriteFile(out, []byte("m"), 0o644)
}
func (stubTranscoder) Cut(_ context.Context, _, out string, _ media.Segment, _ platform.Profile) error {
	return os.WriteFile(out, []byte("c"), 0o644)
}
func (stubTranscoder) Reframe(_ context.Context, _, out string, _ media.Metadata, _, _ int) error {
	return os.WriteFile(out, []byte("r"), 0o644)
}

type stubFetcher struct{}

func (stubFetcher) Download(_ context.Context, _, dir string) (youtube.Source, error) {
	v := filepath.Join(dir, "v.mp4")
	_ = os.WriteFile(v, []byte("v"), 0o644)
	return youtube.Source{VideoPath: v, Title: "t", ID: "x"}, nil
}

type testServer struct {
	srv     *Server
	tracker *jobs.Tracker
	source  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()

	store := config.NewStore(filepath.Join(dir, "accounts.yaml"), logx.Nop())
	if _, err := store.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	reg := registry.New(store, filepath.Join(dir, "accounts"), logx.Nop())

	uploads, err := uploadlog.Open(filepath.Join(dir, "uploads.db"), logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = uploads.Close() })

	adapters := platform.NewAdapters()
	adapters.Register(platform.YouTube, stubAdapter{authed: true})

	exec := uploader.New(reg, uploads, adapters, logx.Nop(), uploader.WithPublishGap(time.Millisecond))
	orch := scheduler.NewOrchestrator(reg, exec, logx.Nop(), time.Hour, time.Second)
	t.Cleanup(orch.StopAll)

	tracker := jobs.NewTracker()
	gen := pipeline.New(reg, stubFetcher{}, stubTranscoder{}, tracker, filepath.Join(dir, "data"), logx.Nop())

	source := filepath.Join(dir, "raw.mp4")
	if err := os.WriteFile(source, []byte("raw"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	return &testServer{
		srv:     NewServer(reg, orch, exec, gen, tracker, adapters, logx.Nop()),
		tracker: tracker,
		source:  source,
	}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echoContentType, "application/json")
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func TestHealth(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestListPlatforms(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/platforms", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var views []platformView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 4 {
		t.Fatalf("platforms = %d, want 4", len(views))
	}
}

func TestAccountLifecycle(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/platforms/youtube/accounts",
		`{"name":"main","title":"cuts","schedule":{"Monday":["09:00"]}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rec.Code, rec.Body)
	}
	var created accountView
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !created.Active || created.Authenticated {
		t.Fatalf("created = %+v, want active and unauthenticated", created)
	}
	if created.ClipDuration != config.DefaultClipDuration {
		t.Fatalf("ClipDuration = %d, want default", created.ClipDuration)
	}

	// Duplicate name on the same platform conflicts.
	if rec := ts.do(t, http.MethodPost, "/api/platforms/youtube/accounts", `{"name":"main"}`); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d", rec.Code)
	}

	// Same name on another platform is fine.
	if rec := ts.do(t, http.MethodPost, "/api/platforms/tiktok/accounts", `{"name":"main"}`); rec.Code != http.StatusCreated {
		t.Fatalf("cross-platform status = %d", rec.Code)
	}

	if rec := ts.do(t, http.MethodGet, "/api/platforms/youtube/accounts/main", ""); rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/platforms/youtube/accounts/ghost", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d", rec.Code)
	}

	if rec := ts.do(t, http.MethodPost, "/api/platforms/youtube/accounts/main/active", `{"active":false}`); rec.Code != http.StatusNoContent {
		t.Fatalf("deactivate status = %d", rec.Code)
	}

	if rec := ts.do(t, http.MethodDelete, "/api/platforms/youtube/accounts/main", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/platforms/youtube/accounts/main", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("after delete status = %d", rec.Code)
	}
}

func TestUnknownPlatformRejected(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/platforms/myspace/accounts", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSchedulerControl(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	if rec := ts.do(t, http.MethodPost, "/api/platforms/youtube/scheduler/start", ""); rec.Code != http.StatusOK {
		t.Fatalf("start status = %d", rec.Code)
	}
	// Starting twice is idempotent.
	if rec := ts.do(t, http.MethodPost, "/api/platforms/youtube/scheduler/start", ""); rec.Code != http.StatusOK {
		t.Fatalf("restart status = %d", rec.Code)
	}

	rec := ts.do(t, http.MethodGet, "/api/scheduler", "")
	var status struct {
		Running []string `json:"running"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(status.Running) != 1 || status.Running[0] != "YouTube" {
		t.Fatalf("running = %v, want [YouTube]", status.Running)
	}

	if rec := ts.do(t, http.MethodPost, "/api/platforms/youtube/scheduler/stop", ""); rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d", rec.Code)
	}
}

func TestReauthSetsFlag(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/platforms/youtube/accounts", `{"name":"main"}`)

	rec := ts.do(t, http.MethodPost, "/api/platforms/youtube/accounts/main/reauth", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reauth status = %d body = %s", rec.Code, rec.Body)
	}

	get := ts.do(t, http.MethodGet, "/api/platforms/youtube/accounts/main", "")
	var view accountView
	if err := json.Unmarshal(get.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !view.Authenticated {
		t.Fatal("account not authenticated after reauth")
	}
}

func TestGenerateReturnsTrackedJob(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/platforms/youtube/accounts", `{"name":"main"}`)

	rec := ts.do(t, http.MethodPost, "/api/platforms/youtube/accounts/main/generate",
		`{"source_path":"`+ts.source+`"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("generate status = %d body = %s", rec.Code, rec.Body)
	}
	var resp struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		get := ts.do(t, http.MethodGet, "/api/jobs/"+resp.JobID, "")
		if get.Code != http.StatusOK {
			t.Fatalf("job status = %d", get.Code)
		}
		var j jobs.Job
		if err := json.Unmarshal(get.Body.Bytes(), &j); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if j.Status.Terminal() {
			if j.Status != jobs.StatusCompleted {
				t.Fatalf("job ended %s: %s", j.Status, j.Message)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("job never finished: %+v", j)
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Missing source is a bad request.
	rec = ts.do(t, http.MethodPost, "/api/platforms/youtube/accounts/main/generate", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty generate status = %d", rec.Code)
	}
}

func TestJobEndpoints(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	if rec := ts.do(t, http.MethodGet, "/api/jobs/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing job status = %d", rec.Code)
	}

	id := ts.tracker.Create(jobs.KindGenerate)
	if rec := ts.do(t, http.MethodPost, "/api/jobs/"+id+"/cancel", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("cancel status = %d", rec.Code)
	}
	if !ts.tracker.CancelRequested(id) {
		t.Fatal("cancel flag not set")
	}

	rec := ts.do(t, http.MethodGet, "/api/jobs", "")
	var list []jobs.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("jobs = %d, want 1", len(list))
	}
}
