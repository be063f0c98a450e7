package uploader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"clipcast/internal/config"
	"clipcast/internal/jobs"
	"clipcast/internal/platform"
	"clipcast/internal/registry"
	"clipcast/internal/uploadlog"
	logx "clipcast/pkg/logx"
)

type fakeAdapter struct {
	mu       sync.Mutex
	reqs     []platform.PublishRequest
	refreshs int
	publish  func(req platform.PublishRequest) (platform.PublishResult, error)
	refresh  func() (bool, error)
}

func (f *fakeAdapter) Authenticate(context.Context, string) (bool, error) { return true, nil }

func (f *fakeAdapter) Refresh(context.Context, string) (bool, error) {
	f.mu.Lock()
	f.refreshs++
	hook := f.refresh
	f.mu.Unlock()
	if hook != nil {
		return hook()
	}
	return true, nil
}

func (f *fakeAdapter) Publish(_ context.Context, _ string, req platform.PublishRequest) (platform.PublishResult, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.publish != nil {
		return f.publish(req)
	}
	return platform.PublishResult{RemoteID: "remote-1"}, nil
}

func (f *fakeAdapter) requests() []platform.PublishRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.PublishRequest(nil), f.reqs...)
}

type fixture struct {
	reg     *registry.Registry
	uploads *uploadlog.Log
	adapter *fakeAdapter
	exec    *Executor
	clipDir string
}

func newFixture(t *testing.T, rec config.AccountRecord) *fixture {
	t.Helper()
	dir := t.TempDir()

	store := config.NewStore(filepath.Join(dir, "accounts.yaml"), logx.Nop())
	if _, err := store.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	reg := registry.New(store, filepath.Join(dir, "accounts"), logx.Nop())

	rec.ClipDir = filepath.Join(dir, "acct")
	if err := reg.Add(platform.YouTube, "main", rec); err != nil {
		t.Fatalf("Add: %v", err)
	}

	uploads, err := uploadlog.Open(filepath.Join(dir, "uploads.db"), logx.Nop())
	if err != nil {
		t.Fatalf("Open upload log: %v", err)
	}
	t.Cleanup(func() { _ = uploads.Close() })

	adapters := platform.NewAdapters()
	ad := &fakeAdapter{}
	adapters.Register(platform.YouTube, ad)

	exec := New(reg, uploads, adapters, logx.Nop(), WithPublishGap(time.Millisecond))
	return &fixture{reg: reg, uploads: uploads, adapter: ad, exec: exec, clipDir: rec.ClipDir}
}

func (f *fixture) writeClip(t *testing.T, seq int) {
	t.Helper()
	path := filepath.Join(f.clipDir, "clips", fmt.Sprintf("clip_%d.mp4", seq))
	if err := os.WriteFile(path, []byte("mp4"), 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}
}

func activeRecord() config.AccountRecord {
	return config.AccountRecord{
		Active:        true,
		Authenticated: true,
		Title:         "daily cuts",
		Description:   "best of",
		Tags:          "funny, gaming,  shorts ,",
	}
}

func TestExecuteGatesIneligibleAccounts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(rec *config.AccountRecord)
	}{
		{"inactive", func(rec *config.AccountRecord) { rec.Active = false }},
		{"unauthenticated", func(rec *config.AccountRecord) { rec.Authenticated = false }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := activeRecord()
			tc.mutate(&rec)
			f := newFixture(t, rec)
			f.writeClip(t, 1)

			if _, err := f.exec.Execute(context.Background(), platform.YouTube, "main"); !errors.Is(err, ErrNotEligible) {
				t.Fatalf("err = %v, want ErrNotEligible", err)
			}
			if len(f.adapter.requests()) != 0 {
				t.Fatal("adapter called for ineligible account")
			}
		})
	}
}

func TestExecuteMissingClipIsNonFatal(t *testing.T) {
	t.Parallel()
	f := newFixture(t, activeRecord())

	_, err := f.exec.Execute(context.Background(), platform.YouTube, "main")
	if !errors.Is(err, ErrClipUnavailable) {
		t.Fatalf("err = %v, want ErrClipUnavailable", err)
	}

	// The miss must not consume the sequence slot.
	n, err := f.uploads.Count(context.Background(), platform.YouTube, "main")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Fatalf("Count = %d, want 0", n)
	}
}

func TestExecuteSequenceAdvancesWithLog(t *testing.T) {
	t.Parallel()
	f := newFixture(t, activeRecord())
	ctx := context.Background()

	f.writeClip(t, 1)
	res, err := f.exec.Execute(ctx, platform.YouTube, "main")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Sequence != 1 {
		t.Fatalf("Sequence = %d, want 1", res.Sequence)
	}
	if res.Title != "daily cuts pt: 1" {
		t.Fatalf("Title = %q", res.Title)
	}

	// clip_2 does not exist yet: the second slot misses without advancing.
	if _, err := f.exec.Execute(ctx, platform.YouTube, "main"); !errors.Is(err, ErrClipUnavailable) {
		t.Fatalf("err = %v, want ErrClipUnavailable", err)
	}

	f.writeClip(t, 2)
	res, err = f.exec.Execute(ctx, platform.YouTube, "main")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Sequence != 2 {
		t.Fatalf("Sequence = %d, want 2", res.Sequence)
	}

	reqs := f.adapter.requests()
	if len(reqs) != 2 {
		t.Fatalf("adapter calls = %d, want 2", len(reqs))
	}
	if reqs[1].Description != "best of pt: 2" {
		t.Fatalf("Description = %q", reqs[1].Description)
	}
	want := []string{"funny", "gaming", "shorts"}
	if len(reqs[0].Tags) != len(want) {
		t.Fatalf("Tags = %v, want %v", reqs[0].Tags, want)
	}
	for i, tag := range want {
		if reqs[0].Tags[i] != tag {
			t.Fatalf("Tags = %v, want %v", reqs[0].Tags, want)
		}
	}
}

func TestExecuteRefreshRecoversExpiredAuth(t *testing.T) {
	t.Parallel()
	f := newFixture(t, activeRecord())
	f.writeClip(t, 1)

	// First publish hits expired credentials; the refresh succeeds and the
	// retried publish goes through.
	calls := 0
	f.adapter.publish = func(platform.PublishRequest) (platform.PublishResult, error) {
		calls++
		if calls == 1 {
			return platform.PublishResult{}, platform.ErrAuthExpired
		}
		return platform.PublishResult{RemoteID: "remote-after-refresh"}, nil
	}

	res, err := f.exec.Execute(context.Background(), platform.YouTube, "main")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.RemoteID != "remote-after-refresh" {
		t.Fatalf("RemoteID = %q, want the retried publish's result", res.RemoteID)
	}
	if f.adapter.refreshs != 1 {
		t.Fatalf("refresh attempts = %d, want 1", f.adapter.refreshs)
	}

	rec, err := f.reg.Get(platform.YouTube, "main")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !rec.Authenticated {
		t.Fatal("authenticated flag cleared despite successful refresh")
	}
	n, err := f.uploads.Count(context.Background(), platform.YouTube, "main")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("Count = %d, want the recovered publish recorded", n)
	}
}

func TestExecuteAuthExpiryClearsFlag(t *testing.T) {
	t.Parallel()
	f := newFixture(t, activeRecord())
	f.writeClip(t, 1)
	f.adapter.publish = func(platform.PublishRequest) (platform.PublishResult, error) {
		return platform.PublishResult{}, fmt.Errorf("token refresh: %w", platform.ErrAuthExpired)
	}
	// The refresh is denied too: the account needs interactive re-auth.
	f.adapter.refresh = func() (bool, error) { return false, nil }

	if _, err := f.exec.Execute(context.Background(), platform.YouTube, "main"); err == nil {
		t.Fatal("Execute succeeded with expired credentials")
	}
	if f.adapter.refreshs != 1 {
		t.Fatalf("refresh attempts = %d, want 1", f.adapter.refreshs)
	}

	rec, err := f.reg.Get(platform.YouTube, "main")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Authenticated {
		t.Fatal("authenticated flag still set after auth expiry")
	}
}

func TestExecuteNoAdapter(t *testing.T) {
	t.Parallel()
	f := newFixture(t, activeRecord())
	f.writeClip(t, 1)

	// TikTok has no account either, so register one sharing the clip dir.
	if err := f.reg.Add(platform.TikTok, "main", config.AccountRecord{
		Active: true, Authenticated: true, ClipDir: f.clipDir,
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, err := f.exec.Execute(context.Background(), platform.TikTok, "main"); !errors.Is(err, platform.ErrNoAdapter) {
		t.Fatalf("err = %v, want ErrNoAdapter", err)
	}
}

func TestExecuteAsJobTracksOutcome(t *testing.T) {
	t.Parallel()
	f := newFixture(t, activeRecord())
	f.writeClip(t, 1)
	tracker := jobs.NewTracker()

	id := f.exec.ExecuteAsJob(context.Background(), tracker, platform.YouTube, "main")

	deadline := time.After(5 * time.Second)
	for {
		j, err := tracker.Get(id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if j.Status.Terminal() {
			if j.Status != jobs.StatusCompleted {
				t.Fatalf("Status = %s (%s), want completed", j.Status, j.Message)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("job never finished: %+v", j)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
