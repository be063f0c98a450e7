// Package uploader publishes the next clip in an account's sequence to its
// platform. One Executor serves all platforms; per-platform rate limiters keep
// publishes apart even when several schedulers fire in the same minute.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"clipcast/internal/config"
	"clipcast/internal/jobs"
	"clipcast/internal/platform"
	"clipcast/internal/registry"
	"clipcast/internal/uploadlog"
	logx "clipcast/pkg/logx"
)

var (
	// ErrNotEligible means the account is inactive or unauthenticated. The
	// scheduler skips the account without treating the tick as failed.
	ErrNotEligible = errors.New("account not eligible for upload")

	// ErrClipUnavailable means the next clip in the sequence does not exist
	// on disk yet. Non-fatal: the slot is simply missed.
	ErrClipUnavailable = errors.New("next clip unavailable")
)

// Notifier receives publish outcomes. Implementations must not block.
type Notifier interface {
	PublishSucceeded(p platform.Platform, account, title string)
	PublishFailed(p platform.Platform, account string, err error)
}

type nopNotifier struct{}

func (nopNotifier) PublishSucceeded(platform.Platform, string, string) {}
func (nopNotifier) PublishFailed(platform.Platform, string, error)     {}

// Result describes one successful publish.
type Result struct {
	Sequence int
	ClipPath string
	Title    string
	RemoteID string
}

// Executor runs the publish path: eligibility gate, sequence resolution, clip
// lookup, rate-limited adapter publish, and the upload-log append.
type Executor struct {
	reg      *registry.Registry
	uploads  *uploadlog.Log
	adapters *platform.Adapters
	notify   Notifier
	log      logx.Logger

	mu       sync.Mutex
	limiters map[platform.Platform]*rate.Limiter
	minGap   time.Duration
}

// Option tweaks Executor construction.
type Option func(*Executor)

// WithNotifier routes publish outcomes to n.
func WithNotifier(n Notifier) Option {
	return func(e *Executor) {
		if n != nil {
			e.notify = n
		}
	}
}

// WithPublishGap sets the minimum spacing between publishes on one platform.
func WithPublishGap(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.minGap = d
		}
	}
}

func New(reg *registry.Registry, uploads *uploadlog.Log, adapters *platform.Adapters, log logx.Logger, opts ...Option) *Executor {
	e := &Executor{
		reg:      reg,
		uploads:  uploads,
		adapters: adapters,
		notify:   nopNotifier{},
		log:      log,
		limiters: make(map[platform.Platform]*rate.Limiter),
		minGap:   10 * time.Second,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Executor) limiter(p platform.Platform) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.limiters[p]
	if !ok {
		l = rate.NewLimiter(rate.Every(e.minGap), 1)
		e.limiters[p] = l
	}
	return l
}

// Execute publishes the account's next clip. The eligibility flags are read
// at call time, never cached, so a mid-week deactivation takes effect on the
// very next slot.
func (e *Executor) Execute(ctx context.Context, p platform.Platform, account string) (Result, error) {
	rec, err := e.reg.Get(p, account)
	if err != nil {
		return Result{}, err
	}
	if !rec.Active || !rec.Authenticated {
		return Result{}, fmt.Errorf("%w: %s/%s active=%t authenticated=%t",
			ErrNotEligible, p, account, rec.Active, rec.Authenticated)
	}

	count, err := e.uploads.Count(ctx, p, account)
	if err != nil {
		return Result{}, fmt.Errorf("resolve upload sequence: %w", err)
	}
	seq := count + 1

	clipPath := filepath.Join(rec.ClipDir, "clips", fmt.Sprintf("clip_%d.mp4", seq))
	if _, err := os.Stat(clipPath); err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrClipUnavailable, clipPath)
	}

	ad, err := e.adapters.Resolve(p)
	if err != nil {
		return Result{}, err
	}

	if err := e.limiter(p).Wait(ctx); err != nil {
		return Result{}, err
	}

	req := buildRequest(rec, account, clipPath, seq)
	res, err := ad.Publish(ctx, account, req)
	if errors.Is(err, platform.ErrAuthExpired) {
		// Expired credentials get one refresh attempt before the account is
		// sidelined for manual re-auth.
		if ok, rerr := ad.Refresh(ctx, account); rerr == nil && ok {
			e.log.Info("credentials refreshed, retrying publish",
				logx.String("platform", string(p)), logx.String("account", account))
			res, err = ad.Publish(ctx, account, req)
		}
	}
	if err != nil {
		if errors.Is(err, platform.ErrAuthExpired) {
			if flagErr := e.reg.SetAuthenticated(p, account, false); flagErr != nil {
				e.log.Warn("authenticated flag not cleared",
					logx.String("platform", string(p)), logx.String("account", account), logx.Err(flagErr))
			}
		}
		e.notify.PublishFailed(p, account, err)
		return Result{}, fmt.Errorf("publish %s/%s clip %d: %w", p, account, seq, err)
	}

	if err := e.uploads.Append(ctx, uploadlog.Entry{
		Platform: p,
		Account:  account,
		Title:    req.Title,
		RemoteID: res.RemoteID,
	}); err != nil {
		// The clip is live but unrecorded; the next run would re-publish it.
		// Surface loudly instead of silently double-posting later.
		e.log.Error("upload log append failed after publish",
			logx.String("platform", string(p)), logx.String("account", account),
			logx.Int("sequence", seq), logx.Err(err))
		return Result{}, fmt.Errorf("record publish %s/%s clip %d: %w", p, account, seq, err)
	}

	e.log.Info("clip published",
		logx.String("platform", string(p)), logx.String("account", account),
		logx.Int("sequence", seq), logx.String("remote_id", res.RemoteID))
	e.notify.PublishSucceeded(p, account, req.Title)

	return Result{Sequence: seq, ClipPath: clipPath, Title: req.Title, RemoteID: res.RemoteID}, nil
}

// ExecuteAsJob runs Execute in the background under a tracked job and returns
// the job id immediately. Used for user-triggered immediate uploads.
func (e *Executor) ExecuteAsJob(ctx context.Context, tracker *jobs.Tracker, p platform.Platform, account string) string {
	id := tracker.Create(jobs.KindUpload)
	go func() {
		_ = tracker.Update(id, jobs.StatusRunning, 10, "publishing next clip")
		res, err := e.Execute(ctx, p, account)
		if err != nil {
			_ = tracker.Update(id, jobs.StatusFailed, 100, err.Error())
			return
		}
		_ = tracker.Update(id, jobs.StatusCompleted, 100,
			fmt.Sprintf("published clip %d as %s", res.Sequence, res.RemoteID))
	}()
	return id
}

// buildRequest derives publish metadata from the account record. Title and
// description carry a running part number; tags are stored comma separated
// and split here.
func buildRequest(rec config.AccountRecord, account, clipPath string, seq int) platform.PublishRequest {
	title := strings.TrimSpace(rec.Title)
	if title == "" {
		title = account
	}
	desc := strings.TrimSpace(rec.Description)
	if desc == "" {
		desc = title
	}
	part := fmt.Sprintf(" pt: %d", seq)

	return platform.PublishRequest{
		ClipPath:    clipPath,
		Title:       title + part,
		Description: desc + part,
		Tags:        splitTags(rec.Tags),
		CategoryID:  rec.CategoryID,
	}
}

func splitTags(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
