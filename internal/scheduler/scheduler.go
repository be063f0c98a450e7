// Package scheduler runs the per-platform upload clocks. Each platform gets at
// most one scheduler; a scheduler wakes once a minute, matches account
// schedules against the wall clock, and hands due accounts to the publisher
// one at a time.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"clipcast/internal/platform"
	"clipcast/internal/registry"
	"clipcast/internal/schedule"
	"clipcast/internal/uploader"
	logx "clipcast/pkg/logx"
)

// Publisher is the part of the upload executor the scheduler needs.
type Publisher interface {
	Execute(ctx context.Context, p platform.Platform, account string) (uploader.Result, error)
}

const (
	defaultTick        = time.Minute
	defaultStopTimeout = 5 * time.Second
)

// PlatformScheduler is the upload clock for one platform. Start is idempotent;
// Stop joins the loop with a bounded wait.
type PlatformScheduler struct {
	platform    platform.Platform
	reg         *registry.Registry
	pub         Publisher
	log         logx.Logger
	tick        time.Duration
	stopTimeout time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func newPlatformScheduler(p platform.Platform, reg *registry.Registry, pub Publisher, log logx.Logger, tick, stopTimeout time.Duration) *PlatformScheduler {
	if tick <= 0 {
		tick = defaultTick
	}
	if stopTimeout <= 0 {
		stopTimeout = defaultStopTimeout
	}
	return &PlatformScheduler{
		platform:    p,
		reg:         reg,
		pub:         pub,
		log:         log.With(logx.String("platform", string(p))),
		tick:        tick,
		stopTimeout: stopTimeout,
	}
}

// Start launches the tick loop. Calling Start on a running scheduler logs and
// returns without touching the existing loop.
func (s *PlatformScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.log.Info("scheduler already running")
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(runCtx, s.done)
	s.log.Info("scheduler started", logx.Duration("tick", s.tick))
}

// Stop signals the loop and waits for it to drain, bounded by the stop
// timeout. A loop stuck mid-upload past the timeout is logged and abandoned;
// shutdown proceeds.
func (s *PlatformScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-time.After(s.stopTimeout):
		s.log.Warn("scheduler did not stop in time; abandoning",
			logx.Duration("timeout", s.stopTimeout))
	}
}

// Running reports whether the loop is live.
func (s *PlatformScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *PlatformScheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	// Each minute is one slot; a tick landing in an already-served minute is
	// a no-op so off-boundary ticker alignment never double-fires.
	var lastSlot time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			slot := now.Truncate(time.Minute)
			if slot.Equal(lastSlot) {
				continue
			}
			lastSlot = slot
			s.pass(ctx, slot)
		}
	}
}

// pass serves one minute slot: due accounts upload sequentially, in name
// order. Flags are read fresh from the registry on every pass.
func (s *PlatformScheduler) pass(ctx context.Context, slot time.Time) {
	for _, acct := range s.reg.List(s.platform) {
		if ctx.Err() != nil {
			return
		}
		if !acct.Record.Active || !acct.Record.Authenticated {
			continue
		}
		if !schedule.Due(acct.Record.Schedule, slot) {
			continue
		}

		alog := s.log.With(logx.String("account", acct.Name))
		_, err := s.pub.Execute(ctx, s.platform, acct.Name)
		switch {
		case err == nil:
		case errors.Is(err, uploader.ErrNotEligible):
			alog.Debug("slot skipped: account not eligible")
		case errors.Is(err, uploader.ErrClipUnavailable):
			alog.Warn("slot missed: no clip to upload", logx.Err(err))
		case errors.Is(err, context.Canceled):
			return
		default:
			alog.Error("scheduled upload failed", logx.Err(err))
		}
	}
}
