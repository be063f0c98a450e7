package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"clipcast/internal/platform"
	"clipcast/internal/registry"
	"clipcast/internal/schedule"
	logx "clipcast/pkg/logx"
)

// Orchestrator owns one PlatformScheduler per platform and keeps the invariant
// that a platform never has two clocks running.
type Orchestrator struct {
	reg         *registry.Registry
	pub         Publisher
	log         logx.Logger
	tick        time.Duration
	stopTimeout time.Duration

	mu    sync.Mutex
	byPlf map[platform.Platform]*PlatformScheduler
}

func NewOrchestrator(reg *registry.Registry, pub Publisher, log logx.Logger, tick, stopTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		reg:         reg,
		pub:         pub,
		log:         log,
		tick:        tick,
		stopTimeout: stopTimeout,
		byPlf:       make(map[platform.Platform]*PlatformScheduler),
	}
}

// StartPlatform ensures the platform's scheduler is running. Repeated calls
// are harmless.
func (o *Orchestrator) StartPlatform(p platform.Platform) error {
	if _, err := platform.Parse(string(p)); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	o.mu.Lock()
	s, ok := o.byPlf[p]
	if !ok {
		s = newPlatformScheduler(p, o.reg, o.pub, o.log, o.tick, o.stopTimeout)
		o.byPlf[p] = s
	}
	o.mu.Unlock()

	s.Start()
	return nil
}

// StopPlatform stops the platform's scheduler if it is running.
func (o *Orchestrator) StopPlatform(p platform.Platform) {
	o.mu.Lock()
	s := o.byPlf[p]
	o.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

// StopAll stops every running scheduler.
func (o *Orchestrator) StopAll() {
	o.mu.Lock()
	all := make([]*PlatformScheduler, 0, len(o.byPlf))
	for _, s := range o.byPlf {
		all = append(all, s)
	}
	o.mu.Unlock()

	for _, s := range all {
		s.Stop()
	}
}

// RunningPlatforms lists platforms with a live scheduler, sorted by name.
func (o *Orchestrator) RunningPlatforms() []platform.Platform {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []platform.Platform
	for p, s := range o.byPlf {
		if s.Running() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PlatformRunning reports the state of one platform's scheduler.
func (o *Orchestrator) PlatformRunning(p platform.Platform) bool {
	o.mu.Lock()
	s := o.byPlf[p]
	o.mu.Unlock()
	return s != nil && s.Running()
}

// NextUpload is the computed next trigger for one account.
type NextUpload struct {
	Platform platform.Platform `json:"platform"`
	Account  string            `json:"account"`
	At       time.Time         `json:"at"`
}

// NextUploads computes the next trigger within the lookahead window for every
// account on every platform, soonest first. Accounts without a trigger in the
// window are omitted.
func (o *Orchestrator) NextUploads(now time.Time) []NextUpload {
	var out []NextUpload
	for _, p := range platform.All() {
		for _, acct := range o.reg.List(p) {
			at, ok := schedule.NextTrigger(acct.Record.Schedule, now)
			if !ok {
				continue
			}
			out = append(out, NextUpload{Platform: p, Account: acct.Name, At: at})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}
