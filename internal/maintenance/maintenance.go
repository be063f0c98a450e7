// Package maintenance owns the daemon's periodic housekeeping: sweeping stale
// pipeline workspaces and compacting the upload log.
package maintenance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"clipcast/internal/uploadlog"
	logx "clipcast/pkg/logx"
)

// Service schedules housekeeping jobs on cron expressions.
type Service struct {
	cron *cron.Cron
	log  logx.Logger
}

func New(log logx.Logger) *Service {
	return &Service{cron: cron.New(), log: log}
}

// Register adds a named job on a cron spec ("@daily", "*/30 * * * *", ...).
func (s *Service) Register(spec, name string, fn func()) error {
	_, err := s.cron.AddFunc(spec, func() {
		started := time.Now()
		s.log.Debug("maintenance job running", logx.String("job", name))
		fn()
		s.log.Debug("maintenance job finished",
			logx.String("job", name), logx.Duration("took", time.Since(started)))
	})
	if err != nil {
		return fmt.Errorf("register maintenance job %s: %w", name, err)
	}
	return nil
}

// RegisterWorkspaceSweep removes abandoned pipeline workspaces hourly. A
// workspace outliving ttl belongs to a run that crashed before cleanup.
func (s *Service) RegisterWorkspaceSweep(root string, ttl time.Duration) error {
	return s.Register("@hourly", "workspace-sweep", func() {
		removed, err := SweepWorkspaces(root, ttl, time.Now())
		if err != nil {
			s.log.Warn("workspace sweep incomplete", logx.Err(err))
		}
		if removed > 0 {
			s.log.Info("stale workspaces removed", logx.Int("count", removed))
		}
	})
}

// RegisterLogVacuum compacts the upload log daily.
func (s *Service) RegisterLogVacuum(uploads *uploadlog.Log) error {
	return s.Register("@daily", "uploadlog-vacuum", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := uploads.Vacuum(ctx); err != nil {
			s.log.Warn("upload log vacuum failed", logx.Err(err))
		}
	})
}

func (s *Service) Start() { s.cron.Start() }

// Stop halts scheduling and waits for in-flight jobs.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}

// SweepWorkspaces deletes direct subdirectories of root whose mtime is older
// than ttl. A missing root is fine: nothing has run yet.
func SweepWorkspaces(root string, ttl time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	removed := 0
	var firstErr error
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < ttl {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}
