// Package app assembles the daemon: config store, account registry, upload
// log, adapters, schedulers, pipeline, maintenance, notifier, and the HTTP
// API, with one lifecycle tying them together.
package app

import (
	"context"
	"path/filepath"
	"time"

	"clipcast/internal/adapters"
	"clipcast/internal/config"
	"clipcast/internal/jobs"
	"clipcast/internal/maintenance"
	"clipcast/internal/media"
	"clipcast/internal/notify"
	"clipcast/internal/pipeline"
	"clipcast/internal/platform"
	"clipcast/internal/registry"
	"clipcast/internal/runtime/supervisor"
	"clipcast/internal/scheduler"
	"clipcast/internal/uploader"
	"clipcast/internal/uploadlog"
	"clipcast/internal/web"
	"clipcast/internal/youtube"
	logx "clipcast/pkg/logx"
)

type App struct {
	settings config.Settings
	log      logx.Logger

	store    *config.Store
	reg      *registry.Registry
	uploads  *uploadlog.Log
	adapters *platform.Adapters
	notifier *notify.Telegram
	exec     *uploader.Executor
	orch     *scheduler.Orchestrator
	tracker  *jobs.Tracker
	gen      *pipeline.Generator
	maint    *maintenance.Service
	web      *web.Server

	sup *supervisor.Supervisor
}

func New(settings config.Settings, log logx.Logger) (*App, error) {
	store := config.NewStore(settings.ConfigPath, log.With(logx.String("svc", "config")))
	store.LoadOrDefault()

	reg := registry.New(store, filepath.Join(settings.DataDir, "accounts"),
		log.With(logx.String("svc", "registry")))

	uploads, err := uploadlog.Open(filepath.Join(settings.DataDir, "uploads.db"),
		log.With(logx.String("svc", "uploadlog")))
	if err != nil {
		return nil, err
	}

	adapterReg := platform.NewAdapters()
	for name, bin := range settings.UploaderBins {
		if bin == "" {
			continue
		}
		p, perr := platform.Parse(name)
		if perr != nil {
			continue
		}
		adapterReg.Register(p, adapters.NewCommand(bin, log.With(logx.String("svc", "adapter"), logx.String("platform", name))))
	}

	notifier := notify.Disabled()
	if settings.TelegramToken != "" && settings.TelegramChatID != 0 {
		notifier, err = notify.New(settings.TelegramToken, settings.TelegramChatID,
			log.With(logx.String("svc", "notify")))
		if err != nil {
			// Notifications are best-effort; a dead bot must not block startup.
			log.Warn("telegram notifier unavailable", logx.Err(err))
			notifier = notify.Disabled()
		}
	}

	exec := uploader.New(reg, uploads, adapterReg,
		log.With(logx.String("svc", "uploader")),
		uploader.WithNotifier(notifier))

	orch := scheduler.NewOrchestrator(reg, exec,
		log.With(logx.String("svc", "scheduler")),
		settings.TickPeriod, settings.StopTimeout)

	tracker := jobs.NewTracker()

	tx := media.NewFFmpeg(log.With(logx.String("svc", "media")))
	fetch := youtube.NewDownloader(log.With(logx.String("svc", "youtube")))
	gen := pipeline.New(reg, fetch, tx, tracker, settings.DataDir,
		log.With(logx.String("svc", "pipeline")))

	maint := maintenance.New(log.With(logx.String("svc", "maintenance")))
	if err := maint.RegisterWorkspaceSweep(gen.WorkspaceRoot(), settings.WorkspaceTTL); err != nil {
		return nil, err
	}
	if err := maint.RegisterLogVacuum(uploads); err != nil {
		return nil, err
	}

	srv := web.NewServer(reg, orch, exec, gen, tracker, adapterReg,
		log.With(logx.String("svc", "web")))

	return &App{
		settings: settings,
		log:      log,
		store:    store,
		reg:      reg,
		uploads:  uploads,
		adapters: adapterReg,
		notifier: notifier,
		exec:     exec,
		orch:     orch,
		tracker:  tracker,
		gen:      gen,
		maint:    maint,
		web:      srv,
	}, nil
}

// Start launches the daemon's long-running pieces and returns. Schedulers for
// platforms with auto-upload enabled come up immediately.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, a.log.With(logx.String("svc", "supervisor")))

	a.sup.GoRestart("config-watch", a.store.Watch)
	a.sup.Go("config-sync", a.syncLoop)
	a.sup.Go("notify", a.notifier.Run)
	a.sup.Go("http", func(context.Context) error {
		a.log.Info("http api listening", logx.String("addr", a.settings.HTTPAddr))
		return a.web.Start(a.settings.HTTPAddr)
	})

	a.maint.Start()
	a.syncSchedulers()

	if a.notifier.Enabled() {
		a.notifier.Announce("clipcast started")
	}
	return nil
}

// syncLoop reacts to external edits of the account document: auto-upload
// toggles flipped in the file take effect without a restart.
func (a *App) syncLoop(ctx context.Context) error {
	sub := a.store.Subscribe(1)
	defer a.store.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-sub:
			if !ok {
				return nil
			}
			a.syncSchedulers()
		}
	}
}

// syncSchedulers aligns running schedulers with the auto-upload flags.
func (a *App) syncSchedulers() {
	for _, p := range platform.All() {
		if a.reg.AutoUpload(p) {
			if err := a.orch.StartPlatform(p); err != nil {
				a.log.Warn("scheduler not started",
					logx.String("platform", string(p)), logx.Err(err))
			}
		} else if a.orch.PlatformRunning(p) {
			a.orch.StopPlatform(p)
		}
	}
}

// Stop shuts everything down in dependency order: no new triggers, then the
// API, then housekeeping, then the supervised loops.
func (a *App) Stop(ctx context.Context) error {
	a.orch.StopAll()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.web.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http shutdown incomplete", logx.Err(err))
	}

	a.maint.Stop()

	var err error
	if a.sup != nil {
		err = a.sup.Stop(shutdownCtx)
	}
	if cerr := a.uploads.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
