// Package web exposes the daemon's control API: account management, scheduler
// control, generation jobs, and immediate uploads.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"clipcast/internal/jobs"
	"clipcast/internal/pipeline"
	"clipcast/internal/platform"
	"clipcast/internal/registry"
	"clipcast/internal/scheduler"
	"clipcast/internal/uploader"
	logx "clipcast/pkg/logx"
)

type Server struct {
	echo     *echo.Echo
	reg      *registry.Registry
	orch     *scheduler.Orchestrator
	exec     *uploader.Executor
	gen      *pipeline.Generator
	tracker  *jobs.Tracker
	adapters *platform.Adapters
	log      logx.Logger
}

func NewServer(reg *registry.Registry, orch *scheduler.Orchestrator, exec *uploader.Executor, gen *pipeline.Generator, tracker *jobs.Tracker, adapters *platform.Adapters, log logx.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:     e,
		reg:      reg,
		orch:     orch,
		exec:     exec,
		gen:      gen,
		tracker:  tracker,
		adapters: adapters,
		log:      log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo
	e.GET("/healthz", s.health)

	api := e.Group("/api")
	api.GET("/platforms", s.listPlatforms)
	api.POST("/platforms/:platform/autoupload", s.setAutoUpload)
	api.POST("/platforms/:platform/scheduler/start", s.startScheduler)
	api.POST("/platforms/:platform/scheduler/stop", s.stopScheduler)
	api.GET("/scheduler", s.schedulerStatus)

	api.GET("/platforms/:platform/accounts", s.listAccounts)
	api.POST("/platforms/:platform/accounts", s.addAccount)
	api.GET("/platforms/:platform/accounts/:name", s.getAccount)
	api.PUT("/platforms/:platform/accounts/:name", s.updateAccount)
	api.DELETE("/platforms/:platform/accounts/:name", s.removeAccount)
	api.POST("/platforms/:platform/accounts/:name/active", s.setActive)
	api.POST("/platforms/:platform/accounts/:name/reauth", s.reauth)
	api.POST("/platforms/:platform/accounts/:name/upload", s.uploadNow)
	api.POST("/platforms/:platform/accounts/:name/generate", s.generate)

	api.GET("/jobs", s.listJobs)
	api.GET("/jobs/:id", s.getJob)
	api.POST("/jobs/:id/cancel", s.cancelJob)
}

// Start blocks serving on addr until Shutdown.
func (s *Server) Start(addr string) error {
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) param(c echo.Context) (platform.Platform, error) {
	p, err := platform.Parse(c.Param("platform"))
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return p, nil
}

// httpError maps domain errors onto status codes.
func httpError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, jobs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrDuplicateAccount):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, platform.ErrUnknown):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// ---- platforms and schedulers ----

type platformView struct {
	Name             string `json:"name"`
	AutoUpload       bool   `json:"auto_upload"`
	SchedulerRunning bool   `json:"scheduler_running"`
	Accounts         int    `json:"accounts"`
}

func (s *Server) listPlatforms(c echo.Context) error {
	out := make([]platformView, 0, len(platform.All()))
	for _, p := range platform.All() {
		out = append(out, platformView{
			Name:             string(p),
			AutoUpload:       s.reg.AutoUpload(p),
			SchedulerRunning: s.orch.PlatformRunning(p),
			Accounts:         len(s.reg.List(p)),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) setAutoUpload(c echo.Context) error {
	p, err := s.param(c)
	if err != nil {
		return err
	}
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.reg.SetAutoUpload(p, body.Enabled); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) startScheduler(c echo.Context) error {
	p, err := s.param(c)
	if err != nil {
		return err
	}
	if err := s.orch.StartPlatform(p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"platform": p, "running": true})
}

func (s *Server) stopScheduler(c echo.Context) error {
	p, err := s.param(c)
	if err != nil {
		return err
	}
	s.orch.StopPlatform(p)
	return c.JSON(http.StatusOK, map[string]any{"platform": p, "running": false})
}

func (s *Server) schedulerStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"running":      s.orch.RunningPlatforms(),
		"next_uploads": s.orch.NextUploads(time.Now()),
	})
}

// ---- jobs ----

func (s *Server) listJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, s.tracker.List())
}

func (s *Server) getJob(c echo.Context) error {
	j, err := s.tracker.Get(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, j)
}

func (s *Server) cancelJob(c echo.Context) error {
	if err := s.tracker.Cancel(c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusAccepted)
}
