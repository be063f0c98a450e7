package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"clipcast/internal/config"
	"clipcast/internal/pipeline"
	"clipcast/internal/registry"
	"clipcast/internal/schedule"
	logx "clipcast/pkg/logx"
)

type accountBody struct {
	Name         string            `json:"name,omitempty"`
	ClipDir      string            `json:"clip_folder,omitempty"`
	Title        string            `json:"title,omitempty"`
	Description  string            `json:"description,omitempty"`
	Tags         string            `json:"tags,omitempty"`
	CategoryID   string            `json:"category_id,omitempty"`
	ClipDuration int               `json:"clip_duration,omitempty"`
	Schedule     schedule.Schedule `json:"schedule,omitempty"`
}

type accountView struct {
	Name          string             `json:"name"`
	Active        bool               `json:"active"`
	Authenticated bool               `json:"authenticated"`
	ClipDir       string             `json:"clip_folder"`
	Title         string             `json:"title,omitempty"`
	Description   string             `json:"description,omitempty"`
	Tags          string             `json:"tags,omitempty"`
	CategoryID    string             `json:"category_id,omitempty"`
	ClipDuration  int                `json:"clip_duration"`
	Schedule      schedule.Schedule  `json:"schedule,omitempty"`
	Stats         registry.ClipStats `json:"stats"`
}

func viewOf(name string, rec config.AccountRecord) accountView {
	return accountView{
		Name:          name,
		Active:        rec.Active,
		Authenticated: rec.Authenticated,
		ClipDir:       rec.ClipDir,
		Title:         rec.Title,
		Description:   rec.Description,
		Tags:          rec.Tags,
		CategoryID:    rec.CategoryID,
		ClipDuration:  rec.EffectiveClipDuration(),
		Schedule:      rec.Schedule,
		Stats:         registry.Stats(rec),
	}
}

func (s *Server) listAccounts(c echo.Context) error {
	p, err := s.param(c)
	if err != nil {
		return err
	}
	accounts := s.reg.List(p)
	out := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, viewOf(a.Name, a.Record))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) addAccount(c echo.Context) error {
	p, err := s.param(c)
	if err != nil {
		return err
	}
	var body accountBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(body.Name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "account name is required")
	}

	rec := config.AccountRecord{
		Active:       true,
		ClipDir:      body.ClipDir,
		Title:        body.Title,
		Description:  body.Description,
		Tags:         body.Tags,
		CategoryID:   body.CategoryID,
		ClipDuration: body.ClipDuration,
		Schedule:     body.Schedule,
	}
	if err := s.reg.Add(p, body.Name, rec); err != nil {
		return httpError(err)
	}

	added, err := s.reg.Get(p, body.Name)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, viewOf(body.Name, added))
}

func (s *Server) getAccount(c echo.Context) error {
	p, err := s.param(c)
	if err != nil {
		return err
	}
	rec, err := s.reg.Get(p, c.Param("name"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, viewOf(c.Param("name"), rec))
}

// updateAccount overwrites the mutable metadata fields. Flags and the clip
// directory are managed through their own endpoints.
func (s *Server) updateAccount(c echo.Context) error {
	p, err := s.param(c)
	if err != nil {
		return err
	}
	var body accountBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	name := c.Param("name")
	err = s.reg.Update(p, name, func(rec *config.AccountRecord) {
		rec.Title = body.Title
		rec.Description = body.Description
		rec.Tags = body.Tags
		rec.CategoryID = body.CategoryID
		rec.ClipDuration = body.ClipDuration
		rec.Schedule = body.Schedule
	})
	if err != nil {
		return httpError(err)
	}

	rec, err := s.reg.Get(p, name)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, viewOf(name, rec))
}

func (s *Server) removeAccount(c echo.Context) error {
	p, err := s.param(c)
	if err != nil {
		return err
	}
	if err := s.reg.Remove(p, c.Param("name")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) setActive(c echo.Context) error {
	p, err := s.param(c)
	if err != nil {
		return err
	}
	var body struct {
		Active bool `json:"active"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.reg.SetActive(p, c.Param("name"), body.Active); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// reauth runs the platform's interactive auth flow and records the outcome.
func (s *Server) reauth(c echo.Context) error {
	p, err := s.param(c)
	if err != nil {
		return err
	}
	name := c.Param("name")
	if _, err := s.reg.Get(p, name); err != nil {
		return httpError(err)
	}

	ad, err := s.adapters.Resolve(p)
	if err != nil {
		return httpError(err)
	}
	ok, err := ad.Authenticate(c.Request().Context(), name)
	if err != nil {
		return httpError(err)
	}
	if err := s.reg.SetAuthenticated(p, name, ok); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"authenticated": ok})
}

func (s *Server) uploadNow(c echo.Context) error {
	p, err := s.param(c)
	if err != nil {
		return err
	}
	name := c.Param("name")
	if _, err := s.reg.Get(p, name); err != nil {
		return httpError(err)
	}

	// Background jobs outlive the request; they run on the daemon's context,
	// not the connection's.
	id := s.exec.ExecuteAsJob(context.Background(), s.tracker, p, name)
	return c.JSON(http.StatusAccepted, map[string]string{"job_id": id})
}

type generateBody struct {
	SourceURL    string `json:"source_url,omitempty"`
	SourcePath   string `json:"source_path,omitempty"`
	ClipDuration int    `json:"clip_duration,omitempty"`
	SkipReframe  bool   `json:"skip_reframe,omitempty"`
}

func (s *Server) generate(c echo.Context) error {
	p, err := s.param(c)
	if err != nil {
		return err
	}
	var body generateBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	id, err := s.gen.Generate(context.Background(), pipeline.Request{
		Platform:     p,
		Account:      c.Param("name"),
		SourceURL:    body.SourceURL,
		SourcePath:   body.SourcePath,
		ClipDuration: body.ClipDuration,
		SkipReframe:  body.SkipReframe,
	})
	if err != nil {
		if herr := httpError(err); herr != nil {
			var echoErr *echo.HTTPError
			if errors.As(herr, &echoErr) && echoErr.Code != http.StatusInternalServerError {
				return herr
			}
		}
		s.log.Warn("generation rejected", logx.Err(err))
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"job_id": id})
}
