package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/shellsage-ai/ResearchHive-sub000/internal/pipeline"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/store"
)

// JobRunner is the slice of the pipeline the HTTP layer drives. Satisfied
// by *pipeline.Pipeline.
type JobRunner interface {
	Start(question, jobType string, targetSources int) (*pipeline.Job, error)
	StartResume(ctx context.Context, jobID string) (*pipeline.Job, error)
	Pause(jobID string) error
	Cancel(jobID string) error
	Status(ctx context.Context, jobID string) (*pipeline.Job, error)
}

// ResearchHandler serves job submission, inspection and control.
type ResearchHandler struct {
	Pipe  JobRunner
	Store *store.Store
}

func (h *ResearchHandler) Register(g *echo.Group, secret []byte) {
	g.Use(withAuth(secret))
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.status)
	g.GET("/:id/report", h.report)
	g.GET("/:id/health", h.health)
	g.GET("/:id/replay", h.replay)
	g.POST("/:id/pause", h.pause)
	g.POST("/:id/resume", h.resume)
	g.POST("/:id/cancel", h.cancel)
}

func (h *ResearchHandler) create(c echo.Context) error {
	var req CreateResearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}
	job, err := h.Pipe.Start(req.Question, req.JobType, req.TargetSources)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, IDResponse{ID: job.ID})
}

func (h *ResearchHandler) list(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	jobs, err := h.Store.ListRecentJobs(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, jobs)
}

func (h *ResearchHandler) status(c echo.Context) error {
	job, err := h.Pipe.Status(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, job)
}

func (h *ResearchHandler) report(c echo.Context) error {
	job, err := h.Pipe.Status(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	if job.Report.Main == "" {
		return echo.NewHTTPError(http.StatusConflict, "report not drafted yet")
	}
	return c.JSON(http.StatusOK, ReportResponse{
		Main:           job.Report.Main,
		Alternatives:   job.Report.Alternatives,
		GroundingScore: job.GroundingScore,
		Citations:      job.Citations,
		Claims:         job.Claims,
	})
}

func (h *ResearchHandler) health(c echo.Context) error {
	job, err := h.Pipe.Status(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, job.Health)
}

func (h *ResearchHandler) replay(c echo.Context) error {
	job, err := h.Pipe.Status(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, job.Replay)
}

func (h *ResearchHandler) pause(c echo.Context) error {
	if err := h.Pipe.Pause(c.Param("id")); err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *ResearchHandler) resume(c echo.Context) error {
	job, err := h.Pipe.StartResume(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusAccepted, IDResponse{ID: job.ID})
}

func (h *ResearchHandler) cancel(c echo.Context) error {
	if err := h.Pipe.Cancel(c.Param("id")); err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

// statusFor maps pipeline and store errors onto HTTP codes: unknown jobs are
// 404, everything else is a state conflict.
func statusFor(err error) int {
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusConflict
}
