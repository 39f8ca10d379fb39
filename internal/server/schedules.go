package server

import (
	"net/http"

	"github.com/gorhill/cronexpr"
	"github.com/labstack/echo/v4"

	"github.com/shellsage-ai/ResearchHive-sub000/internal/store"
)

// SchedulesHandler manages recurring research questions.
type SchedulesHandler struct {
	Store *store.Store
}

func (h *SchedulesHandler) Register(g *echo.Group, secret []byte) {
	g.Use(withAuth(secret))
	g.POST("", h.create)
	g.GET("", h.list)
	g.POST("/:id/enable", h.enable)
	g.POST("/:id/disable", h.disable)
	g.DELETE("/:id", h.remove)
}

func (h *SchedulesHandler) create(c echo.Context) error {
	var req CreateScheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}
	if req.Cron == "" {
		req.Cron = "@daily"
	}
	if req.Cron != "@daily" && req.Cron != "@hourly" {
		if _, err := cronexpr.Parse(req.Cron); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid cron expression")
		}
	}
	id, err := h.Store.CreateSchedule(c.Request().Context(), req.Question, req.JobType, req.TargetSources, req.Cron)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

func (h *SchedulesHandler) list(c echo.Context) error {
	items, err := h.Store.ListSchedules(c.Request().Context(), false)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *SchedulesHandler) enable(c echo.Context) error {
	return h.setEnabled(c, true)
}

func (h *SchedulesHandler) disable(c echo.Context) error {
	return h.setEnabled(c, false)
}

func (h *SchedulesHandler) setEnabled(c echo.Context, enabled bool) error {
	if err := h.Store.SetScheduleEnabled(c.Request().Context(), c.Param("id"), enabled); err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.NoContent(http.StatusOK)
}

func (h *SchedulesHandler) remove(c echo.Context) error {
	if err := h.Store.DeleteSchedule(c.Request().Context(), c.Param("id")); err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
