package eventlog

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/praxismed/eventd/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/log", h.SearchLog)
	g.GET("/log/:eventId", h.GetEvent)
}

func (h *Handler) SearchLog(c echo.Context) error {
	filter := SearchFilter{
		EventName:  c.QueryParam("eventName"),
		Status:     Status(c.QueryParam("status")),
		EntityType: c.QueryParam("entityType"),
		EntityID:   c.QueryParam("entityId"),
	}
	if v := c.QueryParam("startDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid startDate")
		}
		filter.StartDate = &t
	}
	if v := c.QueryParam("endDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid endDate")
		}
		filter.EndDate = &t
	}

	page := pagination.FromContext(c)
	events, total, err := h.svc.Search(c.Request().Context(), filter, page.Limit, page.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if events == nil {
		events = []*Event{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(events, total, page.Limit, page.Offset))
}

func (h *Handler) GetEvent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event id")
	}
	ev, execs, err := h.svc.GetWithExecutions(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "event not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if execs == nil {
		execs = []*Execution{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"event":      ev,
		"executions": execs,
	})
}
