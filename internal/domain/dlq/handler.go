package dlq

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/praxismed/eventd/internal/platform/auth"
	"github.com/praxismed/eventd/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	admin := g.Group("", auth.RequireRole("admin"))
	admin.GET("/dlq", h.ListEntries)
	admin.GET("/dlq/:id", h.GetEntry)
	admin.POST("/dlq/:id/retry", h.RetryEntry)
	admin.DELETE("/dlq/:id", h.DismissEntry)
}

func (h *Handler) ListEntries(c echo.Context) error {
	page := pagination.FromContext(c)
	entries, total, err := h.svc.List(c.Request().Context(), Status(c.QueryParam("status")), page.Limit, page.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, page.Limit, page.Offset))
}

func (h *Handler) GetEntry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid entry id")
	}
	e, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "dead letter entry not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) RetryEntry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid entry id")
	}
	e, err := h.svc.Retry(c.Request().Context(), id, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "dead letter entry not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, e)
}

type dismissRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) DismissEntry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid entry id")
	}
	var req dismissRequest
	// Body is optional on dismiss.
	_ = c.Bind(&req)

	err = h.svc.Dismiss(c.Request().Context(), id, auth.UserIDFromContext(c.Request().Context()), req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "dead letter entry not found")
		case errors.Is(err, ErrTerminal):
			return echo.NewHTTPError(http.StatusConflict, "entry already resolved")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.NoContent(http.StatusNoContent)
}
