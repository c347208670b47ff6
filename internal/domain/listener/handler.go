package listener

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/praxismed/eventd/internal/platform/auth"
)

type HTTPHandler struct {
	svc *Service
}

func NewHTTPHandler(svc *Service) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

func (h *HTTPHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/handlers", h.ListHandlers)
	g.GET("/handlers/:id", h.GetHandler)

	admin := g.Group("", auth.RequireRole("admin"))
	admin.POST("/handlers", h.RegisterHandler)
	admin.PUT("/handlers/:id", h.UpdateHandler)
	admin.PATCH("/handlers/:id", h.PatchHandler)
	admin.DELETE("/handlers/:id", h.DeleteHandler)
}

func (h *HTTPHandler) ListHandlers(c echo.Context) error {
	handlers, err := h.svc.List(c.Request().Context(), c.QueryParam("eventName"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if handlers == nil {
		handlers = []*Handler{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"handlers": handlers})
}

func (h *HTTPHandler) GetHandler(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid handler id")
	}
	handler, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "handler not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, handler)
}

func (h *HTTPHandler) RegisterHandler(c echo.Context) error {
	var handler Handler
	if err := c.Bind(&handler); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	handler.ID = uuid.Nil
	created, err := h.svc.Register(c.Request().Context(), &handler)
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *HTTPHandler) UpdateHandler(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid handler id")
	}
	var handler Handler
	if err := c.Bind(&handler); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	handler.ID = id
	updated, err := h.svc.Update(c.Request().Context(), &handler)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "handler not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}

type patchRequest struct {
	Active *bool `json:"active"`
}

func (h *HTTPHandler) PatchHandler(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid handler id")
	}
	var req patchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Active == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "active is required")
	}
	if err := h.svc.SetActive(c.Request().Context(), id, *req.Active); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "handler not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *HTTPHandler) DeleteHandler(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid handler id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "handler not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
