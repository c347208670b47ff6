package eventdef

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/praxismed/eventd/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/definitions", h.ListDefinitions)

	admin := g.Group("", auth.RequireRole("admin"))
	admin.POST("/definitions", h.RegisterDefinition)
	admin.PATCH("/definitions/:name", h.UpdateDefinition)
	admin.DELETE("/definitions/:name", h.DeleteDefinition)
}

func (h *Handler) ListDefinitions(c echo.Context) error {
	grouped, err := h.svc.List(c.Request().Context(), c.QueryParam("category"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"definitions": grouped})
}

type registerRequest struct {
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
	Example     json.RawMessage `json:"example"`
}

func (h *Handler) RegisterDefinition(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	def, err := h.svc.Register(c.Request().Context(), req.Name, req.Category, req.Description, req.Schema, req.Example)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicate):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, ErrInvalidName):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, def)
}

type updateRequest struct {
	Active *bool `json:"active"`
}

func (h *Handler) UpdateDefinition(c echo.Context) error {
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Active == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "active is required")
	}
	def, err := h.svc.SetActive(c.Request().Context(), c.Param("name"), *req.Active)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "definition not found")
		case errors.Is(err, ErrSystemImmutable):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, def)
}

func (h *Handler) DeleteDefinition(c echo.Context) error {
	err := h.svc.Delete(c.Request().Context(), c.Param("name"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "definition not found")
		case errors.Is(err, ErrSystemImmutable):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.NoContent(http.StatusNoContent)
}
