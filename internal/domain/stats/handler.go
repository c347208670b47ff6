package stats

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes binds the tenant-scoped stats endpoint.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/stats", h.GetStats)
}

// RegisterHealthRoute binds the unauthenticated probe directly on the server.
func (h *Handler) RegisterHealthRoute(e *echo.Echo) {
	e.GET("/health", h.GetHealth)
}

func (h *Handler) GetStats(c echo.Context) error {
	hours, _ := strconv.Atoi(c.QueryParam("hours"))
	stats, err := h.svc.GetEventStats(c.Request().Context(), hours)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetHealth(c echo.Context) error {
	health := h.svc.Health(c.Request().Context())
	code := http.StatusOK
	if !health.Healthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, health)
}
