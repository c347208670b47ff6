package bus

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/praxismed/eventd/internal/platform/auth"
)

// Handler exposes the emit endpoint.
type Handler struct {
	dispatcher *Dispatcher
}

func NewHandler(dispatcher *Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/emit", h.Emit)
}

func (h *Handler) Emit(c echo.Context) error {
	var req EmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.EventName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "eventName is required")
	}
	if req.SourceUserID == "" {
		req.SourceUserID = auth.UserIDFromContext(c.Request().Context())
	}

	result, err := h.dispatcher.Emit(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, ErrUnknownEvent) {
			return echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("Unknown event: %s", req.EventName))
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}
