package subscription

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
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
	g.GET("/subscriptions", h.ListSubscriptions)
	g.GET("/subscriptions/:id", h.GetSubscription)

	admin := g.Group("", auth.RequireRole("admin"))
	admin.POST("/subscriptions", h.RegisterSubscription)
	admin.PUT("/subscriptions/:id", h.UpdateSubscription)
	admin.PATCH("/subscriptions/:id", h.PatchSubscription)
	admin.DELETE("/subscriptions/:id", h.DeleteSubscription)
	admin.POST("/subscriptions/:id/test", h.TestSubscription)
}

func (h *Handler) ListSubscriptions(c echo.Context) error {
	activeOnly := c.QueryParam("active") == "true"
	subs, err := h.svc.List(c.Request().Context(), c.QueryParam("eventName"), activeOnly)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if subs == nil {
		subs = []*Subscription{}
	}
	// Secrets never leave through list responses.
	for _, s := range subs {
		s.SecretKey = ""
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"subscriptions": subs})
}

func (h *Handler) GetSubscription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid subscription id")
	}
	sub, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "subscription not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	sub.SecretKey = ""
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) RegisterSubscription(c echo.Context) error {
	var sub Subscription
	if err := c.Bind(&sub); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sub.ID = uuid.Nil
	created, err := h.svc.Register(c.Request().Context(), &sub)
	if err != nil {
		if errors.Is(err, ErrDuplicateName) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	// The generated secret is returned exactly once, at registration.
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) UpdateSubscription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid subscription id")
	}
	existing, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "subscription not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	var sub Subscription
	if err := c.Bind(&sub); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sub.ID = id
	if sub.SecretKey == "" {
		sub.SecretKey = existing.SecretKey
	}
	updated, err := h.svc.Update(c.Request().Context(), &sub)
	if err != nil {
		if errors.Is(err, ErrDuplicateName) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated.SecretKey = ""
	return c.JSON(http.StatusOK, updated)
}

type patchRequest struct {
	Active *bool `json:"active"`
}

func (h *Handler) PatchSubscription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid subscription id")
	}
	var req patchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Active == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "active is required")
	}
	sub, err := h.svc.SetActive(c.Request().Context(), id, *req.Active)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "subscription not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	sub.SecretKey = ""
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) DeleteSubscription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid subscription id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "subscription not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) TestSubscription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid subscription id")
	}
	res, err := h.svc.Test(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "subscription not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}
