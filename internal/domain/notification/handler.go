package notification

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/triage/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/notifications/stats", h.GetStats, auth.RequireRole("admin"))
}

func (h *Handler) GetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Stats())
}
