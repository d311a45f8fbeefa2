package audit

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/triage/internal/platform/auth"
	"github.com/ehr/triage/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the compliance read API. Access is admin-only.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/audit-logs", auth.RequireRole("admin"))
	g.GET("", h.SearchAuditLogs)
	g.GET("/actions", h.ListActions)
}

func (h *Handler) SearchAuditLogs(c echo.Context) error {
	pg := pagination.FromContextWithLimits(c, DefaultSearchLimit, MaxSearchLimit)
	criteria := SearchCriteria{
		UserID:    c.QueryParam("user_id"),
		PatientID: c.QueryParam("patient_id"),
		Action:    Action(c.QueryParam("action")),
		Limit:     pg.Limit,
		Offset:    pg.Offset,
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &criteria.From}, {"to", &criteria.To}} {
		if raw := c.QueryParam(p.name); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, p.name+" must be an RFC 3339 timestamp")
			}
			*p.dst = &t
		}
	}

	items, total, err := h.svc.Search(c.Request().Context(), criteria)
	if err != nil {
		var invalid *InvalidDataError
		if errors.As(err, &invalid) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListActions(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"actions": Actions()})
}
