package vitals

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

// RegisterRoutes mounts read-only history endpoints. Vitals are written
// through the triage submission endpoint.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/patients/:patient_id/vitals", auth.RequireRole("admin", "physician", "nurse"))
	g.GET("", h.ListVitals)
	g.GET("/latest", h.GetLatestVitals)
}

func (h *Handler) ListVitals(c echo.Context) error {
	patientID := c.Param("patient_id")
	ctx := c.Request().Context()

	from, to := c.QueryParam("from"), c.QueryParam("to")
	if from != "" || to != "" {
		start, end, err := parseRange(from, to)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		items, err := h.svc.Range(ctx, patientID, start, end)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "total": len(items)})
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.History(ctx, patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetLatestVitals(c echo.Context) error {
	v, err := h.svc.Latest(c.Request().Context(), c.Param("patient_id"))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no vitals recorded for patient")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, v)
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	start := time.Time{}
	end := time.Now().UTC()
	var err error
	if from != "" {
		if start, err = time.Parse(time.RFC3339, from); err != nil {
			return start, end, errors.New("from must be an RFC 3339 timestamp")
		}
	}
	if to != "" {
		if end, err = time.Parse(time.RFC3339, to); err != nil {
			return start, end, errors.New("to must be an RFC 3339 timestamp")
		}
	}
	return start, end, nil
}
