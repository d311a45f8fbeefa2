package triage

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/triage/internal/domain/notification"
	"github.com/ehr/triage/internal/domain/vitals"
	"github.com/ehr/triage/internal/platform/auth"
)

type Handler struct {
	orchestrator *Orchestrator
	engine       *Engine
}

func NewHandler(o *Orchestrator, engine *Engine) *Handler {
	return &Handler{orchestrator: o, engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/triage", auth.RequireRole("admin", "physician", "nurse"))
	g.POST("/submissions", h.SubmitVitals)
	g.POST("/evaluate", h.Evaluate)
}

// SubmitVitals runs the full pipeline. A failed notification still returns
// the outcome, with a 5xx status so the client escalates by hand.
func (h *Handler) SubmitVitals(c echo.Context) error {
	var in vitals.VitalSigns
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	out, err := h.orchestrator.Submit(ctx, Submission{ActorID: auth.UserIDFromContext(ctx), Vitals: &in})
	if err != nil {
		return submissionError(err)
	}

	if out.NotificationErr != nil {
		status := http.StatusBadGateway
		var unavailable *notification.MessagingUnavailableError
		if errors.As(out.NotificationErr, &unavailable) {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, map[string]interface{}{
			"outcome":  out,
			"escalate": true,
			"message":  "triage recorded but doctor notification failed; escalate manually",
		})
	}
	return c.JSON(http.StatusCreated, out)
}

func submissionError(err error) error {
	var notFound *vitals.PatientNotFoundError
	if errors.As(err, &notFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if vitals.IsClientError(err) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "failed to record vitals")
}

// Evaluate computes a priority without recording anything.
func (h *Handler) Evaluate(c echo.Context) error {
	var v Vitals
	if err := c.Bind(&v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !h.engine.IsValidForTriage(&v) {
		return echo.NewHTTPError(http.StatusBadRequest, "heart_rate, temperature and oxygen_saturation are required and must be within physiological limits")
	}

	a, err := h.engine.Assess(&v)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rules, err := h.engine.TriggeredRules(&v)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"priority":         a.Priority,
		"level":            a.Priority.String(),
		"max_wait_minutes": a.Priority.MaxWaitMinutes(),
		"decided_by":       a.DecidedBy,
		"triggered_rules":  rules,
	})
}
