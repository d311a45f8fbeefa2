package triage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/domain/audit"
	"github.com/ehr/triage/internal/domain/notification"
	"github.com/ehr/triage/internal/domain/vitals"
	"github.com/ehr/triage/internal/platform/auth"
)

type switchMessenger struct {
	down bool
	err  error
}

func (m *switchMessenger) Publish(context.Context, string, []byte) error { return m.err }
func (m *switchMessenger) Connected() bool                               { return !m.down }

func newTestHandler(m *switchMessenger) (*Handler, *audit.MemoryRepository) {
	gen := &seqIDs{}
	vitalsSvc := vitals.NewService(vitals.NewMemoryRepository(), vitals.NewPatientDirectory("p-1"), gen, zerolog.Nop())
	auditRepo := audit.NewMemoryRepository()
	auditSvc := audit.NewService(auditRepo, gen, zerolog.Nop())
	engine := NewEngine(DefaultTiers()...)
	o := NewOrchestrator(vitalsSvc, engine, notification.NewService(m, gen, zerolog.Nop()), auditSvc, zerolog.Nop())
	return NewHandler(o, engine), auditRepo
}

func jsonContext(body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithUser(req.Context(), "nurse-1", []string{"nurse"}))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

const criticalBody = `{"patient_id":"p-1","heart_rate":130,"temperature":37.0,"oxygen_saturation":98,"systolic_bp":120}`

func TestHandler_SubmitVitals_Created(t *testing.T) {
	h, auditRepo := newTestHandler(&switchMessenger{})
	c, rec := jsonContext(criticalBody)

	if err := h.SubmitVitals(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var out Outcome
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Priority != PriorityCritical || !out.NotificationSent || out.Stage != StageComplete {
		t.Errorf("unexpected outcome %+v", out)
	}

	entries, _, err := auditRepo.Search(context.Background(), audit.SearchCriteria{Action: audit.ActionTriageCalculation})
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one calculation entry, got %d (%v)", len(entries), err)
	}
	if entries[0].UserID != "nurse-1" {
		t.Errorf("expected actor from request context, got %q", entries[0].UserID)
	}
}

func TestHandler_SubmitVitals_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"patient_id":`, http.StatusBadRequest},
		{"missing fields", `{"patient_id":"p-1","heart_rate":80}`, http.StatusBadRequest},
		{"negative", `{"patient_id":"p-1","heart_rate":-1,"temperature":37,"oxygen_saturation":98,"systolic_bp":120}`, http.StatusBadRequest},
		{"over limit", `{"patient_id":"p-1","heart_rate":301,"temperature":37,"oxygen_saturation":98,"systolic_bp":120}`, http.StatusBadRequest},
		{"unknown patient", `{"patient_id":"p-9","heart_rate":80,"temperature":37,"oxygen_saturation":98,"systolic_bp":120}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, auditRepo := newTestHandler(&switchMessenger{})
			c, _ := jsonContext(tt.body)

			err := h.SubmitVitals(c)
			var httpErr *echo.HTTPError
			if !errors.As(err, &httpErr) || httpErr.Code != tt.want {
				t.Fatalf("expected %d, got %v", tt.want, err)
			}
			if auditRepo.Len() != 0 {
				t.Error("rejected submissions must not be audited")
			}
		})
	}
}

const transportFailure = "lpush triage_high_priority: dial tcp 10.0.3.7:6379: connect: connection refused"

func TestHandler_SubmitVitals_NotificationFailure(t *testing.T) {
	tests := []struct {
		name      string
		messenger *switchMessenger
		want      int
		message   string
	}{
		{"messaging down", &switchMessenger{down: true}, http.StatusServiceUnavailable, notification.UnavailableMessage},
		{"publish failed", &switchMessenger{err: errors.New(transportFailure)}, http.StatusBadGateway, notification.SendFailedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(tt.messenger)
			c, rec := jsonContext(criticalBody)

			if err := h.SubmitVitals(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}

			var body struct {
				Escalate bool    `json:"escalate"`
				Outcome  Outcome `json:"outcome"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !body.Escalate {
				t.Error("expected escalate flag")
			}
			if body.Outcome.Vitals == nil || body.Outcome.Priority != PriorityCritical {
				t.Errorf("expected recorded vitals and priority in body, got %+v", body.Outcome)
			}
			if body.Outcome.NotificationError != tt.message {
				t.Errorf("expected notification error %q, got %q", tt.message, body.Outcome.NotificationError)
			}
			if strings.Contains(rec.Body.String(), "10.0.3.7") || strings.Contains(rec.Body.String(), "lpush") {
				t.Errorf("transport error reached the client: %s", rec.Body.String())
			}
		})
	}
}

func TestHandler_SubmitVitals_NonUrgentNoNotification(t *testing.T) {
	m := &switchMessenger{down: true}
	h, _ := newTestHandler(m)
	c, rec := jsonContext(`{"patient_id":"p-1","heart_rate":80,"temperature":37,"oxygen_saturation":98,"systolic_bp":120}`)

	if err := h.SubmitVitals(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("messaging state must not matter for priority 5, got %d", rec.Code)
	}
}

func TestHandler_Evaluate(t *testing.T) {
	h, auditRepo := newTestHandler(&switchMessenger{})
	c, rec := jsonContext(`{"heart_rate":130,"temperature":41,"oxygen_saturation":85}`)

	if err := h.Evaluate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Priority       Priority        `json:"priority"`
		Level          string          `json:"level"`
		DecidedBy      *TriggeredRule  `json:"decided_by"`
		TriggeredRules []TriggeredRule `json:"triggered_rules"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Priority != PriorityCritical || body.Level != "critical" {
		t.Errorf("unexpected priority %d (%s)", body.Priority, body.Level)
	}
	if body.DecidedBy == nil || body.DecidedBy.Name != "Severe Tachycardia" {
		t.Errorf("expected first rule to decide, got %+v", body.DecidedBy)
	}
	if len(body.TriggeredRules) != 3 {
		t.Errorf("expected all three rules listed, got %d", len(body.TriggeredRules))
	}
	if auditRepo.Len() != 0 {
		t.Error("evaluate must not record anything")
	}
}

func TestHandler_Evaluate_Invalid(t *testing.T) {
	h, _ := newTestHandler(&switchMessenger{})

	for _, body := range []string{
		`{"heart_rate":130,"temperature":37}`,
		`{"heart_rate":400,"temperature":37,"oxygen_saturation":98}`,
	} {
		c, _ := jsonContext(body)
		err := h.Evaluate(c)
		var httpErr *echo.HTTPError
		if !errors.As(err, &httpErr) || httpErr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %v", body, err)
		}
	}
}
