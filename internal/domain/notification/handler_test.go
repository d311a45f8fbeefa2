package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestHandler_GetStats(t *testing.T) {
	svc, _ := newTestService()
	svc.SetQueue("ed_pages")
	ctx := context.Background()
	svc.NotifyHighPriority(ctx, &TriageEvent{PatientID: "p-1", Priority: 1, Reason: "Severe Hypoxemia"})
	svc.NotifyHighPriority(ctx, &TriageEvent{PatientID: "p-2", Priority: 5})

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	if err := NewHandler(svc).GetStats(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var stats Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.QueueName != "ed_pages" || stats.Sent != 1 || stats.Skipped != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if len(stats.HighPriorityLevels) != 2 {
		t.Errorf("expected levels 1 and 2, got %v", stats.HighPriorityLevels)
	}
}
