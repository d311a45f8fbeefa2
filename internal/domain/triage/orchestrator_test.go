package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/domain/audit"
	"github.com/ehr/triage/internal/domain/notification"
	"github.com/ehr/triage/internal/domain/vitals"
)

// -- Fakes --

type fakeRecorder struct {
	err   error
	calls int
}

func (f *fakeRecorder) RecordVitals(_ context.Context, in *vitals.VitalSigns) (*vitals.RecordedVitals, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &vitals.RecordedVitals{
		ID:               fmt.Sprintf("v-%d", f.calls),
		PatientID:        in.PatientID,
		HeartRate:        *in.HeartRate,
		Temperature:      *in.Temperature,
		OxygenSaturation: *in.OxygenSaturation,
		SystolicBP:       *in.SystolicBP,
		RecordedAt:       time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}, nil
}

type fakeNotifier struct {
	err    error
	events []*notification.TriageEvent
}

func (f *fakeNotifier) NotifyHighPriority(_ context.Context, e *notification.TriageEvent) (*notification.Result, error) {
	f.events = append(f.events, e)
	if f.err != nil {
		return nil, f.err
	}
	if e.Priority > 2 {
		return &notification.Result{Sent: false}, nil
	}
	return &notification.Result{Sent: true, Notification: &notification.HighPriorityNotification{
		NotificationID: "n-1",
		PatientID:      e.PatientID,
		Priority:       e.Priority,
		Reason:         e.Reason,
	}}, nil
}

type fakeAuditor struct {
	mu       sync.Mutex
	sync     []audit.ActionData
	async    []audit.ActionData
	failSave bool
	order    *[]string
}

func (f *fakeAuditor) LogAction(_ context.Context, d audit.ActionData) (*audit.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sync = append(f.sync, d)
	if f.order != nil {
		*f.order = append(*f.order, "audit")
	}
	if f.failSave {
		return &audit.Result{Success: false, Error: "db down"}, nil
	}
	return &audit.Result{Success: true, LogID: "log-1"}, nil
}

func (f *fakeAuditor) LogActionAsync(_ context.Context, d audit.ActionData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.async = append(f.async, d)
}

type countingMetrics struct {
	rejected   []string
	priorities []int
	outcomes   []string
}

func (m *countingMetrics) VitalsRejected(reason string) { m.rejected = append(m.rejected, reason) }
func (m *countingMetrics) PriorityAssigned(p int)       { m.priorities = append(m.priorities, p) }
func (m *countingMetrics) NotificationOutcome(o string) { m.outcomes = append(m.outcomes, o) }

func submission(hr int, temp float64, spo2 int) *vitals.VitalSigns {
	return &vitals.VitalSigns{
		PatientID:        "p-1",
		HeartRate:        intPtr(hr),
		Temperature:      floatPtr(temp),
		OxygenSaturation: intPtr(spo2),
		SystolicBP:       intPtr(120),
	}
}

type harness struct {
	rec      *fakeRecorder
	notifier *fakeNotifier
	auditor  *fakeAuditor
	metrics  *countingMetrics
	orch     *Orchestrator
}

func newHarness() *harness {
	h := &harness{
		rec:      &fakeRecorder{},
		notifier: &fakeNotifier{},
		auditor:  &fakeAuditor{},
		metrics:  &countingMetrics{},
	}
	h.orch = NewOrchestrator(h.rec, NewEngine(DefaultTiers()...), h.notifier, h.auditor, zerolog.Nop())
	h.orch.SetMetrics(h.metrics)
	return h
}

// -- Submit --

func TestSubmit_CriticalVitalsNotifyAndAudit(t *testing.T) {
	h := newHarness()

	out, err := h.orch.Submit(context.Background(), Submission{ActorID: "nurse-7", Vitals: submission(130, 37, 98)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Stage != StageComplete {
		t.Errorf("expected COMPLETE, got %s", out.Stage)
	}
	if out.Priority != PriorityCritical {
		t.Errorf("expected priority 1, got %d", out.Priority)
	}
	if out.DecidedBy == nil || out.DecidedBy.Name != "Severe Tachycardia" {
		t.Errorf("unexpected deciding rule %+v", out.DecidedBy)
	}
	if !out.NotificationSent || out.Notification == nil {
		t.Fatal("expected a notification")
	}
	if out.AuditLogID != "log-1" {
		t.Errorf("expected audit log id, got %q", out.AuditLogID)
	}

	if len(h.notifier.events) != 1 {
		t.Fatalf("expected 1 notify call, got %d", len(h.notifier.events))
	}
	ev := h.notifier.events[0]
	if ev.Reason != "Severe Tachycardia" || ev.VitalSigns["heartRate"] != 130 {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.Timestamp != time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC).UnixMilli() {
		t.Errorf("expected event timestamp from recorded vitals, got %d", ev.Timestamp)
	}

	if len(h.auditor.sync) != 1 || h.auditor.sync[0].Action != audit.ActionTriageCalculation {
		t.Fatalf("expected one TRIAGE_CALCULATION entry, got %+v", h.auditor.sync)
	}
	entry := h.auditor.sync[0]
	if entry.UserID != "nurse-7" || entry.PatientID != "p-1" {
		t.Errorf("unexpected audit entry %+v", entry)
	}
	if entry.Metadata["notification_sent"] != true {
		t.Errorf("expected notification_sent in metadata, got %v", entry.Metadata)
	}

	if len(h.auditor.async) != 1 || h.auditor.async[0].Action != audit.ActionHighPriorityNotificationSent {
		t.Errorf("expected async notification audit, got %+v", h.auditor.async)
	}
	if len(h.metrics.outcomes) != 1 || h.metrics.outcomes[0] != "sent" {
		t.Errorf("unexpected notification metrics %v", h.metrics.outcomes)
	}
}

func TestSubmit_NormalVitalsSkipNotification(t *testing.T) {
	h := newHarness()

	out, err := h.orch.Submit(context.Background(), Submission{ActorID: "nurse-7", Vitals: submission(80, 37, 98)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Priority != PriorityNonUrgent {
		t.Errorf("expected priority 5, got %d", out.Priority)
	}
	if out.DecidedBy != nil {
		t.Errorf("expected no deciding rule, got %+v", out.DecidedBy)
	}
	if out.TriggeredRules == nil || len(out.TriggeredRules) != 0 {
		t.Errorf("expected empty non-nil rule list, got %#v", out.TriggeredRules)
	}
	if out.NotificationSent {
		t.Error("priority 5 must not notify")
	}
	if len(h.auditor.async) != 0 {
		t.Errorf("expected no notification audit, got %+v", h.auditor.async)
	}
	if len(h.auditor.sync) != 1 {
		t.Errorf("expected calculation still audited, got %d", len(h.auditor.sync))
	}
	if h.notifier.events[0].Reason != "" {
		t.Errorf("expected empty reason without a rule, got %q", h.notifier.events[0].Reason)
	}
}

func TestSubmit_RejectedVitalsStopPipeline(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"missing", &vitals.MissingVitalsError{Fields: []string{"heart_rate"}}, "missing"},
		{"unknown patient", &vitals.PatientNotFoundError{PatientID: "p-x"}, "patient_not_found"},
		{"over limit", &vitals.PhysiologicalLimitExceededError{Field: "heartRate", Value: 301, Max: 300}, "limit_exceeded"},
		{"negative", &vitals.ValidationError{Field: "all", Code: vitals.CodeNegativeValues}, "negative_values"},
		{"lookup failure", errors.New("connection reset"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.rec.err = tt.err

			out, err := h.orch.Submit(context.Background(), Submission{ActorID: "nurse-7", Vitals: submission(130, 37, 98)})
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
			if out != nil {
				t.Errorf("expected no outcome, got %+v", out)
			}
			if len(h.notifier.events) != 0 || len(h.auditor.sync) != 0 || len(h.auditor.async) != 0 {
				t.Error("nothing downstream may run after a rejection")
			}
			if len(h.metrics.rejected) != 1 || h.metrics.rejected[0] != tt.reason {
				t.Errorf("expected rejection reason %q, got %v", tt.reason, h.metrics.rejected)
			}
		})
	}
}

func TestSubmit_NotificationFailureStillAudits(t *testing.T) {
	h := newHarness()
	h.notifier.err = &notification.MessagingUnavailableError{}

	out, err := h.orch.Submit(context.Background(), Submission{ActorID: "nurse-7", Vitals: submission(70, 41, 98)})
	if err != nil {
		t.Fatalf("notification failure must not fail the submission: %v", err)
	}
	if out.NotificationSent {
		t.Error("expected NotificationSent=false")
	}
	var unavailable *notification.MessagingUnavailableError
	if !errors.As(out.NotificationErr, &unavailable) {
		t.Errorf("expected MessagingUnavailableError, got %v", out.NotificationErr)
	}
	if out.NotificationError != notification.UnavailableMessage {
		t.Errorf("unexpected client message %q", out.NotificationError)
	}
	if out.Stage != StageComplete || out.AuditLogID == "" {
		t.Errorf("expected audit to complete, got stage=%s log=%q", out.Stage, out.AuditLogID)
	}
	if len(h.auditor.async) != 1 || h.auditor.async[0].Metadata["success"] != false {
		t.Errorf("expected failed notification to be audited, got %+v", h.auditor.async)
	}
	if h.metrics.outcomes[0] != "failed" {
		t.Errorf("expected failed outcome metric, got %v", h.metrics.outcomes)
	}
}

func TestSubmit_SendFailureKeepsTransportDetailInternal(t *testing.T) {
	h := newHarness()
	transport := errors.New("lpush triage_high_priority: dial tcp 10.0.3.7:6379: connect: connection refused")
	h.notifier.err = &notification.SendError{PatientID: "p-1", Message: notification.SendFailedMessage, Err: transport}

	out, err := h.orch.Submit(context.Background(), Submission{ActorID: "nurse-7", Vitals: submission(70, 41, 98)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !errors.Is(out.NotificationErr, transport) {
		t.Errorf("expected transport error to be kept, got %v", out.NotificationErr)
	}
	if out.NotificationError != notification.SendFailedMessage {
		t.Errorf("unexpected client message %q", out.NotificationError)
	}
	if len(h.auditor.async) != 1 || !strings.Contains(h.auditor.async[0].Details, "10.0.3.7") {
		t.Errorf("expected transport detail in the audit trail, got %+v", h.auditor.async)
	}
}

func TestSubmit_AuditFailureIsSoft(t *testing.T) {
	h := newHarness()
	h.auditor.failSave = true

	out, err := h.orch.Submit(context.Background(), Submission{ActorID: "nurse-7", Vitals: submission(80, 37, 98)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Stage != StageComplete {
		t.Errorf("expected COMPLETE, got %s", out.Stage)
	}
	if out.AuditLogID != "" {
		t.Errorf("expected no log id, got %q", out.AuditLogID)
	}
}

func TestSubmit_BlankActorIsSystem(t *testing.T) {
	h := newHarness()

	if _, err := h.orch.Submit(context.Background(), Submission{ActorID: "  ", Vitals: submission(80, 37, 98)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.auditor.sync[0].UserID; got != SystemActor {
		t.Errorf("expected %q, got %q", SystemActor, got)
	}
}

func TestSubmit_WithoutMetrics(t *testing.T) {
	o := NewOrchestrator(&fakeRecorder{}, NewEngine(DefaultTiers()...), &fakeNotifier{}, &fakeAuditor{}, zerolog.Nop())
	if _, err := o.Submit(context.Background(), Submission{Vitals: submission(80, 37, 98)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// -- End to end with real services --

type captureMessenger struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (c *captureMessenger) Publish(_ context.Context, _ string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *captureMessenger) Connected() bool { return true }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("id-%d", s.n)
}

func TestSubmit_EndToEnd(t *testing.T) {
	gen := &seqIDs{}
	vitalsRepo := vitals.NewMemoryRepository()
	vitalsSvc := vitals.NewService(vitalsRepo, vitals.NewPatientDirectory("p-1"), gen, zerolog.Nop())
	messenger := &captureMessenger{}
	notifySvc := notification.NewService(messenger, gen, zerolog.Nop())
	auditRepo := audit.NewMemoryRepository()
	auditSvc := audit.NewService(auditRepo, gen, zerolog.Nop())

	o := NewOrchestrator(vitalsSvc, NewEngine(DefaultTiers()...), notifySvc, auditSvc, zerolog.Nop())

	out, err := o.Submit(context.Background(), Submission{ActorID: "nurse-1", Vitals: submission(88, 37.2, 85)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	auditSvc.Wait()

	if out.Priority != PriorityCritical || out.DecidedBy.Name != "Severe Hypoxemia" {
		t.Errorf("unexpected assessment %+v", out)
	}
	if len(messenger.payloads) != 1 {
		t.Fatalf("expected 1 published notification, got %d", len(messenger.payloads))
	}
	if auditRepo.Len() != 2 {
		t.Errorf("expected calculation and notification audit entries, got %d", auditRepo.Len())
	}
	latest, err := vitalsSvc.Latest(context.Background(), "p-1")
	if err != nil || latest.ID != out.Vitals.ID {
		t.Errorf("expected recorded vitals to be persisted, got %+v (%v)", latest, err)
	}

	// Unknown patient: rejected, nothing audited or published.
	bad := submission(130, 37, 98)
	bad.PatientID = "p-404"
	if _, err := o.Submit(context.Background(), Submission{ActorID: "nurse-1", Vitals: bad}); err == nil {
		t.Fatal("expected rejection for unknown patient")
	}
	auditSvc.Wait()
	if len(messenger.payloads) != 1 || auditRepo.Len() != 2 {
		t.Error("rejected submission must not publish or audit")
	}
}
