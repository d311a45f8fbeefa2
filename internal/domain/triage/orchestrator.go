package triage

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/domain/audit"
	"github.com/ehr/triage/internal/domain/notification"
	"github.com/ehr/triage/internal/domain/vitals"
)

// SystemActor is recorded as the acting user when a submission carries none.
const SystemActor = "system"

// Stage marks how far a submission progressed. Rejected submissions produce no
// Outcome, so the first stage an Outcome can report is StageValidated.
type Stage string

const (
	StageValidated           Stage = "VALIDATED"
	StagePriorityComputed    Stage = "PRIORITY_COMPUTED"
	StageNotificationSent    Stage = "NOTIFICATION_SENT"
	StageNotificationSkipped Stage = "NOTIFICATION_SKIPPED"
	StageAudited             Stage = "AUDITED"
	StageComplete            Stage = "COMPLETE"
)

type VitalsRecorder interface {
	RecordVitals(ctx context.Context, in *vitals.VitalSigns) (*vitals.RecordedVitals, error)
}

type Notifier interface {
	NotifyHighPriority(ctx context.Context, event *notification.TriageEvent) (*notification.Result, error)
}

type Auditor interface {
	LogAction(ctx context.Context, data audit.ActionData) (*audit.Result, error)
	LogActionAsync(ctx context.Context, data audit.ActionData)
}

// Metrics observes pipeline outcomes.
type Metrics interface {
	VitalsRejected(reason string)
	PriorityAssigned(priority int)
	NotificationOutcome(outcome string)
}

// Submission is one nurse-entered set of vitals.
type Submission struct {
	ActorID string
	Vitals  *vitals.VitalSigns
}

// Outcome is the terminal state of a submission that passed validation. A
// notification failure leaves the recorded vitals and priority in place and is
// reported in NotificationErr for logs and audit, and in NotificationError as a
// message fit for the client.
type Outcome struct {
	Stage             Stage                                  `json:"stage"`
	Vitals            *vitals.RecordedVitals                 `json:"vitals"`
	Priority          Priority                               `json:"priority"`
	DecidedBy         *TriggeredRule                         `json:"decided_by,omitempty"`
	TriggeredRules    []TriggeredRule                        `json:"triggered_rules"`
	NotificationSent  bool                                   `json:"notification_sent"`
	Notification      *notification.HighPriorityNotification `json:"notification,omitempty"`
	NotificationError string                                 `json:"notification_error,omitempty"`
	AuditLogID        string                                 `json:"audit_log_id,omitempty"`

	NotificationErr error `json:"-"`
}

// Orchestrator runs validate, compute, notify and audit, strictly in that order.
type Orchestrator struct {
	vitals   VitalsRecorder
	engine   *Engine
	notifier Notifier
	auditor  Auditor
	metrics  Metrics
	logger   zerolog.Logger
}

func NewOrchestrator(v VitalsRecorder, engine *Engine, n Notifier, a Auditor, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		vitals:   v,
		engine:   engine,
		notifier: n,
		auditor:  a,
		logger:   logger.With().Str("component", "triage").Logger(),
	}
}

// SetMetrics attaches an optional metrics sink.
func (o *Orchestrator) SetMetrics(m Metrics) {
	o.metrics = m
}

// Submit processes one submission. It returns an error only when the vitals
// are rejected, in which case nothing downstream ran.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (*Outcome, error) {
	actor := strings.TrimSpace(sub.ActorID)
	if actor == "" {
		actor = SystemActor
	}

	// Validate
	rec, err := o.vitals.RecordVitals(ctx, sub.Vitals)
	if err != nil {
		if o.metrics != nil {
			o.metrics.VitalsRejected(rejectionReason(err))
		}
		return nil, err
	}
	out := &Outcome{Stage: StageValidated, Vitals: rec}

	// Compute
	tv := &Vitals{HeartRate: &rec.HeartRate, Temperature: &rec.Temperature, OxygenSaturation: &rec.OxygenSaturation}
	assessment, err := o.engine.Assess(tv)
	if err != nil {
		return nil, fmt.Errorf("assess recorded vitals %s: %w", rec.ID, err)
	}
	triggered, err := o.engine.TriggeredRules(tv)
	if err != nil {
		return nil, fmt.Errorf("explain recorded vitals %s: %w", rec.ID, err)
	}
	out.Priority = assessment.Priority
	out.DecidedBy = assessment.DecidedBy
	out.TriggeredRules = triggered
	out.Stage = StagePriorityComputed
	if o.metrics != nil {
		o.metrics.PriorityAssigned(int(out.Priority))
	}

	// Notify
	o.notify(ctx, actor, rec, out)

	// Audit
	o.audit(ctx, actor, rec, out)

	out.Stage = StageComplete
	return out, nil
}

func (o *Orchestrator) notify(ctx context.Context, actor string, rec *vitals.RecordedVitals, out *Outcome) {
	event := &notification.TriageEvent{
		PatientID: rec.PatientID,
		Priority:  int(out.Priority),
		Timestamp: rec.RecordedAt.UnixMilli(),
		VitalSigns: map[string]float64{
			"heartRate":        float64(rec.HeartRate),
			"temperature":      rec.Temperature,
			"oxygenSaturation": float64(rec.OxygenSaturation),
			"systolicBP":       float64(rec.SystolicBP),
		},
	}
	if out.DecidedBy != nil {
		event.Reason = out.DecidedBy.Name
	}

	res, err := o.notifier.NotifyHighPriority(ctx, event)
	switch {
	case err != nil:
		out.NotificationErr = err
		out.NotificationError = notification.PublicMessage(err)
		out.Stage = StageNotificationSent
		o.observeNotification("failed")
		o.logger.Error().Err(err).
			Str("patient_id", rec.PatientID).
			Int("priority", int(out.Priority)).
			Msg("high priority notification failed, manual escalation required")
	case res.Sent:
		out.NotificationSent = true
		out.Notification = res.Notification
		out.Stage = StageNotificationSent
		o.observeNotification("sent")
	default:
		out.Stage = StageNotificationSkipped
		o.observeNotification("skipped")
		return
	}

	details := "high priority notification sent"
	meta := map[string]interface{}{"priority": int(out.Priority), "vitals_id": rec.ID}
	if out.NotificationErr != nil {
		details = "high priority notification failed: " + out.NotificationErr.Error()
		meta["success"] = false
	} else {
		meta["notification_id"] = out.Notification.NotificationID
		meta["success"] = true
	}
	o.auditor.LogActionAsync(ctx, audit.ActionData{
		UserID:    actor,
		Action:    audit.ActionHighPriorityNotificationSent,
		PatientID: rec.PatientID,
		Details:   details,
		Metadata:  meta,
	})
}

func (o *Orchestrator) audit(ctx context.Context, actor string, rec *vitals.RecordedVitals, out *Outcome) {
	rules := make([]string, len(out.TriggeredRules))
	for i, r := range out.TriggeredRules {
		rules[i] = r.Name
	}

	res, err := o.auditor.LogAction(ctx, audit.ActionData{
		UserID:    actor,
		Action:    audit.ActionTriageCalculation,
		PatientID: rec.PatientID,
		Details:   fmt.Sprintf("priority %d assigned", out.Priority),
		Metadata: map[string]interface{}{
			"vitals_id":         rec.ID,
			"priority":          int(out.Priority),
			"triggered_rules":   rules,
			"is_abnormal":       rec.IsAbnormal,
			"is_critical":       rec.IsCritical,
			"notification_sent": out.NotificationSent,
		},
	})
	switch {
	case err != nil:
		o.logger.Warn().Err(err).Str("patient_id", rec.PatientID).Msg("triage audit rejected")
	case !res.Success:
		o.logger.Warn().Str("patient_id", rec.PatientID).Str("error", res.Error).Msg("triage audit not persisted")
	default:
		out.AuditLogID = res.LogID
	}
	out.Stage = StageAudited
}

func (o *Orchestrator) observeNotification(outcome string) {
	if o.metrics != nil {
		o.metrics.NotificationOutcome(outcome)
	}
}

func rejectionReason(err error) string {
	switch e := err.(type) {
	case *vitals.MissingVitalsError:
		return "missing"
	case *vitals.PatientNotFoundError:
		return "patient_not_found"
	case *vitals.PhysiologicalLimitExceededError:
		return "limit_exceeded"
	case *vitals.ValidationError:
		return strings.ToLower(e.Code)
	}
	return "error"
}
