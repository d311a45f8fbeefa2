package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/platform/ids"
)

// Messenger is the transport the decider hands finished notifications to.
// Retries and reconnects are the transport's business.
type Messenger interface {
	Publish(ctx context.Context, queue string, payload []byte) error
	Connected() bool
}

// Service decides whether a triage outcome pages a doctor and, if so, publishes
// the notification.
type Service struct {
	messenger Messenger
	ids       ids.Generator
	logger    zerolog.Logger
	queue     string
	now       func() time.Time

	sent    atomic.Uint64
	skipped atomic.Uint64
	failed  atomic.Uint64
}

func NewService(messenger Messenger, gen ids.Generator, logger zerolog.Logger) *Service {
	return &Service{
		messenger: messenger,
		ids:       gen,
		logger:    logger.With().Str("component", "notification").Logger(),
		queue:     HighPriorityQueue,
		now:       time.Now,
	}
}

// SetQueue overrides the queue high-priority notifications are published to.
func (s *Service) SetQueue(name string) {
	if name != "" {
		s.queue = name
	}
}

// NotifyHighPriority publishes a notification for priorities 1 and 2. Other
// priorities are a successful no-op.
func (s *Service) NotifyHighPriority(ctx context.Context, event *TriageEvent) (*Result, error) {
	if err := validateEvent(event); err != nil {
		return nil, err
	}

	if !isHighPriority(event.Priority) {
		s.skipped.Add(1)
		s.logger.Info().
			Str("patient_id", event.PatientID).
			Int("priority", event.Priority).
			Str("band", QueueFor(event.Priority)).
			Msg("priority does not require immediate notification")
		return &Result{Sent: false}, nil
	}

	if !s.messenger.Connected() {
		s.failed.Add(1)
		s.logger.Error().Str("patient_id", event.PatientID).Msg("messaging unavailable, notification not sent")
		return nil, &MessagingUnavailableError{}
	}

	n := s.build(event)
	payload, err := json.Marshal(n)
	if err != nil {
		s.failed.Add(1)
		return nil, fmt.Errorf("encode notification: %w", err)
	}

	if err := s.messenger.Publish(ctx, s.queue, payload); err != nil {
		s.failed.Add(1)
		s.logger.Error().Err(err).
			Str("patient_id", event.PatientID).
			Str("notification_id", n.NotificationID).
			Msg("failed to publish high priority notification")
		return nil, &SendError{PatientID: event.PatientID, Message: SendFailedMessage, Err: err}
	}

	s.sent.Add(1)
	s.logger.Info().
		Str("patient_id", event.PatientID).
		Str("notification_id", n.NotificationID).
		Str("severity", string(n.Severity)).
		Msg("high priority notification sent")
	return &Result{Sent: true, Notification: n}, nil
}

func validateEvent(event *TriageEvent) error {
	switch {
	case event == nil:
		return &InvalidDataError{Reason: "triage event is required"}
	case strings.TrimSpace(event.PatientID) == "":
		return &InvalidDataError{Reason: "patient_id is required"}
	case event.Priority == 0:
		return &InvalidDataError{Reason: "priority is required"}
	case event.Priority < 1 || event.Priority > 5:
		return &InvalidDataError{Reason: fmt.Sprintf("invalid priority level %d, must be between 1 and 5", event.Priority)}
	}
	return nil
}

func (s *Service) build(event *TriageEvent) *HighPriorityNotification {
	n := &HighPriorityNotification{
		EventType:      EventTypeHighPriority,
		PatientID:      event.PatientID,
		Priority:       event.Priority,
		Reason:         event.Reason,
		Timestamp:      event.Timestamp,
		VitalSigns:     event.VitalSigns,
		NotificationID: s.ids.Generate(),
		Severity:       SeverityUrgent,
	}
	if n.Reason == "" {
		n.Reason = DefaultReason
	}
	if n.Timestamp == 0 {
		n.Timestamp = s.now().UnixMilli()
	}
	if event.Priority == 1 {
		n.Severity = SeverityCritical
	}
	return n
}

func (s *Service) Stats() Stats {
	levels := make([]int, len(highPriorityLevels))
	copy(levels, highPriorityLevels)
	return Stats{
		HighPriorityLevels: levels,
		QueueName:          s.queue,
		Sent:               s.sent.Load(),
		Skipped:            s.skipped.Load(),
		Failed:             s.failed.Load(),
	}
}
