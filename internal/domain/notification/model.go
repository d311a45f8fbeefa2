package notification

// Queue names, one per priority band.
const (
	HighPriorityQueue   = "triage_high_priority"
	MediumPriorityQueue = "triage_medium_priority"
	LowPriorityQueue    = "triage_low_priority"
)

// EventTypeHighPriority tags every outbound notification.
const EventTypeHighPriority = "HIGH_PRIORITY_TRIAGE"

// DefaultReason is used when an event carries no reason of its own.
const DefaultReason = "Critical vital signs detected"

type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityUrgent   Severity = "URGENT"
)

// highPriorityLevels are the priorities that page a doctor.
var highPriorityLevels = []int{1, 2}

// TriageEvent is the outcome of one priority calculation. Priority 0 means the
// field was not supplied. Timestamp is Unix milliseconds, 0 meaning now.
type TriageEvent struct {
	PatientID  string             `json:"patient_id"`
	Priority   int                `json:"priority"`
	Reason     string             `json:"reason,omitempty"`
	Timestamp  int64              `json:"timestamp,omitempty"`
	VitalSigns map[string]float64 `json:"vital_signs,omitempty"`
}

// HighPriorityNotification is the message consumed by doctor-facing clients.
type HighPriorityNotification struct {
	EventType      string             `json:"eventType"`
	PatientID      string             `json:"patientId"`
	Priority       int                `json:"priority"`
	Reason         string             `json:"reason"`
	Timestamp      int64              `json:"timestamp"`
	VitalSigns     map[string]float64 `json:"vitalSigns,omitempty"`
	NotificationID string             `json:"notificationId"`
	Severity       Severity           `json:"severity"`
}

// Result reports what NotifyHighPriority did. Notification is nil when the
// priority did not call for one.
type Result struct {
	Sent         bool                      `json:"sent"`
	Notification *HighPriorityNotification `json:"notification,omitempty"`
}

// Stats summarises the decider's configuration and activity since start.
type Stats struct {
	HighPriorityLevels []int  `json:"high_priority_levels"`
	QueueName          string `json:"queue_name"`
	Sent               uint64 `json:"sent"`
	Skipped            uint64 `json:"skipped"`
	Failed             uint64 `json:"failed"`
}

// QueueFor returns the queue that carries events of the given priority.
func QueueFor(priority int) string {
	switch {
	case isHighPriority(priority):
		return HighPriorityQueue
	case priority == 3:
		return MediumPriorityQueue
	default:
		return LowPriorityQueue
	}
}

func isHighPriority(priority int) bool {
	for _, p := range highPriorityLevels {
		if p == priority {
			return true
		}
	}
	return false
}
