package audit

import (
	"time"
)

// Action is the closed vocabulary of auditable events.
type Action string

const (
	ActionTriageCalculation            Action = "TRIAGE_CALCULATION"
	ActionPriorityAssigned             Action = "PRIORITY_ASSIGNED"
	ActionPriorityChanged              Action = "PRIORITY_CHANGED"
	ActionPatientRegistered            Action = "PATIENT_REGISTERED"
	ActionPatientUpdated               Action = "PATIENT_UPDATED"
	ActionPatientViewed                Action = "PATIENT_VIEWED"
	ActionVitalsRecorded               Action = "VITALS_RECORDED"
	ActionVitalsViewed                 Action = "VITALS_VIEWED"
	ActionHighPriorityNotificationSent Action = "HIGH_PRIORITY_NOTIFICATION_SENT"
	ActionAlertAcknowledged            Action = "ALERT_ACKNOWLEDGED"
	ActionUserLogin                    Action = "USER_LOGIN"
	ActionUserLogout                   Action = "USER_LOGOUT"
	ActionAccessDenied                 Action = "ACCESS_DENIED"
)

var allActions = []Action{
	ActionTriageCalculation,
	ActionPriorityAssigned,
	ActionPriorityChanged,
	ActionPatientRegistered,
	ActionPatientUpdated,
	ActionPatientViewed,
	ActionVitalsRecorded,
	ActionVitalsViewed,
	ActionHighPriorityNotificationSent,
	ActionAlertAcknowledged,
	ActionUserLogin,
	ActionUserLogout,
	ActionAccessDenied,
}

// Actions lists every valid action.
func Actions() []Action {
	out := make([]Action, len(allActions))
	copy(out, allActions)
	return out
}

// IsValidAction reports whether s names a known action.
func IsValidAction(s string) bool {
	for _, a := range allActions {
		if string(a) == s {
			return true
		}
	}
	return false
}

// MaxBatchSize caps LogBatch.
const MaxBatchSize = 1000

// Search page sizes.
const (
	DefaultSearchLimit = 100
	MaxSearchLimit     = 1000
)

// ActionData is a request to record one action.
type ActionData struct {
	UserID    string                 `json:"user_id"`
	Action    Action                 `json:"action"`
	PatientID string                 `json:"patient_id,omitempty"`
	Details   string                 `json:"details,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// LogData maps to the audit_log table. Entries are never updated or deleted here.
type LogData struct {
	ID        string                 `db:"id" json:"id"`
	UserID    string                 `db:"user_id" json:"user_id"`
	Action    Action                 `db:"action" json:"action"`
	PatientID string                 `db:"patient_id" json:"patient_id,omitempty"`
	Details   string                 `db:"details" json:"details,omitempty"`
	Metadata  map[string]interface{} `db:"metadata" json:"metadata,omitempty"`
	Timestamp time.Time              `db:"created_at" json:"timestamp"`
}

// Result is the outcome of a single write. A failed write is reported here
// rather than as an error so callers can carry on.
type Result struct {
	Success bool   `json:"success"`
	LogID   string `json:"log_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SearchCriteria filters audit entries. Zero fields do not filter.
type SearchCriteria struct {
	UserID    string     `json:"user_id" query:"user_id"`
	PatientID string     `json:"patient_id" query:"patient_id"`
	Action    Action     `json:"action" query:"action"`
	From      *time.Time `json:"from" query:"from"`
	To        *time.Time `json:"to" query:"to"`
	Limit     int        `json:"limit" query:"limit"`
	Offset    int        `json:"offset" query:"offset"`
}

func (c *SearchCriteria) applyDefaults() {
	if c.Limit <= 0 {
		c.Limit = DefaultSearchLimit
	}
	if c.Limit > MaxSearchLimit {
		c.Limit = MaxSearchLimit
	}
	if c.Offset < 0 {
		c.Offset = 0
	}
}

func (c SearchCriteria) matches(e *LogData) bool {
	if c.UserID != "" && e.UserID != c.UserID {
		return false
	}
	if c.PatientID != "" && e.PatientID != c.PatientID {
		return false
	}
	if c.Action != "" && e.Action != c.Action {
		return false
	}
	if c.From != nil && e.Timestamp.Before(*c.From) {
		return false
	}
	if c.To != nil && e.Timestamp.After(*c.To) {
		return false
	}
	return true
}
