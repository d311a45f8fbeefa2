package triage

import "fmt"

// Priority is an emergency-department triage level. Lower is more urgent.
type Priority int

const (
	PriorityCritical   Priority = 1 // resuscitation, immediate
	PriorityEmergency  Priority = 2 // < 10 min
	PriorityUrgent     Priority = 3 // < 30 min
	PriorityLessUrgent Priority = 4 // < 60 min
	PriorityNonUrgent  Priority = 5 // < 120 min
)

// Valid reports whether p is one of the five defined levels.
func (p Priority) Valid() bool {
	return p >= PriorityCritical && p <= PriorityNonUrgent
}

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityEmergency:
		return "emergency"
	case PriorityUrgent:
		return "urgent"
	case PriorityLessUrgent:
		return "less-urgent"
	case PriorityNonUrgent:
		return "non-urgent"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// MaxWaitMinutes returns the target time-to-physician for the level, 0 meaning immediate.
func (p Priority) MaxWaitMinutes() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityEmergency:
		return 10
	case PriorityUrgent:
		return 30
	case PriorityLessUrgent:
		return 60
	default:
		return 120
	}
}

// Vitals is the subset of vital signs the engine reasons over. Nil fields are
// treated as absent.
type Vitals struct {
	HeartRate        *int     `json:"heart_rate"`
	Temperature      *float64 `json:"temperature"`
	OxygenSaturation *int     `json:"oxygen_saturation"`
}

// Rule is a named clinical predicate.
type Rule struct {
	Name          string
	Justification string
	Matches       func(heartRate int, temperature float64, oxygenSaturation int) bool
}

// Tier groups the rules that assign the same priority.
type Tier struct {
	Priority Priority
	Rules    []Rule
}

// TriggeredRule is the explainable trace of a rule that matched.
type TriggeredRule struct {
	Name          string   `json:"name"`
	Priority      Priority `json:"priority"`
	Justification string   `json:"justification"`
}

// Assessment is the result of a priority calculation together with the first
// rule that decided it, if any.
type Assessment struct {
	Priority  Priority       `json:"priority"`
	DecidedBy *TriggeredRule `json:"decided_by,omitempty"`
}
