package triage

import (
	"strings"
)

// InsufficientDataError is returned when the engine is called without the
// fields it needs. It signals a caller bug rather than a clinical finding.
type InsufficientDataError struct {
	Missing []string
}

func (e *InsufficientDataError) Error() string {
	return "insufficient vitals for triage: missing " + strings.Join(e.Missing, ", ")
}
