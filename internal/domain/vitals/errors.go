package vitals

import (
	"errors"
	"fmt"
	"strings"
)

// Validation codes carried by ValidationError.
const (
	CodeNegativeValues    = "NEGATIVE_VALUES"
	CodePersistenceFailed = "PERSISTENCE_FAILED"
)

// ErrNotFound is returned by repositories when no vitals match.
var ErrNotFound = errors.New("vitals not found")

// MissingVitalsError lists required inputs that were absent.
type MissingVitalsError struct {
	Fields []string
}

func (e *MissingVitalsError) Error() string {
	return "missing required vitals: " + strings.Join(e.Fields, ", ")
}

// PatientNotFoundError is returned when a submission references an unknown patient.
type PatientNotFoundError struct {
	PatientID string
}

func (e *PatientNotFoundError) Error() string {
	return fmt.Sprintf("patient %s not found", e.PatientID)
}

// ValidationError is a rejected submission. Field is "all" when the problem is
// not specific to one measurement.
type ValidationError struct {
	Field string
	Code  string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vitals validation failed on %s (%s): %v", e.Field, e.Code, e.Err)
	}
	return fmt.Sprintf("vitals validation failed on %s (%s)", e.Field, e.Code)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PhysiologicalLimitExceededError is returned when a measurement is above the
// absolute limit for a living patient.
type PhysiologicalLimitExceededError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *PhysiologicalLimitExceededError) Error() string {
	return fmt.Sprintf("%s value %g outside physiological range [%g, %g]", e.Field, e.Value, e.Min, e.Max)
}

// IsClientError reports whether err is a rejection the submitter can correct.
func IsClientError(err error) bool {
	var (
		missing  *MissingVitalsError
		notFound *PatientNotFoundError
		limit    *PhysiologicalLimitExceededError
		invalid  *ValidationError
	)
	switch {
	case errors.As(err, &missing), errors.As(err, &notFound), errors.As(err, &limit):
		return true
	case errors.As(err, &invalid):
		return invalid.Code != CodePersistenceFailed
	}
	return false
}
