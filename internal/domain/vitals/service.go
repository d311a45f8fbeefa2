package vitals

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/platform/ids"
)

type Service struct {
	repo     Repository
	patients PatientLookup
	ids      ids.Generator
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, patients PatientLookup, gen ids.Generator, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		ids:      gen,
		logger:   logger.With().Str("component", "vitals").Logger(),
		now:      time.Now,
	}
}

// RecordVitals validates a submission, classifies it and appends it to the
// patient's history. Checks run in a fixed order: required fields, patient
// existence, negative values, physiological ceilings.
func (s *Service) RecordVitals(ctx context.Context, in *VitalSigns) (*RecordedVitals, error) {
	if err := checkRequired(in); err != nil {
		return nil, err
	}

	exists, err := s.patients.Exists(ctx, in.PatientID)
	if err != nil {
		return nil, fmt.Errorf("look up patient %s: %w", in.PatientID, err)
	}
	if !exists {
		return nil, &PatientNotFoundError{PatientID: in.PatientID}
	}

	rec := &RecordedVitals{
		PatientID:        in.PatientID,
		HeartRate:        *in.HeartRate,
		Temperature:      *in.Temperature,
		OxygenSaturation: *in.OxygenSaturation,
		SystolicBP:       *in.SystolicBP,
	}
	if err := checkRanges(rec); err != nil {
		return nil, err
	}

	rec.ID = s.ids.Generate()
	rec.RecordedAt = s.now().UTC()
	rec.Classify()

	if err := s.repo.Save(ctx, rec); err != nil {
		s.logger.Error().Err(err).Str("patient_id", rec.PatientID).Msg("failed to persist vitals")
		return nil, &ValidationError{Field: "vitals", Code: CodePersistenceFailed, Err: err}
	}

	s.logger.Debug().
		Str("vitals_id", rec.ID).
		Str("patient_id", rec.PatientID).
		Bool("abnormal", rec.IsAbnormal).
		Bool("critical", rec.IsCritical).
		Msg("vitals recorded")
	return rec, nil
}

func checkRequired(in *VitalSigns) error {
	if in == nil {
		return &MissingVitalsError{Fields: []string{"vitals"}}
	}
	var missing []string
	if strings.TrimSpace(in.PatientID) == "" {
		missing = append(missing, "patient_id")
	}
	if in.HeartRate == nil {
		missing = append(missing, "heart_rate")
	}
	if in.Temperature == nil {
		missing = append(missing, "temperature")
	}
	if in.OxygenSaturation == nil {
		missing = append(missing, "oxygen_saturation")
	}
	if in.SystolicBP == nil {
		missing = append(missing, "systolic_bp")
	}
	if len(missing) > 0 {
		return &MissingVitalsError{Fields: missing}
	}
	return nil
}

func checkRanges(r *RecordedVitals) error {
	if r.HeartRate < 0 || r.Temperature < 0 || r.OxygenSaturation < 0 || r.SystolicBP < 0 {
		return &ValidationError{Field: "all", Code: CodeNegativeValues}
	}

	limits := []struct {
		field string
		value float64
		max   float64
	}{
		{"heartRate", float64(r.HeartRate), MaxHeartRate},
		{"temperature", r.Temperature, MaxTemperature},
		{"oxygenSaturation", float64(r.OxygenSaturation), MaxOxygenSaturation},
		{"systolicBP", float64(r.SystolicBP), MaxSystolicBP},
	}
	for _, l := range limits {
		if l.value > l.max {
			return &PhysiologicalLimitExceededError{Field: l.field, Value: l.value, Min: 0, Max: l.max}
		}
	}
	return nil
}

// -- History --

func (s *Service) History(ctx context.Context, patientID string, limit, offset int) ([]*RecordedVitals, int, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, 0, fmt.Errorf("patient_id is required")
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) Latest(ctx context.Context, patientID string) (*RecordedVitals, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, fmt.Errorf("patient_id is required")
	}
	return s.repo.Latest(ctx, patientID)
}

func (s *Service) Range(ctx context.Context, patientID string, from, to time.Time) ([]*RecordedVitals, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, fmt.Errorf("patient_id is required")
	}
	if to.Before(from) {
		return nil, fmt.Errorf("end of range must not be before start")
	}
	return s.repo.ListByDateRange(ctx, patientID, from, to)
}
