package vitals

import (
	"context"
	"time"
)

type Repository interface {
	Save(ctx context.Context, v *RecordedVitals) error
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*RecordedVitals, int, error)
	Latest(ctx context.Context, patientID string) (*RecordedVitals, error)
	ListByDateRange(ctx context.Context, patientID string, from, to time.Time) ([]*RecordedVitals, error)
}

// PatientLookup confirms that a patient exists.
type PatientLookup interface {
	Exists(ctx context.Context, patientID string) (bool, error)
}

// PatientRegistry is a PatientLookup that can also enrol patients. Used to
// seed the directory at startup.
type PatientRegistry interface {
	PatientLookup
	Register(ctx context.Context, patientID string) error
}
