package vitals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Vitals Repository ===========

type vitalsRepoPG struct{ db queryable }

// NewRepoPG accepts a *pgxpool.Pool or a pgx.Tx.
func NewRepoPG(db queryable) Repository { return &vitalsRepoPG{db: db} }

const vitalsCols = `id, patient_id, heart_rate, temperature, oxygen_saturation, systolic_bp,
	is_abnormal, is_critical, recorded_at`

func scanVitals(row pgx.Row) (*RecordedVitals, error) {
	var v RecordedVitals
	err := row.Scan(&v.ID, &v.PatientID, &v.HeartRate, &v.Temperature, &v.OxygenSaturation, &v.SystolicBP,
		&v.IsAbnormal, &v.IsCritical, &v.RecordedAt)
	return &v, err
}

func (r *vitalsRepoPG) Save(ctx context.Context, v *RecordedVitals) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO vitals_record (id, patient_id, heart_rate, temperature, oxygen_saturation, systolic_bp,
			is_abnormal, is_critical, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		v.ID, v.PatientID, v.HeartRate, v.Temperature, v.OxygenSaturation, v.SystolicBP,
		v.IsAbnormal, v.IsCritical, v.RecordedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return &PatientNotFoundError{PatientID: v.PatientID}
		}
		return fmt.Errorf("insert vitals_record: %w", err)
	}
	return nil
}

func (r *vitalsRepoPG) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*RecordedVitals, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM vitals_record WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+vitalsCols+` FROM vitals_record WHERE patient_id = $1 ORDER BY recorded_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *vitalsRepoPG) Latest(ctx context.Context, patientID string) (*RecordedVitals, error) {
	v, err := scanVitals(r.db.QueryRow(ctx, `SELECT `+vitalsCols+` FROM vitals_record WHERE patient_id = $1 ORDER BY recorded_at DESC LIMIT 1`, patientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *vitalsRepoPG) ListByDateRange(ctx context.Context, patientID string, from, to time.Time) ([]*RecordedVitals, error) {
	rows, err := r.db.Query(ctx, `SELECT `+vitalsCols+` FROM vitals_record
		WHERE patient_id = $1 AND recorded_at >= $2 AND recorded_at <= $3
		ORDER BY recorded_at ASC`, patientID, from, to)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]*RecordedVitals, error) {
	defer rows.Close()
	var items []*RecordedVitals
	for rows.Next() {
		v, err := scanVitals(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

// =========== Patient Lookup ===========

type patientLookupPG struct{ db queryable }

func NewPatientLookupPG(db queryable) PatientRegistry { return &patientLookupPG{db: db} }

func (p *patientLookupPG) Exists(ctx context.Context, patientID string) (bool, error) {
	var exists bool
	err := p.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM patient WHERE id = $1)`, patientID).Scan(&exists)
	return exists, err
}

func (p *patientLookupPG) Register(ctx context.Context, patientID string) error {
	_, err := p.db.Exec(ctx, `INSERT INTO patient (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, patientID)
	if err != nil {
		return fmt.Errorf("register patient %s: %w", patientID, err)
	}
	return nil
}
