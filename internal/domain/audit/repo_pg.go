package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type auditRepoPG struct{ db queryable }

func NewRepoPG(db queryable) Repository { return &auditRepoPG{db: db} }

const auditCols = `id, user_id, action, COALESCE(patient_id, ''), COALESCE(details, ''), metadata, created_at`

func scanEntry(row pgx.Row) (*LogData, error) {
	var (
		e    LogData
		meta []byte
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.Action, &e.PatientID, &e.Details, &meta, &e.Timestamp); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode audit metadata %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *auditRepoPG) Save(ctx context.Context, e *LogData) error {
	var meta []byte
	if len(e.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(e.Metadata); err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO audit_log (id, user_id, action, patient_id, details, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.UserID, string(e.Action), nullable(e.PatientID), nullable(e.Details), meta, e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit_log: %w", err)
	}
	return nil
}

func (r *auditRepoPG) Search(ctx context.Context, c SearchCriteria) ([]*LogData, int, error) {
	c.applyDefaults()

	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	add := func(clause string, v interface{}) {
		where += fmt.Sprintf(clause, idx)
		args = append(args, v)
		idx++
	}
	if c.UserID != "" {
		add(` AND user_id = $%d`, c.UserID)
	}
	if c.PatientID != "" {
		add(` AND patient_id = $%d`, c.PatientID)
	}
	if c.Action != "" {
		add(` AND action = $%d`, string(c.Action))
	}
	if c.From != nil {
		add(` AND created_at >= $%d`, *c.From)
	}
	if c.To != nil {
		add(` AND created_at <= $%d`, *c.To)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + auditCols + ` FROM audit_log` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, c.Limit, c.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*LogData
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
