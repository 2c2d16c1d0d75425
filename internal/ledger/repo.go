package ledger

import (
	"context"
	"database/sql"
	"errors"
)

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertIfAbsent writes the record unless one exists for the composite key.
// The UNIQUE constraint, not a read-then-write, carries the dedup guarantee.
func (r *Repository) InsertIfAbsent(ctx context.Context, rec Record) (Record, bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, student_id, batch_id, day, token_value, marked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (student_id, batch_id, day) DO NOTHING
	`, rec.ID, rec.StudentID, rec.BatchID, rec.Day, rec.TokenValue, rec.MarkedAt)
	if err != nil {
		return Record{}, false, err
	}
	affected, _ := res.RowsAffected()
	created := affected == 1

	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, batch_id, day, token_value, marked_at
		FROM attendance_records
		WHERE student_id = $1 AND batch_id = $2 AND day = $3
	`, rec.StudentID, rec.BatchID, rec.Day)
	var stored Record
	if err := row.Scan(&stored.ID, &stored.StudentID, &stored.BatchID, &stored.Day, &stored.TokenValue, &stored.MarkedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, created, errors.New("record inserted but not found")
		}
		return Record{}, created, err
	}
	return stored, created, nil
}

// Exists reports whether a record is present for the composite key.
func (r *Repository) Exists(ctx context.Context, studentID, batchID, day string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM attendance_records
		WHERE student_id = $1 AND batch_id = $2 AND day = $3
	`, studentID, batchID, day)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Get returns a single record by id, or nil when absent.
func (r *Repository) Get(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, batch_id, day, token_value, marked_at
		FROM attendance_records WHERE id = $1
	`, id)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.BatchID, &rec.Day, &rec.TokenValue, &rec.MarkedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// History returns records most recent first up to limit.
func (r *Repository) History(ctx context.Context, studentID, batchID string, limit int) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, batch_id, day, token_value, marked_at
		FROM attendance_records
		WHERE student_id = $1 AND batch_id = $2
		ORDER BY marked_at DESC
		LIMIT $3
	`, studentID, batchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.BatchID, &rec.Day, &rec.TokenValue, &rec.MarkedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// Report joins records with student profiles for a batch and day range.
func (r *Repository) Report(ctx context.Context, batchID, from, to string) ([]ReportRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.student_id, a.batch_id, a.day, a.token_value, a.marked_at,
		       s.name, s.email, s.avatar_url
		FROM attendance_records a
		JOIN students s ON s.subject_id = a.student_id
		WHERE a.batch_id = $1 AND a.day >= $2 AND a.day <= $3
		ORDER BY a.marked_at DESC
	`, batchID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ReportRow
	for rows.Next() {
		var row ReportRow
		if err := rows.Scan(&row.ID, &row.StudentID, &row.BatchID, &row.Day, &row.TokenValue, &row.MarkedAt,
			&row.StudentName, &row.StudentEmail, &row.AvatarURL); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, rows.Err()
}
