package batch

import (
	"context"
	"database/sql"
	"errors"
)

// Repository persists batches in Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a new batch.
func (r *Repository) Insert(ctx context.Context, b Batch) (Batch, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO batches (id, name, institution, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, b.ID, b.Name, b.Institution, b.Active, b.CreatedAt)
	if err := row.Scan(&b.CreatedAt); err != nil {
		return Batch{}, err
	}
	return b, nil
}

// Get returns a batch by id, or nil when absent.
func (r *Repository) Get(ctx context.Context, id string) (*Batch, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, institution, active, created_at
		FROM batches WHERE id = $1
	`, id)
	var b Batch
	if err := row.Scan(&b.ID, &b.Name, &b.Institution, &b.Active, &b.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// List returns batches newest first with basic filters.
func (r *Repository) List(ctx context.Context, institution string, activeOnly bool) ([]Batch, error) {
	query := `SELECT id, name, institution, active, created_at FROM batches`
	args := []any{}
	clauses := []string{}
	if institution != "" {
		args = append(args, institution)
		clauses = append(clauses, "institution = $1")
	}
	if activeOnly {
		clauses = append(clauses, "active = TRUE")
	}
	for i, cl := range clauses {
		if i == 0 {
			query += " WHERE " + cl
		} else {
			query += " AND " + cl
		}
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.Name, &b.Institution, &b.Active, &b.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// SetActive flips the active flag.
func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE batches SET active = $2 WHERE id = $1`, id, active)
	return err
}
