package token

import (
	"context"
	"database/sql"
	"errors"
)

// Repository persists daily tokens in Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes the token unless one already exists for (batch, day).
func (r *Repository) Insert(ctx context.Context, t DailyToken) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO daily_tokens (batch_id, day, value, issued_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (batch_id, day) DO NOTHING
	`, t.BatchID, t.Day, t.Value, t.IssuedAt)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected == 1, nil
}

// GetByBatchDay returns the token for (batch, day), or nil when absent.
func (r *Repository) GetByBatchDay(ctx context.Context, batchID, day string) (*DailyToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT batch_id, day, value, issued_at
		FROM daily_tokens WHERE batch_id = $1 AND day = $2
	`, batchID, day)
	return scanToken(row)
}

// GetByValue resolves a token value, or nil when it was never issued.
func (r *Repository) GetByValue(ctx context.Context, value string) (*DailyToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT batch_id, day, value, issued_at
		FROM daily_tokens WHERE value = $1
	`, value)
	return scanToken(row)
}

func scanToken(row *sql.Row) (*DailyToken, error) {
	var t DailyToken
	if err := row.Scan(&t.BatchID, &t.Day, &t.Value, &t.IssuedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}
