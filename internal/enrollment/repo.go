package enrollment

import (
	"context"
	"database/sql"
	"errors"
)

// Repository persists students and enrollments in Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// UpsertStudent creates the student or refreshes profile fields from a later
// sign-in. The created_at of the original row is preserved.
func (r *Repository) UpsertStudent(ctx context.Context, s Student) (Student, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO students (subject_id, name, email, avatar_url, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (subject_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			avatar_url = EXCLUDED.avatar_url,
			updated_at = NOW()
		RETURNING subject_id, name, email, avatar_url, created_at
	`, s.SubjectID, s.Name, s.Email, s.AvatarURL, s.CreatedAt)
	var out Student
	if err := row.Scan(&out.SubjectID, &out.Name, &out.Email, &out.AvatarURL, &out.CreatedAt); err != nil {
		return Student{}, err
	}
	return out, nil
}

// InsertEnrollment is an atomic insert-if-absent on (student, batch). Two
// concurrent enrolls converge on one row; the loser reads the winner's row.
func (r *Repository) InsertEnrollment(ctx context.Context, e Enrollment) (Enrollment, bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO enrollments (student_id, batch_id, enrolled_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id, batch_id) DO NOTHING
	`, e.StudentID, e.BatchID, e.EnrolledAt)
	if err != nil {
		return Enrollment{}, false, err
	}
	affected, _ := res.RowsAffected()
	created := affected == 1

	stored, err := r.GetEnrollment(ctx, e.StudentID, e.BatchID)
	if err != nil {
		return Enrollment{}, created, err
	}
	if stored == nil {
		return Enrollment{}, created, errors.New("enrollment inserted but not found")
	}
	return *stored, created, nil
}

// GetEnrollment returns the enrollment row, or nil when absent.
func (r *Repository) GetEnrollment(ctx context.Context, studentID, batchID string) (*Enrollment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT student_id, batch_id, enrolled_at
		FROM enrollments WHERE student_id = $1 AND batch_id = $2
	`, studentID, batchID)
	var e Enrollment
	if err := row.Scan(&e.StudentID, &e.BatchID, &e.EnrolledAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// GetStudent returns a student row, or nil when absent.
func (r *Repository) GetStudent(ctx context.Context, subjectID string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT subject_id, name, email, avatar_url, created_at
		FROM students WHERE subject_id = $1
	`, subjectID)
	var s Student
	if err := row.Scan(&s.SubjectID, &s.Name, &s.Email, &s.AvatarURL, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
