package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"qrattend/internal/apperr"
	"qrattend/internal/dateutil"
)

// Record is one attendance mark. At most one exists per (student, batch, day);
// records are never mutated or deleted once written.
type Record struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	BatchID    string    `json:"batch_id"`
	Day        string    `json:"day"`
	TokenValue string    `json:"-"`
	MarkedAt   time.Time `json:"marked_at"`
}

// ReportRow is a record joined with student profile for instructor listings.
type ReportRow struct {
	Record
	StudentName  string `json:"student_name"`
	StudentEmail string `json:"student_email"`
	AvatarURL    string `json:"avatar_url"`
}

// Repo is the storage contract for attendance records.
type Repo interface {
	// InsertIfAbsent is the atomic dedup write: it stores the record unless
	// one exists for (student, batch, day) and returns the stored row either
	// way plus whether this call created it.
	InsertIfAbsent(ctx context.Context, rec Record) (Record, bool, error)
	Exists(ctx context.Context, studentID, batchID, day string) (bool, error)
	Get(ctx context.Context, id string) (*Record, error)
	History(ctx context.Context, studentID, batchID string, limit int) ([]Record, error)
	Report(ctx context.Context, batchID, from, to string) ([]ReportRow, error)
}

// Service is the attendance ledger.
type Service struct {
	repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{repo: repo}
}

// AlreadyMarked reports whether an attendance record exists. Read-only.
func (s *Service) AlreadyMarked(ctx context.Context, studentID, batchID, day string) (bool, error) {
	ok, err := s.repo.Exists(ctx, studentID, batchID, day)
	if err != nil {
		return false, apperr.Transient(err)
	}
	return ok, nil
}

// Mark appends an attendance record, or returns the existing one unchanged.
// A student re-opening the page must see "already marked", not an error.
func (s *Service) Mark(ctx context.Context, studentID, batchID, day, tokenValue string) (Record, bool, error) {
	if studentID == "" || batchID == "" {
		return Record{}, false, apperr.Invalid("student and batch are required")
	}
	if !dateutil.Valid(day) {
		return Record{}, false, apperr.Invalid("day must be YYYY-MM-DD")
	}
	rec, created, err := s.repo.InsertIfAbsent(ctx, Record{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		BatchID:    batchID,
		Day:        day,
		TokenValue: tokenValue,
		MarkedAt:   time.Now().UTC(),
	})
	if err != nil {
		return Record{}, false, apperr.Transient(err)
	}
	return rec, created, nil
}

// Get returns one record by id.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return Record{}, apperr.Transient(err)
	}
	if rec == nil {
		return Record{}, apperr.Invalid("attendance record " + id + " not found")
	}
	return *rec, nil
}

// History returns a student's records for a batch, most recent first.
func (s *Service) History(ctx context.Context, studentID, batchID string, limit int) ([]Record, error) {
	if studentID == "" || batchID == "" {
		return nil, apperr.Invalid("student and batch are required")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	recs, err := s.repo.History(ctx, studentID, batchID, limit)
	if err != nil {
		return nil, apperr.Transient(err)
	}
	return recs, nil
}

// Report returns a batch's records in [from, to], most recent first.
func (s *Service) Report(ctx context.Context, batchID, from, to string) ([]ReportRow, error) {
	if batchID == "" {
		return nil, apperr.Invalid("batch id is required")
	}
	if !dateutil.Valid(from) || !dateutil.Valid(to) {
		return nil, apperr.Invalid("from and to must be YYYY-MM-DD")
	}
	if to < from {
		return nil, apperr.Invalid("to must not precede from")
	}
	rows, err := s.repo.Report(ctx, batchID, from, to)
	if err != nil {
		return nil, apperr.Transient(err)
	}
	return rows, nil
}
