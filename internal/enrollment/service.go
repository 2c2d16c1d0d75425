package enrollment

import (
	"context"
	"time"

	"qrattend/internal/apperr"
	"qrattend/internal/batch"
	"qrattend/internal/identity"
)

// Student is created on first successful sign-in and refreshed (name, email,
// avatar) on later sign-ins. The subject id comes from the identity provider.
type Student struct {
	SubjectID string    `json:"subject_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
}

// Enrollment binds a student to a batch. At most one per (student, batch).
type Enrollment struct {
	StudentID  string    `json:"student_id"`
	BatchID    string    `json:"batch_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// Repo is the storage contract for students and enrollments.
type Repo interface {
	UpsertStudent(ctx context.Context, s Student) (Student, error)
	// InsertEnrollment is insert-if-absent on (student, batch); it returns the
	// stored row either way plus whether this call created it.
	InsertEnrollment(ctx context.Context, e Enrollment) (Enrollment, bool, error)
	GetEnrollment(ctx context.Context, studentID, batchID string) (*Enrollment, error)
}

// BatchGetter is the slice of the batch service the registry needs.
type BatchGetter interface {
	GetActive(ctx context.Context, id string) (batch.Batch, error)
}

// Service is the enrollment registry.
type Service struct {
	repo    Repo
	batches BatchGetter
}

func NewService(repo Repo, batches BatchGetter) *Service {
	return &Service{repo: repo, batches: batches}
}

// RegisterIdentity creates or refreshes the student row for a verified
// identity. Safe to call on every sign-in.
func (s *Service) RegisterIdentity(ctx context.Context, ident identity.Identity) (Student, error) {
	if ident.SubjectID == "" {
		return Student{}, apperr.InvalidCredential("missing subject")
	}
	st, err := s.repo.UpsertStudent(ctx, Student{
		SubjectID: ident.SubjectID,
		Name:      ident.Name,
		Email:     ident.Email,
		AvatarURL: ident.AvatarURL,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return Student{}, apperr.Transient(err)
	}
	return st, nil
}

// Lookup answers whether the subject is enrolled in the batch. Read-only.
func (s *Service) Lookup(ctx context.Context, subjectID, batchID string) (Enrollment, error) {
	if subjectID == "" || batchID == "" {
		return Enrollment{}, apperr.Invalid("subject and batch are required")
	}
	e, err := s.repo.GetEnrollment(ctx, subjectID, batchID)
	if err != nil {
		return Enrollment{}, apperr.Transient(err)
	}
	if e == nil {
		return Enrollment{}, apperr.NotEnrolled()
	}
	return *e, nil
}

// Enroll registers the identity in the batch. Re-enrolling is idempotent: the
// stored row is returned unchanged, original timestamp included. Guards
// against double-submission from a slow network or a re-clicked button.
func (s *Service) Enroll(ctx context.Context, ident identity.Identity, batchID string) (Enrollment, bool, error) {
	if _, err := s.batches.GetActive(ctx, batchID); err != nil {
		return Enrollment{}, false, err
	}
	if _, err := s.RegisterIdentity(ctx, ident); err != nil {
		return Enrollment{}, false, err
	}
	e, created, err := s.repo.InsertEnrollment(ctx, Enrollment{
		StudentID:  ident.SubjectID,
		BatchID:    batchID,
		EnrolledAt: time.Now().UTC(),
	})
	if err != nil {
		return Enrollment{}, false, apperr.Transient(err)
	}
	return e, created, nil
}
