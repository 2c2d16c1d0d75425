package enrollment

import (
	"context"
	"sync"
	"testing"
	"time"

	"qrattend/internal/apperr"
	"qrattend/internal/batch"
	"qrattend/internal/identity"
)

type memRepo struct {
	mu          sync.Mutex
	students    map[string]Student
	enrollments map[[2]string]Enrollment
}

func newMemRepo() *memRepo {
	return &memRepo{
		students:    make(map[string]Student),
		enrollments: make(map[[2]string]Enrollment),
	}
}

func (m *memRepo) UpsertStudent(_ context.Context, s Student) (Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.students[s.SubjectID]; ok {
		existing.Name, existing.Email, existing.AvatarURL = s.Name, s.Email, s.AvatarURL
		m.students[s.SubjectID] = existing
		return existing, nil
	}
	m.students[s.SubjectID] = s
	return s, nil
}

func (m *memRepo) InsertEnrollment(_ context.Context, e Enrollment) (Enrollment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{e.StudentID, e.BatchID}
	if existing, ok := m.enrollments[key]; ok {
		return existing, false, nil
	}
	m.enrollments[key] = e
	return e, true, nil
}

func (m *memRepo) GetEnrollment(_ context.Context, studentID, batchID string) (*Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.enrollments[[2]string{studentID, batchID}]; ok {
		return &e, nil
	}
	return nil, nil
}

type fakeBatches struct {
	active   map[string]bool
	inactive map[string]bool
}

func (f *fakeBatches) GetActive(_ context.Context, id string) (batch.Batch, error) {
	if f.active[id] {
		return batch.Batch{ID: id, Active: true}, nil
	}
	if f.inactive[id] {
		return batch.Batch{}, apperr.BatchInactive(id)
	}
	return batch.Batch{}, apperr.BatchNotFound(id)
}

var testIdent = identity.Identity{
	SubjectID: "google-123",
	Name:      "Asha Nair",
	Email:     "asha@example.com",
	AvatarURL: "https://example.com/a.png",
}

func newTestService(activeBatches ...string) (*Service, *memRepo) {
	f := &fakeBatches{active: map[string]bool{}, inactive: map[string]bool{}}
	for _, id := range activeBatches {
		f.active[id] = true
	}
	repo := newMemRepo()
	return NewService(repo, f), repo
}

func TestEnrollCreatesStudentAndEnrollment(t *testing.T) {
	svc, repo := newTestService("b1")

	e, created, err := svc.Enroll(context.Background(), testIdent, "b1")
	if err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	if !created {
		t.Fatal("first enroll must create")
	}
	if e.StudentID != testIdent.SubjectID || e.BatchID != "b1" {
		t.Fatalf("unexpected enrollment %+v", e)
	}
	if _, ok := repo.students[testIdent.SubjectID]; !ok {
		t.Fatal("student row missing after first enroll")
	}
}

func TestEnrollIsIdempotent(t *testing.T) {
	svc, _ := newTestService("b1")

	first, _, err := svc.Enroll(context.Background(), testIdent, "b1")
	if err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	second, created, err := svc.Enroll(context.Background(), testIdent, "b1")
	if err != nil {
		t.Fatalf("re-enroll failed: %v", err)
	}
	if created {
		t.Fatal("re-enroll must not create a second record")
	}
	if !second.EnrolledAt.Equal(first.EnrolledAt) {
		t.Fatalf("re-enroll changed timestamp: %v vs %v", second.EnrolledAt, first.EnrolledAt)
	}
}

func TestEnrollUnknownBatch(t *testing.T) {
	svc, _ := newTestService()
	_, _, err := svc.Enroll(context.Background(), testIdent, "ghost")
	if apperr.CodeOf(err) != apperr.CodeBatchNotFound {
		t.Fatalf("expected BATCH_NOT_FOUND, got %v", err)
	}
}

func TestEnrollInactiveBatch(t *testing.T) {
	svc, _ := newTestService()
	f := svc.batches.(*fakeBatches)
	f.inactive["closed"] = true

	_, _, err := svc.Enroll(context.Background(), testIdent, "closed")
	if apperr.CodeOf(err) != apperr.CodeBatchInactive {
		t.Fatalf("expected BATCH_INACTIVE, got %v", err)
	}
}

func TestLookupNotEnrolled(t *testing.T) {
	svc, _ := newTestService("b1")
	_, err := svc.Lookup(context.Background(), "stranger", "b1")
	if apperr.CodeOf(err) != apperr.CodeNotEnrolled {
		t.Fatalf("expected NOT_ENROLLED, got %v", err)
	}
}

func TestRegisterIdentityRefreshesProfile(t *testing.T) {
	svc, repo := newTestService("b1")
	if _, _, err := svc.Enroll(context.Background(), testIdent, "b1"); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}

	updated := testIdent
	updated.Name = "Asha N."
	updated.AvatarURL = "https://example.com/new.png"
	if _, err := svc.RegisterIdentity(context.Background(), updated); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	st := repo.students[testIdent.SubjectID]
	if st.Name != "Asha N." || st.AvatarURL != "https://example.com/new.png" {
		t.Fatalf("profile not refreshed: %+v", st)
	}
}
