package batch

import (
	"context"
	"strings"
	"sync"
	"testing"

	"qrattend/internal/apperr"
)

type memRepo struct {
	mu      sync.Mutex
	batches map[string]Batch
}

func newMemRepo() *memRepo {
	return &memRepo{batches: make(map[string]Batch)}
}

func (m *memRepo) Insert(_ context.Context, b Batch) (Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[b.ID] = b
	return b, nil
}

func (m *memRepo) Get(_ context.Context, id string) (*Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.batches[id]; ok {
		return &b, nil
	}
	return nil, nil
}

func (m *memRepo) List(_ context.Context, institution string, activeOnly bool) ([]Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Batch
	for _, b := range m.batches {
		if institution != "" && b.Institution != institution {
			continue
		}
		if activeOnly && !b.Active {
			continue
		}
		res = append(res, b)
	}
	return res, nil
}

func (m *memRepo) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.batches[id]
	b.Active = active
	m.batches[id] = b
	return nil
}

func TestCreateAssignsOpaqueID(t *testing.T) {
	svc := NewService(newMemRepo())

	a, err := svc.Create(context.Background(), "Morning Cohort", "ABC College")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	b, _ := svc.Create(context.Background(), "Morning Cohort", "ABC College")

	if a.ID == "" || a.ID == b.ID {
		t.Fatal("ids must be unique and non-empty")
	}
	if !a.Active {
		t.Fatal("new batches start active")
	}
}

func TestCreateGeneratesNameWhenEmpty(t *testing.T) {
	svc := NewService(newMemRepo())
	b, err := svc.Create(context.Background(), "  ", "ABC College")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !strings.HasPrefix(b.Name, "BATCH_") || len(b.Name) != len("BATCH_")+6 {
		t.Fatalf("unexpected generated name %q", b.Name)
	}
}

func TestCreateRequiresInstitution(t *testing.T) {
	svc := NewService(newMemRepo())
	if _, err := svc.Create(context.Background(), "x", ""); apperr.CodeOf(err) != apperr.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestGetUnknownBatch(t *testing.T) {
	svc := NewService(newMemRepo())
	_, err := svc.Get(context.Background(), "nope")
	if apperr.CodeOf(err) != apperr.CodeBatchNotFound {
		t.Fatalf("expected BATCH_NOT_FOUND, got %v", err)
	}
}

func TestDeactivate(t *testing.T) {
	svc := NewService(newMemRepo())
	b, _ := svc.Create(context.Background(), "x", "ABC College")

	if err := svc.Deactivate(context.Background(), b.ID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	// Deactivating twice is fine.
	if err := svc.Deactivate(context.Background(), b.ID); err != nil {
		t.Fatalf("second deactivate failed: %v", err)
	}

	got, err := svc.Get(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("deactivated batch must still resolve: %v", err)
	}
	if got.Active {
		t.Fatal("batch still active after deactivate")
	}

	if _, err := svc.GetActive(context.Background(), b.ID); apperr.CodeOf(err) != apperr.CodeBatchInactive {
		t.Fatalf("expected BATCH_INACTIVE, got %v", err)
	}
}

func TestGenerateNameCharset(t *testing.T) {
	for i := 0; i < 50; i++ {
		name := GenerateName()
		suffix := strings.TrimPrefix(name, "BATCH_")
		if len(suffix) != 6 {
			t.Fatalf("unexpected name %q", name)
		}
		for _, r := range suffix {
			if !strings.ContainsRune(nameCharset, r) {
				t.Fatalf("name %q contains %q outside charset", name, r)
			}
		}
	}
}
