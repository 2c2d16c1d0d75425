package batch

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"qrattend/internal/apperr"
)

// Batch is a class/cohort unit that owns its own enrollments and daily
// attendance tokens. Batches are never deleted, only deactivated.
type Batch struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Institution string    `json:"institution"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Repo is the storage contract for batches.
type Repo interface {
	Insert(ctx context.Context, b Batch) (Batch, error)
	Get(ctx context.Context, id string) (*Batch, error)
	List(ctx context.Context, institution string, activeOnly bool) ([]Batch, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// Service manages the batch registry.
type Service struct {
	repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{repo: repo}
}

// Create registers a new batch. An empty name gets a generated one.
func (s *Service) Create(ctx context.Context, name, institution string) (Batch, error) {
	institution = strings.TrimSpace(institution)
	if institution == "" {
		return Batch{}, apperr.Invalid("institution is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = GenerateName()
	}
	b := Batch{
		ID:          uuid.NewString(),
		Name:        name,
		Institution: institution,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	return s.repo.Insert(ctx, b)
}

// Get returns a batch or BatchNotFound.
func (s *Service) Get(ctx context.Context, id string) (Batch, error) {
	if id == "" {
		return Batch{}, apperr.Invalid("batch id is required")
	}
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return Batch{}, apperr.Transient(err)
	}
	if b == nil {
		return Batch{}, apperr.BatchNotFound(id)
	}
	return *b, nil
}

// GetActive returns a batch, failing if it is missing or deactivated.
func (s *Service) GetActive(ctx context.Context, id string) (Batch, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return Batch{}, err
	}
	if !b.Active {
		return Batch{}, apperr.BatchInactive(id)
	}
	return b, nil
}

// List returns batches, optionally filtered by institution and active flag.
func (s *Service) List(ctx context.Context, institution string, activeOnly bool) ([]Batch, error) {
	return s.repo.List(ctx, institution, activeOnly)
}

// Deactivate turns a batch off. Already-inactive batches are left as-is.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.SetActive(ctx, id, false)
}

const nameCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateName produces a display name like BATCH_5X8A9B for instructors who
// do not pick one themselves.
func GenerateName() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure means the process is in bad shape anyway;
		// fall back to a fixed suffix rather than panicking on a display name.
		return "BATCH_XXXXXX"
	}
	var sb strings.Builder
	sb.WriteString("BATCH_")
	for _, b := range buf {
		sb.WriteByte(nameCharset[int(b)%len(nameCharset)])
	}
	return sb.String()
}
