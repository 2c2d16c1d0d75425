package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"qrattend/internal/apperr"
)

type memRepo struct {
	mu   sync.Mutex
	rows map[[3]string]Record
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[[3]string]Record)}
}

func (m *memRepo) InsertIfAbsent(_ context.Context, rec Record) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [3]string{rec.StudentID, rec.BatchID, rec.Day}
	if existing, ok := m.rows[key]; ok {
		return existing, false, nil
	}
	m.rows[key] = rec
	return rec, true, nil
}

func (m *memRepo) Exists(_ context.Context, studentID, batchID, day string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[[3]string{studentID, batchID, day}]
	return ok, nil
}

func (m *memRepo) Get(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.rows {
		if rec.ID == id {
			return &rec, nil
		}
	}
	return nil, nil
}

func (m *memRepo) History(_ context.Context, studentID, batchID string, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Record
	for _, rec := range m.rows {
		if rec.StudentID == studentID && rec.BatchID == batchID {
			res = append(res, rec)
		}
	}
	// most recent first
	for i := 0; i < len(res); i++ {
		for j := i + 1; j < len(res); j++ {
			if res[j].MarkedAt.After(res[i].MarkedAt) {
				res[i], res[j] = res[j], res[i]
			}
		}
	}
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (m *memRepo) Report(_ context.Context, batchID, from, to string) ([]ReportRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []ReportRow
	for _, rec := range m.rows {
		if rec.BatchID == batchID && rec.Day >= from && rec.Day <= to {
			res = append(res, ReportRow{Record: rec})
		}
	}
	return res, nil
}

func TestMarkIsIdempotent(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	first, created, err := svc.Mark(ctx, "s1", "b1", "2025-11-01", "tok")
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if !created {
		t.Fatal("first mark must create")
	}

	time.Sleep(5 * time.Millisecond)
	second, created, err := svc.Mark(ctx, "s1", "b1", "2025-11-01", "tok")
	if err != nil {
		t.Fatalf("re-mark failed: %v", err)
	}
	if created {
		t.Fatal("re-mark must not create a duplicate")
	}
	if second.ID != first.ID || !second.MarkedAt.Equal(first.MarkedAt) {
		t.Fatalf("re-mark returned a different record: %+v vs %+v", second, first)
	}
}

func TestConcurrentMarksCreateExactlyOneRecord(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	const n = 64
	var wg sync.WaitGroup
	createdCount := make([]bool, n)
	ids := make([]string, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			rec, created, err := svc.Mark(ctx, "s1", "b1", "2025-11-01", "tok")
			if err != nil {
				t.Errorf("caller %d errored: %v", i, err)
				return
			}
			createdCount[i] = created
			ids[i] = rec.ID
		}(i)
	}
	wg.Wait()

	creators := 0
	for i := 0; i < n; i++ {
		if createdCount[i] {
			creators++
		}
		if ids[i] != ids[0] {
			t.Fatalf("caller %d saw record %s, caller 0 saw %s", i, ids[i], ids[0])
		}
	}
	if creators != 1 {
		t.Fatalf("expected exactly one creator, got %d", creators)
	}
	if len(repo.rows) != 1 {
		t.Fatalf("expected one stored record, got %d", len(repo.rows))
	}
}

func TestSeparateDaysAndStudentsAreIndependent(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	for _, key := range [][3]string{
		{"s1", "b1", "2025-11-01"},
		{"s1", "b1", "2025-11-02"},
		{"s2", "b1", "2025-11-01"},
		{"s1", "b2", "2025-11-01"},
	} {
		_, created, err := svc.Mark(ctx, key[0], key[1], key[2], "tok")
		if err != nil || !created {
			t.Fatalf("mark %v: created=%v err=%v", key, created, err)
		}
	}
}

func TestAlreadyMarked(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	ok, err := svc.AlreadyMarked(ctx, "s1", "b1", "2025-11-01")
	if err != nil || ok {
		t.Fatalf("fresh key should not be marked: ok=%v err=%v", ok, err)
	}
	if _, _, err := svc.Mark(ctx, "s1", "b1", "2025-11-01", "tok"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	ok, err = svc.AlreadyMarked(ctx, "s1", "b1", "2025-11-01")
	if err != nil || !ok {
		t.Fatalf("marked key should report true: ok=%v err=%v", ok, err)
	}
}

func TestHistoryOrderAndLimit(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	base := time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		day := base.AddDate(0, 0, i).Format("2006-01-02")
		rec := Record{ID: day, StudentID: "s1", BatchID: "b1", Day: day, MarkedAt: base.AddDate(0, 0, i)}
		repo.rows[[3]string{"s1", "b1", day}] = rec
	}

	recs, err := svc.History(ctx, "s1", "b1", 3)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].MarkedAt.After(recs[i-1].MarkedAt) {
			t.Fatal("history not ordered most recent first")
		}
	}

	// Re-querying with the same limit yields a consistent snapshot.
	again, _ := svc.History(ctx, "s1", "b1", 3)
	for i := range recs {
		if again[i].ID != recs[i].ID {
			t.Fatal("repeat query returned different snapshot")
		}
	}
}

func TestReportValidatesRange(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()
	if _, err := svc.Report(ctx, "b1", "2025-11-05", "2025-11-01"); apperr.CodeOf(err) != apperr.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT for inverted range, got %v", err)
	}
	if _, err := svc.Report(ctx, "b1", "bad", "2025-11-01"); apperr.CodeOf(err) != apperr.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT for bad day, got %v", err)
	}
}
