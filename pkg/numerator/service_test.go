package numerator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/clock"
	"lotledger/internal/core/id"
)

// memRepo is an in-memory Repository with real version checking, so the
// optimistic retry path is exercised under concurrency.
type memRepo struct {
	mu   sync.Mutex
	rows map[string]*Numbering

	// failSaves forces the first N saves to conflict
	failSaves int
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[string]*Numbering)}
}

func key(documentType string, warehouseID *id.ID, year int) string {
	scope := "global"
	if warehouseID != nil {
		scope = warehouseID.String()
	}
	return fmt.Sprintf("%s/%s/%d", documentType, scope, year)
}

func (r *memRepo) GetOrCreate(_ context.Context, documentType string, warehouseID *id.ID, year int) (*Numbering, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(documentType, warehouseID, year)
	row, ok := r.rows[k]
	if !ok {
		row = &Numbering{ID: id.New(), DocumentType: documentType, WarehouseID: warehouseID, Year: year}
		r.rows[k] = row
	}
	snapshot := *row
	return &snapshot, nil
}

func (r *memRepo) Save(_ context.Context, n *Numbering) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failSaves > 0 {
		r.failSaves--
		return apperror.NewConcurrencyConflict("numbering", n.ID)
	}

	k := key(n.DocumentType, n.WarehouseID, n.Year)
	row, ok := r.rows[k]
	if !ok {
		return apperror.NewNotFound("numbering", n.ID)
	}
	if row.Version != n.Version {
		return apperror.NewConcurrencyConflict("numbering", n.ID)
	}
	n.Version++
	stored := *n
	r.rows[k] = &stored
	return nil
}

var fixed2026 = clock.Fixed{T: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)}

func TestNext_Format(t *testing.T) {
	svc := New(newMemRepo(), fixed2026)

	got, err := svc.Next(context.Background(), "stock_receipt", Config{Prefix: "GR"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "GR-2026-00001" {
		t.Errorf("got %s, want GR-2026-00001", got)
	}

	got, _ = svc.Next(context.Background(), "stock_receipt", Config{Prefix: "GR"})
	if got != "GR-2026-00002" {
		t.Errorf("got %s, want GR-2026-00002", got)
	}
}

func TestNext_IndependentCountersPerType(t *testing.T) {
	repo := newMemRepo()
	svc := New(repo, fixed2026)
	ctx := context.Background()

	if _, err := svc.Next(ctx, "stock_receipt", Config{Prefix: "GR"}); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Next(ctx, "stock_issue", Config{Prefix: "GI"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "GI-2026-00001" {
		t.Errorf("issue counter must start at 1, got %s", got)
	}
}

func TestNext_WarehouseScopedCounters(t *testing.T) {
	repo := newMemRepo()
	svc := New(repo, fixed2026)
	ctx := context.Background()

	w1, w2 := id.New(), id.New()

	if _, err := svc.Next(ctx, "stock_receipt", Config{Prefix: "GR", WarehouseID: &w1}); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Next(ctx, "stock_receipt", Config{Prefix: "GR", WarehouseID: &w2})
	if err != nil {
		t.Fatal(err)
	}
	if got != "GR-2026-00001" {
		t.Errorf("second warehouse must start its own counter, got %s", got)
	}

	// The type-global counter is independent of every warehouse scope.
	got, err = svc.Next(ctx, "stock_receipt", Config{Prefix: "GR"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "GR-2026-00001" {
		t.Errorf("global counter must be untouched, got %s", got)
	}
}

func TestNext_YearRollover(t *testing.T) {
	repo := newMemRepo()
	ctx := context.Background()

	if _, err := New(repo, fixed2026).Next(ctx, "stock_receipt", Config{Prefix: "GR"}); err != nil {
		t.Fatal(err)
	}

	next := clock.Fixed{T: time.Date(2027, 1, 1, 0, 0, 1, 0, time.UTC)}
	got, err := New(repo, next).Next(ctx, "stock_receipt", Config{Prefix: "GR"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "GR-2027-00001" {
		t.Errorf("counter must reset on new year, got %s", got)
	}
}

func TestNext_RetriesOnConflict(t *testing.T) {
	repo := newMemRepo()
	repo.failSaves = 2
	svc := New(repo, fixed2026)

	got, err := svc.Next(context.Background(), "stock_receipt", Config{Prefix: "GR"})
	if err != nil {
		t.Fatalf("unexpected error after retryable conflicts: %v", err)
	}
	if got != "GR-2026-00001" {
		t.Errorf("got %s, want GR-2026-00001", got)
	}
}

func TestNext_ExhaustsRetries(t *testing.T) {
	repo := newMemRepo()
	repo.failSaves = 100
	svc := New(repo, fixed2026).WithRetries(3)

	_, err := svc.Next(context.Background(), "stock_receipt", Config{Prefix: "GR"})
	if !apperror.IsConcurrencyConflict(err) {
		t.Fatalf("got %v, want CONCURRENCY_CONFLICT after retry exhaustion", err)
	}
	if repo.failSaves != 97 {
		t.Errorf("expected exactly 3 save attempts, %d budget left", repo.failSaves)
	}
}

func TestNext_ConcurrentCallersGetDistinctNumbers(t *testing.T) {
	repo := newMemRepo()
	svc := New(repo, fixed2026).WithRetries(50)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	results := make(chan string, n)
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := svc.Next(ctx, "stock_receipt", Config{Prefix: "GR"})
			if err != nil {
				errs <- err
				return
			}
			results <- num
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent generation failed: %v", err)
	}

	seen := make(map[string]bool)
	for num := range results {
		if seen[num] {
			t.Fatalf("duplicate number %s", num)
		}
		seen[num] = true
	}
	if len(seen) != n {
		t.Fatalf("got %d distinct numbers, want %d", len(seen), n)
	}
}

func TestParse(t *testing.T) {
	if got := Parse("GR-2026-00042"); got != 42 {
		t.Errorf("got %d, want 42", got)
	}
	if got := Parse("garbage"); got != -1 {
		t.Errorf("got %d, want -1", got)
	}
}
