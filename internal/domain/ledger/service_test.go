package ledger

import (
	"context"
	"testing"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/clock"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// fakeRepo is an in-memory Repository. Locking is a no-op: these tests
// exercise single-goroutine posting logic, not row contention.
type fakeRepo struct {
	stocks  map[string]*Stock
	lots    map[id.ID]*StockLot
	history []*LotHistory
	allocs  []*IssueAllocation

	// corruptLotSum skews SumLotQuantity to trigger the reconciliation check
	corruptLotSum types.Quantity
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		stocks: make(map[string]*Stock),
		lots:   make(map[id.ID]*StockLot),
	}
}

func stockKey(warehouseID, materialID id.ID) string {
	return warehouseID.String() + "/" + materialID.String()
}

func (r *fakeRepo) GetStockForUpdate(_ context.Context, w, m id.ID) (*Stock, error) {
	return r.stocks[stockKey(w, m)], nil
}

func (r *fakeRepo) GetStock(_ context.Context, w, m id.ID) (*Stock, error) {
	return r.stocks[stockKey(w, m)], nil
}

func (r *fakeRepo) CreateStock(_ context.Context, s *Stock) error {
	r.stocks[stockKey(s.WarehouseID, s.MaterialID)] = s
	return nil
}

func (r *fakeRepo) SaveStock(_ context.Context, s *Stock) error {
	existing := r.stocks[stockKey(s.WarehouseID, s.MaterialID)]
	if existing == nil {
		return apperror.NewNotFound("stock", s.ID)
	}
	if existing.Version != s.Version {
		return apperror.NewConcurrencyConflict("stock", s.ID)
	}
	s.Version++
	r.stocks[stockKey(s.WarehouseID, s.MaterialID)] = s
	return nil
}

func (r *fakeRepo) lotsFor(w, m id.ID, includeZero bool) []*StockLot {
	var out []*StockLot
	for _, lot := range r.lots {
		if lot.WarehouseID == w && lot.MaterialID == m {
			if includeZero || lot.Quantity.IsPositive() {
				out = append(out, lot)
			}
		}
	}
	return out
}

func (r *fakeRepo) GetLotsForUpdate(_ context.Context, w, m id.ID) ([]*StockLot, error) {
	return r.lotsFor(w, m, false), nil
}

func (r *fakeRepo) GetLots(_ context.Context, w, m id.ID) ([]*StockLot, error) {
	return r.lotsFor(w, m, false), nil
}

func (r *fakeRepo) FindLotForUpdate(_ context.Context, key LotKey) (*StockLot, error) {
	for _, lot := range r.lots {
		lk := lot.Key()
		if lk.WarehouseID == key.WarehouseID && lk.MaterialID == key.MaterialID &&
			lk.LotNumber == key.LotNumber &&
			equalDate(lk.ManufactureDate, key.ManufactureDate) &&
			equalDate(lk.ExpiryDate, key.ExpiryDate) {
			return lot, nil
		}
	}
	return nil, nil
}

func equalDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (r *fakeRepo) GetLotByID(_ context.Context, lotID id.ID) (*StockLot, error) {
	lot, ok := r.lots[lotID]
	if !ok {
		return nil, apperror.NewNotFound("stock lot", lotID)
	}
	return lot, nil
}

func (r *fakeRepo) CreateLot(_ context.Context, lot *StockLot) error {
	r.lots[lot.ID] = lot
	return nil
}

func (r *fakeRepo) UpdateLot(_ context.Context, lot *StockLot) error {
	if _, ok := r.lots[lot.ID]; !ok {
		return apperror.NewNotFound("stock lot", lot.ID)
	}
	lot.Version++
	r.lots[lot.ID] = lot
	return nil
}

func (r *fakeRepo) SumLotQuantity(_ context.Context, w, m id.ID) (types.Quantity, error) {
	var sum types.Quantity
	for _, lot := range r.lotsFor(w, m, true) {
		sum += lot.Quantity
	}
	return sum + r.corruptLotSum, nil
}

func (r *fakeRepo) AppendHistory(_ context.Context, entries []*LotHistory) error {
	r.history = append(r.history, entries...)
	return nil
}

func (r *fakeRepo) GetHistoryByLot(_ context.Context, lotID id.ID) ([]*LotHistory, error) {
	var out []*LotHistory
	for _, h := range r.history {
		if h.LotID == lotID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *fakeRepo) CreateAllocations(_ context.Context, allocs []*IssueAllocation) error {
	r.allocs = append(r.allocs, allocs...)
	return nil
}

func (r *fakeRepo) GetAllocationsByDocument(_ context.Context, documentID id.ID) ([]*IssueAllocation, error) {
	var out []*IssueAllocation
	for _, a := range r.allocs {
		if a.DocumentID == documentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeRepo) DeleteAllocationsByDocument(_ context.Context, documentID id.ID) error {
	kept := r.allocs[:0]
	for _, a := range r.allocs {
		if a.DocumentID != documentID {
			kept = append(kept, a)
		}
	}
	r.allocs = kept
	return nil
}

var testClock = clock.Fixed{T: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)}

func newTestService() (*Service, *fakeRepo) {
	repo := newFakeRepo()
	return NewService(repo, testClock), repo
}

func receiptMv(w, m id.ID, lotNumber string, quantity types.Quantity, price string) ReceiptMovement {
	return ReceiptMovement{
		WarehouseID:     w,
		MaterialID:      m,
		LotNumber:       lotNumber,
		ManufactureDate: date(2026, 1, 1),
		Quantity:        quantity,
		UnitCost:        types.MustMoney(price),
	}
}

func movement(docID id.ID) MovementRef {
	return MovementRef{DocumentID: docID, DocumentType: "stock_receipt", ActorID: "tester"}
}

func TestApplyReceipt_CreatesStockAndLot(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	w, m := id.New(), id.New()

	_, err := svc.ApplyReceipt(ctx, movement(id.New()), receiptMv(w, m, "LOT-1", qty(10), "100.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stock := repo.stocks[stockKey(w, m)]
	if stock == nil {
		t.Fatal("stock row was not created")
	}
	if stock.Quantity != qty(10) {
		t.Errorf("stock quantity: got %s, want 10.000", stock.Quantity)
	}
	if !stock.Value.Equal(types.MustMoney("1000.00")) {
		t.Errorf("stock value: got %s, want 1000.00", stock.Value)
	}
	if len(repo.history) != 1 || repo.history[0].Event != LotEventReceive {
		t.Errorf("expected one Receive history entry, got %+v", repo.history)
	}
}

func TestApplyReceipt_TopUpMergesCostBasis(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	w, m := id.New(), id.New()

	if _, err := svc.ApplyReceipt(ctx, movement(id.New()), receiptMv(w, m, "LOT-1", qty(10), "100.00")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ApplyReceipt(ctx, movement(id.New()), receiptMv(w, m, "LOT-1", qty(10), "200.00")); err != nil {
		t.Fatal(err)
	}

	if len(repo.lots) != 1 {
		t.Fatalf("same lot key must merge, got %d lots", len(repo.lots))
	}
	for _, lot := range repo.lots {
		if lot.Quantity != qty(20) {
			t.Errorf("lot quantity: got %s, want 20.000", lot.Quantity)
		}
		if !lot.UnitPrice.Equal(types.MustMoney("150.00")) {
			t.Errorf("merged unit price: got %s, want 150.00", lot.UnitPrice)
		}
	}
}

func TestApplyReceipt_StampOverridesMerge(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	w, m := id.New(), id.New()

	if _, err := svc.ApplyReceipt(ctx, movement(id.New()), receiptMv(w, m, "LOT-1", qty(10), "100.00")); err != nil {
		t.Fatal(err)
	}

	mv := receiptMv(w, m, "LOT-1", qty(10), "200.00")
	stamp := types.MustMoney("150.00")
	mv.StampUnitCost = &stamp
	applied, err := svc.ApplyReceipt(ctx, movement(id.New()), mv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if applied.PriorUnitCost == nil || !applied.PriorUnitCost.Equal(types.MustMoney("100.00")) {
		t.Errorf("prior unit cost: got %v, want 100.00", applied.PriorUnitCost)
	}
	for _, lot := range repo.lots {
		if !lot.UnitPrice.Equal(stamp) {
			t.Errorf("stamped unit price: got %s, want 150.00", lot.UnitPrice)
		}
	}
	// The value tracks what was actually paid, not the stamp.
	if got := repo.stocks[stockKey(w, m)].Value; !got.Equal(types.MustMoney("3000.00")) {
		t.Errorf("stock value: got %s, want 3000.00", got)
	}
}

func TestReverseReceipt_RestoresPreMergeCostBasis(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	w, m := id.New(), id.New()

	if _, err := svc.ApplyReceipt(ctx, movement(id.New()), receiptMv(w, m, "LOT-1", qty(10), "100.00")); err != nil {
		t.Fatal(err)
	}

	mv := receiptMv(w, m, "LOT-1", qty(10), "200.00")
	stamp := types.MustMoney("150.00")
	mv.StampUnitCost = &stamp
	applied, err := svc.ApplyReceipt(ctx, movement(id.New()), mv)
	if err != nil {
		t.Fatal(err)
	}

	rev := receiptMv(w, m, "LOT-1", qty(10), "200.00")
	rev.RestoreUnitCost = applied.PriorUnitCost
	if err := svc.ReverseReceipt(ctx, movement(id.New()), rev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, lot := range repo.lots {
		if lot.Quantity != qty(10) {
			t.Errorf("lot quantity: got %s, want 10.000", lot.Quantity)
		}
		if !lot.UnitPrice.Equal(types.MustMoney("100.00")) {
			t.Errorf("restored unit price: got %s, want 100.00", lot.UnitPrice)
		}
	}
	if got := repo.stocks[stockKey(w, m)].Value; !got.Equal(types.MustMoney("1000.00")) {
		t.Errorf("stock value: got %s, want 1000.00", got)
	}
}

func TestApplyIssue_FIFOAcrossLots(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	w, m := id.New(), id.New()

	older := receiptMv(w, m, "LOT-1", qty(10), "100.00")
	newer := receiptMv(w, m, "LOT-2", qty(10), "200.00")
	newer.ManufactureDate = date(2026, 2, 1)

	if _, err := svc.ApplyReceipt(ctx, movement(id.New()), older); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ApplyReceipt(ctx, movement(id.New()), newer); err != nil {
		t.Fatal(err)
	}

	docID := id.New()
	allocs, err := svc.ApplyIssue(ctx, movement(docID), IssueMovement{
		WarehouseID: w, MaterialID: m, LineID: id.New(), Quantity: qty(15),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(allocs) != 2 {
		t.Fatalf("got %d allocations, want 2", len(allocs))
	}
	if allocs[0].Quantity != qty(10) || !allocs[0].UnitCost.Equal(types.MustMoney("100.00")) {
		t.Errorf("first allocation: got %s @ %s, want 10.000 @ 100.00", allocs[0].Quantity, allocs[0].UnitCost)
	}
	if allocs[1].Quantity != qty(5) || !allocs[1].UnitCost.Equal(types.MustMoney("200.00")) {
		t.Errorf("second allocation: got %s @ %s, want 5.000 @ 200.00", allocs[1].Quantity, allocs[1].UnitCost)
	}

	stock := repo.stocks[stockKey(w, m)]
	if stock.Quantity != qty(5) {
		t.Errorf("stock quantity: got %s, want 5.000", stock.Quantity)
	}
	// 2000 received at LOT-1+LOT-2 = 1000+2000, issued 1000+1000
	if !stock.Value.Equal(types.MustMoney("1000.00")) {
		t.Errorf("stock value: got %s, want 1000.00", stock.Value)
	}
}

func TestApplyIssue_InsufficientLeavesStateUntouched(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	w, m := id.New(), id.New()

	if _, err := svc.ApplyReceipt(ctx, movement(id.New()), receiptMv(w, m, "LOT-1", qty(3), "50.00")); err != nil {
		t.Fatal(err)
	}

	_, err := svc.ApplyIssue(ctx, movement(id.New()), IssueMovement{
		WarehouseID: w, MaterialID: m, LineID: id.New(), Quantity: qty(5),
	})
	if !apperror.IsInsufficientStock(err) {
		t.Fatalf("got %v, want INSUFFICIENT_STOCK", err)
	}
	if len(repo.allocs) != 0 {
		t.Error("failed issue must not persist allocations")
	}
	if repo.stocks[stockKey(w, m)].Quantity != qty(3) {
		t.Error("failed issue must not change stock")
	}
}

func TestApplyTransfer_PreservesLotIdentityAndCost(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	src, dst, m := id.New(), id.New(), id.New()

	if _, err := svc.ApplyReceipt(ctx, movement(id.New()), receiptMv(src, m, "LOT-1", qty(10), "100.00")); err != nil {
		t.Fatal(err)
	}

	docID := id.New()
	_, err := svc.ApplyTransfer(ctx, movement(docID), TransferMovement{
		FromWarehouseID: src, ToWarehouseID: dst, MaterialID: m, LineID: id.New(), Quantity: qty(4),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := repo.stocks[stockKey(src, m)].Quantity; got != qty(6) {
		t.Errorf("source stock: got %s, want 6.000", got)
	}
	if got := repo.stocks[stockKey(dst, m)].Quantity; got != qty(4) {
		t.Errorf("destination stock: got %s, want 4.000", got)
	}

	found := false
	for _, lot := range repo.lots {
		if lot.WarehouseID == dst {
			found = true
			if lot.LotNumber != "LOT-1" {
				t.Errorf("destination lot number: got %s, want LOT-1", lot.LotNumber)
			}
			if !lot.UnitPrice.Equal(types.MustMoney("100.00")) {
				t.Errorf("destination cost basis: got %s, want 100.00", lot.UnitPrice)
			}
		}
	}
	if !found {
		t.Fatal("destination lot was not created")
	}
}

func TestReverseIssue_RestoresExactLots(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	w, m := id.New(), id.New()

	if _, err := svc.ApplyReceipt(ctx, movement(id.New()), receiptMv(w, m, "LOT-1", qty(10), "100.00")); err != nil {
		t.Fatal(err)
	}

	docID := id.New()
	if _, err := svc.ApplyIssue(ctx, movement(docID), IssueMovement{
		WarehouseID: w, MaterialID: m, LineID: id.New(), Quantity: qty(7),
	}); err != nil {
		t.Fatal(err)
	}

	if err := svc.ReverseIssue(ctx, movement(docID), w); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stock := repo.stocks[stockKey(w, m)]
	if stock.Quantity != qty(10) {
		t.Errorf("stock quantity after reversal: got %s, want 10.000", stock.Quantity)
	}
	if !stock.Value.Equal(types.MustMoney("1000.00")) {
		t.Errorf("stock value after reversal: got %s, want 1000.00", stock.Value)
	}
	if len(repo.allocs) != 0 {
		t.Error("reversal must delete the document's allocations")
	}
}

func TestReverseReceipt_FailsWhenAlreadyConsumed(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	w, m := id.New(), id.New()

	mv := receiptMv(w, m, "LOT-1", qty(10), "100.00")
	if _, err := svc.ApplyReceipt(ctx, movement(id.New()), mv); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ApplyIssue(ctx, movement(id.New()), IssueMovement{
		WarehouseID: w, MaterialID: m, LineID: id.New(), Quantity: qty(8),
	}); err != nil {
		t.Fatal(err)
	}

	err := svc.ReverseReceipt(ctx, movement(id.New()), mv)
	if !apperror.IsInsufficientStock(err) {
		t.Fatalf("got %v, want INSUFFICIENT_STOCK when receipt was consumed", err)
	}
}

func TestReserveAndRelease(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	w, m := id.New(), id.New()
	issueID := id.New()

	if _, err := svc.ApplyReceipt(ctx, movement(id.New()), receiptMv(w, m, "LOT-1", qty(10), "100.00")); err != nil {
		t.Fatal(err)
	}

	if err := svc.Reserve(ctx, movement(issueID), issueID, w, m, qty(10)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	for _, lot := range repo.lots {
		if !lot.IsReserved || lot.ReservedForIssueID == nil || *lot.ReservedForIssueID != issueID {
			t.Fatal("lot was not reserved for the issue")
		}
	}

	// Another issue cannot touch the reserved stock.
	_, err := svc.ApplyIssue(ctx, movement(id.New()), IssueMovement{
		WarehouseID: w, MaterialID: m, LineID: id.New(), Quantity: qty(1),
	})
	if !apperror.IsInsufficientStock(err) {
		t.Fatalf("got %v, want INSUFFICIENT_STOCK for foreign issue", err)
	}

	// The owner can.
	if _, err := svc.ApplyIssue(ctx, movement(issueID), IssueMovement{
		WarehouseID: w, MaterialID: m, LineID: id.New(), Quantity: qty(4),
	}); err != nil {
		t.Fatalf("owner issue: %v", err)
	}

	if err := svc.Release(ctx, movement(issueID), issueID, w, m); err != nil {
		t.Fatalf("release: %v", err)
	}
	for _, lot := range repo.lots {
		if lot.IsReserved {
			t.Fatal("lot reservation was not released")
		}
	}
}

func TestReconciliationViolationAbortsPosting(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	w, m := id.New(), id.New()

	repo.corruptLotSum = qty(1)

	_, err := svc.ApplyReceipt(ctx, movement(id.New()), receiptMv(w, m, "LOT-1", qty(10), "100.00"))
	if !apperror.IsCode(err, apperror.CodeReconciliationViolation) {
		t.Fatalf("got %v, want RECONCILIATION_VIOLATION", err)
	}
}

func TestGetOnHand_EmptyKey(t *testing.T) {
	svc, _ := newTestService()

	onHand, err := svc.GetOnHand(context.Background(), id.New(), id.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !onHand.Quantity.IsZero() || !onHand.Value.IsZero() {
		t.Errorf("empty key must report zero balance, got %s / %s", onHand.Quantity, onHand.Value)
	}
}
