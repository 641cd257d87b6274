package receipt

import (
	"context"
	"testing"
	"time"

	appctx "lotledger/internal/core/context"
	"lotledger/internal/core/apperror"
	"lotledger/internal/core/clock"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/security"
	"lotledger/internal/core/types"
	"lotledger/internal/domain"
	"lotledger/internal/domain/balance"
	"lotledger/internal/domain/catalogs/material"
	"lotledger/internal/domain/costing"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/posting"
	"lotledger/pkg/numerator"
)

func qty(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func money(s string) types.Money { return types.MustMoney(s) }

// fakeDocRepo is an in-memory Repository for receipt headers and lines.
type fakeDocRepo struct {
	docs  map[id.ID]*StockReceipt
	lines map[id.ID][]Line
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{
		docs:  make(map[id.ID]*StockReceipt),
		lines: make(map[id.ID][]Line),
	}
}

func (r *fakeDocRepo) Create(_ context.Context, doc *StockReceipt) error {
	r.docs[doc.ID] = doc
	return nil
}

func (r *fakeDocRepo) GetByID(_ context.Context, docID id.ID) (*StockReceipt, error) {
	doc, ok := r.docs[docID]
	if !ok {
		return nil, apperror.NewNotFound("stock receipt", docID)
	}
	return doc, nil
}

func (r *fakeDocRepo) GetByNumber(_ context.Context, number string) (*StockReceipt, error) {
	for _, doc := range r.docs {
		if doc.Number == number {
			return doc, nil
		}
	}
	return nil, apperror.NewNotFound("stock receipt", number)
}

func (r *fakeDocRepo) Update(_ context.Context, doc *StockReceipt) error {
	if _, ok := r.docs[doc.ID]; !ok {
		return apperror.NewNotFound("stock receipt", doc.ID)
	}
	r.docs[doc.ID] = doc
	return nil
}

func (r *fakeDocRepo) GetLines(_ context.Context, docID id.ID) ([]Line, error) {
	return r.lines[docID], nil
}

func (r *fakeDocRepo) SaveLines(_ context.Context, docID id.ID, lines []Line) error {
	r.lines[docID] = lines
	return nil
}

func (r *fakeDocRepo) List(_ context.Context, _ ListFilter) (domain.ListResult[*StockReceipt], error) {
	return domain.ListResult[*StockReceipt]{}, nil
}

func (r *fakeDocRepo) GetForUpdate(ctx context.Context, docID id.ID) (*StockReceipt, error) {
	return r.GetByID(ctx, docID)
}

// fakeLedgerRepo is an in-memory ledger.Repository. Locking is a no-op.
type fakeLedgerRepo struct {
	stocks  map[string]*ledger.Stock
	lots    map[id.ID]*ledger.StockLot
	history []*ledger.LotHistory
	allocs  []*ledger.IssueAllocation
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{
		stocks: make(map[string]*ledger.Stock),
		lots:   make(map[id.ID]*ledger.StockLot),
	}
}

func lkey(warehouseID, materialID id.ID) string {
	return warehouseID.String() + "/" + materialID.String()
}

func (r *fakeLedgerRepo) GetStockForUpdate(_ context.Context, w, m id.ID) (*ledger.Stock, error) {
	return r.stocks[lkey(w, m)], nil
}

func (r *fakeLedgerRepo) GetStock(_ context.Context, w, m id.ID) (*ledger.Stock, error) {
	return r.stocks[lkey(w, m)], nil
}

func (r *fakeLedgerRepo) CreateStock(_ context.Context, s *ledger.Stock) error {
	r.stocks[lkey(s.WarehouseID, s.MaterialID)] = s
	return nil
}

func (r *fakeLedgerRepo) SaveStock(_ context.Context, s *ledger.Stock) error {
	r.stocks[lkey(s.WarehouseID, s.MaterialID)] = s
	return nil
}

func (r *fakeLedgerRepo) lotsFor(w, m id.ID, includeZero bool) []*ledger.StockLot {
	var out []*ledger.StockLot
	for _, lot := range r.lots {
		if lot.WarehouseID == w && lot.MaterialID == m {
			if includeZero || lot.Quantity.IsPositive() {
				out = append(out, lot)
			}
		}
	}
	return out
}

func (r *fakeLedgerRepo) GetLotsForUpdate(_ context.Context, w, m id.ID) ([]*ledger.StockLot, error) {
	return r.lotsFor(w, m, false), nil
}

func (r *fakeLedgerRepo) GetLots(_ context.Context, w, m id.ID) ([]*ledger.StockLot, error) {
	return r.lotsFor(w, m, false), nil
}

func (r *fakeLedgerRepo) FindLotForUpdate(_ context.Context, key ledger.LotKey) (*ledger.StockLot, error) {
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

func (r *fakeLedgerRepo) GetLotByID(_ context.Context, lotID id.ID) (*ledger.StockLot, error) {
	lot, ok := r.lots[lotID]
	if !ok {
		return nil, apperror.NewNotFound("stock lot", lotID)
	}
	return lot, nil
}

func (r *fakeLedgerRepo) CreateLot(_ context.Context, lot *ledger.StockLot) error {
	r.lots[lot.ID] = lot
	return nil
}

func (r *fakeLedgerRepo) UpdateLot(_ context.Context, lot *ledger.StockLot) error {
	r.lots[lot.ID] = lot
	return nil
}

func (r *fakeLedgerRepo) SumLotQuantity(_ context.Context, w, m id.ID) (types.Quantity, error) {
	var sum types.Quantity
	for _, lot := range r.lotsFor(w, m, true) {
		sum += lot.Quantity
	}
	return sum, nil
}

func (r *fakeLedgerRepo) AppendHistory(_ context.Context, entries []*ledger.LotHistory) error {
	r.history = append(r.history, entries...)
	return nil
}

func (r *fakeLedgerRepo) GetHistoryByLot(_ context.Context, lotID id.ID) ([]*ledger.LotHistory, error) {
	var out []*ledger.LotHistory
	for _, h := range r.history {
		if h.LotID == lotID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *fakeLedgerRepo) CreateAllocations(_ context.Context, allocs []*ledger.IssueAllocation) error {
	r.allocs = append(r.allocs, allocs...)
	return nil
}

func (r *fakeLedgerRepo) GetAllocationsByDocument(_ context.Context, documentID id.ID) ([]*ledger.IssueAllocation, error) {
	var out []*ledger.IssueAllocation
	for _, a := range r.allocs {
		if a.DocumentID == documentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeLedgerRepo) DeleteAllocationsByDocument(_ context.Context, documentID id.ID) error {
	kept := r.allocs[:0]
	for _, a := range r.allocs {
		if a.DocumentID != documentID {
			kept = append(kept, a)
		}
	}
	r.allocs = kept
	return nil
}

type fakeMaterials struct {
	byID map[id.ID]*material.Material
}

func (f *fakeMaterials) Create(_ context.Context, _ *material.Material) error { return nil }
func (f *fakeMaterials) Update(_ context.Context, _ *material.Material) error { return nil }

func (f *fakeMaterials) GetByID(_ context.Context, materialID id.ID) (*material.Material, error) {
	m, ok := f.byID[materialID]
	if !ok {
		return nil, apperror.NewNotFound("material", materialID)
	}
	return m, nil
}

func (f *fakeMaterials) GetByCode(_ context.Context, code string) (*material.Material, error) {
	for _, m := range f.byID {
		if m.Code == code {
			return m, nil
		}
	}
	return nil, apperror.NewNotFound("material", code)
}

func (f *fakeMaterials) GetByIDs(_ context.Context, materialIDs []id.ID) (map[id.ID]*material.Material, error) {
	out := make(map[id.ID]*material.Material, len(materialIDs))
	for _, mid := range materialIDs {
		if m, ok := f.byID[mid]; ok {
			out[mid] = m
		}
	}
	return out, nil
}

func (f *fakeMaterials) List(_ context.Context, _, _ int) ([]*material.Material, error) {
	return nil, nil
}

type fakeBalanceRepo struct {
	deltas []balance.Delta
}

func (r *fakeBalanceRepo) Upsert(_ context.Context, d balance.Delta) error {
	r.deltas = append(r.deltas, d)
	return nil
}

func (r *fakeBalanceRepo) GetDay(_ context.Context, _, _ id.ID, _ time.Time) (*balance.DailyBalance, error) {
	return nil, nil
}

func (r *fakeBalanceRepo) GetRange(_ context.Context, _, _ id.ID, _, _ time.Time) ([]*balance.DailyBalance, error) {
	return nil, nil
}

type fakeNumberRepo struct {
	rows map[string]*numerator.Numbering
}

func (r *fakeNumberRepo) GetOrCreate(_ context.Context, documentType string, warehouseID *id.ID, year int) (*numerator.Numbering, error) {
	row, ok := r.rows[documentType]
	if !ok {
		row = &numerator.Numbering{ID: id.New(), DocumentType: documentType, WarehouseID: warehouseID, Year: year}
		r.rows[documentType] = row
	}
	snapshot := *row
	return &snapshot, nil
}

func (r *fakeNumberRepo) Save(_ context.Context, n *numerator.Numbering) error {
	n.Version++
	stored := *n
	r.rows[n.DocumentType] = &stored
	return nil
}

// passTxm runs the closure directly; posting semantics under test do not
// depend on transaction boundaries.
type passTxm struct{}

func (passTxm) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type harness struct {
	svc         *Service
	docs        *fakeDocRepo
	ledgerRepo  *fakeLedgerRepo
	balances    *fakeBalanceRepo
	warehouseID id.ID
	materialID  id.ID
	ctx         context.Context
}

func newHarness(method material.CostingMethod) *harness {
	clk := clock.Fixed{T: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)}

	docs := newFakeDocRepo()
	ledgerRepo := newFakeLedgerRepo()
	balanceRepo := &fakeBalanceRepo{}

	mat := material.NewMaterial("MAT-001", "Bolt M6", "pcs")
	mat.CostingMethod = method

	svc := NewService(
		docs,
		ledger.NewService(ledgerRepo, clk),
		costing.NewEngine(),
		&fakeMaterials{byID: map[id.ID]*material.Material{mat.ID: mat}},
		balance.NewAggregator(balanceRepo, clk),
		numerator.New(&fakeNumberRepo{rows: make(map[string]*numerator.Numbering)}, clk),
		posting.NewEngine(passTxm{}, nil),
		security.AllowAll{},
		passTxm{},
	)

	return &harness{
		svc:         svc,
		docs:        docs,
		ledgerRepo:  ledgerRepo,
		balances:    balanceRepo,
		warehouseID: id.New(),
		materialID:  mat.ID,
		ctx:         appctx.WithActor(context.Background(), &appctx.ActorContext{ActorID: "tester"}),
	}
}

func (h *harness) mustPost(t *testing.T, doc *StockReceipt) {
	t.Helper()
	if err := h.svc.Create(h.ctx, doc); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.svc.Confirm(h.ctx, doc.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := h.svc.Post(h.ctx, doc.ID); err != nil {
		t.Fatalf("post: %v", err)
	}
}

func (h *harness) receiptOf(quantity types.Quantity, unitPrice types.Money) *StockReceipt {
	doc := NewStockReceipt(h.warehouseID)
	doc.AddLine(h.materialID, "LOT-1", nil, nil, quantity, unitPrice)
	return doc
}

func TestPost_WeightedAverageStampsPositionAverage(t *testing.T) {
	h := newHarness(material.CostingWeightedAverage)

	h.mustPost(t, h.receiptOf(qty(10), money("100.00")))
	second := h.receiptOf(qty(10), money("200.00"))
	h.mustPost(t, second)

	if len(h.ledgerRepo.lots) != 1 {
		t.Fatalf("same lot key must merge, got %d lots", len(h.ledgerRepo.lots))
	}
	for _, lot := range h.ledgerRepo.lots {
		if lot.Quantity != qty(20) {
			t.Errorf("lot quantity: got %s, want 20.000", lot.Quantity)
		}
		if !lot.UnitPrice.Equal(money("150.00")) {
			t.Errorf("lot stamp: got %s, want 150.00", lot.UnitPrice)
		}
	}

	// 10@100 + 10@200 actually paid.
	stock := h.ledgerRepo.stocks[lkey(h.warehouseID, h.materialID)]
	if !stock.Value.Equal(money("3000.00")) {
		t.Errorf("stock value: got %s, want 3000.00", stock.Value)
	}

	lines, _ := h.docs.GetLines(h.ctx, second.ID)
	if !lines[0].PostedUnitCost.Equal(money("150.00")) {
		t.Errorf("posted unit cost: got %s, want 150.00", lines[0].PostedUnitCost)
	}
	if lines[0].PriorUnitCost == nil || !lines[0].PriorUnitCost.Equal(money("100.00")) {
		t.Errorf("prior unit cost: got %v, want 100.00", lines[0].PriorUnitCost)
	}

	// The day bucket books the declared cost of the second receipt.
	last := h.balances.deltas[len(h.balances.deltas)-1]
	if !last.ValueIn.Equal(money("2000.00")) {
		t.Errorf("balance in-value: got %s, want 2000.00", last.ValueIn)
	}
}

func TestPost_FIFOKeepsPerLotBasis(t *testing.T) {
	h := newHarness(material.CostingFIFO)

	h.mustPost(t, h.receiptOf(qty(10), money("100.00")))

	second := NewStockReceipt(h.warehouseID)
	second.AddLine(h.materialID, "LOT-2", nil, nil, qty(10), money("200.00"))
	h.mustPost(t, second)

	if len(h.ledgerRepo.lots) != 2 {
		t.Fatalf("distinct lot keys must not merge, got %d lots", len(h.ledgerRepo.lots))
	}
	prices := make(map[string]types.Money)
	for _, lot := range h.ledgerRepo.lots {
		prices[lot.LotNumber] = lot.UnitPrice
	}
	if !prices["LOT-1"].Equal(money("100.00")) || !prices["LOT-2"].Equal(money("200.00")) {
		t.Errorf("per-lot basis: got %v", prices)
	}

	stock := h.ledgerRepo.stocks[lkey(h.warehouseID, h.materialID)]
	if !stock.Value.Equal(money("3000.00")) {
		t.Errorf("stock value: got %s, want 3000.00", stock.Value)
	}
}

func TestCancel_RestoresMergedLotExactly(t *testing.T) {
	h := newHarness(material.CostingWeightedAverage)

	h.mustPost(t, h.receiptOf(qty(10), money("100.00")))
	second := h.receiptOf(qty(10), money("200.00"))
	h.mustPost(t, second)

	if err := h.svc.Cancel(h.ctx, second.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	for _, lot := range h.ledgerRepo.lots {
		if lot.Quantity != qty(10) {
			t.Errorf("lot quantity after cancel: got %s, want 10.000", lot.Quantity)
		}
		if !lot.UnitPrice.Equal(money("100.00")) {
			t.Errorf("lot stamp after cancel: got %s, want 100.00", lot.UnitPrice)
		}
	}

	stock := h.ledgerRepo.stocks[lkey(h.warehouseID, h.materialID)]
	if !stock.Value.Equal(money("1000.00")) {
		t.Errorf("stock value after cancel: got %s, want 1000.00", stock.Value)
	}

	doc, _ := h.docs.GetByID(h.ctx, second.ID)
	if doc.Status != entity.StatusCanceled {
		t.Errorf("status: got %s, want canceled", doc.Status)
	}
}
