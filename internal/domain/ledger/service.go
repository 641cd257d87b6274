package ledger

import (
	"context"
	"fmt"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/clock"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/pkg/logger"
)

// Service applies document movements to the stock ledger. Every method that
// mutates state expects to run inside a posting transaction opened by the
// caller; the final reconciliation check aborts the transaction when the
// stock aggregate and the lot sum disagree.
type Service struct {
	repo  Repository
	clock clock.Clock
}

// NewService creates a ledger service.
func NewService(repo Repository, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{repo: repo, clock: clk}
}

// ReceiptMovement is one receipt line projected onto the ledger. UnitCost is
// the actual cost paid per unit; it alone accrues onto the stock value.
type ReceiptMovement struct {
	WarehouseID     id.ID
	MaterialID      id.ID
	LotNumber       string
	ManufactureDate *time.Time
	ExpiryDate      *time.Time
	Quantity        types.Quantity
	UnitCost        types.Money

	// StampUnitCost, when set, becomes the lot's cost basis instead of the
	// quantity-weighted merge. Weighted-average materials stamp the
	// recomputed position average here.
	StampUnitCost *types.Money

	// RestoreUnitCost applies to ReverseReceipt only: the lot's cost basis
	// before the reversed posting, re-stamped when the lot keeps quantity.
	RestoreUnitCost *types.Money
}

// AppliedReceipt reports how a receipt movement landed on the ledger.
type AppliedReceipt struct {
	LotID id.ID

	// PriorUnitCost is the lot's cost basis before the movement, nil when
	// the movement created the lot.
	PriorUnitCost *types.Money
}

// IssueMovement is one issue line projected onto the ledger.
type IssueMovement struct {
	WarehouseID id.ID
	MaterialID  id.ID
	LineID      id.ID
	Quantity    types.Quantity
}

// TransferMovement moves a quantity between warehouses keeping lot identity.
type TransferMovement struct {
	FromWarehouseID id.ID
	ToWarehouseID   id.ID
	MaterialID      id.ID
	LineID          id.ID
	Quantity        types.Quantity
}

// OnHand is the current balance for a (warehouse, material) pair.
type OnHand struct {
	WarehouseID id.ID          `json:"warehouseId"`
	MaterialID  id.ID          `json:"materialId"`
	Quantity    types.Quantity `json:"quantity"`
	Value       types.Money    `json:"value"`
	Lots        []*StockLot    `json:"lots,omitempty"`
}

// ApplyReceipt increases stock for a receipt line. A lot with the same key
// is topped up; its cost basis becomes the quantity-weighted average of the
// old and new price unless the movement stamps an explicit one. A new key
// creates a new lot.
func (s *Service) ApplyReceipt(ctx context.Context, ref MovementRef, mv ReceiptMovement) (*AppliedReceipt, error) {
	if !mv.Quantity.IsPositive() {
		return nil, apperror.NewValidation("receipt quantity must be positive").
			WithDetail("material_id", mv.MaterialID.String())
	}
	if mv.UnitCost.IsNegative() {
		return nil, apperror.NewValidation("unit cost must not be negative").
			WithDetail("material_id", mv.MaterialID.String())
	}

	now := s.clock.Now()

	stock, err := s.lockOrCreateStock(ctx, mv.WarehouseID, mv.MaterialID)
	if err != nil {
		return nil, err
	}

	key := LotKey{
		WarehouseID:     mv.WarehouseID,
		MaterialID:      mv.MaterialID,
		LotNumber:       mv.LotNumber,
		ManufactureDate: mv.ManufactureDate,
		ExpiryDate:      mv.ExpiryDate,
	}
	lot, err := s.repo.FindLotForUpdate(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("find lot: %w", err)
	}

	applied := &AppliedReceipt{}
	var before types.Quantity
	if lot == nil {
		basis := mv.UnitCost
		if mv.StampUnitCost != nil {
			basis = *mv.StampUnitCost
		}
		lot = &StockLot{
			ID:              id.New(),
			WarehouseID:     mv.WarehouseID,
			MaterialID:      mv.MaterialID,
			LotNumber:       mv.LotNumber,
			ManufactureDate: mv.ManufactureDate,
			ExpiryDate:      mv.ExpiryDate,
			Quantity:        mv.Quantity,
			UnitPrice:       types.RoundMoney(basis),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.repo.CreateLot(ctx, lot); err != nil {
			return nil, fmt.Errorf("create lot: %w", err)
		}
	} else {
		before = lot.Quantity
		prior := lot.UnitPrice
		applied.PriorUnitCost = &prior
		if mv.StampUnitCost != nil {
			lot.UnitPrice = types.RoundMoney(*mv.StampUnitCost)
		} else {
			lot.UnitPrice = mergeUnitPrice(lot.Quantity, lot.UnitPrice, mv.Quantity, mv.UnitCost)
		}
		lot.Quantity += mv.Quantity
		lot.UpdatedAt = now
		if err := s.repo.UpdateLot(ctx, lot); err != nil {
			return nil, fmt.Errorf("update lot: %w", err)
		}
	}
	applied.LotID = lot.ID

	stock.Quantity += mv.Quantity
	stock.Value = types.RoundMoney(stock.Value.Add(lineValue(mv.Quantity, mv.UnitCost)))
	stock.UpdatedAt = now
	if err := s.saveStock(ctx, stock); err != nil {
		return nil, err
	}

	entry := s.historyEntry(lot.ID, LotEventReceive, before, lot.Quantity, ref, now)
	if err := s.repo.AppendHistory(ctx, []*LotHistory{entry}); err != nil {
		return nil, fmt.Errorf("append history: %w", err)
	}

	if err := s.reconcile(ctx, stock); err != nil {
		return nil, err
	}
	return applied, nil
}

// ApplyIssue decreases stock for an issue line, consuming lots FIFO.
// Returns the persisted allocations so the caller can cost the line.
func (s *Service) ApplyIssue(ctx context.Context, ref MovementRef, mv IssueMovement) ([]*IssueAllocation, error) {
	if !mv.Quantity.IsPositive() {
		return nil, apperror.NewValidation("issue quantity must be positive").
			WithDetail("material_id", mv.MaterialID.String())
	}

	now := s.clock.Now()

	stock, err := s.repo.GetStockForUpdate(ctx, mv.WarehouseID, mv.MaterialID)
	if err != nil {
		return nil, fmt.Errorf("lock stock: %w", err)
	}
	if stock == nil {
		return nil, apperror.NewInsufficientStock(mv.MaterialID.String(), mv.Quantity.Float64(), 0)
	}

	lots, err := s.repo.GetLotsForUpdate(ctx, mv.WarehouseID, mv.MaterialID)
	if err != nil {
		return nil, fmt.Errorf("lock lots: %w", err)
	}

	plan, err := Allocate(lots, ref.DocumentID, mv.MaterialID, mv.Quantity)
	if err != nil {
		return nil, err
	}

	allocs := make([]*IssueAllocation, 0, len(plan))
	history := make([]*LotHistory, 0, len(plan))
	issuedValue := types.ZeroMoney()

	for _, p := range plan {
		lot := p.Lot
		before := lot.Quantity
		lot.Quantity -= p.Quantity
		if lot.Quantity.IsZero() && lot.IsReserved {
			lot.IsReserved = false
			lot.ReservedForIssueID = nil
		}
		lot.UpdatedAt = now
		if err := s.repo.UpdateLot(ctx, lot); err != nil {
			return nil, fmt.Errorf("update lot: %w", err)
		}

		allocs = append(allocs, &IssueAllocation{
			ID:         id.New(),
			DocumentID: ref.DocumentID,
			LineID:     mv.LineID,
			LotID:      lot.ID,
			Quantity:   p.Quantity,
			UnitCost:   lot.UnitPrice,
		})
		history = append(history, s.historyEntry(lot.ID, LotEventIssue, before, lot.Quantity, ref, now))
		issuedValue = issuedValue.Add(lineValue(p.Quantity, lot.UnitPrice))
	}

	stock.Quantity -= mv.Quantity
	stock.Value = types.RoundMoney(stock.Value.Sub(issuedValue))
	stock.UpdatedAt = now
	if err := s.saveStock(ctx, stock); err != nil {
		return nil, err
	}

	if err := s.repo.CreateAllocations(ctx, allocs); err != nil {
		return nil, fmt.Errorf("create allocations: %w", err)
	}
	if err := s.repo.AppendHistory(ctx, history); err != nil {
		return nil, fmt.Errorf("append history: %w", err)
	}

	if err := s.reconcile(ctx, stock); err != nil {
		return nil, err
	}
	return allocs, nil
}

// ApplyTransfer moves stock between warehouses. Source lots are consumed
// FIFO; each consumed portion arrives at the destination under the same lot
// number and dates, carrying the source lot's cost basis.
func (s *Service) ApplyTransfer(ctx context.Context, ref MovementRef, mv TransferMovement) ([]*IssueAllocation, error) {
	if mv.FromWarehouseID == mv.ToWarehouseID {
		return nil, apperror.NewValidation("source and destination warehouses must differ")
	}

	allocs, err := s.ApplyIssue(ctx, ref, IssueMovement{
		WarehouseID: mv.FromWarehouseID,
		MaterialID:  mv.MaterialID,
		LineID:      mv.LineID,
		Quantity:    mv.Quantity,
	})
	if err != nil {
		return nil, err
	}

	for _, a := range allocs {
		src, err := s.repo.GetLotByID(ctx, a.LotID)
		if err != nil {
			return nil, fmt.Errorf("load source lot: %w", err)
		}
		if _, err := s.ApplyReceipt(ctx, ref, ReceiptMovement{
			WarehouseID:     mv.ToWarehouseID,
			MaterialID:      mv.MaterialID,
			LotNumber:       src.LotNumber,
			ManufactureDate: src.ManufactureDate,
			ExpiryDate:      src.ExpiryDate,
			Quantity:        a.Quantity,
			UnitCost:        a.UnitCost,
		}); err != nil {
			return nil, err
		}
	}

	return allocs, nil
}

// ReverseReceipt undoes a receipt line during cancellation. A lot that keeps
// quantity gets its pre-posting cost basis back via RestoreUnitCost. Fails
// with INSUFFICIENT_STOCK when the received quantity was already consumed.
func (s *Service) ReverseReceipt(ctx context.Context, ref MovementRef, mv ReceiptMovement) error {
	now := s.clock.Now()

	stock, err := s.repo.GetStockForUpdate(ctx, mv.WarehouseID, mv.MaterialID)
	if err != nil {
		return fmt.Errorf("lock stock: %w", err)
	}
	if stock == nil {
		return apperror.NewNotFound("stock", mv.MaterialID)
	}

	key := LotKey{
		WarehouseID:     mv.WarehouseID,
		MaterialID:      mv.MaterialID,
		LotNumber:       mv.LotNumber,
		ManufactureDate: mv.ManufactureDate,
		ExpiryDate:      mv.ExpiryDate,
	}
	lot, err := s.repo.FindLotForUpdate(ctx, key)
	if err != nil {
		return fmt.Errorf("find lot: %w", err)
	}
	if lot == nil {
		return apperror.NewNotFound("stock lot", mv.LotNumber)
	}
	if lot.Quantity < mv.Quantity {
		return apperror.NewInsufficientStock(mv.MaterialID.String(), mv.Quantity.Float64(), lot.Quantity.Float64())
	}

	before := lot.Quantity
	lot.Quantity -= mv.Quantity
	if mv.RestoreUnitCost != nil && lot.Quantity.IsPositive() {
		lot.UnitPrice = types.RoundMoney(*mv.RestoreUnitCost)
	}
	lot.UpdatedAt = now
	if err := s.repo.UpdateLot(ctx, lot); err != nil {
		return fmt.Errorf("update lot: %w", err)
	}

	stock.Quantity -= mv.Quantity
	stock.Value = types.RoundMoney(stock.Value.Sub(lineValue(mv.Quantity, mv.UnitCost)))
	stock.UpdatedAt = now
	if err := s.saveStock(ctx, stock); err != nil {
		return err
	}

	entry := s.historyEntry(lot.ID, LotEventRelease, before, lot.Quantity, ref, now)
	if err := s.repo.AppendHistory(ctx, []*LotHistory{entry}); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	return s.reconcile(ctx, stock)
}

// ReverseIssue restores the exact lots the document's issue posting
// consumed, using the allocations recorded at that time, then removes the
// allocations. All materials of the document are reversed in one call.
func (s *Service) ReverseIssue(ctx context.Context, ref MovementRef, warehouseID id.ID) error {
	now := s.clock.Now()

	allocs, err := s.repo.GetAllocationsByDocument(ctx, ref.DocumentID)
	if err != nil {
		return fmt.Errorf("load allocations: %w", err)
	}
	if len(allocs) == 0 {
		logger.Warn(ctx, "reverse issue found no allocations", "document_id", ref.DocumentID)
		return nil
	}

	type delta struct {
		quantity types.Quantity
		value    types.Money
	}
	perMaterial := make(map[id.ID]*delta)

	history := make([]*LotHistory, 0, len(allocs))
	for _, a := range allocs {
		lot, err := s.repo.GetLotByID(ctx, a.LotID)
		if err != nil {
			return fmt.Errorf("load lot: %w", err)
		}
		if lot.WarehouseID != warehouseID {
			continue
		}

		before := lot.Quantity
		lot.Quantity += a.Quantity
		lot.UpdatedAt = now
		if err := s.repo.UpdateLot(ctx, lot); err != nil {
			return fmt.Errorf("update lot: %w", err)
		}
		history = append(history, s.historyEntry(lot.ID, LotEventRelease, before, lot.Quantity, ref, now))

		d := perMaterial[lot.MaterialID]
		if d == nil {
			d = &delta{value: types.ZeroMoney()}
			perMaterial[lot.MaterialID] = d
		}
		d.quantity += a.Quantity
		d.value = d.value.Add(lineValue(a.Quantity, a.UnitCost))
	}

	for materialID, d := range perMaterial {
		stock, err := s.repo.GetStockForUpdate(ctx, warehouseID, materialID)
		if err != nil {
			return fmt.Errorf("lock stock: %w", err)
		}
		if stock == nil {
			return apperror.NewNotFound("stock", materialID)
		}

		stock.Quantity += d.quantity
		stock.Value = types.RoundMoney(stock.Value.Add(d.value))
		stock.UpdatedAt = now
		if err := s.saveStock(ctx, stock); err != nil {
			return err
		}
		if err := s.reconcile(ctx, stock); err != nil {
			return err
		}
	}

	if err := s.repo.AppendHistory(ctx, history); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	if err := s.repo.DeleteAllocationsByDocument(ctx, ref.DocumentID); err != nil {
		return fmt.Errorf("delete allocations: %w", err)
	}
	return nil
}

// ReverseTransfer undoes a transfer: takes the moved quantities back out of
// the destination lots, then restores the source lots from the allocations.
func (s *Service) ReverseTransfer(ctx context.Context, ref MovementRef, fromWarehouseID, toWarehouseID id.ID) error {
	allocs, err := s.repo.GetAllocationsByDocument(ctx, ref.DocumentID)
	if err != nil {
		return fmt.Errorf("load allocations: %w", err)
	}

	for _, a := range allocs {
		src, err := s.repo.GetLotByID(ctx, a.LotID)
		if err != nil {
			return fmt.Errorf("load source lot: %w", err)
		}
		if err := s.ReverseReceipt(ctx, ref, ReceiptMovement{
			WarehouseID:     toWarehouseID,
			MaterialID:      src.MaterialID,
			LotNumber:       src.LotNumber,
			ManufactureDate: src.ManufactureDate,
			ExpiryDate:      src.ExpiryDate,
			Quantity:        a.Quantity,
			UnitCost:        a.UnitCost,
		}); err != nil {
			return err
		}
	}

	return s.ReverseIssue(ctx, ref, fromWarehouseID)
}

// Reserve soft-holds lots for a pending issue, FIFO, until the requested
// quantity is covered. Already-reserved lots are skipped.
func (s *Service) Reserve(ctx context.Context, ref MovementRef, issueID id.ID, warehouseID, materialID id.ID, quantity types.Quantity) error {
	now := s.clock.Now()

	lots, err := s.repo.GetLotsForUpdate(ctx, warehouseID, materialID)
	if err != nil {
		return fmt.Errorf("lock lots: %w", err)
	}

	free := make([]*StockLot, 0, len(lots))
	var available types.Quantity
	for _, lot := range lots {
		if !lot.IsReserved && lot.Quantity.IsPositive() {
			free = append(free, lot)
			available += lot.Quantity
		}
	}
	if available < quantity {
		return apperror.NewInsufficientStock(materialID.String(), quantity.Float64(), available.Float64())
	}

	SortFIFO(free)

	history := make([]*LotHistory, 0, 4)
	remaining := quantity
	for _, lot := range free {
		if !remaining.IsPositive() {
			break
		}
		lot.IsReserved = true
		rid := issueID
		lot.ReservedForIssueID = &rid
		lot.UpdatedAt = now
		if err := s.repo.UpdateLot(ctx, lot); err != nil {
			return fmt.Errorf("reserve lot: %w", err)
		}
		history = append(history, s.historyEntry(lot.ID, LotEventReserve, lot.Quantity, lot.Quantity, ref, now))
		remaining -= lot.Quantity.Min(remaining)
	}

	return s.repo.AppendHistory(ctx, history)
}

// Release drops all reservations held by the given issue.
func (s *Service) Release(ctx context.Context, ref MovementRef, issueID id.ID, warehouseID, materialID id.ID) error {
	now := s.clock.Now()

	lots, err := s.repo.GetLotsForUpdate(ctx, warehouseID, materialID)
	if err != nil {
		return fmt.Errorf("lock lots: %w", err)
	}

	history := make([]*LotHistory, 0, 4)
	for _, lot := range lots {
		if !lot.IsReserved || lot.ReservedForIssueID == nil || *lot.ReservedForIssueID != issueID {
			continue
		}
		lot.IsReserved = false
		lot.ReservedForIssueID = nil
		lot.UpdatedAt = now
		if err := s.repo.UpdateLot(ctx, lot); err != nil {
			return fmt.Errorf("release lot: %w", err)
		}
		history = append(history, s.historyEntry(lot.ID, LotEventRelease, lot.Quantity, lot.Quantity, ref, now))
	}

	return s.repo.AppendHistory(ctx, history)
}

// GetOnHand returns the current balance and its live lots.
func (s *Service) GetOnHand(ctx context.Context, warehouseID, materialID id.ID) (*OnHand, error) {
	stock, err := s.repo.GetStock(ctx, warehouseID, materialID)
	if err != nil {
		return nil, fmt.Errorf("get stock: %w", err)
	}

	result := &OnHand{
		WarehouseID: warehouseID,
		MaterialID:  materialID,
		Value:       types.ZeroMoney(),
	}
	if stock == nil {
		return result, nil
	}

	result.Quantity = stock.Quantity
	result.Value = stock.Value

	lots, err := s.repo.GetLots(ctx, warehouseID, materialID)
	if err != nil {
		return nil, fmt.Errorf("get lots: %w", err)
	}
	SortFIFO(lots)
	result.Lots = lots

	return result, nil
}

// Stock returns the raw stock row, nil-safe for keys with no movements.
func (s *Service) Stock(ctx context.Context, warehouseID, materialID id.ID) (*Stock, error) {
	return s.repo.GetStock(ctx, warehouseID, materialID)
}

func (s *Service) lockOrCreateStock(ctx context.Context, warehouseID, materialID id.ID) (*Stock, error) {
	stock, err := s.repo.GetStockForUpdate(ctx, warehouseID, materialID)
	if err != nil {
		return nil, fmt.Errorf("lock stock: %w", err)
	}
	if stock != nil {
		return stock, nil
	}

	stock = NewStock(warehouseID, materialID)
	stock.UpdatedAt = s.clock.Now()
	if err := s.repo.CreateStock(ctx, stock); err != nil {
		return nil, fmt.Errorf("create stock: %w", err)
	}
	return stock, nil
}

func (s *Service) saveStock(ctx context.Context, stock *Stock) error {
	if stock.Quantity.IsNegative() {
		return apperror.NewInsufficientStock(stock.MaterialID.String(), 0, stock.Quantity.Float64()).
			WithDetail("warehouse_id", stock.WarehouseID.String())
	}
	if err := s.repo.SaveStock(ctx, stock); err != nil {
		return fmt.Errorf("save stock: %w", err)
	}
	return nil
}

// reconcile verifies Stock.Quantity against the lot sum. A mismatch is
// ledger corruption and must abort the transaction.
func (s *Service) reconcile(ctx context.Context, stock *Stock) error {
	lotSum, err := s.repo.SumLotQuantity(ctx, stock.WarehouseID, stock.MaterialID)
	if err != nil {
		return fmt.Errorf("sum lots: %w", err)
	}
	if lotSum != stock.Quantity {
		logger.Error(ctx, "stock reconciliation failed",
			"warehouse_id", stock.WarehouseID,
			"material_id", stock.MaterialID,
			"stock_qty", stock.Quantity,
			"lot_sum", lotSum,
		)
		return apperror.NewReconciliationViolation(
			stock.WarehouseID.String(), stock.MaterialID.String(),
			stock.Quantity.Float64(), lotSum.Float64(),
		)
	}
	return nil
}

func (s *Service) historyEntry(lotID id.ID, event LotEvent, before, after types.Quantity, ref MovementRef, at time.Time) *LotHistory {
	return &LotHistory{
		ID:             id.New(),
		LotID:          lotID,
		Event:          event,
		QuantityBefore: before,
		QuantityAfter:  after,
		DocumentID:     ref.DocumentID,
		ActorID:        ref.ActorID,
		OccurredAt:     at,
	}
}

// mergeUnitPrice folds a top-up into an existing lot's cost basis as a
// quantity-weighted average.
func mergeUnitPrice(oldQty types.Quantity, oldPrice types.Money, addQty types.Quantity, addPrice types.Money) types.Money {
	if !oldQty.IsPositive() {
		return types.RoundMoney(addPrice)
	}
	total := oldQty + addQty
	value := lineValue(oldQty, oldPrice).Add(lineValue(addQty, addPrice))
	return types.RoundMoney(value.Div(total.Decimal()))
}

func lineValue(qty types.Quantity, unitPrice types.Money) types.Money {
	return qty.Decimal().Mul(unitPrice)
}
