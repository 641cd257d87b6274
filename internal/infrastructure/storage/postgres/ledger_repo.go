package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/ledger"
)

const (
	stockTable       = "stock"
	stockLotsTable   = "stock_lots"
	lotHistoryTable  = "lot_history"
	allocationsTable = "issue_allocations"
)

// lotFIFOOrder is the consumption order: oldest manufacture first with
// undated lots last, then nearest expiry, then id. UUIDv7 ids are
// time-ordered, so the final tie-break follows creation order.
const lotFIFOOrder = "manufacture_date ASC NULLS LAST, expiry_date ASC NULLS LAST, id ASC"

var stockCols = []string{"id", "warehouse_id", "material_id", "quantity", "value", "version", "updated_at"}

var lotCols = []string{
	"id", "warehouse_id", "material_id",
	"lot_number", "manufacture_date", "expiry_date",
	"quantity", "unit_price",
	"is_reserved", "reserved_for_issue_id",
	"version", "created_at", "updated_at",
}

// Compile-time check.
var _ ledger.Repository = (*LedgerRepo)(nil)

// LedgerRepo implements ledger.Repository on PostgreSQL. All mutations are
// expected inside a posting transaction; row locks come from the *ForUpdate
// variants, version checks guard the rest.
type LedgerRepo struct {
	txm     *TxManager
	builder squirrel.StatementBuilderType
}

// NewLedgerRepo creates a new ledger repository.
func NewLedgerRepo(txm *TxManager) *LedgerRepo {
	return &LedgerRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetStockForUpdate locks and returns the stock row, nil when absent.
func (r *LedgerRepo) GetStockForUpdate(ctx context.Context, warehouseID, materialID id.ID) (*ledger.Stock, error) {
	return r.getStock(ctx, warehouseID, materialID, true)
}

// GetStock reads the stock row without a lock, nil when absent.
func (r *LedgerRepo) GetStock(ctx context.Context, warehouseID, materialID id.ID) (*ledger.Stock, error) {
	return r.getStock(ctx, warehouseID, materialID, false)
}

func (r *LedgerRepo) getStock(ctx context.Context, warehouseID, materialID id.ID, lock bool) (*ledger.Stock, error) {
	q := r.builder.Select(stockCols...).
		From(stockTable).
		Where(squirrel.Eq{"warehouse_id": warehouseID, "material_id": materialID})
	if lock {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var s ledger.Stock
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &s, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stock: %w", err)
	}

	return &s, nil
}

// CreateStock inserts a fresh stock row.
func (r *LedgerRepo) CreateStock(ctx context.Context, s *ledger.Stock) error {
	q := r.builder.Insert(stockTable).
		Columns(stockCols...).
		Values(s.ID, s.WarehouseID, s.MaterialID, s.Quantity, s.Value, s.Version, squirrel.Expr("NOW()"))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert stock: %w", err)
	}
	return nil
}

// SaveStock updates quantity and value with an optimistic version check.
func (r *LedgerRepo) SaveStock(ctx context.Context, s *ledger.Stock) error {
	q := r.builder.Update(stockTable).
		Set("quantity", s.Quantity).
		Set("value", s.Value).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": s.ID, "version": s.Version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrencyConflict(stockTable, s.ID)
	}

	s.Version++
	return nil
}

// GetLotsForUpdate locks and returns positive-quantity lots in FIFO order.
func (r *LedgerRepo) GetLotsForUpdate(ctx context.Context, warehouseID, materialID id.ID) ([]*ledger.StockLot, error) {
	return r.getLots(ctx, warehouseID, materialID, true)
}

// GetLots reads positive-quantity lots in FIFO order without locks.
func (r *LedgerRepo) GetLots(ctx context.Context, warehouseID, materialID id.ID) ([]*ledger.StockLot, error) {
	return r.getLots(ctx, warehouseID, materialID, false)
}

func (r *LedgerRepo) getLots(ctx context.Context, warehouseID, materialID id.ID, lock bool) ([]*ledger.StockLot, error) {
	q := r.builder.Select(lotCols...).
		From(stockLotsTable).
		Where(squirrel.Eq{"warehouse_id": warehouseID, "material_id": materialID}).
		Where(squirrel.Gt{"quantity": 0}).
		OrderBy(lotFIFOOrder)
	if lock {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lots []*ledger.StockLot
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &lots, sql, args...); err != nil {
		return nil, fmt.Errorf("select lots: %w", err)
	}

	return lots, nil
}

// FindLotForUpdate locks and returns the lot matching the full key, nil when
// no such lot exists. Zero-quantity lots are included so a repeat receipt
// tops up the existing row instead of creating a duplicate key.
func (r *LedgerRepo) FindLotForUpdate(ctx context.Context, key ledger.LotKey) (*ledger.StockLot, error) {
	// IS NOT DISTINCT FROM treats two NULL dates as equal, which plain
	// equality would not.
	sql := `
		SELECT ` + strings.Join(lotCols, ", ") + `
		FROM stock_lots
		WHERE warehouse_id = $1
		  AND material_id = $2
		  AND lot_number = $3
		  AND manufacture_date IS NOT DISTINCT FROM $4
		  AND expiry_date IS NOT DISTINCT FROM $5
		FOR UPDATE
	`

	var lot ledger.StockLot
	querier := r.txm.GetQuerier(ctx)
	err := pgxscan.Get(ctx, querier, &lot, sql,
		key.WarehouseID, key.MaterialID, key.LotNumber, key.ManufactureDate, key.ExpiryDate)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find lot: %w", err)
	}

	return &lot, nil
}

// GetLotByID returns a lot by primary key.
func (r *LedgerRepo) GetLotByID(ctx context.Context, lotID id.ID) (*ledger.StockLot, error) {
	q := r.builder.Select(lotCols...).
		From(stockLotsTable).
		Where(squirrel.Eq{"id": lotID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lot ledger.StockLot
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &lot, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("stock_lot", lotID.String())
		}
		return nil, fmt.Errorf("get lot: %w", err)
	}

	return &lot, nil
}

// CreateLot inserts a new lot row.
func (r *LedgerRepo) CreateLot(ctx context.Context, lot *ledger.StockLot) error {
	q := r.builder.Insert(stockLotsTable).
		Columns(lotCols...).
		Values(
			lot.ID, lot.WarehouseID, lot.MaterialID,
			lot.LotNumber, lot.ManufactureDate, lot.ExpiryDate,
			lot.Quantity, lot.UnitPrice,
			lot.IsReserved, lot.ReservedForIssueID,
			lot.Version, squirrel.Expr("NOW()"), squirrel.Expr("NOW()"),
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert lot: %w", err)
	}
	return nil
}

// UpdateLot persists quantity, price and reservation changes with an
// optimistic version check.
func (r *LedgerRepo) UpdateLot(ctx context.Context, lot *ledger.StockLot) error {
	q := r.builder.Update(stockLotsTable).
		Set("quantity", lot.Quantity).
		Set("unit_price", lot.UnitPrice).
		Set("is_reserved", lot.IsReserved).
		Set("reserved_for_issue_id", lot.ReservedForIssueID).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": lot.ID, "version": lot.Version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update lot: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrencyConflict(stockLotsTable, lot.ID)
	}

	lot.Version++
	return nil
}

// SumLotQuantity totals lot quantities for the key, zero lots included.
func (r *LedgerRepo) SumLotQuantity(ctx context.Context, warehouseID, materialID id.ID) (types.Quantity, error) {
	sql := `
		SELECT COALESCE(SUM(quantity), 0)
		FROM stock_lots
		WHERE warehouse_id = $1 AND material_id = $2
	`

	var sumScaled int64
	querier := r.txm.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, warehouseID, materialID).Scan(&sumScaled); err != nil {
		return 0, fmt.Errorf("sum lot quantity: %w", err)
	}

	return types.NewQuantityFromInt64Scaled(sumScaled), nil
}

// AppendHistory writes lot history entries. Uses COPY when inside a
// transaction, which is the normal posting path.
func (r *LedgerRepo) AppendHistory(ctx context.Context, entries []*ledger.LotHistory) error {
	if len(entries) == 0 {
		return nil
	}

	columns := []string{
		"id", "lot_id", "event",
		"quantity_before", "quantity_after",
		"document_id", "actor_id", "occurred_at",
	}

	if tx := r.txm.GetTx(ctx); tx != nil {
		inserter := NewBatchInserter(r.txm)
		rows := make([][]any, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []any{
				e.ID, e.LotID, e.Event,
				e.QuantityBefore, e.QuantityAfter,
				e.DocumentID, e.ActorID, e.OccurredAt,
			})
		}
		if _, err := inserter.CopyFromSlice(ctx, lotHistoryTable, columns, rows); err != nil {
			return fmt.Errorf("copy history: %w", err)
		}
		return nil
	}

	// Fallback outside a transaction. Prefer calling within one.
	q := r.builder.Insert(lotHistoryTable).Columns(columns...)
	for _, e := range entries {
		q = q.Values(
			e.ID, e.LotID, e.Event,
			e.QuantityBefore, e.QuantityAfter,
			e.DocumentID, e.ActorID, e.OccurredAt,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// GetHistoryByLot returns the event log for one lot, oldest first.
func (r *LedgerRepo) GetHistoryByLot(ctx context.Context, lotID id.ID) ([]*ledger.LotHistory, error) {
	q := r.builder.Select(
		"id", "lot_id", "event",
		"quantity_before", "quantity_after",
		"document_id", "actor_id", "occurred_at",
	).From(lotHistoryTable).
		Where(squirrel.Eq{"lot_id": lotID}).
		OrderBy("occurred_at ASC", "id ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entries []*ledger.LotHistory
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}

	return entries, nil
}

// CreateAllocations persists the lot breakdown of an issue posting.
func (r *LedgerRepo) CreateAllocations(ctx context.Context, allocs []*ledger.IssueAllocation) error {
	if len(allocs) == 0 {
		return nil
	}

	q := r.builder.Insert(allocationsTable).
		Columns("id", "document_id", "line_id", "lot_id", "quantity", "unit_cost")
	for _, a := range allocs {
		q = q.Values(a.ID, a.DocumentID, a.LineID, a.LotID, a.Quantity, a.UnitCost)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert allocations: %w", err)
	}
	return nil
}

// GetAllocationsByDocument returns all allocations of a posted document.
func (r *LedgerRepo) GetAllocationsByDocument(ctx context.Context, documentID id.ID) ([]*ledger.IssueAllocation, error) {
	q := r.builder.Select("id", "document_id", "line_id", "lot_id", "quantity", "unit_cost").
		From(allocationsTable).
		Where(squirrel.Eq{"document_id": documentID}).
		OrderBy("id ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var allocs []*ledger.IssueAllocation
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &allocs, sql, args...); err != nil {
		return nil, fmt.Errorf("select allocations: %w", err)
	}

	return allocs, nil
}

// DeleteAllocationsByDocument removes allocations during reversal.
func (r *LedgerRepo) DeleteAllocationsByDocument(ctx context.Context, documentID id.ID) error {
	q := r.builder.Delete(allocationsTable).
		Where(squirrel.Eq{"document_id": documentID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete allocations: %w", err)
	}
	return nil
}
