package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/id"
	"lotledger/internal/domain"
	"lotledger/internal/domain/documents/receipt"
	"lotledger/internal/infrastructure/storage/postgres"
)

const (
	receiptTable      = "doc_stock_receipts"
	receiptLinesTable = "doc_stock_receipt_lines"
)

var receiptLineCols = []string{
	"line_id", "line_no", "material_id",
	"lot_number", "manufacture_date", "expiry_date",
	"quantity", "unit_price", "amount", "posted_unit_cost", "prior_unit_cost",
}

// Compile-time check.
var _ receipt.Repository = (*StockReceiptRepo)(nil)

// StockReceiptRepo implements receipt.Repository.
type StockReceiptRepo struct {
	*BaseDocumentRepo[*receipt.StockReceipt]
}

// NewStockReceiptRepo creates a new stock receipt repository.
func NewStockReceiptRepo(txm *postgres.TxManager) *StockReceiptRepo {
	return &StockReceiptRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(
			txm,
			receiptTable,
			postgres.ExtractDBColumns[receipt.StockReceipt](),
			func() *receipt.StockReceipt { return &receipt.StockReceipt{} },
		),
	}
}

// GetLines returns the table part ordered by line number.
func (r *StockReceiptRepo) GetLines(ctx context.Context, docID id.ID) ([]receipt.Line, error) {
	q := r.Builder().Select(receiptLineCols...).
		From(receiptLinesTable).
		Where(squirrel.Eq{"document_id": docID}).
		OrderBy("line_no ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []receipt.Line
	if err := pgxscan.Select(ctx, r.Querier(ctx), &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("select lines: %w", err)
	}

	return lines, nil
}

// SaveLines replaces the table part atomically (delete then insert).
func (r *StockReceiptRepo) SaveLines(ctx context.Context, docID id.ID, lines []receipt.Line) error {
	del := r.Builder().Delete(receiptLinesTable).
		Where(squirrel.Eq{"document_id": docID})

	sql, args, err := del.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := r.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete lines: %w", err)
	}

	if len(lines) == 0 {
		return nil
	}

	ins := r.Builder().Insert(receiptLinesTable).
		Columns(append([]string{"document_id"}, receiptLineCols...)...)
	for _, line := range lines {
		ins = ins.Values(
			docID, line.LineID, line.LineNo, line.MaterialID,
			line.LotNumber, line.ManufactureDate, line.ExpiryDate,
			line.Quantity, line.UnitPrice, line.Amount, line.PostedUnitCost, line.PriorUnitCost,
		)
	}

	sql, args, err = ins.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert lines: %w", err)
	}

	return nil
}

// List retrieves receipts matching the filter.
func (r *StockReceiptRepo) List(ctx context.Context, filter receipt.ListFilter) (domain.ListResult[*receipt.StockReceipt], error) {
	q := r.NewListSelect()

	if filter.WarehouseID != nil {
		q = q.Where(squirrel.Eq{"warehouse_id": *filter.WarehouseID})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}
	if filter.DateFrom != nil {
		q = q.Where(squirrel.GtOrEq{"date": *filter.DateFrom})
	}
	if filter.DateTo != nil {
		q = q.Where(squirrel.LtOrEq{"date": *filter.DateTo})
	}

	return r.BaseDocumentRepo.List(ctx, q, filter.ListFilter)
}
