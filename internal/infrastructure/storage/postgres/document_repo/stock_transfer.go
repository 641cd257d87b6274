package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/id"
	"lotledger/internal/domain"
	"lotledger/internal/domain/documents/transfer"
	"lotledger/internal/infrastructure/storage/postgres"
)

const (
	transferTable      = "doc_stock_transfers"
	transferLinesTable = "doc_stock_transfer_lines"
)

var transferLineCols = []string{"line_id", "line_no", "material_id", "quantity", "cost"}

// Compile-time check.
var _ transfer.Repository = (*StockTransferRepo)(nil)

// StockTransferRepo implements transfer.Repository.
type StockTransferRepo struct {
	*BaseDocumentRepo[*transfer.StockTransfer]
}

// NewStockTransferRepo creates a new stock transfer repository.
func NewStockTransferRepo(txm *postgres.TxManager) *StockTransferRepo {
	return &StockTransferRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(
			txm,
			transferTable,
			postgres.ExtractDBColumns[transfer.StockTransfer](),
			func() *transfer.StockTransfer { return &transfer.StockTransfer{} },
		),
	}
}

// GetLines returns the table part ordered by line number.
func (r *StockTransferRepo) GetLines(ctx context.Context, docID id.ID) ([]transfer.Line, error) {
	q := r.Builder().Select(transferLineCols...).
		From(transferLinesTable).
		Where(squirrel.Eq{"document_id": docID}).
		OrderBy("line_no ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []transfer.Line
	if err := pgxscan.Select(ctx, r.Querier(ctx), &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("select lines: %w", err)
	}

	return lines, nil
}

// SaveLines replaces the table part atomically (delete then insert).
func (r *StockTransferRepo) SaveLines(ctx context.Context, docID id.ID, lines []transfer.Line) error {
	del := r.Builder().Delete(transferLinesTable).
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

	ins := r.Builder().Insert(transferLinesTable).
		Columns(append([]string{"document_id"}, transferLineCols...)...)
	for _, line := range lines {
		ins = ins.Values(docID, line.LineID, line.LineNo, line.MaterialID, line.Quantity, line.Cost)
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

// List retrieves transfers matching the filter.
func (r *StockTransferRepo) List(ctx context.Context, filter transfer.ListFilter) (domain.ListResult[*transfer.StockTransfer], error) {
	q := r.NewListSelect()

	if filter.FromWarehouseID != nil {
		q = q.Where(squirrel.Eq{"from_warehouse_id": *filter.FromWarehouseID})
	}
	if filter.ToWarehouseID != nil {
		q = q.Where(squirrel.Eq{"to_warehouse_id": *filter.ToWarehouseID})
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
