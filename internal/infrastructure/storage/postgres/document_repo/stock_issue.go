package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/id"
	"lotledger/internal/domain"
	"lotledger/internal/domain/documents/issue"
	"lotledger/internal/infrastructure/storage/postgres"
)

const (
	issueTable      = "doc_stock_issues"
	issueLinesTable = "doc_stock_issue_lines"
)

var issueLineCols = []string{"line_id", "line_no", "material_id", "quantity", "cost"}

// Compile-time check.
var _ issue.Repository = (*StockIssueRepo)(nil)

// StockIssueRepo implements issue.Repository.
type StockIssueRepo struct {
	*BaseDocumentRepo[*issue.StockIssue]
}

// NewStockIssueRepo creates a new stock issue repository.
func NewStockIssueRepo(txm *postgres.TxManager) *StockIssueRepo {
	return &StockIssueRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(
			txm,
			issueTable,
			postgres.ExtractDBColumns[issue.StockIssue](),
			func() *issue.StockIssue { return &issue.StockIssue{} },
		),
	}
}

// GetLines returns the table part ordered by line number.
func (r *StockIssueRepo) GetLines(ctx context.Context, docID id.ID) ([]issue.Line, error) {
	q := r.Builder().Select(issueLineCols...).
		From(issueLinesTable).
		Where(squirrel.Eq{"document_id": docID}).
		OrderBy("line_no ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []issue.Line
	if err := pgxscan.Select(ctx, r.Querier(ctx), &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("select lines: %w", err)
	}

	return lines, nil
}

// SaveLines replaces the table part atomically (delete then insert).
func (r *StockIssueRepo) SaveLines(ctx context.Context, docID id.ID, lines []issue.Line) error {
	del := r.Builder().Delete(issueLinesTable).
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

	ins := r.Builder().Insert(issueLinesTable).
		Columns(append([]string{"document_id"}, issueLineCols...)...)
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

// List retrieves issues matching the filter.
func (r *StockIssueRepo) List(ctx context.Context, filter issue.ListFilter) (domain.ListResult[*issue.StockIssue], error) {
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
