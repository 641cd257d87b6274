package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/pkg/numerator"
)

const numberingTable = "sys_numbering"

// Compile-time check.
var _ numerator.Repository = (*NumberingRepo)(nil)

// NumberingRepo implements numerator.Repository on PostgreSQL. The counter
// row is not locked; the numerator retries on version conflicts, which keeps
// number generation off the hot row-lock path of postings.
type NumberingRepo struct {
	txm     *TxManager
	builder squirrel.StatementBuilderType
}

// NewNumberingRepo creates a new numbering repository.
func NewNumberingRepo(txm *TxManager) *NumberingRepo {
	return &NumberingRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetOrCreate returns the counter for the key, inserting a zeroed row when
// absent. Two concurrent first calls race on the unique key; ON CONFLICT
// DO NOTHING plus the re-read makes both see the same row. The unique index
// is declared NULLS NOT DISTINCT so the type-global counter (NULL warehouse)
// also stays a single row.
func (r *NumberingRepo) GetOrCreate(ctx context.Context, documentType string, warehouseID *id.ID, year int) (*numerator.Numbering, error) {
	insertSQL := `
		INSERT INTO sys_numbering (id, document_type, warehouse_id, year, last_number, version, updated_at)
		VALUES ($1, $2, $3, $4, 0, 0, NOW())
		ON CONFLICT (document_type, warehouse_id, year) DO NOTHING
	`
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, insertSQL, id.New(), documentType, warehouseID, year); err != nil {
		return nil, fmt.Errorf("ensure numbering row: %w", err)
	}

	q := r.builder.Select("id", "document_type", "warehouse_id", "year", "last_number", "version", "updated_at").
		From(numberingTable).
		Where(squirrel.Eq{"document_type": documentType, "year": year})
	if warehouseID != nil {
		q = q.Where(squirrel.Eq{"warehouse_id": *warehouseID})
	} else {
		q = q.Where("warehouse_id IS NULL")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var n numerator.Numbering
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &n, sql, args...); err != nil {
		return nil, fmt.Errorf("get numbering: %w", err)
	}

	return &n, nil
}

// Save persists the counter with a version check.
func (r *NumberingRepo) Save(ctx context.Context, n *numerator.Numbering) error {
	q := r.builder.Update(numberingTable).
		Set("last_number", n.LastNumber).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": n.ID, "version": n.Version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update numbering: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrencyConflict(numberingTable, n.ID)
	}

	n.Version++
	return nil
}
