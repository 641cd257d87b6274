package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/id"
	"lotledger/internal/domain/balance"
)

const dailyBalancesTable = "daily_balances"

// Compile-time check.
var _ balance.Repository = (*BalanceRepo)(nil)

// BalanceRepo implements balance.Repository on PostgreSQL. Day buckets are
// additive, so Upsert resolves concurrent postings at the database with
// ON CONFLICT arithmetic instead of version checks.
type BalanceRepo struct {
	txm     *TxManager
	builder squirrel.StatementBuilderType
}

// NewBalanceRepo creates a new daily balance repository.
func NewBalanceRepo(txm *TxManager) *BalanceRepo {
	return &BalanceRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Upsert adds the delta to the day bucket, creating the row when absent.
func (r *BalanceRepo) Upsert(ctx context.Context, d balance.Delta) error {
	sql := `
		INSERT INTO daily_balances (
			id, warehouse_id, material_id, date,
			quantity_in, quantity_out, value_in, value_out, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (warehouse_id, material_id, date) DO UPDATE SET
			quantity_in  = daily_balances.quantity_in  + EXCLUDED.quantity_in,
			quantity_out = daily_balances.quantity_out + EXCLUDED.quantity_out,
			value_in     = daily_balances.value_in     + EXCLUDED.value_in,
			value_out    = daily_balances.value_out    + EXCLUDED.value_out,
			updated_at   = NOW()
	`

	_, err := r.txm.GetQuerier(ctx).Exec(ctx, sql,
		id.New(), d.WarehouseID, d.MaterialID, d.Date,
		d.QuantityIn, d.QuantityOut, d.ValueIn, d.ValueOut,
	)
	if err != nil {
		return fmt.Errorf("upsert daily balance: %w", err)
	}
	return nil
}

// GetDay returns the bucket for one day, nil when absent.
func (r *BalanceRepo) GetDay(ctx context.Context, warehouseID, materialID id.ID, day time.Time) (*balance.DailyBalance, error) {
	q := r.builder.Select(
		"id", "warehouse_id", "material_id", "date",
		"quantity_in", "quantity_out", "value_in", "value_out", "updated_at",
	).From(dailyBalancesTable).
		Where(squirrel.Eq{
			"warehouse_id": warehouseID,
			"material_id":  materialID,
			"date":         day,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var b balance.DailyBalance
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get daily balance: %w", err)
	}

	return &b, nil
}

// GetRange returns buckets in [from, to] ordered by date ascending.
func (r *BalanceRepo) GetRange(ctx context.Context, warehouseID, materialID id.ID, from, to time.Time) ([]*balance.DailyBalance, error) {
	q := r.builder.Select(
		"id", "warehouse_id", "material_id", "date",
		"quantity_in", "quantity_out", "value_in", "value_out", "updated_at",
	).From(dailyBalancesTable).
		Where(squirrel.Eq{"warehouse_id": warehouseID, "material_id": materialID}).
		Where(squirrel.GtOrEq{"date": from}).
		Where(squirrel.LtOrEq{"date": to}).
		OrderBy("date ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []*balance.DailyBalance
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select daily balances: %w", err)
	}

	return rows, nil
}
