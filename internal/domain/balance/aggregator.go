// Package balance maintains per-day movement totals for each
// (warehouse, material) pair. Rows are upserted in the posting transaction,
// so reads never see a half-applied document.
package balance

import (
	"context"
	"fmt"
	"time"

	"lotledger/internal/core/clock"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// DailyBalance is one day's movement totals for a (warehouse, material) pair.
type DailyBalance struct {
	ID id.ID `db:"id" json:"id"`

	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`
	MaterialID  id.ID `db:"material_id" json:"materialId"`

	// Date is the UTC day bucket (midnight)
	Date time.Time `db:"date" json:"date"`

	QuantityIn  types.Quantity `db:"quantity_in" json:"quantityIn"`
	QuantityOut types.Quantity `db:"quantity_out" json:"quantityOut"`

	ValueIn  types.Money `db:"value_in" json:"valueIn"`
	ValueOut types.Money `db:"value_out" json:"valueOut"`

	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Delta is one additive change to a day bucket. Negative components reverse
// previously recorded movements.
type Delta struct {
	WarehouseID id.ID
	MaterialID  id.ID
	Date        time.Time

	QuantityIn  types.Quantity
	QuantityOut types.Quantity
	ValueIn     types.Money
	ValueOut    types.Money
}

// Repository stores day buckets.
type Repository interface {
	// Upsert adds the delta to the bucket, creating the row when absent.
	Upsert(ctx context.Context, d Delta) error

	// GetDay returns the bucket for one day, nil when absent.
	GetDay(ctx context.Context, warehouseID, materialID id.ID, day time.Time) (*DailyBalance, error)

	// GetRange returns buckets in [from, to] ordered by date ascending.
	GetRange(ctx context.Context, warehouseID, materialID id.ID, from, to time.Time) ([]*DailyBalance, error)
}

// Aggregator records movements into day buckets. Reversals always land on
// the cancellation date, not the original posting date, so closed days stay
// closed.
type Aggregator struct {
	repo  Repository
	clock clock.Clock
}

func NewAggregator(repo Repository, clk clock.Clock) *Aggregator {
	if clk == nil {
		clk = clock.System{}
	}
	return &Aggregator{repo: repo, clock: clk}
}

// RecordReceipt books an inbound movement on today's bucket.
func (a *Aggregator) RecordReceipt(ctx context.Context, warehouseID, materialID id.ID, quantity types.Quantity, value types.Money) error {
	return a.repo.Upsert(ctx, Delta{
		WarehouseID: warehouseID,
		MaterialID:  materialID,
		Date:        clock.Today(a.clock),
		QuantityIn:  quantity,
		ValueIn:     types.RoundMoney(value),
	})
}

// RecordIssue books an outbound movement on today's bucket.
func (a *Aggregator) RecordIssue(ctx context.Context, warehouseID, materialID id.ID, quantity types.Quantity, value types.Money) error {
	return a.repo.Upsert(ctx, Delta{
		WarehouseID: warehouseID,
		MaterialID:  materialID,
		Date:        clock.Today(a.clock),
		QuantityOut: quantity,
		ValueOut:    types.RoundMoney(value),
	})
}

// RecordTransfer books an outbound movement at the source and an inbound one
// at the destination, both valued at the moved cost.
func (a *Aggregator) RecordTransfer(ctx context.Context, fromID, toID, materialID id.ID, quantity types.Quantity, value types.Money) error {
	if err := a.RecordIssue(ctx, fromID, materialID, quantity, value); err != nil {
		return fmt.Errorf("record transfer out: %w", err)
	}
	if err := a.RecordReceipt(ctx, toID, materialID, quantity, value); err != nil {
		return fmt.Errorf("record transfer in: %w", err)
	}
	return nil
}

// ReverseReceipt books the inverse of a receipt on today's bucket.
func (a *Aggregator) ReverseReceipt(ctx context.Context, warehouseID, materialID id.ID, quantity types.Quantity, value types.Money) error {
	return a.repo.Upsert(ctx, Delta{
		WarehouseID: warehouseID,
		MaterialID:  materialID,
		Date:        clock.Today(a.clock),
		QuantityIn:  quantity.Neg(),
		ValueIn:     types.RoundMoney(value).Neg(),
	})
}

// ReverseIssue books the inverse of an issue on today's bucket.
func (a *Aggregator) ReverseIssue(ctx context.Context, warehouseID, materialID id.ID, quantity types.Quantity, value types.Money) error {
	return a.repo.Upsert(ctx, Delta{
		WarehouseID: warehouseID,
		MaterialID:  materialID,
		Date:        clock.Today(a.clock),
		QuantityOut: quantity.Neg(),
		ValueOut:    types.RoundMoney(value).Neg(),
	})
}

// ReverseTransfer books the inverse of a transfer on today's bucket at both
// warehouses.
func (a *Aggregator) ReverseTransfer(ctx context.Context, fromID, toID, materialID id.ID, quantity types.Quantity, value types.Money) error {
	if err := a.ReverseIssue(ctx, fromID, materialID, quantity, value); err != nil {
		return fmt.Errorf("reverse transfer out: %w", err)
	}
	if err := a.ReverseReceipt(ctx, toID, materialID, quantity, value); err != nil {
		return fmt.Errorf("reverse transfer in: %w", err)
	}
	return nil
}

// Turnover sums buckets over [from, to].
type Turnover struct {
	QuantityIn  types.Quantity `json:"quantityIn"`
	QuantityOut types.Quantity `json:"quantityOut"`
	ValueIn     types.Money    `json:"valueIn"`
	ValueOut    types.Money    `json:"valueOut"`
}

// GetTurnover aggregates day buckets over the inclusive date range.
func (a *Aggregator) GetTurnover(ctx context.Context, warehouseID, materialID id.ID, from, to time.Time) (*Turnover, error) {
	rows, err := a.repo.GetRange(ctx, warehouseID, materialID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load balance range: %w", err)
	}

	t := &Turnover{ValueIn: types.ZeroMoney(), ValueOut: types.ZeroMoney()}
	for _, row := range rows {
		t.QuantityIn += row.QuantityIn
		t.QuantityOut += row.QuantityOut
		t.ValueIn = t.ValueIn.Add(row.ValueIn)
		t.ValueOut = t.ValueOut.Add(row.ValueOut)
	}
	return t, nil
}

// GetDaily returns the raw day buckets over the inclusive date range.
func (a *Aggregator) GetDaily(ctx context.Context, warehouseID, materialID id.ID, from, to time.Time) ([]*DailyBalance, error) {
	return a.repo.GetRange(ctx, warehouseID, materialID, from, to)
}
