// Package transfer provides the StockTransfer document: goods moving between
// two warehouses, keeping lot identity and cost basis.
package transfer

import (
	"context"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// DocumentType identifies transfers in numbering, history and authorization.
const DocumentType = "stock_transfer"

// NumberPrefix is the numerator prefix for transfers.
const NumberPrefix = "GT"

// StockTransfer records goods moving between warehouses.
type StockTransfer struct {
	entity.Document

	FromWarehouseID id.ID `db:"from_warehouse_id" json:"fromWarehouseId"`
	ToWarehouseID   id.ID `db:"to_warehouse_id" json:"toWarehouseId"`

	TotalQuantity types.Quantity `db:"total_quantity" json:"totalQuantity"`

	// TotalCost is the moved cost, computed during posting
	TotalCost types.Money `db:"total_cost" json:"totalCost"`

	// EstimatedCost is the transfer cost estimate captured at creation
	EstimatedCost types.Money `db:"estimated_cost" json:"estimatedCost"`

	Lines []Line `db:"-" json:"lines"`
}

// Line is one moved position. Cost is stamped at posting time from the
// consumed source lots.
type Line struct {
	LineID id.ID `db:"line_id" json:"lineId"`
	LineNo int   `db:"line_no" json:"lineNo"`

	MaterialID id.ID `db:"material_id" json:"materialId"`

	Quantity types.Quantity `db:"quantity" json:"quantity"`
	Cost     types.Money    `db:"cost" json:"cost"`
}

// NewStockTransfer creates a transfer in StatusNew.
func NewStockTransfer(fromWarehouseID, toWarehouseID id.ID) *StockTransfer {
	return &StockTransfer{
		Document:        entity.NewDocument(),
		FromWarehouseID: fromWarehouseID,
		ToWarehouseID:   toWarehouseID,
		TotalCost:       types.ZeroMoney(),
		EstimatedCost:   types.ZeroMoney(),
		Lines:           make([]Line, 0),
	}
}

// AddLine appends a position and recalculates totals.
func (d *StockTransfer) AddLine(materialID id.ID, quantity types.Quantity) {
	d.Lines = append(d.Lines, Line{
		LineID:     id.New(),
		LineNo:     len(d.Lines) + 1,
		MaterialID: materialID,
		Quantity:   quantity,
		Cost:       types.ZeroMoney(),
	})
	d.recalculateTotals()
}

func (d *StockTransfer) recalculateTotals() {
	d.TotalQuantity = 0
	d.TotalCost = types.ZeroMoney()
	for _, line := range d.Lines {
		d.TotalQuantity += line.Quantity
		d.TotalCost = d.TotalCost.Add(line.Cost)
	}
}

// Validate implements entity.Validatable.
func (d *StockTransfer) Validate(ctx context.Context) error {
	if err := d.Document.Validate(ctx); err != nil {
		return err
	}

	if id.IsNil(d.FromWarehouseID) || id.IsNil(d.ToWarehouseID) {
		return apperror.NewValidation("both warehouses are required")
	}
	if d.FromWarehouseID == d.ToWarehouseID {
		return apperror.NewValidation("source and destination warehouses must differ").
			WithDetail("warehouse_id", d.FromWarehouseID.String())
	}

	if len(d.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}

	for i, line := range d.Lines {
		if id.IsNil(line.MaterialID) {
			return apperror.NewValidation("material is required").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if !line.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
	}

	return nil
}
