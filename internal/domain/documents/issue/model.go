// Package issue provides the StockIssue document: goods leaving a warehouse,
// allocated to lots FIFO and costed per the material's method.
package issue

import (
	"context"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// DocumentType identifies issues in numbering, history and authorization.
const DocumentType = "stock_issue"

// NumberPrefix is the numerator prefix for issues.
const NumberPrefix = "GI"

// StockIssue records goods leaving a warehouse.
type StockIssue struct {
	entity.Document

	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`

	// Recipient is a free-form recipient reference
	Recipient string `db:"recipient" json:"recipient,omitempty"`

	// Reserved marks that lots were soft-held at confirmation
	Reserved bool `db:"reserved" json:"reserved"`

	TotalQuantity types.Quantity `db:"total_quantity" json:"totalQuantity"`

	// TotalCost is computed during posting from the consumed lots
	TotalCost types.Money `db:"total_cost" json:"totalCost"`

	Lines []Line `db:"-" json:"lines"`
}

// Line is one issued position. Cost is stamped at posting time.
type Line struct {
	LineID id.ID `db:"line_id" json:"lineId"`
	LineNo int   `db:"line_no" json:"lineNo"`

	MaterialID id.ID `db:"material_id" json:"materialId"`

	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// Cost is the total line cost computed by the costing engine on post
	Cost types.Money `db:"cost" json:"cost"`
}

// NewStockIssue creates an issue in StatusNew.
func NewStockIssue(warehouseID id.ID) *StockIssue {
	return &StockIssue{
		Document:    entity.NewDocument(),
		WarehouseID: warehouseID,
		TotalCost:   types.ZeroMoney(),
		Lines:       make([]Line, 0),
	}
}

// AddLine appends a position and recalculates totals.
func (d *StockIssue) AddLine(materialID id.ID, quantity types.Quantity) {
	d.Lines = append(d.Lines, Line{
		LineID:     id.New(),
		LineNo:     len(d.Lines) + 1,
		MaterialID: materialID,
		Quantity:   quantity,
		Cost:       types.ZeroMoney(),
	})
	d.recalculateTotals()
}

func (d *StockIssue) recalculateTotals() {
	d.TotalQuantity = 0
	d.TotalCost = types.ZeroMoney()
	for _, line := range d.Lines {
		d.TotalQuantity += line.Quantity
		d.TotalCost = d.TotalCost.Add(line.Cost)
	}
}

// Validate implements entity.Validatable.
func (d *StockIssue) Validate(ctx context.Context) error {
	if err := d.Document.Validate(ctx); err != nil {
		return err
	}

	if id.IsNil(d.WarehouseID) {
		return apperror.NewValidation("warehouse is required").
			WithDetail("field", "warehouseId")
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
