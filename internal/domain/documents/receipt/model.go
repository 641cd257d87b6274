// Package receipt provides the StockReceipt document: incoming goods from a
// supplier into a warehouse, posted into dated lots.
package receipt

import (
	"context"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// DocumentType identifies receipts in numbering, history and authorization.
const DocumentType = "stock_receipt"

// NumberPrefix is the numerator prefix for receipts.
const NumberPrefix = "GR"

// StockReceipt records incoming goods into a warehouse.
type StockReceipt struct {
	entity.Document

	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`

	// Supplier is a free-form supplier reference
	Supplier string `db:"supplier" json:"supplier,omitempty"`

	// Totals (calculated from lines)
	TotalQuantity types.Quantity `db:"total_quantity" json:"totalQuantity"`
	TotalAmount   types.Money    `db:"total_amount" json:"totalAmount"`

	// Table part: received goods
	Lines []Line `db:"-" json:"lines"`
}

// Line is one received position. PostedUnitCost is stamped during posting:
// it equals UnitPrice for FIFO materials and the recomputed position average
// for weighted-average ones. Stock value always accrues at UnitPrice, the
// cost actually paid.
type Line struct {
	LineID id.ID `db:"line_id" json:"lineId"`
	LineNo int   `db:"line_no" json:"lineNo"`

	MaterialID id.ID `db:"material_id" json:"materialId"`

	LotNumber       string     `db:"lot_number" json:"lotNumber"`
	ManufactureDate *time.Time `db:"manufacture_date" json:"manufactureDate,omitempty"`
	ExpiryDate      *time.Time `db:"expiry_date" json:"expiryDate,omitempty"`

	Quantity  types.Quantity `db:"quantity" json:"quantity"`
	UnitPrice types.Money    `db:"unit_price" json:"unitPrice"`
	Amount    types.Money    `db:"amount" json:"amount"`

	PostedUnitCost types.Money `db:"posted_unit_cost" json:"postedUnitCost"`

	// PriorUnitCost is the lot's cost basis before this line merged into it,
	// captured at posting time so cancellation restores the lot exactly.
	// Nil when the posting created the lot.
	PriorUnitCost *types.Money `db:"prior_unit_cost" json:"priorUnitCost,omitempty"`
}

// NewStockReceipt creates a receipt in StatusNew.
func NewStockReceipt(warehouseID id.ID) *StockReceipt {
	return &StockReceipt{
		Document:    entity.NewDocument(),
		WarehouseID: warehouseID,
		TotalAmount: types.ZeroMoney(),
		Lines:       make([]Line, 0),
	}
}

// AddLine appends a position and recalculates totals.
func (r *StockReceipt) AddLine(materialID id.ID, lotNumber string, manufacture, expiry *time.Time, quantity types.Quantity, unitPrice types.Money) {
	line := Line{
		LineID:          id.New(),
		LineNo:          len(r.Lines) + 1,
		MaterialID:      materialID,
		LotNumber:       lotNumber,
		ManufactureDate: manufacture,
		ExpiryDate:      expiry,
		Quantity:        quantity,
		UnitPrice:       unitPrice,
		Amount:          types.RoundMoney(quantity.Decimal().Mul(unitPrice)),
	}
	r.Lines = append(r.Lines, line)
	r.recalculateTotals()
}

func (r *StockReceipt) recalculateTotals() {
	r.TotalQuantity = 0
	r.TotalAmount = types.ZeroMoney()
	for _, line := range r.Lines {
		r.TotalQuantity += line.Quantity
		r.TotalAmount = r.TotalAmount.Add(line.Amount)
	}
}

// Validate implements entity.Validatable.
func (r *StockReceipt) Validate(ctx context.Context) error {
	if err := r.Document.Validate(ctx); err != nil {
		return err
	}

	if id.IsNil(r.WarehouseID) {
		return apperror.NewValidation("warehouse is required").
			WithDetail("field", "warehouseId")
	}

	if len(r.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}

	for i, line := range r.Lines {
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
		if line.UnitPrice.IsNegative() {
			return apperror.NewValidation("unit price must not be negative").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if line.ExpiryDate != nil && line.ManufactureDate != nil &&
			line.ExpiryDate.Before(*line.ManufactureDate) {
			return apperror.NewValidation("expiry date must not precede manufacture date").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
	}

	return nil
}
