// Package costing computes unit costs for receipts and line costs for
// issues. Two methods are supported per material: FIFO, where cost follows
// the consumed lots, and weighted average, where cost follows the running
// stock value. All monetary results carry two decimal places.
package costing

import (
	"lotledger/internal/core/apperror"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/catalogs/material"
)

// StockSnapshot is the on-hand position before a movement is applied.
type StockSnapshot struct {
	Quantity types.Quantity
	Value    types.Money
}

// Portion is one costed slice of an issue: Quantity taken at UnitCost.
type Portion struct {
	Quantity types.Quantity
	UnitCost types.Money
}

// Engine is stateless; it exists as a type so document services can take it
// as a collaborator.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// ReceiptUnitCost returns the unit cost to stamp on stock for a receipt.
//
// FIFO keeps the document's declared cost: each lot carries its own basis.
// Weighted average folds the receipt into the running stock value, so the
// whole position moves to a single blended cost.
func (e *Engine) ReceiptUnitCost(method material.CostingMethod, stock StockSnapshot, receiptQty types.Quantity, receiptUnitCost types.Money) (types.Money, error) {
	if !receiptQty.IsPositive() {
		return types.ZeroMoney(), apperror.NewValidation("receipt quantity must be positive")
	}
	if receiptUnitCost.IsNegative() {
		return types.ZeroMoney(), apperror.NewValidation("receipt unit cost must not be negative")
	}

	switch method {
	case material.CostingFIFO:
		return types.RoundMoney(receiptUnitCost), nil
	case material.CostingWeightedAverage:
		return WeightedAverage(stock, receiptQty, receiptUnitCost), nil
	default:
		return types.ZeroMoney(), apperror.NewValidation("unknown costing method").
			WithDetail("method", string(method))
	}
}

// IssueLineCost returns the total cost of an issue line: the sum of the
// consumed portions, each at the cost stamped on its lot. Under weighted
// average every lot carries the same blended stamp, so this equals the
// blended unit cost times the quantity; pricing the portions keeps the line
// cost equal to the value the ledger actually removed.
func (e *Engine) IssueLineCost(method material.CostingMethod, issueQty types.Quantity, portions []Portion) (types.Money, error) {
	if !issueQty.IsPositive() {
		return types.ZeroMoney(), apperror.NewValidation("issue quantity must be positive")
	}

	switch method {
	case material.CostingFIFO, material.CostingWeightedAverage:
		total := types.ZeroMoney()
		for _, p := range portions {
			total = total.Add(p.Quantity.Decimal().Mul(p.UnitCost))
		}
		return types.RoundMoney(total), nil
	default:
		return types.ZeroMoney(), apperror.NewValidation("unknown costing method").
			WithDetail("method", string(method))
	}
}

// WeightedAverage blends a receipt into the on-hand position and returns the
// new unit cost, rounded to 2 decimal places.
func WeightedAverage(stock StockSnapshot, receiptQty types.Quantity, receiptUnitCost types.Money) types.Money {
	totalQty := stock.Quantity + receiptQty
	if !totalQty.IsPositive() {
		return types.RoundMoney(receiptUnitCost)
	}

	existing := stock.Value
	if stock.Quantity.IsNegative() || existing.IsNegative() {
		// Corrupted positions never average; fall back to the receipt cost.
		return types.RoundMoney(receiptUnitCost)
	}

	incoming := receiptQty.Decimal().Mul(receiptUnitCost)
	return types.RoundMoney(existing.Add(incoming).Div(totalQty.Decimal()))
}

// UnitCostOf derives the blended unit cost of a position. Zero quantity
// yields zero cost.
func UnitCostOf(stock StockSnapshot) types.Money {
	if !stock.Quantity.IsPositive() {
		return types.ZeroMoney()
	}
	return types.RoundMoney(stock.Value.Div(stock.Quantity.Decimal()))
}
