// Package material provides the Material catalog.
// Materials are the goods tracked by the stock ledger, down to dated lots.
package material

import (
	"context"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/types"
)

// CostingMethod selects how issue cost is computed for a material.
type CostingMethod string

const (
	// CostingFIFO derives issue cost from the per-lot cost of the lots
	// actually consumed, oldest first.
	CostingFIFO CostingMethod = "fifo"

	// CostingWeightedAverage recomputes one blended unit cost on every
	// receipt and stamps it on the lot.
	CostingWeightedAverage CostingMethod = "weighted_average"
)

// Material represents a stock-tracked good.
// Identity (code) is immutable; changing the costing method affects only
// future receipts.
type Material struct {
	entity.Catalog

	// Unit is the unit of measure (pcs, kg, m)
	Unit string `db:"unit" json:"unit"`

	// CostingMethod selects FIFO or weighted average costing
	CostingMethod CostingMethod `db:"costing_method" json:"costingMethod"`

	// MinStock triggers replenishment warnings
	MinStock types.Quantity `db:"min_stock" json:"minStock"`

	// MaxStock caps recommended on-hand quantity
	MaxStock types.Quantity `db:"max_stock" json:"maxStock"`

	// ReorderQuantity is the suggested replenishment batch
	ReorderQuantity types.Quantity `db:"reorder_quantity" json:"reorderQuantity"`

	// WeightKg is the weight of one unit in kilograms
	WeightKg types.Money `db:"weight_kg" json:"weightKg"`

	// VolumeM3 is the volume of one unit in cubic meters
	VolumeM3 types.Money `db:"volume_m3" json:"volumeM3"`
}

// NewMaterial creates a new Material with FIFO costing by default.
func NewMaterial(code, name, unit string) *Material {
	return &Material{
		Catalog:       entity.NewCatalog(code, name),
		Unit:          unit,
		CostingMethod: CostingFIFO,
	}
}

// Validate implements entity.Validatable.
func (m *Material) Validate(ctx context.Context) error {
	if err := m.Catalog.Validate(ctx); err != nil {
		return err
	}

	if m.Unit == "" {
		return apperror.NewValidation("unit is required").
			WithDetail("field", "unit")
	}

	switch m.CostingMethod {
	case CostingFIFO, CostingWeightedAverage:
	default:
		return apperror.NewValidation("invalid costing method").
			WithDetail("field", "costingMethod").
			WithDetail("value", string(m.CostingMethod))
	}

	if m.MinStock.IsNegative() || m.MaxStock.IsNegative() || m.ReorderQuantity.IsNegative() {
		return apperror.NewValidation("stock thresholds must not be negative")
	}

	if !m.MaxStock.IsZero() && m.MaxStock < m.MinStock {
		return apperror.NewValidation("max stock must be greater than min stock").
			WithDetail("field", "maxStock")
	}

	return nil
}
