// Package warehouse provides the Warehouse catalog.
// Warehouses scope all stock; distances between them feed the transfer
// cost estimator.
package warehouse

import (
	"context"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Warehouse represents a storage location for materials.
type Warehouse struct {
	entity.Catalog

	// Address is the physical address
	Address *string `db:"address" json:"address,omitempty"`

	// IsActive indicates if the warehouse is operational
	IsActive bool `db:"is_active" json:"isActive"`
}

// NewWarehouse creates a new active Warehouse.
func NewWarehouse(code, name string) *Warehouse {
	return &Warehouse{
		Catalog:  entity.NewCatalog(code, name),
		IsActive: true,
	}
}

// Validate implements entity.Validatable.
func (w *Warehouse) Validate(ctx context.Context) error {
	return w.Catalog.Validate(ctx)
}

// Distance holds the precomputed transfer geometry between two warehouses.
// Rows are symmetric: (A,B) and (B,A) are looked up interchangeably.
type Distance struct {
	FromWarehouseID id.ID `db:"from_warehouse_id" json:"fromWarehouseId"`
	ToWarehouseID   id.ID `db:"to_warehouse_id" json:"toWarehouseId"`

	// DistanceKm is the road distance in kilometers
	DistanceKm types.Money `db:"distance_km" json:"distanceKm"`

	// BaseCost is the fixed cost of any transfer on this leg
	BaseCost types.Money `db:"base_cost" json:"baseCost"`
}

// Validate checks distance invariants.
func (d *Distance) Validate(ctx context.Context) error {
	if id.IsNil(d.FromWarehouseID) || id.IsNil(d.ToWarehouseID) {
		return apperror.NewValidation("both warehouses are required")
	}
	if d.FromWarehouseID == d.ToWarehouseID {
		return apperror.NewValidation("warehouses must differ").
			WithDetail("warehouse_id", d.FromWarehouseID.String())
	}
	if d.DistanceKm.IsNegative() || d.BaseCost.IsNegative() {
		return apperror.NewValidation("distance and base cost must not be negative")
	}
	return nil
}
