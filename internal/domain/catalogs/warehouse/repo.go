package warehouse

import (
	"context"

	"lotledger/internal/core/id"
)

// Repository defines storage operations for warehouses and distances.
type Repository interface {
	Create(ctx context.Context, w *Warehouse) error
	Update(ctx context.Context, w *Warehouse) error
	GetByID(ctx context.Context, warehouseID id.ID) (*Warehouse, error)
	List(ctx context.Context, limit, offset int) ([]*Warehouse, error)

	// GetDistance resolves the leg between two warehouses in either direction.
	GetDistance(ctx context.Context, fromID, toID id.ID) (*Distance, error)
	SaveDistance(ctx context.Context, d *Distance) error
}
