package catalog_repo

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/id"
	"lotledger/internal/domain/catalogs/warehouse"
	"lotledger/internal/infrastructure/storage/postgres"
)

const (
	warehousesTable = "cat_warehouses"
	distancesTable  = "cat_warehouse_distances"
)

// Compile-time check.
var _ warehouse.Repository = (*WarehouseRepo)(nil)

// WarehouseRepo implements warehouse.Repository.
type WarehouseRepo struct {
	*BaseCatalogRepo[*warehouse.Warehouse]
}

// NewWarehouseRepo creates a new warehouse repository.
func NewWarehouseRepo(txm *postgres.TxManager) *WarehouseRepo {
	return &WarehouseRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txm,
			warehousesTable,
			postgres.ExtractDBColumns[warehouse.Warehouse](),
			func() *warehouse.Warehouse { return &warehouse.Warehouse{} },
		),
	}
}

// GetDistance resolves the leg between two warehouses. Legs are stored once
// and matched in either direction; nil when no leg is configured.
func (r *WarehouseRepo) GetDistance(ctx context.Context, fromID, toID id.ID) (*warehouse.Distance, error) {
	sql := `
		SELECT from_warehouse_id, to_warehouse_id, distance_km, base_cost
		FROM cat_warehouse_distances
		WHERE (from_warehouse_id = $1 AND to_warehouse_id = $2)
		   OR (from_warehouse_id = $2 AND to_warehouse_id = $1)
		LIMIT 1
	`

	var d warehouse.Distance
	if err := pgxscan.Get(ctx, r.Querier(ctx), &d, sql, fromID, toID); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get distance: %w", err)
	}

	return &d, nil
}

// SaveDistance upserts a transfer leg. The stored direction is whichever was
// saved first; lookups do not care.
func (r *WarehouseRepo) SaveDistance(ctx context.Context, d *warehouse.Distance) error {
	existing, err := r.GetDistance(ctx, d.FromWarehouseID, d.ToWarehouseID)
	if err != nil {
		return err
	}

	if existing != nil {
		sql := `
			UPDATE cat_warehouse_distances
			SET distance_km = $3, base_cost = $4
			WHERE (from_warehouse_id = $1 AND to_warehouse_id = $2)
			   OR (from_warehouse_id = $2 AND to_warehouse_id = $1)
		`
		if _, err := r.Querier(ctx).Exec(ctx, sql, d.FromWarehouseID, d.ToWarehouseID, d.DistanceKm, d.BaseCost); err != nil {
			return fmt.Errorf("update distance: %w", err)
		}
		return nil
	}

	sql := `
		INSERT INTO cat_warehouse_distances (from_warehouse_id, to_warehouse_id, distance_km, base_cost)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.Querier(ctx).Exec(ctx, sql, d.FromWarehouseID, d.ToWarehouseID, d.DistanceKm, d.BaseCost); err != nil {
		return fmt.Errorf("insert distance: %w", err)
	}
	return nil
}
