// Package transfercost estimates the cost of moving materials between
// warehouses before a transfer document is created. Estimates are advisory:
// nothing here touches the ledger.
package transfercost

import (
	"context"
	"fmt"
	"sort"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/catalogs/material"
	"lotledger/internal/domain/catalogs/warehouse"
)

// Rates are the tariff components of the transfer cost formula.
type Rates struct {
	// PerKm is charged per kilometer of leg distance
	PerKm types.Money `json:"perKm"`

	// PerKg is charged per kilogram of total shipment weight
	PerKg types.Money `json:"perKg"`

	// PerM3 is charged per cubic meter of total shipment volume
	PerM3 types.Money `json:"perM3"`
}

// Item is one shipment line. Weight and volume are per unit; the material
// catalog supplies them when the caller does not.
type Item struct {
	MaterialID id.ID          `json:"materialId"`
	Quantity   types.Quantity `json:"quantity"`

	UnitWeightKg types.Money `json:"unitWeightKg"`
	UnitVolumeM3 types.Money `json:"unitVolumeM3"`
}

// Request describes a planned transfer.
type Request struct {
	FromWarehouseID id.ID  `json:"fromWarehouseId"`
	ToWarehouseID   id.ID  `json:"toWarehouseId"`
	Items           []Item `json:"items"`
}

// Breakdown is a costed estimate, component by component.
type Breakdown struct {
	FromWarehouseID id.ID `json:"fromWarehouseId"`
	ToWarehouseID   id.ID `json:"toWarehouseId"`

	DistanceKm    types.Money `json:"distanceKm"`
	TotalWeightKg types.Money `json:"totalWeightKg"`
	TotalVolumeM3 types.Money `json:"totalVolumeM3"`

	BaseCost     types.Money `json:"baseCost"`
	DistanceCost types.Money `json:"distanceCost"`
	WeightCost   types.Money `json:"weightCost"`
	VolumeCost   types.Money `json:"volumeCost"`

	Total types.Money `json:"total"`
}

// Estimator prices transfer legs from warehouse distances and material
// dimensions.
type Estimator struct {
	warehouses warehouse.Repository
	materials  material.Repository
	rates      Rates
}

func NewEstimator(warehouses warehouse.Repository, materials material.Repository, rates Rates) *Estimator {
	return &Estimator{warehouses: warehouses, materials: materials, rates: rates}
}

// Estimate prices one transfer request. Missing distance data is a
// validation failure, not a zero-cost estimate.
func (e *Estimator) Estimate(ctx context.Context, req Request) (*Breakdown, error) {
	if req.FromWarehouseID == req.ToWarehouseID {
		return nil, apperror.NewValidation("source and destination warehouses must differ")
	}
	if len(req.Items) == 0 {
		return nil, apperror.NewValidation("at least one item is required")
	}

	dist, err := e.warehouses.GetDistance(ctx, req.FromWarehouseID, req.ToWarehouseID)
	if err != nil {
		return nil, fmt.Errorf("get distance: %w", err)
	}
	if dist == nil {
		return nil, apperror.NewValidation("no distance configured between warehouses").
			WithDetail("from_warehouse_id", req.FromWarehouseID.String()).
			WithDetail("to_warehouse_id", req.ToWarehouseID.String())
	}

	items, err := e.resolveDimensions(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	weight := types.ZeroMoney()
	volume := types.ZeroMoney()
	for _, it := range items {
		if !it.Quantity.IsPositive() {
			return nil, apperror.NewValidation("item quantity must be positive").
				WithDetail("material_id", it.MaterialID.String())
		}
		q := it.Quantity.Decimal()
		weight = weight.Add(q.Mul(it.UnitWeightKg))
		volume = volume.Add(q.Mul(it.UnitVolumeM3))
	}

	b := &Breakdown{
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		DistanceKm:      dist.DistanceKm,
		TotalWeightKg:   weight,
		TotalVolumeM3:   volume,
		BaseCost:        types.RoundMoney(dist.BaseCost),
		DistanceCost:    types.RoundMoney(dist.DistanceKm.Mul(e.rates.PerKm)),
		WeightCost:      types.RoundMoney(weight.Mul(e.rates.PerKg)),
		VolumeCost:      types.RoundMoney(volume.Mul(e.rates.PerM3)),
	}
	b.Total = b.BaseCost.Add(b.DistanceCost).Add(b.WeightCost).Add(b.VolumeCost)

	return b, nil
}

// RankSources estimates the same shipment from each candidate source and
// orders the results by total cost ascending, distance breaking ties.
// Candidates with no configured leg are skipped.
func (e *Estimator) RankSources(ctx context.Context, candidates []id.ID, toWarehouseID id.ID, items []Item) ([]*Breakdown, error) {
	results := make([]*Breakdown, 0, len(candidates))
	for _, from := range candidates {
		if from == toWarehouseID {
			continue
		}
		b, err := e.Estimate(ctx, Request{
			FromWarehouseID: from,
			ToWarehouseID:   toWarehouseID,
			Items:           items,
		})
		if err != nil {
			if apperror.IsCode(err, apperror.CodeValidation) {
				continue
			}
			return nil, err
		}
		results = append(results, b)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if c := results[i].Total.Cmp(results[j].Total); c != 0 {
			return c < 0
		}
		return results[i].DistanceKm.Cmp(results[j].DistanceKm) < 0
	})

	return results, nil
}

// resolveDimensions fills zero weight/volume from the material catalog in
// one batched lookup.
func (e *Estimator) resolveDimensions(ctx context.Context, items []Item) ([]Item, error) {
	var missing []id.ID
	for _, it := range items {
		if it.UnitWeightKg.IsZero() || it.UnitVolumeM3.IsZero() {
			missing = append(missing, it.MaterialID)
		}
	}
	if len(missing) == 0 {
		return items, nil
	}

	mats, err := e.materials.GetByIDs(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("load materials: %w", err)
	}

	out := make([]Item, len(items))
	copy(out, items)
	for i := range out {
		mat, ok := mats[out[i].MaterialID]
		if !ok {
			continue
		}
		if out[i].UnitWeightKg.IsZero() {
			out[i].UnitWeightKg = mat.WeightKg
		}
		if out[i].UnitVolumeM3.IsZero() {
			out[i].UnitVolumeM3 = mat.VolumeM3
		}
	}
	return out, nil
}
