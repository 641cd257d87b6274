package dto

import (
	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/catalogs/material"
	"lotledger/internal/domain/catalogs/warehouse"
)

// CreateMaterialRequest for creating materials.
type CreateMaterialRequest struct {
	Code string `json:"code" binding:"required"`
	Name string `json:"name" binding:"required"`
	Unit string `json:"unit" binding:"required"`

	CostingMethod string `json:"costingMethod" binding:"omitempty,oneof=fifo weighted_average"`

	MinStock        types.Quantity `json:"minStock"`
	MaxStock        types.Quantity `json:"maxStock"`
	ReorderQuantity types.Quantity `json:"reorderQuantity"`

	WeightKg types.Money `json:"weightKg"`
	VolumeM3 types.Money `json:"volumeM3"`
}

// ToMaterial builds a new domain material.
func (r *CreateMaterialRequest) ToMaterial() *material.Material {
	m := material.NewMaterial(r.Code, r.Name, r.Unit)
	if r.CostingMethod != "" {
		m.CostingMethod = material.CostingMethod(r.CostingMethod)
	}
	m.MinStock = r.MinStock
	m.MaxStock = r.MaxStock
	m.ReorderQuantity = r.ReorderQuantity
	m.WeightKg = r.WeightKg
	m.VolumeM3 = r.VolumeM3
	return m
}

// CreateWarehouseRequest for creating warehouses.
type CreateWarehouseRequest struct {
	Code    string  `json:"code" binding:"required"`
	Name    string  `json:"name" binding:"required"`
	Address *string `json:"address"`
}

// ToWarehouse builds a new domain warehouse.
func (r *CreateWarehouseRequest) ToWarehouse() *warehouse.Warehouse {
	w := warehouse.NewWarehouse(r.Code, r.Name)
	w.Address = r.Address
	return w
}

// SetDistanceRequest configures the transfer geometry between two warehouses.
type SetDistanceRequest struct {
	FromWarehouseID string `json:"fromWarehouseId" binding:"required,uuid"`
	ToWarehouseID   string `json:"toWarehouseId" binding:"required,uuid"`

	DistanceKm types.Money `json:"distanceKm"`
	BaseCost   types.Money `json:"baseCost"`
}

// ToDistance converts to the domain distance.
func (r *SetDistanceRequest) ToDistance() (*warehouse.Distance, error) {
	from, err := id.Parse(r.FromWarehouseID)
	if err != nil {
		return nil, apperror.NewValidation("invalid warehouse id").
			WithDetail("fromWarehouseId", r.FromWarehouseID)
	}
	to, err := id.Parse(r.ToWarehouseID)
	if err != nil {
		return nil, apperror.NewValidation("invalid warehouse id").
			WithDetail("toWarehouseId", r.ToWarehouseID)
	}
	return &warehouse.Distance{
		FromWarehouseID: from,
		ToWarehouseID:   to,
		DistanceKm:      r.DistanceKm,
		BaseCost:        r.BaseCost,
	}, nil
}
