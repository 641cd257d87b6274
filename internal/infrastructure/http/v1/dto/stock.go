package dto

import (
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
)

// OnHandQuery asks for current balances of one or more materials.
type OnHandQuery struct {
	WarehouseID string   `form:"warehouseId" binding:"required,uuid"`
	MaterialIDs []string `form:"materialId" binding:"required,min=1,dive,uuid"`
}

// ParseIDs resolves the query to typed identifiers.
func (q *OnHandQuery) ParseIDs() (id.ID, []id.ID, error) {
	warehouseID, err := id.Parse(q.WarehouseID)
	if err != nil {
		return id.ID{}, nil, apperror.NewValidation("invalid warehouse id").
			WithDetail("warehouseId", q.WarehouseID)
	}

	materialIDs := make([]id.ID, 0, len(q.MaterialIDs))
	for _, raw := range q.MaterialIDs {
		materialID, err := id.Parse(raw)
		if err != nil {
			return id.ID{}, nil, apperror.NewValidation("invalid material id").
				WithDetail("materialId", raw)
		}
		materialIDs = append(materialIDs, materialID)
	}

	return warehouseID, materialIDs, nil
}

// LotsQuery asks for the live lots of one material in a warehouse.
type LotsQuery struct {
	WarehouseID string `form:"warehouseId" binding:"required,uuid"`
	MaterialID  string `form:"materialId" binding:"required,uuid"`
}

// ParseIDs resolves the query to typed identifiers.
func (q *LotsQuery) ParseIDs() (id.ID, id.ID, error) {
	return parsePair(q.WarehouseID, q.MaterialID)
}

// BalanceRangeQuery asks for per-day buckets or a turnover summary over an
// inclusive date range.
type BalanceRangeQuery struct {
	WarehouseID string    `form:"warehouseId" binding:"required,uuid"`
	MaterialID  string    `form:"materialId" binding:"required,uuid"`
	From        time.Time `form:"from" binding:"required" time_format:"2006-01-02"`
	To          time.Time `form:"to" binding:"required" time_format:"2006-01-02"`
}

// ParseIDs resolves the query to typed identifiers.
func (q *BalanceRangeQuery) ParseIDs() (id.ID, id.ID, error) {
	return parsePair(q.WarehouseID, q.MaterialID)
}

func parsePair(warehouse, material string) (id.ID, id.ID, error) {
	warehouseID, err := id.Parse(warehouse)
	if err != nil {
		return id.ID{}, id.ID{}, apperror.NewValidation("invalid warehouse id").
			WithDetail("warehouseId", warehouse)
	}
	materialID, err := id.Parse(material)
	if err != nil {
		return id.ID{}, id.ID{}, apperror.NewValidation("invalid material id").
			WithDetail("materialId", material)
	}
	return warehouseID, materialID, nil
}
