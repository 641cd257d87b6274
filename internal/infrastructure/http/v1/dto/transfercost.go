package dto

import (
	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/transfercost"
)

// EstimateItem is one shipment line in an estimate request. Zero weight or
// volume falls back to the material catalog.
type EstimateItem struct {
	MaterialID string         `json:"materialId" binding:"required,uuid"`
	Quantity   types.Quantity `json:"quantity" binding:"required"`

	UnitWeightKg types.Money `json:"unitWeightKg"`
	UnitVolumeM3 types.Money `json:"unitVolumeM3"`
}

// EstimateRequest prices one transfer leg.
type EstimateRequest struct {
	FromWarehouseID string         `json:"fromWarehouseId" binding:"required,uuid"`
	ToWarehouseID   string         `json:"toWarehouseId" binding:"required,uuid"`
	Items           []EstimateItem `json:"items" binding:"required,min=1,dive"`
}

// ToRequest converts to the domain request.
func (r *EstimateRequest) ToRequest() (transfercost.Request, error) {
	from, err := id.Parse(r.FromWarehouseID)
	if err != nil {
		return transfercost.Request{}, apperror.NewValidation("invalid warehouse id").
			WithDetail("fromWarehouseId", r.FromWarehouseID)
	}
	to, err := id.Parse(r.ToWarehouseID)
	if err != nil {
		return transfercost.Request{}, apperror.NewValidation("invalid warehouse id").
			WithDetail("toWarehouseId", r.ToWarehouseID)
	}

	items, err := toItems(r.Items)
	if err != nil {
		return transfercost.Request{}, err
	}

	return transfercost.Request{
		FromWarehouseID: from,
		ToWarehouseID:   to,
		Items:           items,
	}, nil
}

// RankSourcesRequest prices the same shipment from several candidate sources.
type RankSourcesRequest struct {
	CandidateIDs  []string       `json:"candidateIds" binding:"required,min=1,dive,uuid"`
	ToWarehouseID string         `json:"toWarehouseId" binding:"required,uuid"`
	Items         []EstimateItem `json:"items" binding:"required,min=1,dive"`
}

// Parse resolves the request to typed arguments.
func (r *RankSourcesRequest) Parse() ([]id.ID, id.ID, []transfercost.Item, error) {
	candidates := make([]id.ID, 0, len(r.CandidateIDs))
	for _, raw := range r.CandidateIDs {
		candidateID, err := id.Parse(raw)
		if err != nil {
			return nil, id.ID{}, nil, apperror.NewValidation("invalid warehouse id").
				WithDetail("candidateId", raw)
		}
		candidates = append(candidates, candidateID)
	}

	to, err := id.Parse(r.ToWarehouseID)
	if err != nil {
		return nil, id.ID{}, nil, apperror.NewValidation("invalid warehouse id").
			WithDetail("toWarehouseId", r.ToWarehouseID)
	}

	items, err := toItems(r.Items)
	if err != nil {
		return nil, id.ID{}, nil, err
	}

	return candidates, to, items, nil
}

func toItems(in []EstimateItem) ([]transfercost.Item, error) {
	items := make([]transfercost.Item, 0, len(in))
	for _, it := range in {
		materialID, err := id.Parse(it.MaterialID)
		if err != nil {
			return nil, apperror.NewValidation("invalid material id").
				WithDetail("materialId", it.MaterialID)
		}
		items = append(items, transfercost.Item{
			MaterialID:   materialID,
			Quantity:     it.Quantity,
			UnitWeightKg: it.UnitWeightKg,
			UnitVolumeM3: it.UnitVolumeM3,
		})
	}
	return items, nil
}
