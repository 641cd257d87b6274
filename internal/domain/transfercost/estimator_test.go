package transfercost

import (
	"context"
	"testing"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/catalogs/material"
	"lotledger/internal/domain/catalogs/warehouse"
)

type fakeWarehouseRepo struct {
	distances []*warehouse.Distance
}

func (r *fakeWarehouseRepo) Create(context.Context, *warehouse.Warehouse) error { return nil }
func (r *fakeWarehouseRepo) Update(context.Context, *warehouse.Warehouse) error { return nil }
func (r *fakeWarehouseRepo) GetByID(_ context.Context, warehouseID id.ID) (*warehouse.Warehouse, error) {
	return nil, apperror.NewNotFound("warehouse", warehouseID)
}
func (r *fakeWarehouseRepo) List(context.Context, int, int) ([]*warehouse.Warehouse, error) {
	return nil, nil
}

func (r *fakeWarehouseRepo) GetDistance(_ context.Context, fromID, toID id.ID) (*warehouse.Distance, error) {
	for _, d := range r.distances {
		if (d.FromWarehouseID == fromID && d.ToWarehouseID == toID) ||
			(d.FromWarehouseID == toID && d.ToWarehouseID == fromID) {
			return d, nil
		}
	}
	return nil, nil
}

func (r *fakeWarehouseRepo) SaveDistance(_ context.Context, d *warehouse.Distance) error {
	r.distances = append(r.distances, d)
	return nil
}

type fakeMaterialRepo struct {
	materials map[id.ID]*material.Material
}

func (r *fakeMaterialRepo) Create(context.Context, *material.Material) error { return nil }
func (r *fakeMaterialRepo) Update(context.Context, *material.Material) error { return nil }
func (r *fakeMaterialRepo) GetByID(_ context.Context, materialID id.ID) (*material.Material, error) {
	m, ok := r.materials[materialID]
	if !ok {
		return nil, apperror.NewNotFound("material", materialID)
	}
	return m, nil
}
func (r *fakeMaterialRepo) GetByCode(_ context.Context, code string) (*material.Material, error) {
	return nil, apperror.NewNotFound("material", code)
}
func (r *fakeMaterialRepo) GetByIDs(_ context.Context, ids []id.ID) (map[id.ID]*material.Material, error) {
	out := make(map[id.ID]*material.Material)
	for _, mid := range ids {
		if m, ok := r.materials[mid]; ok {
			out[mid] = m
		}
	}
	return out, nil
}
func (r *fakeMaterialRepo) List(context.Context, int, int) ([]*material.Material, error) {
	return nil, nil
}

var testRates = Rates{
	PerKm: types.MustMoney("2.00"),
	PerKg: types.MustMoney("0.50"),
	PerM3: types.MustMoney("10.00"),
}

func leg(from, to id.ID, km, base string) *warehouse.Distance {
	return &warehouse.Distance{
		FromWarehouseID: from,
		ToWarehouseID:   to,
		DistanceKm:      types.MustMoney(km),
		BaseCost:        types.MustMoney(base),
	}
}

func qty(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func TestEstimate_Breakdown(t *testing.T) {
	from, to, mat := id.New(), id.New(), id.New()
	wh := &fakeWarehouseRepo{distances: []*warehouse.Distance{leg(from, to, "100", "50.00")}}
	est := NewEstimator(wh, &fakeMaterialRepo{}, testRates)

	b, err := est.Estimate(context.Background(), Request{
		FromWarehouseID: from,
		ToWarehouseID:   to,
		Items: []Item{{
			MaterialID:   mat,
			Quantity:     qty(10),
			UnitWeightKg: types.MustMoney("2"),    // 20 kg total
			UnitVolumeM3: types.MustMoney("0.10"), // 1 m3 total
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !b.BaseCost.Equal(types.MustMoney("50.00")) {
		t.Errorf("base: got %s, want 50.00", b.BaseCost)
	}
	if !b.DistanceCost.Equal(types.MustMoney("200.00")) {
		t.Errorf("distance: got %s, want 200.00", b.DistanceCost)
	}
	if !b.WeightCost.Equal(types.MustMoney("10.00")) {
		t.Errorf("weight: got %s, want 10.00", b.WeightCost)
	}
	if !b.VolumeCost.Equal(types.MustMoney("10.00")) {
		t.Errorf("volume: got %s, want 10.00", b.VolumeCost)
	}
	if !b.Total.Equal(types.MustMoney("270.00")) {
		t.Errorf("total: got %s, want 270.00", b.Total)
	}
}

func TestEstimate_SymmetricLegLookup(t *testing.T) {
	from, to := id.New(), id.New()
	// Leg stored in the opposite direction.
	wh := &fakeWarehouseRepo{distances: []*warehouse.Distance{leg(to, from, "10", "5.00")}}
	est := NewEstimator(wh, &fakeMaterialRepo{}, testRates)

	b, err := est.Estimate(context.Background(), Request{
		FromWarehouseID: from,
		ToWarehouseID:   to,
		Items:           []Item{{MaterialID: id.New(), Quantity: qty(1), UnitWeightKg: types.MustMoney("1"), UnitVolumeM3: types.MustMoney("1")}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.DistanceKm.Equal(types.MustMoney("10")) {
		t.Errorf("distance: got %s, want 10", b.DistanceKm)
	}
}

func TestEstimate_MissingLegFails(t *testing.T) {
	est := NewEstimator(&fakeWarehouseRepo{}, &fakeMaterialRepo{}, testRates)

	_, err := est.Estimate(context.Background(), Request{
		FromWarehouseID: id.New(),
		ToWarehouseID:   id.New(),
		Items:           []Item{{MaterialID: id.New(), Quantity: qty(1)}},
	})
	if !apperror.IsCode(err, apperror.CodeValidation) {
		t.Fatalf("got %v, want VALIDATION_ERROR for missing leg", err)
	}
}

func TestEstimate_FillsDimensionsFromCatalog(t *testing.T) {
	from, to := id.New(), id.New()
	mat := material.NewMaterial("M-1", "Steel bolt", "pcs")
	mat.WeightKg = types.MustMoney("0.50")
	mat.VolumeM3 = types.MustMoney("0.001")

	wh := &fakeWarehouseRepo{distances: []*warehouse.Distance{leg(from, to, "0", "0")}}
	mats := &fakeMaterialRepo{materials: map[id.ID]*material.Material{mat.ID: mat}}
	est := NewEstimator(wh, mats, testRates)

	b, err := est.Estimate(context.Background(), Request{
		FromWarehouseID: from,
		ToWarehouseID:   to,
		Items:           []Item{{MaterialID: mat.ID, Quantity: qty(100)}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.TotalWeightKg.Equal(types.MustMoney("50")) {
		t.Errorf("weight from catalog: got %s, want 50", b.TotalWeightKg)
	}
	if !b.WeightCost.Equal(types.MustMoney("25.00")) {
		t.Errorf("weight cost: got %s, want 25.00", b.WeightCost)
	}
}

func TestRankSources(t *testing.T) {
	near, far, noLeg, to := id.New(), id.New(), id.New(), id.New()
	wh := &fakeWarehouseRepo{distances: []*warehouse.Distance{
		leg(near, to, "10", "5.00"),
		leg(far, to, "500", "5.00"),
	}}
	est := NewEstimator(wh, &fakeMaterialRepo{}, testRates)

	items := []Item{{MaterialID: id.New(), Quantity: qty(1), UnitWeightKg: types.MustMoney("1"), UnitVolumeM3: types.MustMoney("0.1")}}

	ranked, err := est.RankSources(context.Background(), []id.ID{far, noLeg, near, to}, to, items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ranked) != 2 {
		t.Fatalf("got %d candidates, want 2 (no-leg and self excluded)", len(ranked))
	}
	if ranked[0].FromWarehouseID != near {
		t.Errorf("cheapest source: got %s, want the near warehouse", ranked[0].FromWarehouseID)
	}
	if ranked[0].Total.Cmp(ranked[1].Total) > 0 {
		t.Error("results must be ordered by total ascending")
	}
}

func TestRankSources_TieBreakByDistance(t *testing.T) {
	a, b, to := id.New(), id.New(), id.New()
	// Same total: distance 10 with base 20 vs distance 20 with base 0.
	wh := &fakeWarehouseRepo{distances: []*warehouse.Distance{
		leg(a, to, "20", "0"),
		leg(b, to, "10", "20.00"),
	}}
	est := NewEstimator(wh, &fakeMaterialRepo{}, Rates{PerKm: types.MustMoney("2.00")})

	items := []Item{{MaterialID: id.New(), Quantity: qty(1), UnitWeightKg: types.MustMoney("1"), UnitVolumeM3: types.MustMoney("0.1")}}

	ranked, err := est.RankSources(context.Background(), []id.ID{a, b}, to, items)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranked) != 2 {
		t.Fatalf("got %d candidates, want 2", len(ranked))
	}
	if ranked[0].FromWarehouseID != b {
		t.Error("equal totals must rank the shorter leg first")
	}
}
