package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/id"
	"lotledger/internal/domain/catalogs/material"
	"lotledger/internal/infrastructure/storage/postgres"
)

const materialsTable = "cat_materials"

// Compile-time check.
var _ material.Repository = (*MaterialRepo)(nil)

// MaterialRepo implements material.Repository.
type MaterialRepo struct {
	*BaseCatalogRepo[*material.Material]
}

// NewMaterialRepo creates a new material repository.
func NewMaterialRepo(txm *postgres.TxManager) *MaterialRepo {
	return &MaterialRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txm,
			materialsTable,
			postgres.ExtractDBColumns[material.Material](),
			func() *material.Material { return &material.Material{} },
		),
	}
}

// GetByIDs loads several materials in one round trip, keyed by id.
// Missing ids are simply absent from the map.
func (r *MaterialRepo) GetByIDs(ctx context.Context, materialIDs []id.ID) (map[id.ID]*material.Material, error) {
	out := make(map[id.ID]*material.Material, len(materialIDs))
	if len(materialIDs) == 0 {
		return out, nil
	}

	q := r.Builder().Select(r.selectCols...).
		From(materialsTable).
		Where(squirrel.Eq{"id": materialIDs})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []*material.Material
	if err := pgxscan.Select(ctx, r.Querier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("select materials: %w", err)
	}

	for _, m := range items {
		out[m.ID] = m
	}
	return out, nil
}
