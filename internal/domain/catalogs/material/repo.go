package material

import (
	"context"

	"lotledger/internal/core/id"
)

// Repository defines storage operations for materials.
// Implemented in infrastructure/storage/postgres/catalog_repo.
type Repository interface {
	Create(ctx context.Context, m *Material) error
	Update(ctx context.Context, m *Material) error
	GetByID(ctx context.Context, materialID id.ID) (*Material, error)
	GetByCode(ctx context.Context, code string) (*Material, error)
	GetByIDs(ctx context.Context, materialIDs []id.ID) (map[id.ID]*Material, error)
	List(ctx context.Context, limit, offset int) ([]*Material, error)
}
