package material

import (
	"context"
	"fmt"

	"lotledger/internal/core/id"
	"lotledger/pkg/logger"
)

// Service provides business operations for the material catalog.
type Service struct {
	repo Repository
}

// NewService creates a new material service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create validates and persists a new material.
func (s *Service) Create(ctx context.Context, m *Material) error {
	if err := m.Validate(ctx); err != nil {
		return err
	}

	if err := s.repo.Create(ctx, m); err != nil {
		return fmt.Errorf("create material: %w", err)
	}

	logger.Info(ctx, "material created", "id", m.ID, "code", m.Code)
	return nil
}

// Update persists changes to a material. The code is immutable: updates keep
// the stored code regardless of what the caller sends.
func (s *Service) Update(ctx context.Context, m *Material) error {
	if err := m.Validate(ctx); err != nil {
		return err
	}

	existing, err := s.repo.GetByID(ctx, m.ID)
	if err != nil {
		return err
	}
	m.Code = existing.Code

	return s.repo.Update(ctx, m)
}

// GetByID retrieves a material.
func (s *Service) GetByID(ctx context.Context, materialID id.ID) (*Material, error) {
	return s.repo.GetByID(ctx, materialID)
}

// GetByIDs retrieves several materials in one round trip.
func (s *Service) GetByIDs(ctx context.Context, materialIDs []id.ID) (map[id.ID]*Material, error) {
	return s.repo.GetByIDs(ctx, materialIDs)
}

// List returns a page of materials.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Material, error) {
	return s.repo.List(ctx, limit, offset)
}
