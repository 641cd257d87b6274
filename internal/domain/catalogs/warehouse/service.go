package warehouse

import (
	"context"
	"fmt"

	"lotledger/internal/core/id"
	"lotledger/pkg/logger"
)

// Service provides business operations for the warehouse catalog.
type Service struct {
	repo Repository
}

// NewService creates a new warehouse service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create validates and persists a new warehouse.
func (s *Service) Create(ctx context.Context, w *Warehouse) error {
	if err := w.Validate(ctx); err != nil {
		return err
	}

	if err := s.repo.Create(ctx, w); err != nil {
		return fmt.Errorf("create warehouse: %w", err)
	}

	logger.Info(ctx, "warehouse created", "id", w.ID, "code", w.Code)
	return nil
}

// GetByID retrieves a warehouse.
func (s *Service) GetByID(ctx context.Context, warehouseID id.ID) (*Warehouse, error) {
	return s.repo.GetByID(ctx, warehouseID)
}

// List returns a page of warehouses.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Warehouse, error) {
	return s.repo.List(ctx, limit, offset)
}

// SaveDistance upserts a transfer leg.
func (s *Service) SaveDistance(ctx context.Context, d *Distance) error {
	if err := d.Validate(ctx); err != nil {
		return err
	}
	return s.repo.SaveDistance(ctx, d)
}
