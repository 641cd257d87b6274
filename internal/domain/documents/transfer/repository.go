package transfer

import (
	"context"
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/domain"
)

// Repository defines storage operations for stock transfers.
type Repository interface {
	Create(ctx context.Context, doc *StockTransfer) error
	GetByID(ctx context.Context, docID id.ID) (*StockTransfer, error)
	GetByNumber(ctx context.Context, number string) (*StockTransfer, error)
	Update(ctx context.Context, doc *StockTransfer) error

	GetLines(ctx context.Context, docID id.ID) ([]Line, error)
	SaveLines(ctx context.Context, docID id.ID, lines []Line) error

	List(ctx context.Context, filter ListFilter) (domain.ListResult[*StockTransfer], error)

	// GetForUpdate locks the header row for a transition.
	GetForUpdate(ctx context.Context, docID id.ID) (*StockTransfer, error)
}

// ListFilter for filtering stock transfers.
type ListFilter struct {
	domain.ListFilter

	FromWarehouseID *id.ID
	ToWarehouseID   *id.ID
	Status          *int
	DateFrom        *time.Time
	DateTo          *time.Time
}
