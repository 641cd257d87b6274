package receipt

import (
	"context"
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/domain"
)

// Repository defines storage operations for stock receipts.
type Repository interface {
	Create(ctx context.Context, doc *StockReceipt) error
	GetByID(ctx context.Context, docID id.ID) (*StockReceipt, error)
	GetByNumber(ctx context.Context, number string) (*StockReceipt, error)
	Update(ctx context.Context, doc *StockReceipt) error

	GetLines(ctx context.Context, docID id.ID) ([]Line, error)
	SaveLines(ctx context.Context, docID id.ID, lines []Line) error

	List(ctx context.Context, filter ListFilter) (domain.ListResult[*StockReceipt], error)

	// GetForUpdate locks the header row for a transition.
	GetForUpdate(ctx context.Context, docID id.ID) (*StockReceipt, error)
}

// ListFilter for filtering stock receipts.
type ListFilter struct {
	domain.ListFilter

	WarehouseID *id.ID
	Status      *int
	DateFrom    *time.Time
	DateTo      *time.Time
}
