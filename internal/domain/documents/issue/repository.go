package issue

import (
	"context"
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/domain"
)

// Repository defines storage operations for stock issues.
type Repository interface {
	Create(ctx context.Context, doc *StockIssue) error
	GetByID(ctx context.Context, docID id.ID) (*StockIssue, error)
	GetByNumber(ctx context.Context, number string) (*StockIssue, error)
	Update(ctx context.Context, doc *StockIssue) error

	GetLines(ctx context.Context, docID id.ID) ([]Line, error)
	SaveLines(ctx context.Context, docID id.ID, lines []Line) error

	List(ctx context.Context, filter ListFilter) (domain.ListResult[*StockIssue], error)

	// GetForUpdate locks the header row for a transition.
	GetForUpdate(ctx context.Context, docID id.ID) (*StockIssue, error)
}

// ListFilter for filtering stock issues.
type ListFilter struct {
	domain.ListFilter

	WarehouseID *id.ID
	Status      *int
	DateFrom    *time.Time
	DateTo      *time.Time
}
