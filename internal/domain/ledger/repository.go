package ledger

import (
	"context"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Repository defines storage operations for stock rows, lots, the history
// log and issue allocations. Mutations run inside the caller's transaction;
// the *ForUpdate variants must take row locks.
type Repository interface {
	// GetStockForUpdate locks and returns the stock row for the key,
	// or nil when no movements exist yet.
	GetStockForUpdate(ctx context.Context, warehouseID, materialID id.ID) (*Stock, error)

	// GetStock reads the stock row without a lock. Returns nil when absent.
	GetStock(ctx context.Context, warehouseID, materialID id.ID) (*Stock, error)

	// CreateStock inserts a fresh stock row.
	CreateStock(ctx context.Context, s *Stock) error

	// SaveStock updates a stock row with an optimistic version check and
	// returns CONCURRENCY_CONFLICT when the version no longer matches.
	SaveStock(ctx context.Context, s *Stock) error

	// GetLotsForUpdate locks and returns all lots with positive quantity
	// for the key, in FIFO consumption order: manufacture date ascending
	// with NULLs last, then expiry date ascending, then id.
	GetLotsForUpdate(ctx context.Context, warehouseID, materialID id.ID) ([]*StockLot, error)

	// GetLots reads the positive-quantity lots for the key without locks,
	// in the same FIFO order as GetLotsForUpdate.
	GetLots(ctx context.Context, warehouseID, materialID id.ID) ([]*StockLot, error)

	// FindLotForUpdate locks and returns the lot matching the full key,
	// or nil when no such lot exists. Zero-quantity lots are included so
	// a repeat receipt tops up the existing row.
	FindLotForUpdate(ctx context.Context, key LotKey) (*StockLot, error)

	// GetLotByID returns a lot by primary key.
	GetLotByID(ctx context.Context, lotID id.ID) (*StockLot, error)

	CreateLot(ctx context.Context, lot *StockLot) error

	// UpdateLot persists quantity, price and reservation changes with an
	// optimistic version check.
	UpdateLot(ctx context.Context, lot *StockLot) error

	// SumLotQuantity returns the lot quantity total for the key,
	// zero-quantity lots included. Used by the reconciliation check.
	SumLotQuantity(ctx context.Context, warehouseID, materialID id.ID) (types.Quantity, error)

	// AppendHistory writes lot history entries. Entries are immutable.
	AppendHistory(ctx context.Context, entries []*LotHistory) error

	// GetHistoryByLot returns the event log for one lot, oldest first.
	GetHistoryByLot(ctx context.Context, lotID id.ID) ([]*LotHistory, error)

	// CreateAllocations persists the lot breakdown of an issue posting.
	CreateAllocations(ctx context.Context, allocs []*IssueAllocation) error

	// GetAllocationsByDocument returns all allocations of a posted document.
	GetAllocationsByDocument(ctx context.Context, documentID id.ID) ([]*IssueAllocation, error)

	// DeleteAllocationsByDocument removes allocations during reversal.
	DeleteAllocationsByDocument(ctx context.Context, documentID id.ID) error
}
