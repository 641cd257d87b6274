// Package ledger maintains authoritative stock quantities per warehouse and
// material, tracked down to individual dated lots. All mutations happen
// inside a posting transaction; the package never talks to documents
// directly, it only applies and reverses their movements.
package ledger

import (
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Stock is the current on-hand aggregate for one (warehouse, material) pair.
// Invariant: Quantity equals the sum of its lots at every commit point.
type Stock struct {
	ID id.ID `db:"id" json:"id"`

	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`
	MaterialID  id.ID `db:"material_id" json:"materialId"`

	// Quantity is the total on-hand quantity, never negative
	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// Value is the cost value of the on-hand quantity. Feeds the
	// weighted-average recomputation on receipts.
	Value types.Money `db:"value" json:"value"`

	// Version is the optimistic concurrency token
	Version int `db:"version" json:"version"`

	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewStock creates an empty stock row for a key that has no movements yet.
func NewStock(warehouseID, materialID id.ID) *Stock {
	return &Stock{
		ID:          id.New(),
		WarehouseID: warehouseID,
		MaterialID:  materialID,
		Value:       types.ZeroMoney(),
		Version:     0,
	}
}

// LotKey identifies a lot inside a warehouse. The storage layer enforces
// uniqueness over these five fields.
type LotKey struct {
	WarehouseID     id.ID
	MaterialID      id.ID
	LotNumber       string
	ManufactureDate *time.Time
	ExpiryDate      *time.Time
}

// StockLot is a dated batch of a material with its own cost basis.
// Zero-quantity lots are retained for audit continuity, never deleted.
type StockLot struct {
	ID id.ID `db:"id" json:"id"`

	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`
	MaterialID  id.ID `db:"material_id" json:"materialId"`

	LotNumber       string     `db:"lot_number" json:"lotNumber"`
	ManufactureDate *time.Time `db:"manufacture_date" json:"manufactureDate,omitempty"`
	ExpiryDate      *time.Time `db:"expiry_date" json:"expiryDate,omitempty"`

	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// UnitPrice is the cost basis stamped at receipt time
	UnitPrice types.Money `db:"unit_price" json:"unitPrice"`

	// IsReserved soft-holds the lot for a pending issue
	IsReserved         bool   `db:"is_reserved" json:"isReserved"`
	ReservedForIssueID *id.ID `db:"reserved_for_issue_id" json:"reservedForIssueId,omitempty"`

	// Version is the optimistic concurrency token
	Version int `db:"version" json:"version"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Key returns the unique lot key.
func (l *StockLot) Key() LotKey {
	return LotKey{
		WarehouseID:     l.WarehouseID,
		MaterialID:      l.MaterialID,
		LotNumber:       l.LotNumber,
		ManufactureDate: l.ManufactureDate,
		ExpiryDate:      l.ExpiryDate,
	}
}

// AvailableFor reports whether the lot may satisfy the given issue.
// Reserved lots are available only to the issue holding the reservation.
func (l *StockLot) AvailableFor(issueID id.ID) bool {
	if !l.Quantity.IsPositive() {
		return false
	}
	if !l.IsReserved {
		return true
	}
	return l.ReservedForIssueID != nil && *l.ReservedForIssueID == issueID
}

// LotEvent classifies entries in the lot history log.
type LotEvent string

const (
	LotEventReceive  LotEvent = "Receive"
	LotEventIssue    LotEvent = "Issue"
	LotEventTransfer LotEvent = "Transfer"
	LotEventReserve  LotEvent = "Reserve"
	LotEventRelease  LotEvent = "Release"
)

// LotHistory is a write-once event log entry for a lot.
type LotHistory struct {
	ID id.ID `db:"id" json:"id"`

	LotID id.ID    `db:"lot_id" json:"lotId"`
	Event LotEvent `db:"event" json:"event"`

	QuantityBefore types.Quantity `db:"quantity_before" json:"quantityBefore"`
	QuantityAfter  types.Quantity `db:"quantity_after" json:"quantityAfter"`

	// DocumentID is the document whose posting produced this event
	DocumentID id.ID  `db:"document_id" json:"documentId"`
	ActorID    string `db:"actor_id" json:"actorId"`

	OccurredAt time.Time `db:"occurred_at" json:"occurredAt"`
}

// IssueAllocation records how much of an issue line was drawn from a lot.
// Per issue line the allocation quantities sum exactly to the requested
// quantity; the row references the lot, it never owns it.
type IssueAllocation struct {
	ID id.ID `db:"id" json:"id"`

	DocumentID id.ID `db:"document_id" json:"documentId"`
	LineID     id.ID `db:"line_id" json:"lineId"`
	LotID      id.ID `db:"lot_id" json:"lotId"`

	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// UnitCost is the lot cost basis at allocation time
	UnitCost types.Money `db:"unit_cost" json:"unitCost"`
}

// MovementRef carries document identity into ledger mutations for history
// and allocation records.
type MovementRef struct {
	DocumentID   id.ID
	DocumentType string
	ActorID      string
}
