package ledger

import (
	"sort"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// LotPortion is one slice of an allocation plan: take Quantity from Lot.
type LotPortion struct {
	Lot      *StockLot
	Quantity types.Quantity
}

// SortFIFO orders lots for consumption: manufacture date ascending with
// unknown dates last, then expiry date ascending (soonest-expiring first,
// unknown last), then id as the stable tie-breaker. The sort is in place.
func SortFIFO(lots []*StockLot) {
	sort.SliceStable(lots, func(i, j int) bool {
		a, b := lots[i], lots[j]
		if c := compareDatesNullsLast(a.ManufactureDate, b.ManufactureDate); c != 0 {
			return c < 0
		}
		if c := compareDatesNullsLast(a.ExpiryDate, b.ExpiryDate); c != 0 {
			return c < 0
		}
		return a.ID.String() < b.ID.String()
	})
}

func compareDatesNullsLast(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Before(*b):
		return -1
	case b.Before(*a):
		return 1
	default:
		return 0
	}
}

// Allocate builds a FIFO consumption plan for the requested quantity out of
// the given lots. Lots reserved for a different issue are skipped; lots
// reserved for issueID are eligible. Returns INSUFFICIENT_STOCK when the
// eligible total cannot cover the request - no partial plans.
//
// Allocate is pure: it inspects lot state but mutates nothing.
func Allocate(lots []*StockLot, issueID id.ID, materialID id.ID, requested types.Quantity) ([]LotPortion, error) {
	if !requested.IsPositive() {
		return nil, apperror.NewValidation("requested quantity must be positive").
			WithDetail("material_id", materialID.String())
	}

	eligible := make([]*StockLot, 0, len(lots))
	var available types.Quantity
	for _, lot := range lots {
		if lot.AvailableFor(issueID) {
			eligible = append(eligible, lot)
			available += lot.Quantity
		}
	}

	if available < requested {
		return nil, apperror.NewInsufficientStock(materialID.String(), requested.Float64(), available.Float64())
	}

	SortFIFO(eligible)

	plan := make([]LotPortion, 0, 4)
	remaining := requested
	for _, lot := range eligible {
		if remaining.IsZero() {
			break
		}
		take := lot.Quantity.Min(remaining)
		plan = append(plan, LotPortion{Lot: lot, Quantity: take})
		remaining -= take
	}

	return plan, nil
}
