package ledger

import (
	"testing"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func qty(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func testLot(lotNumber string, manufacture, expiry *time.Time, quantity types.Quantity) *StockLot {
	return &StockLot{
		ID:              id.New(),
		WarehouseID:     id.New(),
		MaterialID:      id.New(),
		LotNumber:       lotNumber,
		ManufactureDate: manufacture,
		ExpiryDate:      expiry,
		Quantity:        quantity,
		UnitPrice:       types.MustMoney("10.00"),
	}
}

func TestSortFIFO(t *testing.T) {
	oldest := testLot("A", date(2026, 1, 10), nil, qty(5))
	middle := testLot("B", date(2026, 2, 1), nil, qty(5))
	undated := testLot("C", nil, nil, qty(5))
	expiring := testLot("D", date(2026, 2, 1), date(2026, 6, 1), qty(5))

	lots := []*StockLot{undated, middle, expiring, oldest}
	SortFIFO(lots)

	want := []string{"A", "D", "B", "C"}
	for i, w := range want {
		if lots[i].LotNumber != w {
			t.Fatalf("position %d: got lot %s, want %s", i, lots[i].LotNumber, w)
		}
	}
}

func TestSortFIFO_TieBreakByID(t *testing.T) {
	d := date(2026, 3, 1)
	a := testLot("A", d, nil, qty(1))
	b := testLot("B", d, nil, qty(1))

	lots := []*StockLot{b, a}
	SortFIFO(lots)
	lots2 := []*StockLot{a, b}
	SortFIFO(lots2)

	if lots[0] != lots2[0] || lots[1] != lots2[1] {
		t.Fatal("sort order must be stable regardless of input order")
	}
}

func TestAllocate_SpansLots(t *testing.T) {
	first := testLot("A", date(2026, 1, 1), nil, qty(10))
	second := testLot("B", date(2026, 2, 1), nil, qty(10))
	issueID := id.New()

	plan, err := Allocate([]*StockLot{second, first}, issueID, first.MaterialID, qty(15))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(plan) != 2 {
		t.Fatalf("got %d portions, want 2", len(plan))
	}
	if plan[0].Lot.LotNumber != "A" || plan[0].Quantity != qty(10) {
		t.Errorf("first portion: got %s/%s, want A/10.000", plan[0].Lot.LotNumber, plan[0].Quantity)
	}
	if plan[1].Lot.LotNumber != "B" || plan[1].Quantity != qty(5) {
		t.Errorf("second portion: got %s/%s, want B/5.000", plan[1].Lot.LotNumber, plan[1].Quantity)
	}
}

func TestAllocate_Insufficient(t *testing.T) {
	lot := testLot("A", date(2026, 1, 1), nil, qty(3))

	_, err := Allocate([]*StockLot{lot}, id.New(), lot.MaterialID, qty(5))
	if !apperror.IsInsufficientStock(err) {
		t.Fatalf("got %v, want INSUFFICIENT_STOCK", err)
	}

	appErr, _ := apperror.AsAppError(err)
	if appErr.Details["available"] != 3.0 {
		t.Errorf("available detail: got %v, want 3", appErr.Details["available"])
	}
}

func TestAllocate_SkipsForeignReservations(t *testing.T) {
	issueID := id.New()
	otherIssue := id.New()

	reserved := testLot("A", date(2026, 1, 1), nil, qty(10))
	reserved.IsReserved = true
	reserved.ReservedForIssueID = &otherIssue

	mine := testLot("B", date(2026, 2, 1), nil, qty(10))
	mine.IsReserved = true
	mine.ReservedForIssueID = &issueID

	free := testLot("C", date(2026, 3, 1), nil, qty(10))

	plan, err := Allocate([]*StockLot{reserved, mine, free}, issueID, reserved.MaterialID, qty(15))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if plan[0].Lot.LotNumber != "B" {
		t.Errorf("first portion from lot %s, want B (own reservation is eligible)", plan[0].Lot.LotNumber)
	}
	if plan[1].Lot.LotNumber != "C" {
		t.Errorf("second portion from lot %s, want C", plan[1].Lot.LotNumber)
	}
}

func TestAllocate_ReservedOnlyCountsForOwner(t *testing.T) {
	otherIssue := id.New()
	reserved := testLot("A", date(2026, 1, 1), nil, qty(10))
	reserved.IsReserved = true
	reserved.ReservedForIssueID = &otherIssue

	_, err := Allocate([]*StockLot{reserved}, id.New(), reserved.MaterialID, qty(1))
	if !apperror.IsInsufficientStock(err) {
		t.Fatalf("got %v, want INSUFFICIENT_STOCK when all stock is held for another issue", err)
	}
}

func TestAllocate_RejectsNonPositive(t *testing.T) {
	_, err := Allocate(nil, id.New(), id.New(), qty(0))
	if !apperror.IsCode(err, apperror.CodeValidation) {
		t.Fatalf("got %v, want VALIDATION_ERROR", err)
	}
}

func TestAllocate_FractionalQuantities(t *testing.T) {
	lot := testLot("A", date(2026, 1, 1), nil, qty(0.75))

	plan, err := Allocate([]*StockLot{lot}, id.New(), lot.MaterialID, qty(0.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan[0].Quantity != qty(0.5) {
		t.Errorf("got %s, want 0.500", plan[0].Quantity)
	}
}
