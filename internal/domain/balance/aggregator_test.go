package balance

import (
	"context"
	"testing"
	"time"

	"lotledger/internal/core/clock"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

type fakeRepo struct {
	buckets map[string]*DailyBalance
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{buckets: make(map[string]*DailyBalance)}
}

func bucketKey(w, m id.ID, day time.Time) string {
	return w.String() + "/" + m.String() + "/" + day.Format("2006-01-02")
}

func (r *fakeRepo) Upsert(_ context.Context, d Delta) error {
	key := bucketKey(d.WarehouseID, d.MaterialID, d.Date)
	row, ok := r.buckets[key]
	if !ok {
		row = &DailyBalance{
			ID:          id.New(),
			WarehouseID: d.WarehouseID,
			MaterialID:  d.MaterialID,
			Date:        d.Date,
			ValueIn:     types.ZeroMoney(),
			ValueOut:    types.ZeroMoney(),
		}
		r.buckets[key] = row
	}
	row.QuantityIn += d.QuantityIn
	row.QuantityOut += d.QuantityOut
	row.ValueIn = row.ValueIn.Add(d.ValueIn)
	row.ValueOut = row.ValueOut.Add(d.ValueOut)
	return nil
}

func (r *fakeRepo) GetDay(_ context.Context, w, m id.ID, day time.Time) (*DailyBalance, error) {
	return r.buckets[bucketKey(w, m, day)], nil
}

func (r *fakeRepo) GetRange(_ context.Context, w, m id.ID, from, to time.Time) ([]*DailyBalance, error) {
	var out []*DailyBalance
	for _, row := range r.buckets {
		if row.WarehouseID == w && row.MaterialID == m &&
			!row.Date.Before(from) && !row.Date.After(to) {
			out = append(out, row)
		}
	}
	return out, nil
}

func qty(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func TestRecordReceipt_BucketsByDay(t *testing.T) {
	repo := newFakeRepo()
	clk := clock.Fixed{T: time.Date(2026, 3, 15, 23, 45, 0, 0, time.UTC)}
	agg := NewAggregator(repo, clk)
	ctx := context.Background()
	w, m := id.New(), id.New()

	if err := agg.RecordReceipt(ctx, w, m, qty(10), types.MustMoney("1000.00")); err != nil {
		t.Fatal(err)
	}
	if err := agg.RecordReceipt(ctx, w, m, qty(5), types.MustMoney("500.00")); err != nil {
		t.Fatal(err)
	}

	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	row, _ := repo.GetDay(ctx, w, m, day)
	if row == nil {
		t.Fatal("bucket for the UTC day was not created")
	}
	if row.QuantityIn != qty(15) {
		t.Errorf("quantity in: got %s, want 15.000", row.QuantityIn)
	}
	if !row.ValueIn.Equal(types.MustMoney("1500.00")) {
		t.Errorf("value in: got %s, want 1500.00", row.ValueIn)
	}
}

func TestReversalLandsOnCancellationDate(t *testing.T) {
	repo := newFakeRepo()
	postDay := clock.Fixed{T: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)}
	cancelDay := clock.Fixed{T: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
	ctx := context.Background()
	w, m := id.New(), id.New()

	if err := NewAggregator(repo, postDay).RecordReceipt(ctx, w, m, qty(10), types.MustMoney("1000.00")); err != nil {
		t.Fatal(err)
	}
	if err := NewAggregator(repo, cancelDay).ReverseReceipt(ctx, w, m, qty(10), types.MustMoney("1000.00")); err != nil {
		t.Fatal(err)
	}

	original, _ := repo.GetDay(ctx, w, m, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	if original.QuantityIn != qty(10) {
		t.Errorf("original day must stay untouched, got in=%s", original.QuantityIn)
	}

	reversal, _ := repo.GetDay(ctx, w, m, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	if reversal == nil {
		t.Fatal("reversal bucket missing")
	}
	if reversal.QuantityIn != qty(-10) {
		t.Errorf("reversal day: got in=%s, want -10.000", reversal.QuantityIn)
	}
	if !reversal.ValueIn.Equal(types.MustMoney("-1000.00")) {
		t.Errorf("reversal value: got %s, want -1000.00", reversal.ValueIn)
	}
}

func TestRecordTransfer_BooksBothSides(t *testing.T) {
	repo := newFakeRepo()
	clk := clock.Fixed{T: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
	agg := NewAggregator(repo, clk)
	ctx := context.Background()
	src, dst, m := id.New(), id.New(), id.New()

	if err := agg.RecordTransfer(ctx, src, dst, m, qty(4), types.MustMoney("400.00")); err != nil {
		t.Fatal(err)
	}

	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	out, _ := repo.GetDay(ctx, src, m, day)
	in, _ := repo.GetDay(ctx, dst, m, day)

	if out == nil || out.QuantityOut != qty(4) {
		t.Errorf("source bucket: got %+v, want out=4.000", out)
	}
	if in == nil || in.QuantityIn != qty(4) {
		t.Errorf("destination bucket: got %+v, want in=4.000", in)
	}
}

func TestGetTurnover(t *testing.T) {
	repo := newFakeRepo()
	clk := clock.Fixed{T: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
	agg := NewAggregator(repo, clk)
	ctx := context.Background()
	w, m := id.New(), id.New()

	if err := agg.RecordReceipt(ctx, w, m, qty(10), types.MustMoney("1000.00")); err != nil {
		t.Fatal(err)
	}
	if err := agg.RecordIssue(ctx, w, m, qty(4), types.MustMoney("400.00")); err != nil {
		t.Fatal(err)
	}

	turnover, err := agg.GetTurnover(ctx, w, m,
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatal(err)
	}

	if turnover.QuantityIn != qty(10) || turnover.QuantityOut != qty(4) {
		t.Errorf("got in=%s out=%s, want in=10.000 out=4.000", turnover.QuantityIn, turnover.QuantityOut)
	}
	if !turnover.ValueIn.Equal(types.MustMoney("1000.00")) || !turnover.ValueOut.Equal(types.MustMoney("400.00")) {
		t.Errorf("got value in=%s out=%s", turnover.ValueIn, turnover.ValueOut)
	}
}
