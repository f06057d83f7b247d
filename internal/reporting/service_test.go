package reporting

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

type fakeRepo struct {
	onHand        []StockOnHandRow
	deadStock     []DeadStockItem
	deadCutoff    time.Time
	stockValue    decimal.Decimal
	productCount  int
	movementCount int
	orderTotals   OrderTotals
	todaySales    decimal.Decimal
	salesDay      time.Time
	bestSeller    *BestSeller
	bestFrom      time.Time
	bestTo        time.Time
	names         map[int64]string
}

func (f *fakeRepo) StockOnHand(context.Context) ([]StockOnHandRow, error) { return f.onHand, nil }
func (f *fakeRepo) DeadStock(_ context.Context, cutoff time.Time) ([]DeadStockItem, error) {
	f.deadCutoff = cutoff
	return f.deadStock, nil
}
func (f *fakeRepo) StockValue(context.Context) (decimal.Decimal, error) { return f.stockValue, nil }
func (f *fakeRepo) ProductCount(context.Context) (int, error)           { return f.productCount, nil }
func (f *fakeRepo) MovementCount(context.Context, time.Time, time.Time) (int, error) {
	return f.movementCount, nil
}
func (f *fakeRepo) OrderTotals(context.Context, time.Time, time.Time) (OrderTotals, error) {
	return f.orderTotals, nil
}
func (f *fakeRepo) SalesTotalForDay(_ context.Context, day time.Time) (decimal.Decimal, error) {
	f.salesDay = day
	return f.todaySales, nil
}
func (f *fakeRepo) BestSellingProduct(_ context.Context, from, to time.Time) (*BestSeller, error) {
	f.bestFrom, f.bestTo = from, to
	return f.bestSeller, nil
}
func (f *fakeRepo) ProductNames(_ context.Context, ids []int64) (map[int64]string, error) {
	out := map[int64]string{}
	for _, id := range ids {
		if name, ok := f.names[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

type fakeLedger struct {
	rows []ledger.ReportRow
	from time.Time
	to   time.Time
}

func (f *fakeLedger) StockReport(_ context.Context, _ *int64, from, to time.Time) ([]ledger.ReportRow, error) {
	f.from, f.to = from, to
	return f.rows, nil
}

func newTestService(repo *fakeRepo, eng *fakeLedger) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, eng, nil, logger)
	svc.now = func() time.Time { return time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func reorder(n int64) *int64 { return &n }

func TestLowStockStrictlyBelowReorderPoint(t *testing.T) {
	repo := &fakeRepo{onHand: []StockOnHandRow{
		{ProductID: 1, Name: "At Point", AvailableStock: decimal.NewFromInt(20), ReorderPoint: reorder(20)},
		{ProductID: 2, Name: "Just Below", AvailableStock: decimal.NewFromInt(19), ReorderPoint: reorder(20)},
		{ProductID: 3, Name: "Well Below", AvailableStock: decimal.NewFromInt(2), ReorderPoint: reorder(10)},
		{ProductID: 4, Name: "No Point", AvailableStock: decimal.Zero, ReorderPoint: nil},
	}}
	svc := newTestService(repo, &fakeLedger{})

	alerts, err := svc.LowStockAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	// Biggest shortage first.
	require.Equal(t, int64(3), alerts[0].ProductID)
	require.True(t, alerts[0].Shortage.Equal(decimal.NewFromInt(8)))
	require.Equal(t, int64(2), alerts[1].ProductID)
	require.True(t, alerts[1].Shortage.Equal(decimal.NewFromInt(1)))
}

func TestKPIsComposition(t *testing.T) {
	repo := &fakeRepo{
		onHand: []StockOnHandRow{
			{ProductID: 1, AvailableStock: decimal.NewFromInt(1), ReorderPoint: reorder(5)},
			{ProductID: 2, AvailableStock: decimal.NewFromInt(3), ReorderPoint: reorder(5)},
			{ProductID: 3, AvailableStock: decimal.NewFromInt(5), ReorderPoint: reorder(5)},
		},
		stockValue:    decimal.NewFromInt(1250),
		productCount:  8,
		movementCount: 17,
		todaySales:    decimal.NewFromInt(75),
		bestSeller:    &BestSeller{ProductID: 2, Name: "Widget", QuantitySold: decimal.NewFromInt(40)},
		orderTotals: OrderTotals{
			PurchaseTotal: decimal.NewFromInt(900),
			PurchaseCount: 3,
			SaleTotal:     decimal.NewFromInt(400),
			SaleCount:     5,
		},
	}
	svc := newTestService(repo, &fakeLedger{})

	summary, err := svc.KPIs(context.Background())
	require.NoError(t, err)
	require.Equal(t, 8, summary.TotalProducts)
	require.True(t, summary.TotalStockValue.Equal(decimal.NewFromInt(1250)))
	// Product 3 sits at its reorder point and does not count as low.
	require.Equal(t, 2, summary.LowStockCount)
	require.True(t, summary.TodaySales.Equal(decimal.NewFromInt(75)))
	require.True(t, summary.MonthPurchases.Equal(decimal.NewFromInt(900)))
	require.True(t, summary.MonthSales.Equal(decimal.NewFromInt(400)))
	require.Equal(t, 17, summary.MonthMovements)
	require.NotNil(t, summary.BestSeller)
	require.Equal(t, "Widget", summary.BestSeller.Name)
	require.True(t, summary.BestSeller.QuantitySold.Equal(decimal.NewFromInt(40)))
	require.Equal(t, time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC), repo.salesDay)
	require.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), repo.bestFrom)
	require.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), repo.bestTo)
}

func TestStockReportWindowAndNames(t *testing.T) {
	repo := &fakeRepo{names: map[int64]string{7: "Anvil"}}
	eng := &fakeLedger{rows: []ledger.ReportRow{{
		ProductID: 7,
		Opening:   decimal.NewFromInt(4),
		Purchased: decimal.NewFromInt(6),
		Sold:      decimal.NewFromInt(2),
		Closing:   decimal.NewFromInt(8),
	}}}
	svc := newTestService(repo, eng)

	from := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)
	to := time.Date(2026, 4, 30, 18, 0, 0, 0, time.UTC)
	rows, err := svc.StockReport(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Anvil", rows[0].Name)
	require.True(t, rows[0].Closing.Equal(decimal.NewFromInt(8)))
	// The window is truncated to whole days before it reaches the ledger.
	require.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), eng.from)
	require.Equal(t, time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC), eng.to)
}

func TestMonthlyMergesNames(t *testing.T) {
	repo := &fakeRepo{
		names: map[int64]string{1: "Widget"},
		orderTotals: OrderTotals{
			PurchaseTotal: decimal.NewFromInt(100),
			PurchaseCount: 1,
		},
	}
	eng := &fakeLedger{rows: []ledger.ReportRow{{
		ProductID: 1,
		Opening:   decimal.NewFromInt(10),
		Purchased: decimal.NewFromInt(5),
		Sold:      decimal.NewFromInt(3),
		Closing:   decimal.NewFromInt(12),
	}}}
	svc := newTestService(repo, eng)

	report, err := svc.Monthly(context.Background(), 2026, 5)
	require.NoError(t, err)
	require.Equal(t, 2026, report.Year)
	require.Equal(t, 5, report.Month)
	require.Len(t, report.Rows, 1)
	require.Equal(t, "Widget", report.Rows[0].Name)
	require.True(t, report.Rows[0].Closing.Equal(decimal.NewFromInt(12)))
	require.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), eng.from)
	require.Equal(t, time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC), eng.to)
}

func TestMonthlyRejectsBadMonth(t *testing.T) {
	svc := newTestService(&fakeRepo{}, &fakeLedger{})
	_, err := svc.Monthly(context.Background(), 2026, 13)
	require.Error(t, err)
}

func TestDeadStockDefaultWindow(t *testing.T) {
	repo := &fakeRepo{deadStock: []DeadStockItem{{ProductID: 4, Name: "Anvil"}}}
	svc := newTestService(repo, &fakeLedger{})

	items, err := svc.DeadStock(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	// Zero days falls back to the 90-day window.
	require.Equal(t, time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC), repo.deadCutoff)
}

func TestInvalidateWithoutCache(t *testing.T) {
	svc := newTestService(&fakeRepo{}, &fakeLedger{})
	svc.Invalidate(context.Background())
}
