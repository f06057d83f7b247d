package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/reporting"
)

type stubReportRepo struct {
	onHand []reporting.StockOnHandRow
}

func (s *stubReportRepo) StockOnHand(context.Context) ([]reporting.StockOnHandRow, error) {
	return s.onHand, nil
}
func (s *stubReportRepo) DeadStock(context.Context, time.Time) ([]reporting.DeadStockItem, error) {
	return nil, nil
}
func (s *stubReportRepo) StockValue(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (s *stubReportRepo) ProductCount(context.Context) (int, error) { return 0, nil }
func (s *stubReportRepo) MovementCount(context.Context, time.Time, time.Time) (int, error) {
	return 0, nil
}
func (s *stubReportRepo) OrderTotals(context.Context, time.Time, time.Time) (reporting.OrderTotals, error) {
	return reporting.OrderTotals{}, nil
}
func (s *stubReportRepo) SalesTotalForDay(context.Context, time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (s *stubReportRepo) BestSellingProduct(context.Context, time.Time, time.Time) (*reporting.BestSeller, error) {
	return nil, nil
}
func (s *stubReportRepo) ProductNames(context.Context, []int64) (map[int64]string, error) {
	return map[int64]string{}, nil
}

type stubLedger struct{}

func (stubLedger) StockReport(context.Context, *int64, time.Time, time.Time) ([]ledger.ReportRow, error) {
	return nil, nil
}

type captureEnqueuer struct {
	sent []SendEmailPayload
}

func (c *captureEnqueuer) EnqueueSendEmail(_ context.Context, payload SendEmailPayload) error {
	c.sent = append(c.sent, payload)
	return nil
}

func newReports(repo reporting.Repository) *reporting.Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return reporting.NewService(repo, stubLedger{}, nil, logger)
}

func TestLowStockScanSendsSummary(t *testing.T) {
	reorder := int64(20)
	repo := &stubReportRepo{onHand: []reporting.StockOnHandRow{{
		ProductID:      1,
		Name:           "Widget",
		Unit:           "pcs",
		AvailableStock: decimal.NewFromInt(5),
		ReorderPoint:   &reorder,
	}}}
	enq := &captureEnqueuer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	job := NewLowStockScanJob(newReports(repo), enq, "ops@example.com", logger)

	require.NoError(t, job.Handle(context.Background(), NewLowStockScanTask()))
	require.Len(t, enq.sent, 1)
	require.Equal(t, "ops@example.com", enq.sent[0].To)
	require.Contains(t, enq.sent[0].Subject, "1 product(s)")
	require.Contains(t, enq.sent[0].Body, "Widget")
	require.Contains(t, enq.sent[0].Body, "short 15")
}

func TestLowStockScanQuietWhenHealthy(t *testing.T) {
	enq := &captureEnqueuer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	job := NewLowStockScanJob(newReports(&stubReportRepo{}), enq, "ops@example.com", logger)

	require.NoError(t, job.Handle(context.Background(), NewLowStockScanTask()))
	require.Empty(t, enq.sent)
}

func TestLowStockScanWithoutRecipient(t *testing.T) {
	reorder := int64(5)
	repo := &stubReportRepo{onHand: []reporting.StockOnHandRow{{
		ProductID:      1,
		Name:           "Widget",
		AvailableStock: decimal.NewFromInt(1),
		ReorderPoint:   &reorder,
	}}}
	enq := &captureEnqueuer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	job := NewLowStockScanJob(newReports(repo), enq, "", logger)

	require.NoError(t, job.Handle(context.Background(), NewLowStockScanTask()))
	require.Empty(t, enq.sent)
}
