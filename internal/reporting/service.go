package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// LedgerPort is the slice of the ledger engine reporting reads.
type LedgerPort interface {
	StockReport(ctx context.Context, productID *int64, from, to time.Time) ([]ledger.ReportRow, error)
}

// Service builds reports through the versioned cache. Concurrent requests
// for the same report collapse into one build via singleflight.
type Service struct {
	repo   Repository
	ledger LedgerPort
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time
}

// NewService constructs Service.
func NewService(repo Repository, ledgerPort LedgerPort, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, ledger: ledgerPort, cache: cache, logger: logger, now: time.Now}
}

// Invalidate drops every cached report. The ledger engine calls this after
// committed writes.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("report cache bump failed", slog.Any("error", err))
	}
}

// LowStockAlerts lists products strictly below their reorder point, most
// urgent first.
func (s *Service) LowStockAlerts(ctx context.Context) ([]LowStockAlert, error) {
	var alerts []LowStockAlert
	err := s.fetch(ctx, &alerts, func(ctx context.Context) (any, error) {
		rows, err := s.repo.StockOnHand(ctx)
		if err != nil {
			return nil, err
		}
		return lowStockFrom(rows), nil
	}, "reports", "lowstock")
	return alerts, err
}

// lowStockFrom keeps the rows below their reorder point. A product sitting
// exactly at the reorder point is not low.
func lowStockFrom(rows []StockOnHandRow) []LowStockAlert {
	alerts := []LowStockAlert{}
	for _, row := range rows {
		if row.ReorderPoint == nil {
			continue
		}
		reorder := decimal.NewFromInt(*row.ReorderPoint)
		if row.AvailableStock.GreaterThanOrEqual(reorder) {
			continue
		}
		alerts = append(alerts, LowStockAlert{
			ProductID:      row.ProductID,
			Name:           row.Name,
			Unit:           row.Unit,
			AvailableStock: row.AvailableStock,
			ReorderPoint:   *row.ReorderPoint,
			Shortage:       reorder.Sub(row.AvailableStock),
		})
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		if !alerts[i].Shortage.Equal(alerts[j].Shortage) {
			return alerts[i].Shortage.GreaterThan(alerts[j].Shortage)
		}
		return alerts[i].ProductID < alerts[j].ProductID
	})
	return alerts
}

// StockReport is the windowed per-product movement summary: opening balance
// before the window, purchased and sold magnitudes inside it, and the
// resulting closing.
func (s *Service) StockReport(ctx context.Context, from, to time.Time) ([]StockReportRow, error) {
	from = shared.DateOnly(from)
	to = shared.DateOnly(to)
	var rows []StockReportRow
	err := s.fetch(ctx, &rows, func(ctx context.Context) (any, error) {
		return s.reportRows(ctx, from, to)
	}, "reports", "stockreport", from.Format(shared.DateLayout), to.Format(shared.DateLayout))
	return rows, err
}

// DeadStock lists products holding stock with no sale in the past days.
func (s *Service) DeadStock(ctx context.Context, days int) ([]DeadStockItem, error) {
	if days <= 0 {
		days = 90
	}
	cutoff := shared.DateOnly(s.now()).AddDate(0, 0, -days)
	var items []DeadStockItem
	err := s.fetch(ctx, &items, func(ctx context.Context) (any, error) {
		return s.repo.DeadStock(ctx, cutoff)
	}, "reports", "deadstock", strconv.Itoa(days))
	return items, err
}

// KPIs summarises the current month for the dashboard.
func (s *Service) KPIs(ctx context.Context) (KPISummary, error) {
	var summary KPISummary
	err := s.fetch(ctx, &summary, func(ctx context.Context) (any, error) {
		return s.buildKPIs(ctx)
	}, "reports", "kpis")
	return summary, err
}

func (s *Service) buildKPIs(ctx context.Context) (KPISummary, error) {
	now := s.now()
	first, next, err := shared.MonthBounds(now.Year(), int(now.Month()))
	if err != nil {
		return KPISummary{}, err
	}

	summary := KPISummary{}
	if summary.TotalProducts, err = s.repo.ProductCount(ctx); err != nil {
		return KPISummary{}, fmt.Errorf("count products: %w", err)
	}
	if summary.TotalStockValue, err = s.repo.StockValue(ctx); err != nil {
		return KPISummary{}, fmt.Errorf("value stock: %w", err)
	}
	onHand, err := s.repo.StockOnHand(ctx)
	if err != nil {
		return KPISummary{}, fmt.Errorf("stock on hand: %w", err)
	}
	summary.LowStockCount = len(lowStockFrom(onHand))
	if summary.TodaySales, err = s.repo.SalesTotalForDay(ctx, shared.DateOnly(now)); err != nil {
		return KPISummary{}, fmt.Errorf("today sales: %w", err)
	}
	totals, err := s.repo.OrderTotals(ctx, first, next)
	if err != nil {
		return KPISummary{}, fmt.Errorf("order totals: %w", err)
	}
	summary.MonthPurchases = totals.PurchaseTotal
	summary.MonthSales = totals.SaleTotal
	if summary.MonthMovements, err = s.repo.MovementCount(ctx, first, next); err != nil {
		return KPISummary{}, fmt.Errorf("count movements: %w", err)
	}
	if summary.BestSeller, err = s.repo.BestSellingProduct(ctx, first, next); err != nil {
		return KPISummary{}, fmt.Errorf("best seller: %w", err)
	}
	return summary, nil
}

// Monthly builds the per-product movement summary and order totals for one
// calendar month.
func (s *Service) Monthly(ctx context.Context, year, month int) (MonthlyReport, error) {
	var report MonthlyReport
	err := s.fetch(ctx, &report, func(ctx context.Context) (any, error) {
		return s.buildMonthly(ctx, year, month)
	}, "reports", "monthly", strconv.Itoa(year), strconv.Itoa(month))
	return report, err
}

func (s *Service) buildMonthly(ctx context.Context, year, month int) (MonthlyReport, error) {
	first, next, err := shared.MonthBounds(year, month)
	if err != nil {
		return MonthlyReport{}, err
	}

	totals, err := s.repo.OrderTotals(ctx, first, next)
	if err != nil {
		return MonthlyReport{}, fmt.Errorf("order totals: %w", err)
	}
	rows, err := s.reportRows(ctx, first, next.AddDate(0, 0, -1))
	if err != nil {
		return MonthlyReport{}, err
	}

	return MonthlyReport{
		Year:          year,
		Month:         month,
		PurchaseTotal: totals.PurchaseTotal,
		PurchaseCount: totals.PurchaseCount,
		SaleTotal:     totals.SaleTotal,
		SaleCount:     totals.SaleCount,
		Rows:          rows,
	}, nil
}

// reportRows runs the ledger's windowed summary and merges product names in.
func (s *Service) reportRows(ctx context.Context, from, to time.Time) ([]StockReportRow, error) {
	rows, err := s.ledger.StockReport(ctx, nil, from, to)
	if err != nil {
		return nil, fmt.Errorf("stock report: %w", err)
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ProductID)
	}
	names, err := s.repo.ProductNames(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("product names: %w", err)
	}

	out := make([]StockReportRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, StockReportRow{
			ProductID: row.ProductID,
			Name:      names[row.ProductID],
			Opening:   row.Opening,
			Purchased: row.Purchased,
			Sold:      row.Sold,
			Closing:   row.Closing,
		})
	}
	return out, nil
}

// fetch goes through the cache and collapses concurrent builds of the same
// key. The singleflight result is shared as raw JSON so each caller gets
// its own decoded copy.
func (s *Service) fetch(ctx context.Context, dest any, loader func(context.Context) (any, error), parts ...string) error {
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		return err
	}
	raw, err, _ := s.group.Do(key, func() (any, error) {
		var payload json.RawMessage
		if err := s.cache.FetchJSON(ctx, key, &payload, loader); err != nil {
			return nil, err
		}
		return payload, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.(json.RawMessage), dest)
}
