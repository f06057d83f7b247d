package reporting

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository runs the aggregate queries reports are built from.
type Repository interface {
	StockOnHand(ctx context.Context) ([]StockOnHandRow, error)
	DeadStock(ctx context.Context, cutoff time.Time) ([]DeadStockItem, error)
	StockValue(ctx context.Context) (decimal.Decimal, error)
	ProductCount(ctx context.Context) (int, error)
	MovementCount(ctx context.Context, from, to time.Time) (int, error)
	OrderTotals(ctx context.Context, from, to time.Time) (OrderTotals, error)
	SalesTotalForDay(ctx context.Context, day time.Time) (decimal.Decimal, error)
	BestSellingProduct(ctx context.Context, from, to time.Time) (*BestSeller, error)
	ProductNames(ctx context.Context, ids []int64) (map[int64]string, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed reporting repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) StockOnHand(ctx context.Context) ([]StockOnHandRow, error) {
	rows, err := r.db.Query(ctx, `SELECT p.id, p.name, p.unit, COALESCE(s.available_stock, 0), p.unit_price,
COALESCE(s.available_stock, 0) * p.unit_price AS stock_value, p.reorder_point
FROM products p
LEFT JOIN stock_snapshots s ON s.product_id = p.id
ORDER BY p.name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	report := []StockOnHandRow{}
	for rows.Next() {
		var row StockOnHandRow
		if err := rows.Scan(&row.ProductID, &row.Name, &row.Unit, &row.AvailableStock,
			&row.UnitPrice, &row.StockValue, &row.ReorderPoint); err != nil {
			return nil, err
		}
		report = append(report, row)
	}
	return report, rows.Err()
}

func (r *repository) DeadStock(ctx context.Context, cutoff time.Time) ([]DeadStockItem, error) {
	rows, err := r.db.Query(ctx, `SELECT p.id, p.name, s.available_stock, ls.last_sale
FROM products p
JOIN stock_snapshots s ON s.product_id = p.id
LEFT JOIN (
    SELECT product_id, MAX(transaction_date) AS last_sale
    FROM stock_ledger WHERE transaction_type = 'sale'
    GROUP BY product_id
) ls ON ls.product_id = p.id
WHERE s.available_stock > 0 AND (ls.last_sale IS NULL OR ls.last_sale < $1)
ORDER BY ls.last_sale ASC NULLS FIRST, p.id ASC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []DeadStockItem{}
	for rows.Next() {
		var item DeadStockItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.AvailableStock, &item.LastSaleDate); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *repository) StockValue(ctx context.Context) (decimal.Decimal, error) {
	var value decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(s.available_stock * p.unit_price), 0)
FROM stock_snapshots s JOIN products p ON p.id = s.product_id`).Scan(&value)
	return value, err
}

func (r *repository) ProductCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&count)
	return count, err
}

func (r *repository) MovementCount(ctx context.Context, from, to time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM stock_ledger WHERE transaction_date >= $1 AND transaction_date < $2`, from, to).Scan(&count)
	return count, err
}

func (r *repository) OrderTotals(ctx context.Context, from, to time.Time) (OrderTotals, error) {
	var totals OrderTotals
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(total_amount), 0), COUNT(*) FROM purchases
WHERE purchase_date >= $1 AND purchase_date < $2`, from, to).
		Scan(&totals.PurchaseTotal, &totals.PurchaseCount)
	if err != nil {
		return OrderTotals{}, err
	}
	err = r.db.QueryRow(ctx, `SELECT COALESCE(SUM(total_amount), 0), COUNT(*) FROM sales
WHERE sale_date >= $1 AND sale_date < $2`, from, to).
		Scan(&totals.SaleTotal, &totals.SaleCount)
	if err != nil {
		return OrderTotals{}, err
	}
	return totals, nil
}

func (r *repository) SalesTotalForDay(ctx context.Context, day time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(total_amount), 0) FROM sales WHERE sale_date = $1`, day).Scan(&total)
	return total, err
}

func (r *repository) BestSellingProduct(ctx context.Context, from, to time.Time) (*BestSeller, error) {
	var best BestSeller
	err := r.db.QueryRow(ctx, `SELECT i.product_id, i.product_name, SUM(i.quantity) AS sold
FROM sale_items i
JOIN sales s ON s.id = i.sale_id
WHERE s.sale_date >= $1 AND s.sale_date < $2
GROUP BY i.product_id, i.product_name
ORDER BY sold DESC, i.product_id ASC
LIMIT 1`, from, to).Scan(&best.ProductID, &best.Name, &best.QuantitySold)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &best, nil
}

func (r *repository) ProductNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	names := map[int64]string{}
	if len(ids) == 0 {
		return names, nil
	}
	rows, err := r.db.Query(ctx, `SELECT id, name FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}
