// Package reporting builds the read-side views over the catalog, the
// orders and the stock ledger: low-stock alerts, dead stock, KPIs and the
// periodic stock reports. Results are cached in redis and rebuilt on write.
package reporting

import (
	"time"

	"github.com/shopspring/decimal"
)

// LowStockAlert flags a product strictly below its reorder point, most
// urgent first. A product sitting exactly at the reorder point is not low.
type LowStockAlert struct {
	ProductID      int64           `json:"product_id"`
	Name           string          `json:"name"`
	Unit           string          `json:"unit"`
	AvailableStock decimal.Decimal `json:"available_stock"`
	ReorderPoint   int64           `json:"reorder_point"`
	Shortage       decimal.Decimal `json:"shortage"`
}

// StockOnHandRow is one product's valued stock position. It is the source
// rows low-stock alerts are derived from.
type StockOnHandRow struct {
	ProductID      int64           `json:"product_id"`
	Name           string          `json:"name"`
	Unit           string          `json:"unit"`
	AvailableStock decimal.Decimal `json:"available_stock"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	StockValue     decimal.Decimal `json:"stock_value"`
	ReorderPoint   *int64          `json:"reorder_point,omitempty"`
}

// DeadStockItem is a product holding stock with no sale in the window.
type DeadStockItem struct {
	ProductID      int64           `json:"product_id"`
	Name           string          `json:"name"`
	AvailableStock decimal.Decimal `json:"available_stock"`
	LastSaleDate   *time.Time      `json:"last_sale_date,omitempty"`
}

// BestSeller names the product with the highest sold quantity in a window.
type BestSeller struct {
	ProductID    int64           `json:"product_id"`
	Name         string          `json:"name"`
	QuantitySold decimal.Decimal `json:"quantity_sold"`
}

// KPISummary is the dashboard headline block for the current month.
type KPISummary struct {
	TotalProducts   int             `json:"total_products"`
	TotalStockValue decimal.Decimal `json:"total_stock_value"`
	LowStockCount   int             `json:"low_stock_count"`
	TodaySales      decimal.Decimal `json:"today_sales"`
	MonthPurchases  decimal.Decimal `json:"month_purchases"`
	MonthSales      decimal.Decimal `json:"month_sales"`
	MonthMovements  int             `json:"month_movements"`
	BestSeller      *BestSeller     `json:"best_selling_product,omitempty"`
}

// StockReportRow is one product's movement summary inside a date window.
type StockReportRow struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Opening   decimal.Decimal `json:"opening"`
	Purchased decimal.Decimal `json:"purchased"`
	Sold      decimal.Decimal `json:"sold"`
	Closing   decimal.Decimal `json:"closing"`
}

// MonthlyReport is the full monthly stock and order summary.
type MonthlyReport struct {
	Year          int              `json:"year"`
	Month         int              `json:"month"`
	PurchaseTotal decimal.Decimal  `json:"purchase_total"`
	PurchaseCount int              `json:"purchase_count"`
	SaleTotal     decimal.Decimal  `json:"sale_total"`
	SaleCount     int              `json:"sale_count"`
	Rows          []StockReportRow `json:"rows"`
}

// OrderTotals aggregates order headers inside a window.
type OrderTotals struct {
	PurchaseTotal decimal.Decimal
	PurchaseCount int
	SaleTotal     decimal.Decimal
	SaleCount     int
}
