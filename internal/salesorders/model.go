// Package salesorders owns sale orders and their stock effects. A sale
// books outbound ledger movements in the same transaction as the order
// rows, so an order that would oversell any line is rejected whole.
package salesorders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale is a sale order header with its lines.
type Sale struct {
	ID            int64           `json:"id"`
	CustomerName  string          `json:"customer_name"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	SaleDate      time.Time       `json:"sale_date"`
	Notes         string          `json:"notes,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []SaleItem      `json:"items"`
}

// SaleItem is one order line, priced at booking time.
type SaleItem struct {
	ID          int64           `json:"id"`
	SaleID      int64           `json:"sale_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// ListRequest narrows sale listings.
type ListRequest struct {
	CustomerName string
	From         *time.Time
	To           *time.Time
	Page         int
	PerPage      int
}
