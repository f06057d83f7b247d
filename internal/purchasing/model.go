// Package purchasing owns purchase orders and their stock effects. Creating
// a purchase books inbound ledger movements in the same transaction as the
// order rows.
package purchasing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Purchase is a purchase order header with its lines.
type Purchase struct {
	ID            int64           `json:"id"`
	VendorName    string          `json:"vendor_name"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	PurchaseDate  time.Time       `json:"purchase_date"`
	Notes         string          `json:"notes,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []PurchaseItem  `json:"items"`
}

// PurchaseItem is one order line. ProductName is denormalized at booking
// time so history survives later catalog edits.
type PurchaseItem struct {
	ID          int64           `json:"id"`
	PurchaseID  int64           `json:"purchase_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// ListRequest narrows purchase listings.
type ListRequest struct {
	VendorName string
	From       *time.Time
	To         *time.Time
	Page       int
	PerPage    int
}
