package salesorders

import "github.com/shopspring/decimal"

// CreateSaleRequest is the booking payload.
type CreateSaleRequest struct {
	CustomerName  string        `json:"customer_name" validate:"required,max=200"`
	InvoiceNumber string        `json:"invoice_number" validate:"max=100"`
	SaleDate      string        `json:"sale_date" validate:"omitempty,datetime=2006-01-02"`
	Notes         string        `json:"notes" validate:"max=1000"`
	Items         []SaleItemReq `json:"items" validate:"required,min=1,dive"`
}

// SaleItemReq is one requested order line. Quantity is the amount sold,
// always positive; the ledger entry it produces carries the negative delta.
type SaleItemReq struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
