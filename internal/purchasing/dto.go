package purchasing

import "github.com/shopspring/decimal"

// CreatePurchaseRequest is the booking payload. The same shape serves
// updates, which replace the order wholesale.
type CreatePurchaseRequest struct {
	VendorName    string            `json:"vendor_name" validate:"required,max=200"`
	InvoiceNumber string            `json:"invoice_number" validate:"max=100"`
	PurchaseDate  string            `json:"purchase_date" validate:"omitempty,datetime=2006-01-02"`
	Notes         string            `json:"notes" validate:"max=1000"`
	Items         []PurchaseItemReq `json:"items" validate:"required,min=1,dive"`
}

// PurchaseItemReq is one requested order line.
type PurchaseItemReq struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
