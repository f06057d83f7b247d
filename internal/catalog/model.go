// Package catalog manages the product master data the order workflows and
// reporting read.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog item. ReorderPoint is nil when the product has no
// low-stock threshold.
type Product struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	ReorderPoint *int64          `json:"reorder_point,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ListFilters narrows product listings.
type ListFilters struct {
	Search  string
	Page    int
	PerPage int
}
