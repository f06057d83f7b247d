package catalog

import "github.com/shopspring/decimal"

// ProductForm is the create/update payload.
type ProductForm struct {
	Name         string          `json:"name" validate:"required,max=200"`
	Unit         string          `json:"unit" validate:"required,max=32"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	ReorderPoint *int64          `json:"reorder_point" validate:"omitempty,gte=0"`
}

func (f ProductForm) toProduct() Product {
	return Product{
		Name:         f.Name,
		Unit:         f.Unit,
		UnitPrice:    f.UnitPrice,
		ReorderPoint: f.ReorderPoint,
	}
}
