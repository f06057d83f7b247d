package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ErrProductInUse refuses deleting a product that still has ledger history.
var ErrProductInUse = errors.New("catalog: product has stock movements")

// Service holds product business rules.
type Service struct {
	repo Repository
}

// NewService constructs Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.ErrProductNotFound
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, product Product) (Product, error) {
	return s.repo.Create(ctx, product)
}

func (s *Service) Update(ctx context.Context, id int64, product Product) (Product, error) {
	if id <= 0 {
		return Product{}, shared.ErrProductNotFound
	}
	return s.repo.Update(ctx, id, product)
}

// Delete removes a product. Products with ledger history are immutable
// audit subjects and cannot be deleted.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrProductNotFound
	}
	inUse, err := s.repo.HasLedgerEntries(ctx, id)
	if err != nil {
		return fmt.Errorf("check ledger references: %w", err)
	}
	if inUse {
		return ErrProductInUse
	}
	return s.repo.Delete(ctx, id)
}

// Exists reports whether a product id is known. Order workflows call this
// before holding a transaction open.
func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	return s.repo.Exists(ctx, id)
}

// ReorderPoint returns the low-stock threshold for a product, nil when the
// product opted out.
func (s *Service) ReorderPoint(ctx context.Context, id int64) (*int64, error) {
	product, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return product.ReorderPoint, nil
}
