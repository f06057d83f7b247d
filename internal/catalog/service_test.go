package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryProducts struct {
	mu       sync.Mutex
	products map[int64]Product
	nextID   int64
	ledger   map[int64]bool
}

func newMemoryProducts() *memoryProducts {
	return &memoryProducts{products: map[int64]Product{}, nextID: 1, ledger: map[int64]bool{}}
}

func (m *memoryProducts) List(_ context.Context, filters ListFilters) ([]Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Product{}
	for _, p := range m.products {
		if filters.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filters.Search)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func (m *memoryProducts) Get(_ context.Context, id int64) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return Product{}, shared.ErrProductNotFound
	}
	return p, nil
}

func (m *memoryProducts) Create(_ context.Context, product Product) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	product.ID = m.nextID
	m.nextID++
	product.CreatedAt = time.Now()
	product.UpdatedAt = product.CreatedAt
	m.products[product.ID] = product
	return product, nil
}

func (m *memoryProducts) Update(_ context.Context, id int64, product Product) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return Product{}, shared.ErrProductNotFound
	}
	product.ID = id
	product.UpdatedAt = time.Now()
	m.products[id] = product
	return product, nil
}

func (m *memoryProducts) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return shared.ErrProductNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *memoryProducts) HasLedgerEntries(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger[id], nil
}

func (m *memoryProducts) Exists(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.products[id]
	return ok, nil
}

func TestProductCRUD(t *testing.T) {
	repo := newMemoryProducts()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, Product{Name: "Widget", Unit: "pcs", UnitPrice: decimal.NewFromFloat(9.5)})
	require.NoError(t, err)
	require.Equal(t, int64(1), created.ID)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Widget", got.Name)

	reorder := int64(10)
	updated, err := svc.Update(ctx, created.ID, Product{Name: "Widget Pro", Unit: "pcs", UnitPrice: decimal.NewFromInt(12), ReorderPoint: &reorder})
	require.NoError(t, err)
	require.Equal(t, "Widget Pro", updated.Name)

	point, err := svc.ReorderPoint(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, point)
	require.Equal(t, int64(10), *point)

	require.NoError(t, svc.Delete(ctx, created.ID))
	_, err = svc.Get(ctx, created.ID)
	require.ErrorIs(t, err, shared.ErrProductNotFound)
}

func TestDeleteRefusedWhileLedgerReferences(t *testing.T) {
	repo := newMemoryProducts()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, Product{Name: "Anvil", Unit: "pcs"})
	require.NoError(t, err)
	repo.ledger[created.ID] = true

	err = svc.Delete(ctx, created.ID)
	require.ErrorIs(t, err, ErrProductInUse)

	_, err = svc.Get(ctx, created.ID)
	require.NoError(t, err)
}

func TestGetUnknownProduct(t *testing.T) {
	svc := NewService(newMemoryProducts())
	_, err := svc.Get(context.Background(), 42)
	require.ErrorIs(t, err, shared.ErrProductNotFound)

	exists, err := svc.Exists(context.Background(), 42)
	require.NoError(t, err)
	require.False(t, exists)
}
