package salesorders

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/catalog"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type ledgerState struct {
	entries   []ledger.Entry
	snapshots map[int64]decimal.Decimal
	nextID    int64
}

func newLedgerState() *ledgerState {
	return &ledgerState{snapshots: map[int64]decimal.Decimal{}, nextID: 1}
}

func (l *ledgerState) clone() *ledgerState {
	out := &ledgerState{
		entries:   append([]ledger.Entry{}, l.entries...),
		snapshots: map[int64]decimal.Decimal{},
		nextID:    l.nextID,
	}
	for k, v := range l.snapshots {
		out.snapshots[k] = v
	}
	return out
}

// snapshotReader serves the balance pre-check outside a transaction. Only
// GetSnapshot is ever called on it.
type snapshotReader struct {
	ledger.RepositoryPort
	repo *fakeRepo
}

func (r snapshotReader) GetSnapshot(_ context.Context, productID int64) (ledger.Snapshot, error) {
	r.repo.mu.Lock()
	defer r.repo.mu.Unlock()
	bal, ok := r.repo.ledger.snapshots[productID]
	if !ok {
		return ledger.Snapshot{}, ledger.ErrSnapshotNotFound
	}
	return ledger.Snapshot{ProductID: productID, AvailableStock: bal}, nil
}

func (l *ledgerState) InsertEntry(_ context.Context, entry ledger.Entry) (ledger.Entry, error) {
	entry.ID = l.nextID
	l.nextID++
	entry.CreatedAt = time.Now()
	l.entries = append(l.entries, entry)
	return entry, nil
}

func (l *ledgerState) SnapshotForUpdate(_ context.Context, productID int64) (decimal.Decimal, error) {
	balance, ok := l.snapshots[productID]
	if !ok {
		return decimal.Zero, ledger.ErrSnapshotNotFound
	}
	return balance, nil
}

func (l *ledgerState) UpsertSnapshot(_ context.Context, productID int64, balance decimal.Decimal) error {
	l.snapshots[productID] = balance
	return nil
}

func (l *ledgerState) EntriesByReference(_ context.Context, referenceType string, referenceID int64) ([]ledger.Entry, error) {
	out := []ledger.Entry{}
	for _, entry := range l.entries {
		if entry.ReferenceType == referenceType && entry.ReferenceID != nil && *entry.ReferenceID == referenceID {
			out = append(out, entry)
		}
	}
	return out, nil
}

type fakeRepo struct {
	mu     sync.Mutex
	sales  map[int64]Sale
	nextID int64
	ledger *ledgerState
	inTx   bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{sales: map[int64]Sale{}, nextID: 1, ledger: newLedgerState()}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	staged := &fakeRepo{sales: map[int64]Sale{}, nextID: f.nextID, ledger: f.ledger.clone(), inTx: true}
	for k, v := range f.sales {
		v.Items = append([]SaleItem{}, v.Items...)
		staged.sales[k] = v
	}
	if err := fn(ctx, staged); err != nil {
		return err
	}
	f.sales = staged.sales
	f.nextID = staged.nextID
	f.ledger = staged.ledger
	return nil
}

func (f *fakeRepo) Ledger() ledger.TxRepository {
	if !f.inTx {
		panic("outside transaction")
	}
	return f.ledger
}

func (f *fakeRepo) Create(_ context.Context, sale Sale) (int64, error) {
	sale.ID = f.nextID
	f.nextID++
	sale.CreatedAt = time.Now()
	sale.UpdatedAt = sale.CreatedAt
	f.sales[sale.ID] = sale
	return sale.ID, nil
}

func (f *fakeRepo) InsertItem(_ context.Context, item SaleItem) (int64, error) {
	sale, ok := f.sales[item.SaleID]
	if !ok {
		return 0, ErrNotFound
	}
	item.ID = int64(len(sale.Items) + 1)
	sale.Items = append(sale.Items, item)
	f.sales[item.SaleID] = sale
	return item.ID, nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (*Sale, error) {
	if !f.inTx {
		f.mu.Lock()
		defer f.mu.Unlock()
	}
	sale, ok := f.sales[id]
	if !ok {
		return nil, ErrNotFound
	}
	sale.Items = append([]SaleItem{}, sale.Items...)
	return &sale, nil
}

func (f *fakeRepo) List(context.Context, ListRequest) ([]Sale, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Sale{}
	for _, sale := range f.sales {
		out = append(out, sale)
	}
	return out, len(out), nil
}

func (f *fakeRepo) DeleteItems(_ context.Context, saleID int64) error {
	sale, ok := f.sales[saleID]
	if !ok {
		return ErrNotFound
	}
	sale.Items = nil
	f.sales[saleID] = sale
	return nil
}

func (f *fakeRepo) Delete(_ context.Context, id int64) error {
	if _, ok := f.sales[id]; !ok {
		return ErrNotFound
	}
	delete(f.sales, id)
	return nil
}

type fakeCatalog struct {
	products map[int64]catalog.Product
}

func (f *fakeCatalog) Get(_ context.Context, id int64) (catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return catalog.Product{}, shared.ErrProductNotFound
	}
	return p, nil
}

func setup(t *testing.T, stock map[int64]int64) (*Service, *fakeRepo) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fixed := time.Date(2026, 5, 20, 14, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	engine := ledger.NewService(snapshotReader{repo: repo}, logger,
		ledger.WithClock(func() time.Time { return fixed }))
	for productID, qty := range stock {
		repo.ledger.snapshots[productID] = decimal.NewFromInt(qty)
	}
	cat := &fakeCatalog{products: map[int64]catalog.Product{
		1: {ID: 1, Name: "Widget", Unit: "pcs", UnitPrice: decimal.NewFromInt(15)},
		2: {ID: 2, Name: "Gadget", Unit: "pcs", UnitPrice: decimal.NewFromInt(40)},
	}}
	svc := NewService(repo, cat, engine, logger)
	svc.now = func() time.Time { return fixed }
	return svc, repo
}

func TestCreateSaleBooksOutboundMovements(t *testing.T) {
	svc, repo := setup(t, map[int64]int64{1: 100, 2: 10})
	ctx := context.Background()

	sale, err := svc.Create(ctx, CreateSaleRequest{
		CustomerName: "Globex",
		SaleDate:     "2026-05-18",
		Items: []SaleItemReq{
			{ProductID: 1, Quantity: decimal.NewFromInt(30)},
			{ProductID: 2, Quantity: decimal.NewFromInt(2)},
		},
	})
	require.NoError(t, err)
	require.Len(t, sale.Items, 2)
	// 30*15 + 2*40 at catalog prices.
	require.True(t, sale.TotalAmount.Equal(decimal.NewFromInt(530)))

	require.Len(t, repo.ledger.entries, 2)
	require.Equal(t, ledger.TypeSale, repo.ledger.entries[0].Type)
	require.True(t, repo.ledger.entries[0].Quantity.Equal(decimal.NewFromInt(-30)))
	require.True(t, repo.ledger.snapshots[1].Equal(decimal.NewFromInt(70)))
	require.True(t, repo.ledger.snapshots[2].Equal(decimal.NewFromInt(8)))
}

func TestCreateSaleRejectsWholeOrderOnInsufficientLine(t *testing.T) {
	svc, repo := setup(t, map[int64]int64{1: 100, 2: 1})
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateSaleRequest{
		CustomerName: "Globex",
		Items: []SaleItemReq{
			{ProductID: 1, Quantity: decimal.NewFromInt(30)},
			{ProductID: 2, Quantity: decimal.NewFromInt(5)},
		},
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
	var detail *ledger.InsufficientStockError
	require.ErrorAs(t, err, &detail)
	require.Equal(t, int64(2), detail.ProductID)
	require.True(t, detail.Available.Equal(decimal.NewFromInt(1)))
	require.True(t, detail.Requested.Equal(decimal.NewFromInt(5)))

	// Even the sufficient first line must not survive.
	require.Empty(t, repo.sales)
	require.Empty(t, repo.ledger.entries)
	require.True(t, repo.ledger.snapshots[1].Equal(decimal.NewFromInt(100)))
}

func TestDeleteSaleRestoresStock(t *testing.T) {
	svc, repo := setup(t, map[int64]int64{1: 50})
	ctx := context.Background()

	sale, err := svc.Create(ctx, CreateSaleRequest{
		CustomerName: "Globex",
		SaleDate:     "2026-05-18",
		Items:        []SaleItemReq{{ProductID: 1, Quantity: decimal.NewFromInt(20)}},
	})
	require.NoError(t, err)
	require.True(t, repo.ledger.snapshots[1].Equal(decimal.NewFromInt(30)))

	require.NoError(t, svc.Delete(ctx, sale.ID))

	_, err = svc.Get(ctx, sale.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.Len(t, repo.ledger.entries, 2)
	require.Equal(t, ledger.TypeSaleReturn, repo.ledger.entries[1].Type)
	require.True(t, repo.ledger.entries[1].Quantity.Equal(decimal.NewFromInt(20)))
	require.Equal(t, time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC), repo.ledger.entries[1].TransactionDate)
	require.True(t, repo.ledger.snapshots[1].Equal(decimal.NewFromInt(50)))
}

func TestDeleteUnknownSale(t *testing.T) {
	svc, _ := setup(t, nil)
	err := svc.Delete(context.Background(), 404)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateSaleUnknownProduct(t *testing.T) {
	svc, repo := setup(t, map[int64]int64{1: 10})
	_, err := svc.Create(context.Background(), CreateSaleRequest{
		CustomerName: "Globex",
		Items:        []SaleItemReq{{ProductID: 9, Quantity: decimal.NewFromInt(1)}},
	})
	require.ErrorIs(t, err, shared.ErrProductNotFound)
	require.Empty(t, repo.sales)
}
