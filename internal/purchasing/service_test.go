package purchasing

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/catalog"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ledgerState is an in-memory ledger.TxRepository shared with the order
// fake so movements and order rows stage together.
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

type store struct {
	purchases map[int64]Purchase
	nextID    int64
	ledger    *ledgerState
}

func newStore() *store {
	return &store{purchases: map[int64]Purchase{}, nextID: 1, ledger: newLedgerState()}
}

func (s *store) clone() *store {
	out := &store{purchases: map[int64]Purchase{}, nextID: s.nextID, ledger: s.ledger.clone()}
	for k, v := range s.purchases {
		v.Items = append([]PurchaseItem{}, v.Items...)
		out.purchases[k] = v
	}
	return out
}

func (s *store) create(p Purchase) int64 {
	p.ID = s.nextID
	s.nextID++
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	s.purchases[p.ID] = p
	return p.ID
}

func (s *store) get(id int64) (*Purchase, error) {
	p, ok := s.purchases[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.Items = append([]PurchaseItem{}, p.Items...)
	return &p, nil
}

type fakeRepo struct {
	mu    sync.Mutex
	store *store
}

func newFakeRepo() *fakeRepo { return &fakeRepo{store: newStore()} }

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	staged := f.store.clone()
	if err := fn(ctx, &txRepo{store: staged}); err != nil {
		return err
	}
	f.store = staged
	return nil
}

func (f *fakeRepo) Ledger() ledger.TxRepository { panic("outside transaction") }

func (f *fakeRepo) Create(_ context.Context, p Purchase) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store.create(p), nil
}

func (f *fakeRepo) InsertItem(_ context.Context, item PurchaseItem) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return (&txRepo{store: f.store}).insertItem(item)
}

func (f *fakeRepo) Get(_ context.Context, id int64) (*Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store.get(id)
}

func (f *fakeRepo) List(_ context.Context, _ ListRequest) ([]Purchase, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Purchase{}
	for _, p := range f.store.purchases {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (f *fakeRepo) UpdateHeader(_ context.Context, id int64, p Purchase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return (&txRepo{store: f.store}).updateHeader(id, p)
}

func (f *fakeRepo) DeleteItems(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return (&txRepo{store: f.store}).deleteItems(id)
}

func (f *fakeRepo) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return (&txRepo{store: f.store}).deleteHeader(id)
}

type txRepo struct {
	store *store
}

func (t *txRepo) WithTx(context.Context, func(context.Context, Repository) error) error {
	panic("nested transaction")
}

func (t *txRepo) Ledger() ledger.TxRepository { return t.store.ledger }

func (t *txRepo) Create(_ context.Context, p Purchase) (int64, error) {
	return t.store.create(p), nil
}

func (t *txRepo) insertItem(item PurchaseItem) (int64, error) {
	p, ok := t.store.purchases[item.PurchaseID]
	if !ok {
		return 0, ErrNotFound
	}
	item.ID = int64(len(p.Items) + 1)
	p.Items = append(p.Items, item)
	t.store.purchases[item.PurchaseID] = p
	return item.ID, nil
}

func (t *txRepo) InsertItem(_ context.Context, item PurchaseItem) (int64, error) {
	return t.insertItem(item)
}

func (t *txRepo) Get(_ context.Context, id int64) (*Purchase, error) {
	return t.store.get(id)
}

func (t *txRepo) List(context.Context, ListRequest) ([]Purchase, int, error) {
	panic("list inside transaction")
}

func (t *txRepo) updateHeader(id int64, p Purchase) error {
	existing, ok := t.store.purchases[id]
	if !ok {
		return ErrNotFound
	}
	p.ID = id
	p.Items = existing.Items
	p.UpdatedAt = time.Now()
	t.store.purchases[id] = p
	return nil
}

func (t *txRepo) UpdateHeader(_ context.Context, id int64, p Purchase) error {
	return t.updateHeader(id, p)
}

func (t *txRepo) deleteItems(id int64) error {
	p, ok := t.store.purchases[id]
	if !ok {
		return ErrNotFound
	}
	p.Items = nil
	t.store.purchases[id] = p
	return nil
}

func (t *txRepo) DeleteItems(_ context.Context, id int64) error {
	return t.deleteItems(id)
}

func (t *txRepo) deleteHeader(id int64) error {
	if _, ok := t.store.purchases[id]; !ok {
		return ErrNotFound
	}
	delete(t.store.purchases, id)
	return nil
}

func (t *txRepo) Delete(_ context.Context, id int64) error {
	return t.deleteHeader(id)
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

func setup(t *testing.T) (*Service, *fakeRepo, *ledger.Service) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fixed := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	engine := ledger.NewService(nil, logger, ledger.WithClock(func() time.Time { return fixed }))
	repo := newFakeRepo()
	cat := &fakeCatalog{products: map[int64]catalog.Product{
		1: {ID: 1, Name: "Widget", Unit: "pcs", UnitPrice: decimal.NewFromInt(10)},
		2: {ID: 2, Name: "Gadget", Unit: "pcs", UnitPrice: decimal.NewFromInt(25)},
	}}
	svc := NewService(repo, cat, engine, logger)
	svc.now = func() time.Time { return fixed }
	return svc, repo, engine
}

func TestCreatePurchaseBooksMovements(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	purchase, err := svc.Create(ctx, CreatePurchaseRequest{
		VendorName:   "Acme Supply",
		PurchaseDate: "2026-04-01",
		Items: []PurchaseItemReq{
			{ProductID: 1, Quantity: decimal.NewFromInt(100)},
			{ProductID: 2, Quantity: decimal.NewFromInt(4), UnitPrice: decimal.NewFromInt(20)},
		},
	})
	require.NoError(t, err)
	require.Len(t, purchase.Items, 2)
	// 100*10 from the catalog price plus 4*20 from the override.
	require.True(t, purchase.TotalAmount.Equal(decimal.NewFromInt(1080)))
	require.Equal(t, "Widget", purchase.Items[0].ProductName)

	state := repo.store.ledger
	require.Len(t, state.entries, 2)
	require.Equal(t, ledger.TypePurchase, state.entries[0].Type)
	require.NotNil(t, state.entries[0].ReferenceID)
	require.Equal(t, purchase.ID, *state.entries[0].ReferenceID)
	require.True(t, state.snapshots[1].Equal(decimal.NewFromInt(100)))
	require.True(t, state.snapshots[2].Equal(decimal.NewFromInt(4)))
}

func TestCreatePurchaseUnknownProduct(t *testing.T) {
	svc, repo, _ := setup(t)

	_, err := svc.Create(context.Background(), CreatePurchaseRequest{
		VendorName: "Acme Supply",
		Items:      []PurchaseItemReq{{ProductID: 99, Quantity: decimal.NewFromInt(1)}},
	})
	require.ErrorIs(t, err, shared.ErrProductNotFound)
	require.Empty(t, repo.store.purchases)
	require.Empty(t, repo.store.ledger.entries)
}

func TestCreatePurchaseRejectsNonPositiveQuantity(t *testing.T) {
	svc, _, _ := setup(t)

	_, err := svc.Create(context.Background(), CreatePurchaseRequest{
		VendorName: "Acme Supply",
		Items:      []PurchaseItemReq{{ProductID: 1, Quantity: decimal.NewFromInt(-3)}},
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestDeletePurchaseWritesReversals(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	purchase, err := svc.Create(ctx, CreatePurchaseRequest{
		VendorName:   "Acme Supply",
		PurchaseDate: "2026-04-01",
		Items:        []PurchaseItemReq{{ProductID: 1, Quantity: decimal.NewFromInt(50)}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, purchase.ID))

	_, err = svc.Get(ctx, purchase.ID)
	require.ErrorIs(t, err, ErrNotFound)

	state := repo.store.ledger
	require.Len(t, state.entries, 2)
	require.Equal(t, ledger.TypePurchase, state.entries[0].Type)
	require.Equal(t, ledger.TypePurchaseReturn, state.entries[1].Type)
	require.True(t, state.entries[1].Quantity.Equal(decimal.NewFromInt(-50)))
	// Reversal is dated at deletion time, not the original purchase date.
	require.Equal(t, time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC), state.entries[1].TransactionDate)
	require.True(t, state.snapshots[1].IsZero())
}

func TestDeletePurchaseBlockedWhenStockSoldOn(t *testing.T) {
	svc, repo, engine := setup(t)
	ctx := context.Background()

	purchase, err := svc.Create(ctx, CreatePurchaseRequest{
		VendorName:   "Acme Supply",
		PurchaseDate: "2026-04-01",
		Items:        []PurchaseItemReq{{ProductID: 1, Quantity: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)

	// Sell most of the received stock so the reversal would go negative.
	saleID := int64(77)
	_, err = engine.Apply(ctx, repo.store.ledger, ledger.MovementInput{
		ProductID: 1, Type: ledger.TypeSale, Quantity: decimal.NewFromInt(-8),
		ReferenceID: &saleID, ReferenceType: "sale",
		TransactionDate: time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	err = svc.Delete(ctx, purchase.ID)
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)

	// The rejected deletion left everything in place.
	_, err = svc.Get(ctx, purchase.ID)
	require.NoError(t, err)
	require.Len(t, repo.store.ledger.entries, 2)
	require.True(t, repo.store.ledger.snapshots[1].Equal(decimal.NewFromInt(2)))
}

func TestUpdatePurchaseReversesAndReapplies(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	purchase, err := svc.Create(ctx, CreatePurchaseRequest{
		VendorName:   "Acme Supply",
		PurchaseDate: "2026-04-01",
		Items:        []PurchaseItemReq{{ProductID: 1, Quantity: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, purchase.ID, CreatePurchaseRequest{
		VendorName:   "Acme Supply",
		PurchaseDate: "2026-04-02",
		Items:        []PurchaseItemReq{{ProductID: 1, Quantity: decimal.NewFromInt(4)}},
	})
	require.NoError(t, err)
	require.Len(t, updated.Items, 1)
	require.True(t, updated.Items[0].Quantity.Equal(decimal.NewFromInt(4)))

	state := repo.store.ledger
	// Original, its reversal, and the reapplied line.
	require.Len(t, state.entries, 3)
	require.Equal(t, ledger.TypePurchaseReturn, state.entries[1].Type)
	require.True(t, state.snapshots[1].Equal(decimal.NewFromInt(4)))
}

func TestDeleteAmendedPurchaseRestoresPreOrderBalance(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	purchase, err := svc.Create(ctx, CreatePurchaseRequest{
		VendorName:   "Acme Supply",
		PurchaseDate: "2026-04-01",
		Items:        []PurchaseItemReq{{ProductID: 1, Quantity: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)

	_, err = svc.Update(ctx, purchase.ID, CreatePurchaseRequest{
		VendorName:   "Acme Supply",
		PurchaseDate: "2026-04-02",
		Items:        []PurchaseItemReq{{ProductID: 1, Quantity: decimal.NewFromInt(4)}},
	})
	require.NoError(t, err)
	require.True(t, repo.store.ledger.snapshots[1].Equal(decimal.NewFromInt(4)))

	// Deleting the amended order unwinds only its remaining contribution.
	require.NoError(t, svc.Delete(ctx, purchase.ID))

	state := repo.store.ledger
	require.True(t, state.snapshots[1].IsZero())
	require.Len(t, state.entries, 4)
	require.Equal(t, ledger.TypePurchaseReturn, state.entries[3].Type)
	require.True(t, state.entries[3].Quantity.Equal(decimal.NewFromInt(-4)))
}
