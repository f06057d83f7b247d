package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RejectionCounter receives a tick for every movement refused by the
// non-negative balance guard.
type RejectionCounter interface {
	CountStockRejection()
}

// Invalidator is notified after a committed write so derived read models
// can drop stale state.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Service implements the stock ledger engine: append-only movement
// recording under the non-negative balance invariant, balance queries at a
// date, and snapshot reconciliation.
type Service struct {
	repo        RepositoryPort
	logger      *slog.Logger
	now         func() time.Time
	rejections  RejectionCounter
	invalidator Invalidator
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRejectionCounter wires the insufficient-stock metric.
func WithRejectionCounter(c RejectionCounter) Option {
	return func(s *Service) { s.rejections = c }
}

// WithInvalidator wires report cache invalidation on writes.
func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) { s.invalidator = inv }
}

// SetInvalidator wires report cache invalidation after construction. The
// reporting service both reads the engine and invalidates on its writes,
// so one of the two references has to be set late.
func (s *Service) SetInvalidator(inv Invalidator) { s.invalidator = inv }

// NewService constructs Service.
func NewService(repo RepositoryPort, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply records one movement inside the caller's transaction. It locks the
// product's snapshot row, enforces the non-negative balance invariant,
// appends the entry and rewrites the snapshot. Order workflows call this
// directly so header, lines and movements commit or roll back together.
func (s *Service) Apply(ctx context.Context, tx TxRepository, input MovementInput) (Posted, error) {
	if !input.Type.Valid() {
		return Posted{}, fmt.Errorf("%w: %q", ErrInvalidType, input.Type)
	}
	if input.Quantity.IsZero() {
		return Posted{}, ErrInvalidQuantity
	}

	balance, err := tx.SnapshotForUpdate(ctx, input.ProductID)
	if err != nil {
		if !errors.Is(err, ErrSnapshotNotFound) {
			return Posted{}, fmt.Errorf("lock snapshot: %w", err)
		}
		balance = decimal.Zero
	}

	next := balance.Add(input.Quantity)
	if next.IsNegative() {
		if s.rejections != nil {
			s.rejections.CountStockRejection()
		}
		return Posted{}, &InsufficientStockError{
			ProductID: input.ProductID,
			Available: balance,
			Requested: input.Quantity.Neg(),
		}
	}

	txDate := input.TransactionDate
	if txDate.IsZero() {
		txDate = s.now()
	}
	entry := Entry{
		ProductID:       input.ProductID,
		Type:            input.Type,
		Quantity:        input.Quantity,
		ReferenceID:     input.ReferenceID,
		ReferenceType:   input.ReferenceType,
		AuditCode:       uuid.NewString(),
		Notes:           input.Notes,
		TransactionDate: shared.DateOnly(txDate),
	}
	entry, err = tx.InsertEntry(ctx, entry)
	if err != nil {
		return Posted{}, fmt.Errorf("insert entry: %w", err)
	}
	if err := tx.UpsertSnapshot(ctx, input.ProductID, next); err != nil {
		return Posted{}, fmt.Errorf("update snapshot: %w", err)
	}
	return Posted{Entry: entry, Balance: next}, nil
}

// Reverse offsets the reference's net stock contribution, dated now. The
// originals stay in the log. The net sums every entry under the reference,
// reversals included, so a reference that was already amended (reversed and
// rebooked) is unwound by exactly what it still holds.
func (s *Service) Reverse(ctx context.Context, tx TxRepository, referenceType string, referenceID int64, notes string) error {
	entries, err := tx.EntriesByReference(ctx, referenceType, referenceID)
	if err != nil {
		return fmt.Errorf("load entries for reversal: %w", err)
	}

	type contribution struct {
		net  decimal.Decimal
		base TransactionType
	}
	order := make([]int64, 0, len(entries))
	byProduct := make(map[int64]*contribution)
	for _, entry := range entries {
		c, ok := byProduct[entry.ProductID]
		if !ok {
			c = &contribution{net: decimal.Zero}
			byProduct[entry.ProductID] = c
			order = append(order, entry.ProductID)
		}
		c.net = c.net.Add(entry.Quantity)
		if c.base == "" && entry.Type != TypePurchaseReturn && entry.Type != TypeSaleReturn {
			c.base = entry.Type
		}
	}

	refID := referenceID
	for _, productID := range order {
		c := byProduct[productID]
		if c.net.IsZero() || c.base == "" {
			continue
		}
		_, err := s.Apply(ctx, tx, MovementInput{
			ProductID:       productID,
			Type:            c.base.ReversalType(),
			Quantity:        c.net.Neg(),
			ReferenceID:     &refID,
			ReferenceType:   referenceType,
			Notes:           notes,
			TransactionDate: s.now(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// RecordMovement records a standalone movement, typically a manual
// adjustment, in its own transaction.
func (s *Service) RecordMovement(ctx context.Context, input MovementInput) (Posted, error) {
	var posted Posted
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		posted, err = s.Apply(ctx, tx, input)
		return err
	})
	if err != nil {
		return Posted{}, err
	}
	s.afterWrite(ctx)
	s.logger.Info("stock movement recorded",
		"product_id", posted.Entry.ProductID,
		"type", string(posted.Entry.Type),
		"quantity", posted.Entry.Quantity.String(),
		"balance", posted.Balance.String())
	return posted, nil
}

// AfterWrite lets composing workflows trigger the same post-commit
// invalidation RecordMovement performs.
func (s *Service) AfterWrite(ctx context.Context) { s.afterWrite(ctx) }

func (s *Service) afterWrite(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
}

// CurrentBalance returns the cached balance for a product. A product with
// no movements has balance zero.
func (s *Service) CurrentBalance(ctx context.Context, productID int64) (Snapshot, error) {
	snap, err := s.repo.GetSnapshot(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			return Snapshot{ProductID: productID, AvailableStock: decimal.Zero}, nil
		}
		return Snapshot{}, err
	}
	return snap, nil
}

// ListBalances returns every cached snapshot.
func (s *Service) ListBalances(ctx context.Context) ([]Snapshot, error) {
	return s.repo.ListSnapshots(ctx)
}

// StockLevels returns snapshots joined with product details.
func (s *Service) StockLevels(ctx context.Context) ([]StockLevel, error) {
	return s.repo.StockLevels(ctx)
}

// BalanceAsOf replays the ledger up to the cutoff date, excluding or
// including movements dated on the cutoff itself. It never consults the
// snapshot, so it is exact for historical dates.
func (s *Service) BalanceAsOf(ctx context.Context, productID int64, cutoff time.Time, inclusive bool) (decimal.Decimal, error) {
	return s.repo.SumDeltas(ctx, productID, shared.DateOnly(cutoff), inclusive)
}

// OpeningStock is the balance before any movement dated on the given day.
func (s *Service) OpeningStock(ctx context.Context, productID int64, date time.Time) (decimal.Decimal, error) {
	return s.BalanceAsOf(ctx, productID, date, false)
}

// ClosingStock is the balance including every movement dated on the given day.
func (s *Service) ClosingStock(ctx context.Context, productID int64, date time.Time) (decimal.Decimal, error) {
	return s.BalanceAsOf(ctx, productID, date, true)
}

// StockReport summarises movements per product for a date window: opening
// balance, purchased and sold magnitudes, and the display closing
// opening + purchased − sold.
func (s *Service) StockReport(ctx context.Context, productID *int64, from, to time.Time) ([]ReportRow, error) {
	from = shared.DateOnly(from)
	to = shared.DateOnly(to)
	sums, err := s.repo.WindowTypeSums(ctx, productID, from, to)
	if err != nil {
		return nil, err
	}
	if len(sums) == 0 && productID != nil {
		sums = []WindowSums{{ProductID: *productID, Purchased: decimal.Zero, Sold: decimal.Zero}}
	}
	rows := make([]ReportRow, 0, len(sums))
	for _, sum := range sums {
		opening, err := s.repo.SumDeltas(ctx, sum.ProductID, from, false)
		if err != nil {
			return nil, err
		}
		rows = append(rows, ReportRow{
			ProductID: sum.ProductID,
			Opening:   opening,
			Purchased: sum.Purchased,
			Sold:      sum.Sold,
			Closing:   opening.Add(sum.Purchased).Sub(sum.Sold),
		})
	}
	return rows, nil
}

// ListMovements returns entries most recent first.
func (s *Service) ListMovements(ctx context.Context, filter Filter) ([]Entry, error) {
	return s.repo.ListEntries(ctx, filter)
}

// ReconcileProduct compares the cached snapshot against a full ledger
// replay. A nil violation means the product is consistent. With repair set
// the snapshot is rewritten from the replay, treating the ledger as
// authoritative.
func (s *Service) ReconcileProduct(ctx context.Context, productID int64, repair bool) (*IntegrityError, error) {
	replayed, err := s.repo.ReplaySum(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("replay product %d: %w", productID, err)
	}
	snap, err := s.repo.GetSnapshot(ctx, productID)
	if err != nil && !errors.Is(err, ErrSnapshotNotFound) {
		return nil, err
	}
	if snap.AvailableStock.Equal(replayed) {
		return nil, nil
	}
	violation := &IntegrityError{
		ProductID: productID,
		Snapshot:  snap.AvailableStock,
		Replayed:  replayed,
	}
	s.logger.Error("stock snapshot diverged from ledger",
		"product_id", productID,
		"snapshot", snap.AvailableStock.String(),
		"replayed", replayed.String(),
		"repair", repair)
	if repair {
		if err := s.repo.ForceSnapshot(ctx, productID, replayed); err != nil {
			return violation, fmt.Errorf("repair snapshot for product %d: %w", productID, err)
		}
	}
	return violation, nil
}

// ReconcileAll sweeps every known product and returns the violations found.
func (s *Service) ReconcileAll(ctx context.Context, repair bool) ([]IntegrityError, error) {
	ids, err := s.repo.ProductIDs(ctx)
	if err != nil {
		return nil, err
	}
	violations := []IntegrityError{}
	for _, id := range ids {
		violation, err := s.ReconcileProduct(ctx, id, repair)
		if err != nil {
			return violations, err
		}
		if violation != nil {
			violations = append(violations, *violation)
		}
	}
	if repair && len(violations) > 0 {
		s.afterWrite(ctx)
	}
	return violations, nil
}
