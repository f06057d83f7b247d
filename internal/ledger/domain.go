// Package ledger owns the append-only stock movement log and the cached
// per-product balances derived from it. Entries are immutable: corrections
// are expressed as new offsetting entries, never edits.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType enumerates supported stock movements.
type TransactionType string

const (
	// TypePurchase is an inbound movement from a purchase order line.
	TypePurchase TransactionType = "purchase"
	// TypeSale is an outbound movement from a sale order line.
	TypeSale TransactionType = "sale"
	// TypePurchaseReturn reverses a purchase movement.
	TypePurchaseReturn TransactionType = "purchase_return"
	// TypeSaleReturn reverses a sale movement.
	TypeSaleReturn TransactionType = "sale_return"
	// TypeAdjustment is a manual correction.
	TypeAdjustment TransactionType = "adjustment"
)

// Valid reports whether the type is one of the known movement kinds.
func (t TransactionType) Valid() bool {
	switch t {
	case TypePurchase, TypeSale, TypePurchaseReturn, TypeSaleReturn, TypeAdjustment:
		return true
	}
	return false
}

// ReversalType returns the movement type used to cancel an entry of this
// type when its originating order is deleted.
func (t TransactionType) ReversalType() TransactionType {
	switch t {
	case TypePurchase:
		return TypePurchaseReturn
	case TypeSale:
		return TypeSaleReturn
	default:
		return TypeAdjustment
	}
}

// Entry is one immutable stock movement. Quantity is a signed delta:
// positive increases stock, negative decreases it. TransactionDate is the
// calendar date the movement is attributed to and drives balance ordering;
// CreatedAt records wall-clock insertion for audit and tiebreaks only.
type Entry struct {
	ID              int64           `json:"id"`
	ProductID       int64           `json:"product_id"`
	Type            TransactionType `json:"transaction_type"`
	Quantity        decimal.Decimal `json:"quantity"`
	ReferenceID     *int64          `json:"reference_id,omitempty"`
	ReferenceType   string          `json:"reference_type"`
	AuditCode       string          `json:"audit_code"`
	Notes           string          `json:"notes,omitempty"`
	TransactionDate time.Time       `json:"transaction_date"`
	CreatedAt       time.Time       `json:"created_at"`
}

// QuantityIn returns the inbound magnitude of the movement, zero for
// outbound entries. Together with QuantityOut it presents the two-column
// form some consumers expect without storing it.
func (e Entry) QuantityIn() decimal.Decimal {
	if e.Quantity.IsPositive() {
		return e.Quantity
	}
	return decimal.Zero
}

// QuantityOut returns the outbound magnitude of the movement.
func (e Entry) QuantityOut() decimal.Decimal {
	if e.Quantity.IsNegative() {
		return e.Quantity.Neg()
	}
	return decimal.Zero
}

// Snapshot is the cached current balance for one product. It is a
// materialized view of the entry log, reconstructible by replay.
type Snapshot struct {
	ProductID      int64           `json:"product_id"`
	AvailableStock decimal.Decimal `json:"available_stock"`
	LastUpdated    time.Time       `json:"last_updated"`
}

// MovementInput describes a movement to record. Sign-to-type
// correspondence (purchases positive, sales negative) is the caller's
// contract; the engine enforces only the non-negative balance invariant.
type MovementInput struct {
	ProductID       int64
	Type            TransactionType
	Quantity        decimal.Decimal
	ReferenceID     *int64
	ReferenceType   string
	Notes           string
	TransactionDate time.Time
}

// Posted is the result of recording a movement.
type Posted struct {
	Entry   Entry           `json:"entry"`
	Balance decimal.Decimal `json:"balance"`
}

// Filter selects movements for listing, most recent first.
type Filter struct {
	ProductID *int64
	Limit     int
	Offset    int
}

// ReportRow is the windowed stock summary for one product. Closing here is
// the display reconstruction opening + purchased − sold; it ignores returns
// and adjustments inside the window. Exact period-end balances come from
// ClosingStock.
type ReportRow struct {
	ProductID int64           `json:"product_id"`
	Opening   decimal.Decimal `json:"opening"`
	Purchased decimal.Decimal `json:"purchased"`
	Sold      decimal.Decimal `json:"sold"`
	Closing   decimal.Decimal `json:"closing"`
}

// Sentinel errors.
var (
	// ErrInsufficientStock rejects movements that would drive a balance
	// negative. It is semantic, not transient: callers must not retry.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrIntegrity reports a snapshot that diverged from the ledger replay.
	ErrIntegrity = errors.New("snapshot diverged from ledger")
	// ErrInvalidQuantity indicates a zero movement quantity.
	ErrInvalidQuantity = errors.New("ledger: quantity must be non zero")
	// ErrInvalidType indicates an unknown transaction type.
	ErrInvalidType = errors.New("ledger: unknown transaction type")
	// ErrSnapshotNotFound indicates a missing snapshot row.
	ErrSnapshotNotFound = errors.New("ledger: snapshot not found")
)

// InsufficientStockError carries the detail callers surface to users:
// which product, how much was available, how much was requested.
type InsufficientStockError struct {
	ProductID int64
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available %s, requested %s",
		e.ProductID, e.Available.String(), e.Requested.String())
}

// Unwrap lets errors.Is match ErrInsufficientStock.
func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// IntegrityError reports snapshot/replay divergence found by reconciliation.
type IntegrityError struct {
	ProductID int64
	Snapshot  decimal.Decimal
	Replayed  decimal.Decimal
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation for product %d: snapshot %s, ledger replay %s",
		e.ProductID, e.Snapshot.String(), e.Replayed.String())
}

// Unwrap lets errors.Is match ErrIntegrity.
func (e *IntegrityError) Unwrap() error { return ErrIntegrity }
