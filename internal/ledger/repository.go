package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// RepositoryPort abstracts persistence for the service. The balance
// algorithm lives in the service; a second storage substrate only needs to
// implement this interface.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSnapshot(ctx context.Context, productID int64) (Snapshot, error)
	ListSnapshots(ctx context.Context) ([]Snapshot, error)
	SumDeltas(ctx context.Context, productID int64, cutoff time.Time, inclusive bool) (decimal.Decimal, error)
	ReplaySum(ctx context.Context, productID int64) (decimal.Decimal, error)
	ListEntries(ctx context.Context, filter Filter) ([]Entry, error)
	WindowTypeSums(ctx context.Context, productID *int64, from, to time.Time) ([]WindowSums, error)
	ProductIDs(ctx context.Context) ([]int64, error)
	ForceSnapshot(ctx context.Context, productID int64, balance decimal.Decimal) error
	StockLevels(ctx context.Context) ([]StockLevel, error)
}

// StockLevel is a snapshot joined with its product row for display.
type StockLevel struct {
	ProductID      int64           `json:"product_id"`
	Name           string          `json:"name"`
	Unit           string          `json:"unit"`
	AvailableStock decimal.Decimal `json:"available_stock"`
	ReorderPoint   *int64          `json:"reorder_point,omitempty"`
	LastUpdated    time.Time       `json:"last_updated"`
}

// TxRepository exposes the operations that must share one transaction:
// recording a movement and reading the entries an order deletion reverses.
type TxRepository interface {
	InsertEntry(ctx context.Context, entry Entry) (Entry, error)
	SnapshotForUpdate(ctx context.Context, productID int64) (decimal.Decimal, error)
	UpsertSnapshot(ctx context.Context, productID int64, balance decimal.Decimal) error
	EntriesByReference(ctx context.Context, referenceType string, referenceID int64) ([]Entry, error)
}

// WindowSums aggregates purchase and sale magnitudes for one product inside
// a date window.
type WindowSums struct {
	ProductID int64
	Purchased decimal.Decimal
	Sold      decimal.Decimal
}

// Repository persists the ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction,
// retrying serialization losers per the platform policy.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger: repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// NewTxRepository binds the transactional ledger operations to an existing
// pgx transaction so order workflows can compose movements with their own
// writes.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertEntry(ctx context.Context, entry Entry) (Entry, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_ledger (product_id, transaction_type, quantity, reference_id, reference_type, audit_code, notes, transaction_date, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id, created_at`,
		entry.ProductID, string(entry.Type), entry.Quantity, entry.ReferenceID,
		entry.ReferenceType, entry.AuditCode, entry.Notes, entry.TransactionDate).
		Scan(&entry.ID, &entry.CreatedAt)
	return entry, err
}

func (r *txRepository) SnapshotForUpdate(ctx context.Context, productID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT available_stock FROM stock_snapshots WHERE product_id=$1 FOR UPDATE`, productID).
		Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrSnapshotNotFound
		}
		return decimal.Zero, err
	}
	return balance, nil
}

func (r *txRepository) UpsertSnapshot(ctx context.Context, productID int64, balance decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_snapshots (product_id, available_stock, last_updated)
VALUES ($1,$2,NOW())
ON CONFLICT (product_id) DO UPDATE SET available_stock=EXCLUDED.available_stock, last_updated=NOW()`,
		productID, balance)
	return err
}

func (r *txRepository) EntriesByReference(ctx context.Context, referenceType string, referenceID int64) ([]Entry, error) {
	rows, err := r.tx.Query(ctx, selectEntry+`
WHERE reference_type=$1 AND reference_id=$2
ORDER BY id ASC`, referenceType, referenceID)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

const selectEntry = `SELECT id, product_id, transaction_type, quantity, reference_id, reference_type, audit_code, notes, transaction_date, created_at
FROM stock_ledger`

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		var entry Entry
		var txType string
		if err := rows.Scan(&entry.ID, &entry.ProductID, &txType, &entry.Quantity,
			&entry.ReferenceID, &entry.ReferenceType, &entry.AuditCode, &entry.Notes,
			&entry.TransactionDate, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Type = TransactionType(txType)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *Repository) GetSnapshot(ctx context.Context, productID int64) (Snapshot, error) {
	var snap Snapshot
	err := r.pool.QueryRow(ctx, `SELECT product_id, available_stock, last_updated FROM stock_snapshots WHERE product_id=$1`, productID).
		Scan(&snap.ProductID, &snap.AvailableStock, &snap.LastUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{ProductID: productID}, ErrSnapshotNotFound
		}
		return Snapshot{}, err
	}
	return snap, nil
}

func (r *Repository) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, available_stock, last_updated FROM stock_snapshots ORDER BY product_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	snaps := []Snapshot{}
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ProductID, &snap.AvailableStock, &snap.LastUpdated); err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// SumDeltas totals signed quantities up to the cutoff date, exclusive or
// inclusive. This linear range-sum is the correctness baseline; the
// (product_id, transaction_date, id) index keeps it viable.
func (r *Repository) SumDeltas(ctx context.Context, productID int64, cutoff time.Time, inclusive bool) (decimal.Decimal, error) {
	op := "<"
	if inclusive {
		op = "<="
	}
	var sum decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(quantity),0) FROM stock_ledger
WHERE product_id=$1 AND transaction_date `+op+` $2`, productID, cutoff).Scan(&sum)
	return sum, err
}

// ReplaySum totals every entry for the product, the ground truth the
// snapshot must match.
func (r *Repository) ReplaySum(ctx context.Context, productID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(quantity),0) FROM stock_ledger WHERE product_id=$1`, productID).Scan(&sum)
	return sum, err
}

func (r *Repository) ListEntries(ctx context.Context, filter Filter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if filter.ProductID != nil {
		rows, err := r.pool.Query(ctx, selectEntry+`
WHERE product_id=$1
ORDER BY transaction_date DESC, id DESC
LIMIT $2 OFFSET $3`, *filter.ProductID, limit, offset)
		if err != nil {
			return nil, err
		}
		return scanEntries(rows)
	}
	rows, err := r.pool.Query(ctx, selectEntry+`
ORDER BY transaction_date DESC, id DESC
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (r *Repository) WindowTypeSums(ctx context.Context, productID *int64, from, to time.Time) ([]WindowSums, error) {
	query := `SELECT product_id,
COALESCE(SUM(CASE WHEN transaction_type=$1 THEN quantity ELSE 0 END),0),
COALESCE(SUM(CASE WHEN transaction_type=$2 THEN -quantity ELSE 0 END),0)
FROM stock_ledger
WHERE transaction_date BETWEEN $3 AND $4`
	args := []any{string(TypePurchase), string(TypeSale), from, to}
	if productID != nil {
		query += ` AND product_id=$5`
		args = append(args, *productID)
	}
	query += ` GROUP BY product_id ORDER BY product_id ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sums := []WindowSums{}
	for rows.Next() {
		var s WindowSums
		if err := rows.Scan(&s.ProductID, &s.Purchased, &s.Sold); err != nil {
			return nil, err
		}
		sums = append(sums, s)
	}
	return sums, rows.Err()
}

// ProductIDs lists every product that appears in the ledger or snapshot
// table, for reconciliation sweeps.
func (r *Repository) ProductIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT product_id FROM stock_ledger
UNION
SELECT product_id FROM stock_snapshots
ORDER BY product_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// StockLevels joins snapshots with product rows for the stock listing.
func (r *Repository) StockLevels(ctx context.Context) ([]StockLevel, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.product_id, COALESCE(p.name,''), COALESCE(p.unit,''), s.available_stock, p.reorder_point, s.last_updated
FROM stock_snapshots s
LEFT JOIN products p ON p.id = s.product_id
ORDER BY s.product_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	levels := []StockLevel{}
	for rows.Next() {
		var level StockLevel
		if err := rows.Scan(&level.ProductID, &level.Name, &level.Unit,
			&level.AvailableStock, &level.ReorderPoint, &level.LastUpdated); err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, rows.Err()
}

// ForceSnapshot rewrites the cached balance from a replay result during
// reconciliation repair.
func (r *Repository) ForceSnapshot(ctx context.Context, productID int64, balance decimal.Decimal) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO stock_snapshots (product_id, available_stock, last_updated)
VALUES ($1,$2,NOW())
ON CONFLICT (product_id) DO UPDATE SET available_stock=EXCLUDED.available_stock, last_updated=NOW()`,
		productID, balance)
	return err
}
