package purchasing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// ErrNotFound marks a missing purchase.
var ErrNotFound = errors.New("purchase not found")

// Repository persists purchases. Inside WithTx the same Repository value is
// bound to the transaction, and Ledger exposes the stock ledger operations
// on that transaction so order rows and movements commit together.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Ledger() ledger.TxRepository
	Create(ctx context.Context, purchase Purchase) (int64, error)
	InsertItem(ctx context.Context, item PurchaseItem) (int64, error)
	Get(ctx context.Context, id int64) (*Purchase, error)
	List(ctx context.Context, req ListRequest) ([]Purchase, int, error)
	UpdateHeader(ctx context.Context, id int64, purchase Purchase) error
	DeleteItems(ctx context.Context, purchaseID int64) error
	Delete(ctx context.Context, id int64) error
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type repository struct {
	db   dbtx
	tx   pgx.Tx
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed purchase repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, tx: tx, pool: r.pool})
	})
}

func (r *repository) Ledger() ledger.TxRepository {
	if r.tx == nil {
		panic("purchasing: Ledger called outside WithTx")
	}
	return ledger.NewTxRepository(r.tx)
}

func (r *repository) Create(ctx context.Context, purchase Purchase) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO purchases (vendor_name, invoice_number, purchase_date, notes, total_amount, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW(),NOW()) RETURNING id`,
		purchase.VendorName, purchase.InvoiceNumber, purchase.PurchaseDate, purchase.Notes, purchase.TotalAmount).
		Scan(&id)
	return id, err
}

func (r *repository) InsertItem(ctx context.Context, item PurchaseItem) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO purchase_items (purchase_id, product_id, product_name, quantity, unit_price, total_price)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		item.PurchaseID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.TotalPrice).
		Scan(&id)
	return id, err
}

const headerColumns = `id, vendor_name, invoice_number, purchase_date, notes, total_amount, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Purchase, error) {
	var p Purchase
	err := r.db.QueryRow(ctx, `SELECT `+headerColumns+` FROM purchases WHERE id = $1`, id).
		Scan(&p.ID, &p.VendorName, &p.InvoiceNumber, &p.PurchaseDate, &p.Notes, &p.TotalAmount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	items, err := r.items(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Items = items
	return &p, nil
}

func (r *repository) items(ctx context.Context, purchaseID int64) ([]PurchaseItem, error) {
	rows, err := r.db.Query(ctx, `SELECT id, purchase_id, product_id, product_name, quantity, unit_price, total_price
FROM purchase_items WHERE purchase_id = $1 ORDER BY id ASC`, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []PurchaseItem{}
	for rows.Next() {
		var item PurchaseItem
		if err := rows.Scan(&item.ID, &item.PurchaseID, &item.ProductID, &item.ProductName,
			&item.Quantity, &item.UnitPrice, &item.TotalPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *repository) List(ctx context.Context, req ListRequest) ([]Purchase, int, error) {
	conditions := " WHERE 1=1"
	args := []any{}
	if req.VendorName != "" {
		args = append(args, "%"+req.VendorName+"%")
		conditions += fmt.Sprintf(" AND vendor_name ILIKE $%d", len(args))
	}
	if req.From != nil {
		args = append(args, *req.From)
		conditions += fmt.Sprintf(" AND purchase_date >= $%d", len(args))
	}
	if req.To != nil {
		args = append(args, *req.To)
		conditions += fmt.Sprintf(" AND purchase_date <= $%d", len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM purchases`+conditions, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + headerColumns + ` FROM purchases` + conditions + ` ORDER BY purchase_date DESC, id DESC`
	perPage := req.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	args = append(args, (page-1)*perPage)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	purchases := []Purchase{}
	for rows.Next() {
		var p Purchase
		if err := rows.Scan(&p.ID, &p.VendorName, &p.InvoiceNumber, &p.PurchaseDate,
			&p.Notes, &p.TotalAmount, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		purchases = append(purchases, p)
	}
	return purchases, total, rows.Err()
}

func (r *repository) UpdateHeader(ctx context.Context, id int64, purchase Purchase) error {
	tag, err := r.db.Exec(ctx, `UPDATE purchases SET vendor_name=$1, invoice_number=$2, purchase_date=$3, notes=$4, total_amount=$5, updated_at=$6 WHERE id=$7`,
		purchase.VendorName, purchase.InvoiceNumber, purchase.PurchaseDate, purchase.Notes, purchase.TotalAmount, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteItems(ctx context.Context, purchaseID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM purchase_items WHERE purchase_id = $1`, purchaseID)
	return err
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM purchases WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
