package salesorders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// ErrNotFound marks a missing sale.
var ErrNotFound = errors.New("sale not found")

// Repository persists sales. Ledger is only valid on the transaction-bound
// Repository handed to the WithTx callback.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Ledger() ledger.TxRepository
	Create(ctx context.Context, sale Sale) (int64, error)
	InsertItem(ctx context.Context, item SaleItem) (int64, error)
	Get(ctx context.Context, id int64) (*Sale, error)
	List(ctx context.Context, req ListRequest) ([]Sale, int, error)
	DeleteItems(ctx context.Context, saleID int64) error
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

// NewRepository constructs the PostgreSQL-backed sale repository.
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
		panic("salesorders: Ledger called outside WithTx")
	}
	return ledger.NewTxRepository(r.tx)
}

func (r *repository) Create(ctx context.Context, sale Sale) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO sales (customer_name, invoice_number, sale_date, notes, total_amount, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW(),NOW()) RETURNING id`,
		sale.CustomerName, sale.InvoiceNumber, sale.SaleDate, sale.Notes, sale.TotalAmount).
		Scan(&id)
	return id, err
}

func (r *repository) InsertItem(ctx context.Context, item SaleItem) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO sale_items (sale_id, product_id, product_name, quantity, unit_price, total_price)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		item.SaleID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.TotalPrice).
		Scan(&id)
	return id, err
}

const headerColumns = `id, customer_name, invoice_number, sale_date, notes, total_amount, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Sale, error) {
	var s Sale
	err := r.db.QueryRow(ctx, `SELECT `+headerColumns+` FROM sales WHERE id = $1`, id).
		Scan(&s.ID, &s.CustomerName, &s.InvoiceNumber, &s.SaleDate, &s.Notes, &s.TotalAmount, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.db.Query(ctx, `SELECT id, sale_id, product_id, product_name, quantity, unit_price, total_price
FROM sale_items WHERE sale_id = $1 ORDER BY id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.ProductName,
			&item.Quantity, &item.UnitPrice, &item.TotalPrice); err != nil {
			return nil, err
		}
		s.Items = append(s.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) List(ctx context.Context, req ListRequest) ([]Sale, int, error) {
	conditions := " WHERE 1=1"
	args := []any{}
	if req.CustomerName != "" {
		args = append(args, "%"+req.CustomerName+"%")
		conditions += fmt.Sprintf(" AND customer_name ILIKE $%d", len(args))
	}
	if req.From != nil {
		args = append(args, *req.From)
		conditions += fmt.Sprintf(" AND sale_date >= $%d", len(args))
	}
	if req.To != nil {
		args = append(args, *req.To)
		conditions += fmt.Sprintf(" AND sale_date <= $%d", len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM sales`+conditions, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + headerColumns + ` FROM sales` + conditions + ` ORDER BY sale_date DESC, id DESC`
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
	sales := []Sale{}
	for rows.Next() {
		var s Sale
		if err := rows.Scan(&s.ID, &s.CustomerName, &s.InvoiceNumber, &s.SaleDate,
			&s.Notes, &s.TotalAmount, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, err
		}
		sales = append(sales, s)
	}
	return sales, total, rows.Err()
}

func (r *repository) DeleteItems(ctx context.Context, saleID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, saleID)
	return err
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
