package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is applied at startup. Statements are idempotent so restarting
// against an existing database is safe.
const schema = `
CREATE TABLE IF NOT EXISTS products (
    id            BIGSERIAL PRIMARY KEY,
    name          TEXT NOT NULL,
    unit          TEXT NOT NULL DEFAULT '',
    unit_price    NUMERIC(18,4) NOT NULL DEFAULT 0,
    reorder_point BIGINT,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS purchases (
    id             BIGSERIAL PRIMARY KEY,
    vendor_name    TEXT NOT NULL,
    invoice_number TEXT NOT NULL,
    purchase_date  DATE NOT NULL,
    notes          TEXT NOT NULL DEFAULT '',
    total_amount   NUMERIC(18,4) NOT NULL DEFAULT 0,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS purchase_items (
    id           BIGSERIAL PRIMARY KEY,
    purchase_id  BIGINT NOT NULL REFERENCES purchases(id),
    product_id   BIGINT NOT NULL REFERENCES products(id),
    product_name TEXT NOT NULL,
    quantity     NUMERIC(18,4) NOT NULL,
    unit_price   NUMERIC(18,4) NOT NULL,
    total_price  NUMERIC(18,4) NOT NULL
);

CREATE TABLE IF NOT EXISTS sales (
    id             BIGSERIAL PRIMARY KEY,
    customer_name  TEXT NOT NULL,
    invoice_number TEXT NOT NULL,
    sale_date      DATE NOT NULL,
    notes          TEXT NOT NULL DEFAULT '',
    total_amount   NUMERIC(18,4) NOT NULL DEFAULT 0,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS sale_items (
    id           BIGSERIAL PRIMARY KEY,
    sale_id      BIGINT NOT NULL REFERENCES sales(id),
    product_id   BIGINT NOT NULL REFERENCES products(id),
    product_name TEXT NOT NULL,
    quantity     NUMERIC(18,4) NOT NULL,
    unit_price   NUMERIC(18,4) NOT NULL,
    total_price  NUMERIC(18,4) NOT NULL
);

CREATE TABLE IF NOT EXISTS stock_ledger (
    id               BIGSERIAL PRIMARY KEY,
    product_id       BIGINT NOT NULL REFERENCES products(id),
    transaction_type TEXT NOT NULL,
    quantity         NUMERIC(18,4) NOT NULL,
    reference_id     BIGINT,
    reference_type   TEXT NOT NULL DEFAULT '',
    audit_code       TEXT NOT NULL DEFAULT '',
    notes            TEXT NOT NULL DEFAULT '',
    transaction_date DATE NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_stock_ledger_product_date
    ON stock_ledger (product_id, transaction_date, id);

CREATE INDEX IF NOT EXISTS idx_stock_ledger_reference
    ON stock_ledger (reference_type, reference_id);

CREATE TABLE IF NOT EXISTS stock_snapshots (
    product_id      BIGINT PRIMARY KEY REFERENCES products(id),
    available_stock NUMERIC(18,4) NOT NULL DEFAULT 0,
    last_updated    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate applies the schema to the connected database.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("platform/db: migrate: %w", err)
	}
	return nil
}
