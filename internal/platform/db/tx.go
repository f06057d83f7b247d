package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Retry policy for transactions that lose a serialization race. The
// non-negativity guard and other domain rejections are returned by the
// callback itself and are never retried.
const (
	maxTxAttempts  = 3
	retryBaseDelay = 50 * time.Millisecond
)

// WithTx executes a function within a RepeatableRead transaction, retrying
// with exponential backoff when PostgreSQL reports a serialization failure
// or deadlock.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		lastErr = runTx(ctx, pool, fn)
		if lastErr == nil || !IsRetryable(lastErr) {
			return lastErr
		}
		delay := retryBaseDelay << (attempt - 1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("platform/db: tx retries exhausted (%v): %w", lastErr, shared.ErrUnavailable)
}

func runTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// IsRetryable reports whether the error is a transient store condition:
// serialization failure, deadlock, or a dropped connection.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
	}
	return pgconn.SafeToRetry(err)
}
