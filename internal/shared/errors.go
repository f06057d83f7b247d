package shared

import "errors"

var (
	// ErrNotFound indicates a referenced resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrProductNotFound indicates an order line references an unknown product.
	ErrProductNotFound = errors.New("product not found")
	// ErrUnavailable indicates a transient store condition that outlived the
	// retry budget. Callers may try again.
	ErrUnavailable = errors.New("temporarily unavailable")
)
