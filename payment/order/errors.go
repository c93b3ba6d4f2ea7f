package order

import "errors"

var (
	ErrNoAddressConfigured = errors.New("no receiving address configured")
	ErrAllocationExhausted = errors.New("no free address and amount left")
	ErrRateUnavailable     = errors.New("exchange rate unavailable")
	// ErrDuplicateKey is returned by stores when a uniqueness constraint
	// rejects a write. Callers treat it as a retry signal.
	ErrDuplicateKey        = errors.New("duplicate key")
	ErrNotPending          = errors.New("order is not pending")
	ErrNotFound            = errors.New("not found")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrUserKeyRequired     = errors.New("dynamic address requires a user key")
	ErrOutOrderIDRequired  = errors.New("out order id is required")
)
