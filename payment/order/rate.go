package order

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// RateLookup returns the stored fiat-per-token rate; zero means unknown.
type RateLookup interface {
	Rate(ctx context.Context, currency Currency, fiat string) (decimal.Decimal, error)
}

// ResolveRate prefers a positive fixed rate and falls back to the lookup.
func ResolveRate(ctx context.Context, fixed decimal.Decimal, lookup RateLookup, currency Currency, fiat string) (decimal.Decimal, error) {
	if fixed.IsPositive() {
		return fixed, nil
	}
	if lookup == nil {
		return decimal.Zero, ErrRateUnavailable
	}
	rate, err := lookup.Rate(ctx, currency, fiat)
	if err != nil {
		return decimal.Zero, fmt.Errorf("lookup %s/%s rate: %w", currency, fiat, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, ErrRateUnavailable
	}
	return rate, nil
}
