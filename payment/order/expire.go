package order

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type ExpireStore interface {
	ExpirePending(ctx context.Context, createdBefore time.Time) (int64, error)
}

// Expirer moves pending orders older than ttl plus a grace period to
// Expired, which releases their address+amount slot for new orders. The grace
// period keeps an order payable while a transfer sent before its deadline can
// still show up in the reconciliation window.
type Expirer struct {
	store  ExpireStore
	ttl    time.Duration
	grace  time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewExpirer(store ExpireStore, ttl time.Duration, logger *zap.Logger) *Expirer {
	return &Expirer{store: store, ttl: ttl, logger: logger, now: time.Now}
}

// WithGrace sets how long past ExpireTime an order stays pending.
func (e *Expirer) WithGrace(grace time.Duration) *Expirer {
	e.grace = grace
	return e
}

func (e *Expirer) WithClock(now func() time.Time) *Expirer {
	e.now = now
	return e
}

func (e *Expirer) Sweep(ctx context.Context) error {
	n, err := e.store.ExpirePending(ctx, e.now().Add(-e.ttl-e.grace))
	if err != nil {
		return fmt.Errorf("expire pending orders: %w", err)
	}
	if n > 0 {
		e.logger.Info("expired pending orders", zap.Int64("count", n))
	}
	return nil
}

// ExpireTime is the payment deadline shown for an order created at created.
func (e *Expirer) ExpireTime(created time.Time) time.Time {
	return created.Add(e.ttl)
}
