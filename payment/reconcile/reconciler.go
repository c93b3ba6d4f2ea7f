package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go-tokenpay/payment/order"
	"go-tokenpay/payment/tron"
)

type OrderStore interface {
	Store
	Find(ctx context.Context, q order.Query) ([]order.Order, error)
	PendingAddresses(ctx context.Context, currency order.Currency) ([]string, error)
}

type Ledger interface {
	FetchTransfers(ctx context.Context, q tron.TransferQuery) ([]tron.Transfer, error)
}

type Config struct {
	Currency      order.Currency
	Contract      string
	OnlyConfirmed bool
	Window        time.Duration
	LedgerTimeout time.Duration
	Limit         int
	Concurrency   int
}

// Reconciler runs reconciliation cycles: every address with pending orders
// is checked against its recent incoming transfers.
type Reconciler struct {
	cfg     Config
	store   OrderStore
	ledger  Ledger
	matcher *Matcher
	logger  *zap.Logger
	now     func() time.Time
}

func NewReconciler(cfg Config, store OrderStore, ledger Ledger, matcher *Matcher, logger *zap.Logger) *Reconciler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.LedgerTimeout <= 0 {
		cfg.LedgerTimeout = 15 * time.Second
	}
	return &Reconciler{
		cfg:     cfg,
		store:   store,
		ledger:  ledger,
		matcher: matcher,
		logger:  logger,
		now:     time.Now,
	}
}

// Cycle reconciles every address with pending orders once. Only a failure to
// list the addresses is returned; per-address failures are logged and the
// address is retried on the next cycle.
func (r *Reconciler) Cycle(ctx context.Context) error {
	addrs, err := r.store.PendingAddresses(ctx, r.cfg.Currency)
	if err != nil {
		return fmt.Errorf("list pending addresses: %w", err)
	}
	pendingAddresses.Set(float64(len(addrs)))
	if len(addrs) == 0 {
		return nil
	}

	since := r.now().Add(-r.cfg.Window)
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for _, addr := range addrs {
		g.Go(func() error {
			if err := r.reconcileAddress(ctx, addr, since); err != nil {
				addressFailures.Inc()
				r.logger.Warn("reconcile address failed", zap.String("address", addr), zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Reconciler) reconcileAddress(ctx context.Context, addr string, since time.Time) error {
	orders, err := r.store.Find(ctx, order.Query{
		Status:      order.StatusPending,
		Currency:    r.cfg.Currency,
		ToAddresses: []string{addr},
	})
	if err != nil {
		return fmt.Errorf("load pending orders: %w", err)
	}
	if len(orders) == 0 {
		return nil
	}

	ledgerCtx, cancel := context.WithTimeout(ctx, r.cfg.LedgerTimeout)
	defer cancel()
	transfers, err := r.ledger.FetchTransfers(ledgerCtx, tron.TransferQuery{
		Address:       addr,
		Contract:      r.cfg.Contract,
		Since:         since,
		OnlyConfirmed: r.cfg.OnlyConfirmed,
		Limit:         r.cfg.Limit,
	})
	if err != nil {
		return err
	}

	_, err = r.matcher.Match(ctx, orders, transfers)
	return err
}
