package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"go-tokenpay/payment/order"
	"go-tokenpay/payment/tron"
)

const notifyTimeout = 15 * time.Second

type Store interface {
	Exists(ctx context.Context, q order.Query) (bool, error)
	MarkPaid(ctx context.Context, id, fromAddress, txID string, paidAt time.Time) error
}

type Notifier interface {
	Notify(ctx context.Context, o order.Order) error
}

// Matcher attributes incoming transfers of one address to its pending orders.
type Matcher struct {
	store    Store
	notifier Notifier
	contract string
	logger   *zap.Logger
	now      func() time.Time

	notifications sync.WaitGroup
}

// NewMatcher returns a matcher accepting transfers of the token contract.
// notifier may be nil.
func NewMatcher(store Store, notifier Notifier, contract string, logger *zap.Logger) *Matcher {
	return &Matcher{
		store:    store,
		notifier: notifier,
		contract: contract,
		logger:   logger,
		now:      time.Now,
	}
}

// Match walks transfers in ledger order and settles at most one pending order
// per transfer. orders must all belong to the transfers' receiving address.
// The settled orders are returned.
func (m *Matcher) Match(ctx context.Context, orders []order.Order, transfers []tron.Transfer) ([]order.Order, error) {
	working := append([]order.Order(nil), orders...)
	var paid []order.Order

	for _, tr := range transfers {
		if tr.Contract != m.contract {
			continue
		}
		if len(working) == 0 {
			break
		}

		seen, err := m.store.Exists(ctx, order.Query{BlockTransactionID: tr.TransactionID})
		if err != nil {
			return paid, fmt.Errorf("check transaction %s: %w", tr.TransactionID, err)
		}
		if seen {
			continue
		}

		idx := pick(working, tr)
		if idx < 0 {
			continue
		}
		o := working[idx]

		paidAt := m.now()
		err = m.store.MarkPaid(ctx, o.ID, tr.From, tr.TransactionID, paidAt)
		switch {
		case err == nil:
		case errors.Is(err, order.ErrNotPending), errors.Is(err, order.ErrNotFound):
			m.logger.Warn("order no longer pending, dropped from matching",
				zap.String("id", o.ID), zap.String("tx", tr.TransactionID))
			working = remove(working, idx)
			continue
		case errors.Is(err, order.ErrDuplicateKey):
			m.logger.Warn("transaction already credited", zap.String("tx", tr.TransactionID))
			continue
		default:
			return paid, fmt.Errorf("mark order %s paid: %w", o.ID, err)
		}

		o.Status = order.StatusPaid
		o.FromAddress = tr.From
		o.BlockTransactionID = tr.TransactionID
		o.PayTime = &paidAt
		working = remove(working, idx)
		paid = append(paid, o)
		ordersPaid.Inc()

		m.logger.Info("order paid",
			zap.String("id", o.ID),
			zap.String("out_order_id", o.OutOrderID),
			zap.String("amount", o.Amount.String()),
			zap.String("tx", tr.TransactionID),
		)
		m.notify(o)
	}
	return paid, nil
}

// pick returns the index of the newest order created before the transfer
// with exactly its amount, or -1.
func pick(working []order.Order, tr tron.Transfer) int {
	best := -1
	for i, o := range working {
		if o.ToAddress != tr.To || !o.Amount.Equal(tr.Amount) || !o.CreateTime.Before(tr.Timestamp) {
			continue
		}
		if best < 0 || o.CreateTime.After(working[best].CreateTime) {
			best = i
		}
	}
	return best
}

func remove(orders []order.Order, i int) []order.Order {
	return append(orders[:i], orders[i+1:]...)
}

func (m *Matcher) notify(o order.Order) {
	if m.notifier == nil || o.NotifyURL == "" {
		return
	}
	m.notifications.Add(1)
	go func() {
		defer m.notifications.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := m.notifier.Notify(ctx, o); err != nil {
			notifyFailures.Inc()
			m.logger.Warn("notify merchant failed", zap.String("id", o.ID), zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (m *Matcher) Wait() {
	m.notifications.Wait()
}
