package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"go-tokenpay/payment/memstore"
	"go-tokenpay/payment/order"
	"go-tokenpay/payment/tron"
)

type fakeLedger struct {
	mu        sync.Mutex
	transfers map[string][]tron.Transfer
	failing   map[string]bool
	queries   []tron.TransferQuery
}

func (l *fakeLedger) FetchTransfers(ctx context.Context, q tron.TransferQuery) ([]tron.Transfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queries = append(l.queries, q)
	if l.failing[q.Address] {
		return nil, fmt.Errorf("%w: timeout", tron.ErrLedgerQuery)
	}
	return l.transfers[q.Address], nil
}

func insertAt(t *testing.T, s *memstore.Store, id, addr, amount string, created time.Time) {
	t.Helper()
	require.NoError(t, s.Insert(context.Background(), &order.Order{
		ID:         id,
		OutOrderID: "out-" + id,
		Status:     order.StatusPending,
		Currency:   order.CurrencyUSDTTRC20,
		ToAddress:  addr,
		Amount:     decimal.RequireFromString(amount),
		CreateTime: created,
	}))
}

func newReconciler(s *memstore.Store, ledger *fakeLedger, now time.Time) *Reconciler {
	r := NewReconciler(Config{
		Currency:      order.CurrencyUSDTTRC20,
		Contract:      usdt,
		OnlyConfirmed: true,
		Window:        10 * time.Minute,
		LedgerTimeout: time.Second,
		Limit:         50,
		Concurrency:   4,
	}, s, ledger, NewMatcher(s, nil, usdt, zap.NewNop()), zap.NewNop())
	r.now = func() time.Time { return now }
	return r
}

func TestCycleIsolatesAddressFailures(t *testing.T) {
	s := memstore.New()
	insertAt(t, s, "a", "TA", "10", t0)
	insertAt(t, s, "b", "TB", "10", t0)
	insertAt(t, s, "c", "TC", "10", t0)

	ledger := &fakeLedger{
		transfers: map[string][]tron.Transfer{
			"TA": {{TransactionID: "txa", From: "P", To: "TA", Amount: decimal.NewFromInt(10), Contract: usdt, Timestamp: t0.Add(time.Minute)}},
			"TC": {{TransactionID: "txc", From: "P", To: "TC", Amount: decimal.NewFromInt(10), Contract: usdt, Timestamp: t0.Add(time.Minute)}},
		},
		failing: map[string]bool{"TB": true},
	}
	now := t0.Add(2 * time.Minute)
	r := newReconciler(s, ledger, now)

	require.NoError(t, r.Cycle(context.Background()))

	for id, want := range map[string]order.Status{"a": order.StatusPaid, "b": order.StatusPending, "c": order.StatusPaid} {
		o, err := s.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, want, o.Status, id)
	}

	require.Len(t, ledger.queries, 3)
	for _, q := range ledger.queries {
		assert.Equal(t, usdt, q.Contract)
		assert.True(t, q.OnlyConfirmed)
		assert.Equal(t, 50, q.Limit)
		assert.True(t, q.Since.Equal(now.Add(-10*time.Minute)))
	}

	// next cycle only polls the address still pending
	ledger.failing = nil
	ledger.queries = nil
	require.NoError(t, r.Cycle(context.Background()))
	require.Len(t, ledger.queries, 1)
	assert.Equal(t, "TB", ledger.queries[0].Address)
}

func TestCycleNoPendingOrders(t *testing.T) {
	ledger := &fakeLedger{}
	r := newReconciler(memstore.New(), ledger, t0)

	require.NoError(t, r.Cycle(context.Background()))
	assert.Empty(t, ledger.queries)
}

type brokenStore struct {
	*memstore.Store
}

func (brokenStore) PendingAddresses(ctx context.Context, currency order.Currency) ([]string, error) {
	return nil, errors.New("db down")
}

func TestCycleStoreFailure(t *testing.T) {
	s := brokenStore{memstore.New()}
	r := NewReconciler(Config{Currency: order.CurrencyUSDTTRC20}, s, &fakeLedger{},
		NewMatcher(s, nil, usdt, zap.NewNop()), zap.NewNop())

	assert.Error(t, r.Cycle(context.Background()))
}

func TestCycleSettlesPaymentConfirmedAfterDeadline(t *testing.T) {
	ttl := 10 * time.Minute
	window := 10 * time.Minute
	now := time.Now()
	created := now.Add(-ttl - 5*time.Second)

	s := memstore.New()
	insertAt(t, s, "late", "TA", "10", created)
	ledger := &fakeLedger{transfers: map[string][]tron.Transfer{
		"TA": {{TransactionID: "txlate", From: "P", To: "TA", Amount: decimal.NewFromInt(10), Contract: usdt,
			Timestamp: created.Add(9*time.Minute + 50*time.Second)}},
	}}

	expirer := order.NewExpirer(s, ttl, zap.NewNop()).
		WithGrace(window).
		WithClock(func() time.Time { return now })
	require.NoError(t, expirer.Sweep(context.Background()))

	r := newReconciler(s, ledger, now)
	require.NoError(t, r.Cycle(context.Background()))

	o, err := s.Get(context.Background(), "late")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, o.Status)
	assert.Equal(t, "txlate", o.BlockTransactionID)

	// past the grace period the order is released
	expirer.WithClock(func() time.Time { return now.Add(window + time.Second) })
	insertAt(t, s, "stale", "TB", "10", created)
	require.NoError(t, expirer.Sweep(context.Background()))
	stale, err := s.Get(context.Background(), "stale")
	require.NoError(t, err)
	assert.Equal(t, order.StatusExpired, stale.Status)
}

// stallingLedger never answers for the stalled address until the query
// context is cancelled.
type stallingLedger struct {
	fakeLedger
	stalled string
}

func (l *stallingLedger) FetchTransfers(ctx context.Context, q tron.TransferQuery) ([]tron.Transfer, error) {
	if q.Address == l.stalled {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %v", tron.ErrLedgerQuery, ctx.Err())
	}
	return l.fakeLedger.FetchTransfers(ctx, q)
}

func TestCycleBoundsStalledLedgerQuery(t *testing.T) {
	s := memstore.New()
	insertAt(t, s, "slow", "TA", "10", t0)
	insertAt(t, s, "fast", "TB", "10", t0)

	ledger := &stallingLedger{
		stalled: "TA",
		fakeLedger: fakeLedger{transfers: map[string][]tron.Transfer{
			"TB": {{TransactionID: "txf", From: "P", To: "TB", Amount: decimal.NewFromInt(10), Contract: usdt, Timestamp: t0.Add(time.Minute)}},
		}},
	}
	r := NewReconciler(Config{
		Currency:      order.CurrencyUSDTTRC20,
		Contract:      usdt,
		Window:        10 * time.Minute,
		LedgerTimeout: 50 * time.Millisecond,
		Concurrency:   1,
	}, s, ledger, NewMatcher(s, nil, usdt, zap.NewNop()), zap.NewNop())
	r.now = func() time.Time { return t0.Add(2 * time.Minute) }

	// TA is polled first and stalls; TB must still be settled
	start := time.Now()
	require.NoError(t, r.Cycle(context.Background()))
	assert.Less(t, time.Since(start), time.Second)

	fast, err := s.Get(context.Background(), "fast")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, fast.Status)

	slow, err := s.Get(context.Background(), "slow")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, slow.Status)
}
