package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-tokenpay/payment/order"
)

func pending(id, addr, amount string, created time.Time) *order.Order {
	return &order.Order{
		ID:         id,
		OutOrderID: "out-" + id,
		Status:     order.StatusPending,
		Currency:   order.CurrencyUSDTTRC20,
		ToAddress:  addr,
		Amount:     decimal.RequireFromString(amount),
		CreateTime: created,
	}
}

func TestInsertUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()

	require.NoError(t, s.Insert(ctx, pending("1", "TA", "5", now)))

	// same slot, different trailing zeros
	assert.ErrorIs(t, s.Insert(ctx, pending("2", "TA", "5.0000", now)), order.ErrDuplicateKey)

	dupOut := pending("3", "TB", "5", now)
	dupOut.OutOrderID = "out-1"
	assert.ErrorIs(t, s.Insert(ctx, dupOut), order.ErrDuplicateKey)

	assert.NoError(t, s.Insert(ctx, pending("4", "TB", "5", now)))
	assert.NoError(t, s.Insert(ctx, pending("5", "TA", "5.0001", now)))
}

func TestMarkPaid(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()
	require.NoError(t, s.Insert(ctx, pending("1", "TA", "5", now)))
	require.NoError(t, s.Insert(ctx, pending("2", "TA", "6", now)))

	require.NoError(t, s.MarkPaid(ctx, "1", "TFrom", "tx1", now))
	assert.ErrorIs(t, s.MarkPaid(ctx, "1", "TFrom", "tx9", now), order.ErrNotPending)
	assert.ErrorIs(t, s.MarkPaid(ctx, "2", "TFrom", "tx1", now), order.ErrDuplicateKey)
	assert.ErrorIs(t, s.MarkPaid(ctx, "nope", "TFrom", "tx2", now), order.ErrNotFound)

	o, err := s.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, o.Status)
	assert.Equal(t, "tx1", o.BlockTransactionID)
	assert.Equal(t, "TFrom", o.FromAddress)
	require.NotNil(t, o.PayTime)

	ok, err := s.Exists(ctx, order.Query{BlockTransactionID: "tx1"})
	require.NoError(t, err)
	assert.True(t, ok)

	// a paid order no longer holds its slot
	assert.NoError(t, s.Insert(ctx, pending("3", "TA", "5", now)))
}

func TestFindAndPendingAddresses(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Now()
	require.NoError(t, s.Insert(ctx, pending("late", "TB", "1", base.Add(2*time.Second))))
	require.NoError(t, s.Insert(ctx, pending("early", "TB", "2", base)))
	require.NoError(t, s.Insert(ctx, pending("other", "TA", "1", base.Add(time.Second))))

	found, err := s.Find(ctx, order.Query{Status: order.StatusPending, ToAddresses: []string{"TB"}})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "early", found[0].ID)
	assert.Equal(t, "late", found[1].ID)

	addrs, err := s.PendingAddresses(ctx, order.CurrencyUSDTTRC20)
	require.NoError(t, err)
	assert.Equal(t, []string{"TA", "TB"}, addrs)

	n, err := s.ExpirePending(ctx, base.Add(1500*time.Millisecond))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	addrs, err = s.PendingAddresses(ctx, order.CurrencyUSDTTRC20)
	require.NoError(t, err)
	assert.Equal(t, []string{"TB"}, addrs)
}

func TestWalletsAndRates(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.GetWallet(ctx, "u1")
	assert.ErrorIs(t, err, order.ErrNotFound)

	require.NoError(t, s.InsertWallet(ctx, &order.Wallet{UserKey: "u1", Address: "TA", Key: "k"}))
	assert.ErrorIs(t, s.InsertWallet(ctx, &order.Wallet{UserKey: "u1", Address: "TB"}), order.ErrDuplicateKey)
	assert.ErrorIs(t, s.InsertWallet(ctx, &order.Wallet{UserKey: "u2", Address: "TA"}), order.ErrDuplicateKey)

	rate, err := s.Rate(ctx, order.CurrencyUSDTTRC20, "CNY")
	require.NoError(t, err)
	assert.True(t, rate.IsZero())

	require.NoError(t, s.UpsertRate(ctx, order.Rate{Currency: order.CurrencyUSDTTRC20, Fiat: "CNY", Rate: decimal.NewFromInt(7)}))
	rate, err = s.Rate(ctx, order.CurrencyUSDTTRC20, "CNY")
	require.NoError(t, err)
	assert.Equal(t, "7", rate.String())
}
