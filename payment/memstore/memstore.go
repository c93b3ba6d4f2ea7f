// Package memstore keeps orders, wallets and rates in process memory. It
// enforces the same uniqueness rules as the SQL schema: one pending order per
// address+currency+amount, one order per block transaction and per
// out-order id.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"go-tokenpay/payment/order"
)

type Store struct {
	mu      sync.RWMutex
	orders  map[string]*order.Order
	wallets map[string]order.Wallet
	rates   map[rateKey]order.Rate
}

type rateKey struct {
	currency order.Currency
	fiat     string
}

func New() *Store {
	return &Store{
		orders:  make(map[string]*order.Order),
		wallets: make(map[string]order.Wallet),
		rates:   make(map[rateKey]order.Rate),
	}
}

func clone(o *order.Order) order.Order {
	c := *o
	if o.PayTime != nil {
		t := *o.PayTime
		c.PayTime = &t
	}
	return c
}

func matches(o *order.Order, q order.Query) bool {
	if q.Status != "" && o.Status != q.Status {
		return false
	}
	if q.Currency != "" && o.Currency != q.Currency {
		return false
	}
	if q.OutOrderID != "" && o.OutOrderID != q.OutOrderID {
		return false
	}
	if q.BlockTransactionID != "" && o.BlockTransactionID != q.BlockTransactionID {
		return false
	}
	if !q.CreatedBefore.IsZero() && !o.CreateTime.Before(q.CreatedBefore) {
		return false
	}
	if len(q.ToAddresses) > 0 {
		found := false
		for _, a := range q.ToAddresses {
			if a == o.ToAddress {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *Store) Get(ctx context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	c := clone(o)
	return &c, nil
}

func (s *Store) Find(ctx context.Context, q order.Query) ([]order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []order.Order
	for _, o := range s.orders {
		if matches(o, q) {
			res = append(res, clone(o))
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreateTime.Before(res[j].CreateTime)
	})
	return res, nil
}

func (s *Store) Exists(ctx context.Context, q order.Query) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.orders {
		if matches(o, q) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) PendingAddresses(ctx context.Context, currency order.Currency) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var res []string
	for _, o := range s.orders {
		if o.Status == order.StatusPending && o.Currency == currency && !seen[o.ToAddress] {
			seen[o.ToAddress] = true
			res = append(res, o.ToAddress)
		}
	}
	sort.Strings(res)
	return res, nil
}

func (s *Store) Insert(ctx context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[o.ID]; ok {
		return order.ErrDuplicateKey
	}
	for _, existing := range s.orders {
		if existing.OutOrderID == o.OutOrderID {
			return order.ErrDuplicateKey
		}
		if o.BlockTransactionID != "" && existing.BlockTransactionID == o.BlockTransactionID {
			return order.ErrDuplicateKey
		}
		if o.Status == order.StatusPending && existing.Status == order.StatusPending &&
			existing.ToAddress == o.ToAddress &&
			existing.Currency == o.Currency &&
			existing.Amount.Equal(o.Amount) {
			return order.ErrDuplicateKey
		}
	}
	c := clone(o)
	s.orders[o.ID] = &c
	return nil
}

func (s *Store) MarkPaid(ctx context.Context, id, fromAddress, txID string, paidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != order.StatusPending {
		return order.ErrNotPending
	}
	for _, existing := range s.orders {
		if txID != "" && existing.BlockTransactionID == txID {
			return order.ErrDuplicateKey
		}
	}
	o.Status = order.StatusPaid
	o.FromAddress = fromAddress
	o.BlockTransactionID = txID
	o.PayTime = &paidAt
	return nil
}

func (s *Store) ExpirePending(ctx context.Context, createdBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, o := range s.orders {
		if o.Status == order.StatusPending && o.CreateTime.Before(createdBefore) {
			o.Status = order.StatusExpired
			n++
		}
	}
	return n, nil
}

func (s *Store) GetWallet(ctx context.Context, userKey string) (*order.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[userKey]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &w, nil
}

func (s *Store) InsertWallet(ctx context.Context, w *order.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[w.UserKey]; ok {
		return order.ErrDuplicateKey
	}
	for _, existing := range s.wallets {
		if existing.Address == w.Address {
			return order.ErrDuplicateKey
		}
	}
	s.wallets[w.UserKey] = *w
	return nil
}

func (s *Store) Rate(ctx context.Context, currency order.Currency, fiat string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.rates[rateKey{currency, fiat}].Rate, nil
}

func (s *Store) UpsertRate(ctx context.Context, r order.Rate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rates[rateKey{r.Currency, r.Fiat}] = r
	return nil
}
