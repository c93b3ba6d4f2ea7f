// Create orders: resolve the rate, pick the receiving address (shared pool or
// per-user wallet) and a payment amount unique among pending orders on it.

package order

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Store interface {
	Get(ctx context.Context, id string) (*Order, error)
	Find(ctx context.Context, q Query) ([]Order, error)
	Insert(ctx context.Context, o *Order) error
}

type WalletProvider interface {
	GetOrCreate(ctx context.Context, userKey string) (*Wallet, error)
}

type Config struct {
	Decimals          int32
	Rate              decimal.Decimal // fixed fiat-per-token rate; <= 0 means look it up
	Fiat              string
	UseDynamicAddress bool
	Addresses         map[Currency][]string
	Step              decimal.Decimal
	MaxRounds         int
	InsertRetries     int
}

type CreateRequest struct {
	OutOrderID   string
	Currency     Currency
	ActualAmount decimal.Decimal
	UserKey      string
	NotifyURL    string
	RedirectURL  string
}

type Allocator struct {
	cfg     Config
	store   Store
	wallets WalletProvider
	rates   RateLookup
	logger  *zap.Logger

	rndMu sync.Mutex
	rnd   *rand.Rand
	now   func() time.Time
}

func NewAllocator(cfg Config, store Store, wallets WalletProvider, rates RateLookup, logger *zap.Logger) *Allocator {
	return &Allocator{
		cfg:     cfg,
		store:   store,
		wallets: wallets,
		rates:   rates,
		logger:  logger,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}
}

// WithRand replaces the source used to shuffle the static pool.
func (a *Allocator) WithRand(rnd *rand.Rand) *Allocator {
	a.rnd = rnd
	return a
}

func (a *Allocator) WithClock(now func() time.Time) *Allocator {
	a.now = now
	return a
}

// CreateOrder persists a new pending order for req. When an order with the
// same OutOrderID already exists it is returned with existing set to true.
func (a *Allocator) CreateOrder(ctx context.Context, req CreateRequest) (o *Order, existing bool, err error) {
	if req.OutOrderID == "" {
		return nil, false, ErrOutOrderIDRequired
	}
	if !req.ActualAmount.IsPositive() {
		return nil, false, ErrInvalidAmount
	}
	if !req.Currency.Supported() {
		return nil, false, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, req.Currency)
	}

	if prev, err := a.findByOutOrderID(ctx, req.OutOrderID); err != nil || prev != nil {
		return prev, prev != nil, err
	}

	rate, err := ResolveRate(ctx, a.cfg.Rate, a.rates, req.Currency, a.cfg.Fiat)
	if err != nil {
		return nil, false, err
	}
	base, err := BaseAmount(req.ActualAmount, rate, a.cfg.Decimals)
	if err != nil {
		return nil, false, err
	}

	candidates, err := a.candidates(ctx, req)
	if err != nil {
		return nil, false, err
	}

	for attempt := 0; ; attempt++ {
		alloc, err := a.allocate(ctx, req.Currency, candidates, base)
		if err != nil {
			return nil, false, err
		}

		o = &Order{
			ID:           uuid.NewString(),
			OutOrderID:   req.OutOrderID,
			Status:       StatusPending,
			Currency:     req.Currency,
			ToAddress:    alloc.Address,
			Amount:       alloc.Amount,
			ActualAmount: req.ActualAmount,
			UserKey:      req.UserKey,
			CreateTime:   a.now(),
			NotifyURL:    req.NotifyURL,
			RedirectURL:  req.RedirectURL,
		}
		err = a.store.Insert(ctx, o)
		if err == nil {
			a.logger.Info("order created",
				zap.String("id", o.ID),
				zap.String("out_order_id", o.OutOrderID),
				zap.String("to_address", o.ToAddress),
				zap.String("amount", o.Amount.String()),
			)
			return o, false, nil
		}
		if !errors.Is(err, ErrDuplicateKey) || attempt >= a.cfg.InsertRetries {
			return nil, false, fmt.Errorf("insert order: %w", err)
		}

		// Either the OutOrderID or the address+amount slot was taken by a
		// concurrent creation.
		if prev, err := a.findByOutOrderID(ctx, req.OutOrderID); err != nil || prev != nil {
			return prev, prev != nil, err
		}
		a.logger.Warn("allocation raced with another order, retrying",
			zap.String("out_order_id", req.OutOrderID),
			zap.Int("attempt", attempt+1),
		)
	}
}

func (a *Allocator) findByOutOrderID(ctx context.Context, outOrderID string) (*Order, error) {
	found, err := a.store.Find(ctx, Query{OutOrderID: outOrderID})
	if err != nil {
		return nil, fmt.Errorf("find order %s: %w", outOrderID, err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (a *Allocator) candidates(ctx context.Context, req CreateRequest) ([]string, error) {
	if a.cfg.UseDynamicAddress {
		wallet, err := a.wallets.GetOrCreate(ctx, req.UserKey)
		if err != nil {
			return nil, err
		}
		return []string{wallet.Address}, nil
	}

	pool := a.cfg.Addresses[req.Currency]
	if len(pool) == 0 {
		return nil, ErrNoAddressConfigured
	}
	shuffled := append([]string(nil), pool...)
	a.rndMu.Lock()
	a.rnd.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	a.rndMu.Unlock()
	return shuffled, nil
}

// allocate loads the pending amounts of all candidates with one query and
// runs Disambiguate against them. A single candidate is resolved directly
// from its interval set.
func (a *Allocator) allocate(ctx context.Context, currency Currency, candidates []string, base decimal.Decimal) (Allocation, error) {
	pending, err := a.store.Find(ctx, Query{
		Status:      StatusPending,
		Currency:    currency,
		ToAddresses: candidates,
	})
	if err != nil {
		return Allocation{}, fmt.Errorf("load pending amounts: %w", err)
	}

	index := newTakenIndex(a.cfg.Decimals)
	for _, p := range pending {
		index.add(p.ToAddress, p.Amount)
	}
	if len(candidates) == 1 {
		if alloc, handled, err := index.nextFree(candidates[0], base, a.cfg.Step, a.cfg.MaxRounds); handled {
			return alloc, err
		}
	}
	return Disambiguate(candidates, base, index.taken, a.cfg.Step, a.cfg.MaxRounds)
}

// Get returns the order with the given id.
func (a *Allocator) Get(ctx context.Context, id string) (*Order, error) {
	return a.store.Get(ctx, id)
}
