package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// KeyGenerator creates fresh key material and its receiving address.
type KeyGenerator interface {
	GenerateKey() (address, key string, err error)
}

type WalletRepository interface {
	GetWallet(ctx context.Context, userKey string) (*Wallet, error)
	InsertWallet(ctx context.Context, w *Wallet) error
}

// Wallets hands out one persistent address per user key.
type Wallets struct {
	repo WalletRepository
	gen  KeyGenerator
	mu   sync.Mutex
}

func NewWallets(repo WalletRepository, gen KeyGenerator) *Wallets {
	return &Wallets{repo: repo, gen: gen}
}

// GetOrCreate returns the wallet bound to userKey, provisioning and
// persisting a new one on first use. Concurrent callers for the same key all
// end up with the first persisted row.
func (w *Wallets) GetOrCreate(ctx context.Context, userKey string) (*Wallet, error) {
	if userKey == "" {
		return nil, ErrUserKeyRequired
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	wallet, err := w.repo.GetWallet(ctx, userKey)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	address, key, err := w.gen.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	wallet = &Wallet{UserKey: userKey, Address: address, Key: key}
	if err := w.repo.InsertWallet(ctx, wallet); err != nil {
		if !errors.Is(err, ErrDuplicateKey) {
			return nil, fmt.Errorf("insert wallet: %w", err)
		}
		// another process created it first
		return w.repo.GetWallet(ctx, userKey)
	}
	return wallet, nil
}
