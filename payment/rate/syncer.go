package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"go-tokenpay/payment/order"
)

type Source interface {
	FiatPerUSD(ctx context.Context) (map[string]decimal.Decimal, error)
}

type Store interface {
	UpsertRate(ctx context.Context, r order.Rate) error
}

// usdPegged lists tokens valued one to one with USD.
var usdPegged = map[order.Currency]bool{
	order.CurrencyUSDTTRC20: true,
}

type Syncer struct {
	source     Source
	store      Store
	currencies []order.Currency
	fiat       string
	logger     *zap.Logger
	now        func() time.Time
}

func NewSyncer(source Source, store Store, currencies []order.Currency, fiat string, logger *zap.Logger) *Syncer {
	return &Syncer{
		source:     source,
		store:      store,
		currencies: currencies,
		fiat:       strings.ToUpper(fiat),
		logger:     logger,
		now:        time.Now,
	}
}

// Sync fetches the current rates and stores fiat-per-token for every
// configured currency.
func (s *Syncer) Sync(ctx context.Context) error {
	rates, err := s.source.FiatPerUSD(ctx)
	if err != nil {
		return err
	}
	perUSD, ok := rates[s.fiat]
	if !ok || !perUSD.IsPositive() {
		return fmt.Errorf("%w: no %s rate", ErrRateSource, s.fiat)
	}

	for _, currency := range s.currencies {
		if !usdPegged[currency] {
			s.logger.Warn("no rate source for currency", zap.String("currency", string(currency)))
			continue
		}
		r := order.Rate{Currency: currency, Fiat: s.fiat, Rate: perUSD, UpdatedAt: s.now()}
		if err := s.store.UpsertRate(ctx, r); err != nil {
			return fmt.Errorf("store %s/%s rate: %w", currency, s.fiat, err)
		}
		s.logger.Debug("rate updated",
			zap.String("currency", string(currency)),
			zap.String("fiat", s.fiat),
			zap.String("rate", perUSD.String()),
		)
	}
	return nil
}
