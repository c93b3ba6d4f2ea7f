// Package config reads the payment service configuration from the
// environment, an optional .env file and command line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"go-tokenpay/payment/tron"
)

const (
	DriverMemory   = "memory"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"

	defaultRunAddress = "localhost:8080"
)

type network struct {
	url      string
	contract string
}

var networks = map[string]network{
	"mainnet": {url: tron.MainnetURL, contract: "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"},
	"shasta":  {url: tron.ShastaURL, contract: "TG3XXyExBkPp9nzdajDZsozEu4BkaSJozs"},
}

type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DBDriver    string `env:"DB_DRIVER" envDefault:"postgres"`
	DatabaseURI string `env:"DATABASE_URI"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	Network           string   `env:"TRON_NETWORK" envDefault:"mainnet"`
	TronGridURL       string   `env:"TRONGRID_URL"`
	TronGridAPIKey    string   `env:"TRONGRID_API_KEY"`
	USDTContract      string   `env:"USDT_CONTRACT"`
	Addresses         []string `env:"TRON_ADDRESSES"`
	UseDynamicAddress bool     `env:"USE_DYNAMIC_ADDRESS"`

	Decimals      int32           `env:"DECIMALS" envDefault:"4"`
	Rate          decimal.Decimal `env:"RATE" envDefault:"0"`
	Fiat          string          `env:"FIAT" envDefault:"CNY"`
	AmountStep    decimal.Decimal `env:"AMOUNT_STEP" envDefault:"0.0001"`
	MaxRounds     int             `env:"MAX_ROUNDS" envDefault:"1000"`
	InsertRetries int             `env:"INSERT_RETRIES" envDefault:"3"`

	OnlyConfirmed        bool          `env:"ONLY_CONFIRMED" envDefault:"true"`
	PollInterval         time.Duration `env:"POLL_INTERVAL" envDefault:"3s"`
	ReconcileWindow      time.Duration `env:"RECONCILE_WINDOW" envDefault:"10m"`
	LedgerTimeout        time.Duration `env:"LEDGER_TIMEOUT" envDefault:"15s"`
	LedgerLimit          int           `env:"LEDGER_LIMIT" envDefault:"50"`
	LedgerMaxPages       int           `env:"LEDGER_MAX_PAGES" envDefault:"5"`
	ReconcileConcurrency int           `env:"RECONCILE_CONCURRENCY" envDefault:"4"`

	ExpireTime          int           `env:"EXPIRE_TIME" envDefault:"600"` // seconds
	ExpireSweepInterval time.Duration `env:"EXPIRE_SWEEP_INTERVAL" envDefault:"30s"`

	RateSyncInterval time.Duration `env:"RATE_SYNC_INTERVAL" envDefault:"10m"`
	RateSourceURL    string        `env:"RATE_SOURCE_URL"`

	MerchantJWTSecret  string `env:"MERCHANT_JWT_SECRET"`
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`
	RateLimitBurst     int    `env:"RATE_LIMIT_BURST" envDefault:"20"`
}

// LoadDotEnv loads .env from the working directory when present.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// Parse reads flags from args, then the environment. Environment values
// win over flags.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI

	fs := flag.NewFlagSet("paymentservice", flag.ContinueOnError)
	fs.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	fs.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	cfg.Fiat = strings.ToUpper(strings.TrimSpace(cfg.Fiat))

	if err := cfg.applyNetwork(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyNetwork() error {
	n, ok := networks[c.Network]
	if !ok {
		return fmt.Errorf("unknown TRON_NETWORK %q", c.Network)
	}
	if c.TronGridURL == "" {
		c.TronGridURL = n.url
	}
	if c.USDTContract == "" {
		c.USDTContract = n.contract
	}
	return nil
}

// ExpireAfter is the lifetime of a pending order.
func (c *Config) ExpireAfter() time.Duration {
	return time.Duration(c.ExpireTime) * time.Second
}

func (c *Config) Validate() error {
	var errs []error

	switch c.DBDriver {
	case DriverMemory:
	case DriverMySQL, DriverPostgres:
		if c.DatabaseURI == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URI is required for %s", c.DBDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}

	if c.Decimals < 0 || c.Decimals > 8 {
		errs = append(errs, fmt.Errorf("DECIMALS must be within 0..8, got %d", c.Decimals))
	}
	if !c.AmountStep.IsPositive() {
		errs = append(errs, errors.New("AMOUNT_STEP must be positive"))
	} else if !c.AmountStep.Shift(c.Decimals).IsInteger() {
		errs = append(errs, fmt.Errorf("AMOUNT_STEP %s is finer than %d decimals", c.AmountStep, c.Decimals))
	}
	if c.Rate.IsNegative() {
		errs = append(errs, errors.New("RATE must not be negative"))
	}
	if c.MaxRounds < 0 {
		errs = append(errs, errors.New("MAX_ROUNDS must not be negative"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.ReconcileWindow <= 0 {
		errs = append(errs, errors.New("RECONCILE_WINDOW must be positive"))
	}
	if c.ExpireTime <= 0 {
		errs = append(errs, errors.New("EXPIRE_TIME must be positive"))
	}
	if c.RateLimitPerMinute <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must be positive"))
	}
	if c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_BURST must be positive"))
	}

	if err := tron.ValidateAddress(c.USDTContract); err != nil {
		errs = append(errs, fmt.Errorf("USDT_CONTRACT: %w", err))
	}
	if !c.UseDynamicAddress && len(c.Addresses) == 0 {
		errs = append(errs, errors.New("TRON_ADDRESSES is required unless USE_DYNAMIC_ADDRESS is set"))
	}
	for _, addr := range c.Addresses {
		if err := tron.ValidateAddress(addr); err != nil {
			errs = append(errs, fmt.Errorf("TRON_ADDRESSES: %w", err))
		}
	}
	return errors.Join(errs...)
}
