package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"go-tokenpay/payment/api"
	"go-tokenpay/payment/config"
	"go-tokenpay/payment/db"
	"go-tokenpay/payment/memstore"
	"go-tokenpay/payment/notify"
	"go-tokenpay/payment/order"
	"go-tokenpay/payment/rate"
	"go-tokenpay/payment/reconcile"
	"go-tokenpay/payment/tron"
	"go-tokenpay/payment/worker"
)

type store interface {
	order.Store
	order.WalletRepository
	order.RateLookup
	order.ExpireStore
	reconcile.OrderStore
	rate.Store
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func openStore(cfg *config.Config) (store, error) {
	if cfg.DBDriver == config.DriverMemory {
		return memstore.New(), nil
	}
	gdb, err := db.Connect(cfg.DBDriver, cfg.DatabaseURI)
	if err != nil {
		return nil, err
	}
	if err := db.Sync(gdb); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db.NewRepository(gdb), nil
}

func main() {
	config.LoadDotEnv()
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger error:", err)
		os.Exit(2)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	st, err := openStore(cfg)
	if err != nil {
		logger.Fatal("store initialization error", zap.Error(err))
	}

	currency := order.CurrencyUSDTTRC20
	wallets := order.NewWallets(st, tron.KeyGenerator{})
	allocator := order.NewAllocator(order.Config{
		Decimals:          cfg.Decimals,
		Rate:              cfg.Rate,
		Fiat:              cfg.Fiat,
		UseDynamicAddress: cfg.UseDynamicAddress,
		Addresses:         map[order.Currency][]string{currency: cfg.Addresses},
		Step:              cfg.AmountStep,
		MaxRounds:         cfg.MaxRounds,
		InsertRetries:     cfg.InsertRetries,
	}, st, wallets, st, logger.Named("allocator"))
	expirer := order.NewExpirer(st, cfg.ExpireAfter(), logger.Named("expire")).
		WithGrace(cfg.ReconcileWindow)

	httpClient := &http.Client{Timeout: cfg.LedgerTimeout}
	ledger := tron.NewClient(cfg.TronGridURL, cfg.TronGridAPIKey, cfg.LedgerMaxPages, httpClient)
	matcher := reconcile.NewMatcher(st, notify.NewClient(httpClient), cfg.USDTContract, logger.Named("matcher"))
	reconciler := reconcile.NewReconciler(reconcile.Config{
		Currency:      currency,
		Contract:      cfg.USDTContract,
		OnlyConfirmed: cfg.OnlyConfirmed,
		Window:        cfg.ReconcileWindow,
		LedgerTimeout: cfg.LedgerTimeout,
		Limit:         cfg.LedgerLimit,
		Concurrency:   cfg.ReconcileConcurrency,
	}, st, ledger, matcher, logger.Named("reconcile"))

	loops := []*worker.Loop{
		worker.New("reconcile", cfg.PollInterval, reconciler.Cycle, logger),
		worker.New("expire", cfg.ExpireSweepInterval, expirer.Sweep, logger),
	}
	if cfg.RateSyncInterval > 0 {
		syncer := rate.NewSyncer(rate.NewERAPISource(cfg.RateSourceURL, httpClient), st,
			[]order.Currency{currency}, cfg.Fiat, logger.Named("rate"))
		rateLoop := worker.New("rate", cfg.RateSyncInterval, syncer.Sync, logger)
		rateLoop.Trigger(context.Background())
		loops = append(loops, rateLoop)
	}

	gin.SetMode(gin.ReleaseMode)
	limiter := api.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	handler := api.NewHandler(allocator, expirer.ExpireTime, logger.Named("http"))
	server := &http.Server{
		Addr: cfg.RunAddress,
		Handler: api.NewRouter(handler, api.RouterConfig{
			MerchantSecret: cfg.MerchantJWTSecret,
			Limiter:        limiter,
		}, logger.Named("http")),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	for _, l := range loops {
		g.Go(func() error { return l.Run(ctx) })
	}
	g.Go(func() error {
		limiter.Cleanup(ctx, time.Minute)
		return nil
	})
	g.Go(func() error {
		logger.Info("starting payment service", zap.String("addr", cfg.RunAddress), zap.String("network", cfg.Network))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	})

	err = g.Wait()
	matcher.Wait()
	if err != nil {
		logger.Fatal("payment service terminated with error", zap.Error(err))
	}
	logger.Info("payment service stopped")
}
