package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/SpiceChicken/kiwoom-stock/internal/collector"
	"github.com/SpiceChicken/kiwoom-stock/internal/config"
	"github.com/SpiceChicken/kiwoom-stock/internal/engine"
	"github.com/SpiceChicken/kiwoom-stock/internal/metrics"
	"github.com/SpiceChicken/kiwoom-stock/internal/notifier"
	"github.com/SpiceChicken/kiwoom-stock/internal/position"
	"github.com/SpiceChicken/kiwoom-stock/internal/store"
	"github.com/SpiceChicken/kiwoom-stock/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments export the variables directly.
	_ = godotenv.Load()

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	log, err := logger.New(logger.Options{
		Dir:     cfg.Logging.Dir,
		Console: cfg.Logging.Console,
		Debug:   cfg.Logging.Debug,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()
	log.Info("kiwoom-stock starting", logger.Pair("config", cfgPath))

	profiles, err := cfg.Profiles()
	if err != nil {
		return fmt.Errorf("strategy profiles: %w", err)
	}

	// Trade store with noop fallback: the bot keeps running without
	// persistence, positions then survive only in memory.
	var tradeStore store.TradeStore
	if sq, err := store.NewSQLiteStore(cfg.Database.SQLitePath); err != nil {
		log.Warn("sqlite unavailable, falling back to in-memory store",
			logger.Pair("path", cfg.Database.SQLitePath), logger.Pair("error", err.Error()))
		tradeStore = store.NewNoopStore()
	} else {
		tradeStore = sq
	}
	defer tradeStore.Close()

	fetcher := collector.NewKiwoomFetcher(cfg.Kiwoom.BaseURL, cfg.Kiwoom.AppKey, cfg.Kiwoom.SecretKey, log)
	log.Info("market data source ready", logger.Pair("fetcher", fetcher.Name()))

	sinks := []notifier.Notifier{notifier.NewLogNotifier(log)}
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notifier.NewWebhookNotifier(cfg.Notify.WebhookURL, log))
	}
	events := notifier.NewMulti(sinks...)

	manager := position.NewManager(tradeStore, events, log)

	eng := engine.New(fetcher, tradeStore, manager, profiles, events, log, engine.Options{
		ProxyCode:       cfg.Market.ProxyCode,
		MarketTp:        cfg.Market.MarketTp,
		ETFKeywords:     cfg.Filters.ETFKeywords,
		MaxStocks:       cfg.Filters.MaxStocks,
		PollInterval:    cfg.PollInterval(),
		UniverseRefresh: cfg.UniverseRefresh(),
		WeightMode:      cfg.WeightMode(),
		ScoringParams:   cfg.ScoringParams(),
	})
	if err := eng.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	if cfg.Metrics.Addr != "" {
		srv := metrics.Serve(cfg.Metrics.Addr)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
		log.Info("metrics listener started", logger.Pair("addr", cfg.Metrics.Addr))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", logger.Pair("signal", sig.String()))
		eng.Stop()
	case <-eng.Done():
		// Kill switch or session end: already a clean stop.
	}

	log.Info("kiwoom-stock stopped")
	return nil
}
