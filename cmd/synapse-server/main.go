// synapse-server runs the position ledger HTTP API with the configured
// storage backend, price oracle, and optional liquidation scanner.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"synapse/internal/config"
	"synapse/internal/domain"
	"synapse/internal/httpapi"
	"synapse/internal/liquidator"
	"synapse/internal/market"
	"synapse/internal/oracle"
	"synapse/internal/risk"
	"synapse/internal/store"
	"synapse/internal/util"
)

func main() {
	// .env is optional; real deployments set env vars directly.
	_ = godotenv.Load()

	cfgPath := "config/synapse.yaml"
	if p := os.Getenv("SYNAPSE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	// Storage backend.
	var (
		configs   store.ConfigStore
		positions store.PositionStore
	)
	switch cfg.Storage.Backend {
	case "sqlite":
		st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("opening sqlite store: %v", err)
		}
		defer st.Close()
		configs, positions = st, st
		logger.Info("using sqlite store", "path", cfg.Storage.SQLitePath)
	case "memory":
		st := store.NewMemoryStore()
		configs, positions = st, st
		logger.Warn("using in-memory store, state is lost on restart")
	default:
		log.Fatalf("unknown storage backend %q", cfg.Storage.Backend)
	}

	// Price oracle.
	decimals := cfg.Market.PriceDecimals
	if decimals == 0 {
		decimals = risk.DefaultPriceDecimals
	}
	var feed oracle.Oracle
	switch cfg.Oracle.Provider {
	case "alpaca":
		feed = oracle.NewAlpacaOracle(cfg.Oracle.APIKey, cfg.Oracle.APISecret, cfg.Oracle.DataURL, decimals, logger)
	case "static":
		feed = oracle.NewStaticOracle(decimals)
		logger.Warn("using static oracle, prices must be seeded by tests or tooling")
	default:
		log.Fatalf("unknown oracle provider %q", cfg.Oracle.Provider)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Fail fast if the feed is unreachable. Transient errors get retried.
	if cfg.Oracle.Provider == "alpaca" {
		err := util.Retry(ctx, 3, 2*time.Second, func() error {
			_, err := feed.LastTimestamp(ctx)
			return err
		})
		if err != nil {
			log.Fatalf("oracle probe failed: %v", err)
		}
		logger.Info("oracle probe ok", "version", feed.Version())
	}

	m := market.New(configs, positions, feed, logger)

	// Initialize from config on first boot; later boots find the stored
	// config and skip.
	if cfg.Market.Admin != "" {
		err := m.Initialize(ctx, market.InitParams{
			Admin:                cfg.Market.Admin,
			Treasury:             cfg.Market.Treasury,
			MinCollateral:        cfg.Market.MinCollateral,
			MaxLeverage:          cfg.Market.MaxLeverage,
			MaintenanceMarginBPS: cfg.Market.MaintenanceMarginBPS,
			FundingInterval:      cfg.Market.FundingIntervalSec,
			StalenessWindow:      cfg.Market.StalenessWindowSec,
			PriceDecimals:        cfg.Market.PriceDecimals,
			OracleRef:            feed.Version(),
		})
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrAlreadyInitialized):
			logger.Info("market already initialized, keeping stored config")
		default:
			log.Fatalf("initializing market: %v", err)
		}
	}

	api := httpapi.NewServer(m, logger)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("synapse server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.Liquidator.Enabled {
		scanner := liquidator.New(
			positions,
			m,
			time.Duration(cfg.Liquidator.IntervalSec)*time.Second,
			cfg.Liquidator.RateLimitPerMin,
			logger,
		)
		g.Go(func() error {
			if err := scanner.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
