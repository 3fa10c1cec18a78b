// Command keeper runs an automated market maker for a single binary-outcome
// prediction market, quoting resting orders around a reference mid-price
// according to a configurable bands strategy.
//
// Architecture:
//
//	main.go                      — entry point: loads config, starts keeper + opstatus, waits for SIGINT/SIGTERM
//	internal/keeper/keeper.go    — orchestrator: resolves the market, wires C1-C5, manages lifecycle
//	internal/shadowbook          — C1: in-memory order book replica
//	internal/pricelistener       — C2: market-data WebSocket feed
//	internal/strategy            — C3: bands strategy
//	internal/orderbook           — C4: order book manager (place/cancel/reconcile)
//	internal/syncloop            — C5: synchronize loop
//	internal/exchange            — REST client + L1/L2 auth for the CLOB API
//	internal/market/resolver.go  — resolves a condition id to its two asset ids
//	internal/opstatus            — health + read-only snapshot HTTP surface
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"polymarket-mm/internal/config"
	"polymarket-mm/internal/keeper"
	"polymarket-mm/internal/metrics"
	"polymarket-mm/internal/opstatus"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("POLY_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	var rec metrics.Recorder = metrics.NoOp{}
	if cfg.Ops.Enabled {
		rec = metrics.NewPrometheus(prometheus.DefaultRegisterer)
	}

	kpr, err := keeper.New(*cfg, logger, rec)
	if err != nil {
		logger.Error("failed to build keeper", "error", err)
		os.Exit(1)
	}

	var opsServer *opstatus.Server
	if cfg.Ops.Enabled {
		opsServer = opstatus.NewServer(opstatus.Config{
			Port:   cfg.Ops.Port,
			Market: kpr.Market(),
			Book:   kpr.Book(),
			OBM:    kpr.OrderBookManager(),
			Logger: logger,
		})
		go func() {
			if err := opsServer.Start(); err != nil {
				logger.Error("opstatus server failed", "error", err)
			}
		}()
		logger.Info("operational HTTP server started", "url", fmt.Sprintf("http://localhost:%d", cfg.Ops.Port))
	}

	kpr.Start()

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}
	logger.Info("keeper started", "condition_id", cfg.Market.ConditionID, "dry_run", cfg.DryRun)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if opsServer != nil {
		if err := opsServer.Stop(); err != nil {
			logger.Error("failed to stop opstatus server", "error", err)
		}
	}

	kpr.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
