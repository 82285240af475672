// Arb-bot — the opportunity discovery and execution core for an on-chain
// arbitrage bot that clears open limit orders on a decentralised orderbook,
// either by routing through external AMM liquidity (route-processor mode)
// or by matching two opposing resting orders directly (intra-orderbook
// mode).
//
// Architecture (dependency order, leaves first):
//
//	internal/chain     — C1+C2: quote/liquidity oracle, gas & native-price oracle
//	internal/simulate   — C3: gas estimation + revert/insufficient-funds classification
//	internal/dryrun     — C4+C5: route-processor and intra-orderbook calldata + probe
//	internal/sizer      — C6: binary-search trade sizing
//	internal/bundler    — C8: groups raw orders into per-pair bundles
//	internal/pair       — C7: drives one bundle through size → submit → receipt → report
//	internal/round      — C9: iterates all bundles once per round, terminates on NoWalletFund
//	internal/risk       — wallet-fund cooldown and halt-reason aggregation across rounds
//	internal/telemetry  — OTEL spans/metrics per pair, optional WebSocket dashboard push
//	internal/orders     — loads raw order records from a local JSON file
//	internal/pools      — subgraph-backed AMM route/liquidity lookups
//	internal/signer     — transaction signing and receipt polling
//
// main.go wires all of the above from configs/config.yaml, starts the round
// runner, and blocks until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"polymarket-mm/internal/cache"
	"polymarket-mm/internal/chain"
	"polymarket-mm/internal/config"
	"polymarket-mm/internal/dryrun"
	"polymarket-mm/internal/orders"
	"polymarket-mm/internal/pair"
	"polymarket-mm/internal/pools"
	"polymarket-mm/internal/risk"
	"polymarket-mm/internal/round"
	"polymarket-mm/internal/signer"
	"polymarket-mm/internal/simulate"
	"polymarket-mm/internal/sizer"
	"polymarket-mm/internal/telemetry"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("ARB_CONFIG"); p != "" {
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

	logger := newLogger(cfg.Logging)

	if cfg.DryRun {
		logger.Warn("dry_run is set; it is only shown in the dashboard config summary and transactions are still submitted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry := telemetry.InitProvider(ctx, telemetry.ExporterConfig{PrettyPrint: cfg.Logging.Format == "text"}, logger)

	eth, err := signer.NewFromRPC(ctx, cfg.Chain.RPCs[0])
	if err != nil {
		logger.Error("failed to dial rpc", "error", err, "rpc", cfg.Chain.RPCs[0])
		os.Exit(1)
	}

	poolCache, err := cache.Open(cfg.Chain.CacheDir, cfg.Chain.CacheTTL)
	if err != nil {
		logger.Error("failed to open pool cache", "error", err)
		os.Exit(1)
	}

	fetcher := pools.New(cfg.Chain.Subgraphs, cfg.Chain.Timeout)
	chainClient := chain.NewClient(eth, fetcher, poolCache, cfg.Chain.LPs, logger)

	sim := simulate.New(eth, simulate.Config{
		Headroom: cfg.Chain.GasHeadroom,
	})

	arbAddr := common.HexToAddress(cfg.Contracts.ArbAddress)
	routerAddr := common.HexToAddress(cfg.Contracts.RouteProcessor)
	dryrunner := dryrun.NewRunner(chainClient, sim, arbAddr, routerAddr, cfg.Contracts.RouteProcessorVer, cfg.Contracts.GasCoveragePct, cfg.Contracts.MaxRatio)

	wallet, err := signer.New(cfg.Wallet.PrivateKey, cfg.Wallet.ChainID, eth)
	if err != nil {
		logger.Error("failed to create signer", "error", err)
		os.Exit(1)
	}

	var flashbot *signer.Signer
	if cfg.Wallet.FlashbotRPC != "" && cfg.Wallet.FlashbotKey != "" {
		flashbotEth, err := signer.NewFromRPC(ctx, cfg.Wallet.FlashbotRPC)
		if err != nil {
			logger.Error("failed to dial flashbot rpc", "error", err)
			os.Exit(1)
		}
		flashbot, err = signer.New(cfg.Wallet.FlashbotKey, cfg.Wallet.ChainID, flashbotEth)
		if err != nil {
			logger.Error("failed to create flashbot signer", "error", err)
			os.Exit(1)
		}
	}

	receipts := signer.NewReceiptPoller(eth, 2*time.Second)

	var flashbotWallet pair.Wallet
	if flashbot != nil {
		flashbotWallet = flashbot
	}

	processor := pair.NewProcessor(chainClient, dryrunner, pair.Config{
		MaxRatio:      cfg.Contracts.MaxRatio,
		SubmitTimeout: cfg.Round.TxTimeout,
		Sizer:         sizer.Config{Hops: cfg.Sizer.Hops},
		Retries:       cfg.Sizer.Retries,
	}, wallet, flashbotWallet, receipts, logger)

	orderSource := orders.NewFileSource(cfg.Orders)

	riskMgr := risk.NewManager(cfg.Risk, logger)

	tele := telemetry.New(logger)

	roundRunner := round.New(round.Config{
		Bundle:       cfg.Orders.Bundle,
		Shuffle:      cfg.Orders.Shuffle,
		Repetitions:  cfg.Round.Repetitions,
		Sleep:        cfg.Round.Sleep,
		RefreshEvery: cfg.Chain.PoolUpdateInterval,
	}, orderSource, chainClient, chainClient, processor, poolCache, riskMgr, tele, nil, cfg.Chain.RPCs, logger)

	var dashServer *telemetry.Server
	if cfg.Dashboard.Enabled {
		dashServer = telemetry.NewServer(cfg.Dashboard, roundRunner, riskMgr, *cfg, logger)
		roundRunner.SetDashboard(dashServer)
		go func() {
			if err := dashServer.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	roundRunner.Start()

	logger.Info("arb bot started",
		"chain_id", cfg.Wallet.ChainID,
		"route_processor_version", cfg.Contracts.RouteProcessorVer,
		"repetitions", cfg.Round.Repetitions,
		"dry_run", cfg.DryRun,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if dashServer != nil {
		if err := dashServer.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}

	roundRunner.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error("failed to shut down telemetry providers", "error", err)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
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
