package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/payce-finance/payce/service/config"
	"github.com/payce-finance/payce/service/currency"
	"github.com/payce-finance/payce/service/db"
	"github.com/payce-finance/payce/service/evm"
	"github.com/payce-finance/payce/service/metrics"
	"github.com/payce-finance/payce/service/payment"
	solanasvc "github.com/payce-finance/payce/service/solana"
	"github.com/payce-finance/payce/service/temporal"
)

func main() {
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting temporal worker",
		"temporal_host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	store := db.NewStore(dbPool, metricsCollector)

	// The worker exposes its own metrics endpoint; the API server has
	// its own on /metrics.
	metricsAddr := getEnv("METRICS_ADDR", ":9091")
	metricsServer := &http.Server{
		Addr:    metricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info("starting metrics HTTP server", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}()

	feeAddress, err := parseEVMAddress(cfg.FeeAddress)
	if err != nil {
		logger.Error("invalid FEE_ADDRESS", "error", err)
		os.Exit(1)
	}

	evmClient, err := buildEVMClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create EVM client", "error", err)
		os.Exit(1)
	}
	logger.Info("initialized EVM client", "rpc_url", cfg.EVM.RPCURL, "signer", evmClient.Address().Hex())

	gateway := evm.NewGateway(cfg.EVM.GatewayURL, nil, logger)
	logger.Info("initialized request gateway client", "url", cfg.EVM.GatewayURL)

	evmTokens, err := parseEVMTokens(cfg.EVM.TokenAddresses)
	if err != nil {
		logger.Error("invalid EVM_TOKEN_ADDRESSES", "error", err)
		os.Exit(1)
	}

	solanaClient, err := buildSolanaClient(cfg, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to create solana client", "error", err)
		os.Exit(1)
	}
	logger.Info("initialized solana client", "rpc_url", cfg.Solana.RPCURL, "sender", solanaClient.Address().String())

	mints, err := parseSolanaMints(cfg.Solana.Mints)
	if err != nil {
		logger.Error("invalid SOLANA_MINTS", "error", err)
		os.Exit(1)
	}

	strategies := map[currency.Family]payment.BatchStrategy{
		currency.FamilyEVM:    payment.NewEVMBatchStrategy(gateway, evmClient, store, feeAddress, evmTokens, metricsCollector, logger),
		currency.FamilySolana: payment.NewSolanaBatchStrategy(solanaClient, store, mints, metricsCollector, logger),
	}

	worker, err := temporal.NewWorker(temporal.WorkerConfig{
		TemporalHost:      cfg.TemporalHost,
		TemporalNamespace: cfg.TemporalNamespace,
		TaskQueue:         cfg.TemporalTaskQueue,
		Strategies:        strategies,
		Metrics:           metricsCollector,
		Logger:            logger,
	})
	if err != nil {
		logger.Error("failed to create temporal worker", "error", err)
		os.Exit(1)
	}

	logger.Info("temporal worker initialized, all dependencies ready",
		"evm_tokens", len(evmTokens),
		"solana_mints", len(mints),
		"task_queue", cfg.TemporalTaskQueue,
	)

	workerErrors := make(chan error, 1)
	go func() {
		logger.Info("starting temporal worker")
		workerErrors <- worker.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-workerErrors:
		logger.Error("temporal worker error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		logger.Info("stopping temporal worker")
		worker.Stop()
		logger.Info("temporal worker stopped")

		logger.Info("shutdown complete")
	}
}

func buildEVMClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*evm.Client, error) {
	feeProxy, err := parseEVMAddress(cfg.EVM.FeeProxyAddress)
	if err != nil {
		return nil, fmt.Errorf("fee proxy: %w", err)
	}
	batchProxy, err := parseEVMAddress(cfg.EVM.BatchProxyAddress)
	if err != nil {
		return nil, fmt.Errorf("batch proxy: %w", err)
	}
	escrow, err := parseEVMAddress(cfg.EVM.EscrowAddress)
	if err != nil {
		return nil, fmt.Errorf("escrow: %w", err)
	}
	factory, err := parseEVMAddress(cfg.EVM.ForwarderFactoryAddress)
	if err != nil {
		return nil, fmt.Errorf("forwarder factory: %w", err)
	}

	return evm.NewClient(ctx, evm.ClientConfig{
		RPCURL:        cfg.EVM.RPCURL,
		PrivateKeyHex: cfg.EVM.PrivateKeyHex,
		Contracts: evm.ContractAddresses{
			FeeProxy:         feeProxy,
			BatchProxy:       batchProxy,
			Escrow:           escrow,
			ForwarderFactory: factory,
		},
	}, logger)
}

func buildSolanaClient(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*solanasvc.Client, error) {
	wallet, err := solanasvc.NewLocalWallet(cfg.Solana.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("wallet: %w", err)
	}
	rpcClient := solanasvc.NewRPCClient(cfg.Solana.RPCURL)
	return solanasvc.NewClient(rpcClient, wallet, cfg.Solana.RPCURL, m, logger), nil
}

func parseEVMAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("not a hex address: %q", s)
	}
	return common.HexToAddress(s), nil
}

// parseEVMTokens converts the configured currency-key to token-contract
// map into checked addresses.
func parseEVMTokens(raw map[string]string) (map[string]common.Address, error) {
	tokens := make(map[string]common.Address, len(raw))
	for key, addr := range raw {
		parsed, err := parseEVMAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("token %s: %w", key, err)
		}
		tokens[key] = parsed
	}
	return tokens, nil
}

// parseSolanaMints converts the configured currency-key to mint map
// into checked public keys.
func parseSolanaMints(raw map[string]string) (map[string]solanago.PublicKey, error) {
	mints := make(map[string]solanago.PublicKey, len(raw))
	for key, mint := range raw {
		parsed, err := solanago.PublicKeyFromBase58(mint)
		if err != nil {
			return nil, fmt.Errorf("mint %s: %w", key, err)
		}
		mints[key] = parsed
	}
	return mints, nil
}

// setupLogger creates a structured logger with the given level and format.
func setupLogger(levelStr, format string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// getEnv returns the value of an environment variable or a default if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
