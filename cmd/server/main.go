package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/payce-finance/payce/service/config"
	"github.com/payce-finance/payce/service/db"
	"github.com/payce-finance/payce/service/metrics"
	"github.com/payce-finance/payce/service/notify"
	"github.com/payce-finance/payce/service/payment"
	"github.com/payce-finance/payce/service/server"
	"github.com/payce-finance/payce/service/temporal"
)

func main() {
	// Fails fast if any required config is missing or invalid.
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
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

	// Notifications are best-effort: a missing NATS endpoint degrades to
	// no emails, not a failed server.
	var notifier notify.Notifier
	if js, err := notify.NewNotifier(cfg.NATSURL, metricsCollector, logger); err != nil {
		logger.Warn("notifications disabled", "error", err)
	} else {
		notifier = js
		defer js.Close()
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	invoices := payment.NewInvoiceService(store, notifier, metricsCollector, logger)

	// Disbursement endpoints need Temporal; without it they return 503.
	var disbursements server.DisbursementClient
	if tc, err := temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger); err != nil {
		logger.Warn("disbursements disabled", "error", err)
	} else {
		disbursements = tc
		defer tc.Close()
		logger.Info("connected to temporal",
			"host", cfg.TemporalHost,
			"namespace", cfg.TemporalNamespace,
		)
	}

	httpServer := server.New(cfg.ServerAddr, cfg, store, invoices, disbursements, metricsCollector, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
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
