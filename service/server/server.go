// Package server exposes the REST surface: invoices, transactions,
// stats and disbursements. Handlers are constructed as closures over
// narrow collaborator interfaces so tests drive them with in-memory
// fakes.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/payce-finance/payce/service/config"
	"github.com/payce-finance/payce/service/intent"
	"github.com/payce-finance/payce/service/metrics"
)

// Server is the HTTP API server.
type Server struct {
	addr          string
	cfg           *config.Config
	store         Store
	invoices      InvoiceService
	disbursements DisbursementClient
	metrics       *metrics.Metrics
	logger        *slog.Logger
	server        *http.Server
}

// New creates the HTTP server. The disbursement client is optional; if
// nil, the disbursement endpoints return 503. Metrics is optional; if
// nil, the /metrics endpoint is disabled.
func New(addr string, cfg *config.Config, store Store, invoices InvoiceService, disbursements DisbursementClient, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:          addr,
		cfg:           cfg,
		store:         store,
		invoices:      invoices,
		disbursements: disbursements,
		metrics:       m,
		logger:        logger,
	}
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	builder := intent.NewBuilder()

	mux.Handle("POST /api/v1/invoices", handleCreateInvoice(builder, s.invoices, s.cfg, s.logger))
	mux.Handle("GET /api/v1/invoices", handleListInvoices(s.store, s.logger))
	mux.Handle("GET /api/v1/invoices/stats", handleInvoiceStats(s.store, s.logger))
	mux.Handle("GET /api/v1/invoices/{transaction_id}", handleGetInvoice(s.store, s.logger))
	mux.Handle("POST /api/v1/invoices/{transaction_id}/settle", handleSettleInvoice(s.invoices, s.logger))

	mux.Handle("POST /api/v1/transactions", handleCreateTransaction(builder, s.store, s.logger))
	mux.Handle("GET /api/v1/transactions", handleListTransactions(s.store, s.logger))

	mux.Handle("GET /api/v1/stats/dashboard", handleDashboardStats(s.store, s.logger))
	mux.Handle("GET /api/v1/stats/account", handleAccountStats(s.store, s.logger))

	mux.Handle("POST /api/v1/disbursements", handleStartDisbursement(s.disbursements, s.logger))
	mux.Handle("GET /api/v1/disbursements/{workflow_id}", handleGetDisbursement(s.disbursements, s.logger))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("prometheus metrics endpoint enabled")
	}

	var handler http.Handler = corsMiddleware(mux)
	if s.metrics != nil {
		handler = metrics.HTTPMetricsMiddleware(s.metrics, "api")(handler)
	}

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  s.cfg.HTTPReadTimeout,
		WriteTimeout: s.cfg.HTTPWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS
// preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
