package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/payce-finance/payce/service/config"
	"github.com/payce-finance/payce/service/currency"
	"github.com/payce-finance/payce/service/db"
	"github.com/payce-finance/payce/service/intent"
	"github.com/payce-finance/payce/service/payment"
	"github.com/payce-finance/payce/service/temporal"
)

const maxRequestBodySize = 1 << 20 // plenty for invoice and batch payloads

// Store is the persistence surface the read handlers need.
type Store interface {
	GetInvoice(ctx context.Context, transactionID string) (*db.Invoice, error)
	ListInvoices(ctx context.Context, params db.ListInvoicesParams) ([]*db.Invoice, error)
	CreateTransaction(ctx context.Context, params db.CreateTransactionParams) (*db.Transaction, error)
	ListTransactions(ctx context.Context, params db.ListTransactionsParams) ([]*db.Transaction, error)
	GetDashboardStats(ctx context.Context) (*db.DashboardStats, error)
	GetAccountStats(ctx context.Context, address string) (*db.AccountStats, error)
	GetInvoiceStats(ctx context.Context, address string) (*db.InvoiceStats, error)
}

// InvoiceService creates and settles invoices.
type InvoiceService interface {
	Create(ctx context.Context, in *intent.Intent, opts payment.CreateInvoiceOptions) (*db.Invoice, error)
	Settle(ctx context.Context, transactionID, signature, network string) (*db.Invoice, error)
}

// DisbursementClient starts disbursement workflows and reports them.
type DisbursementClient interface {
	StartDisbursement(ctx context.Context, input temporal.DisbursementInput) (*temporal.DisbursementHandle, error)
	GetDisbursement(ctx context.Context, workflowID string) (*temporal.DisbursementStatus, error)
}

type createInvoiceRequest struct {
	intent.Raw
	BusinessEmail string `json:"business_email,omitempty"`
	ClientEmail   string `json:"client_email,omitempty"`
}

// handleCreateInvoice creates a pending invoice.
// POST /api/v1/invoices
func handleCreateInvoice(builder *intent.Builder, invoices InvoiceService, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req createInvoiceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		in, err := builder.Build(req.Raw)
		if err != nil {
			logger.DebugContext(r.Context(), "invoice rejected", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		opts := payment.CreateInvoiceOptions{
			BusinessEmail: req.BusinessEmail,
			ClientEmail:   req.ClientEmail,
		}

		// Solana invoices get a wallet-app payment URL up front; it is
		// stored with the invoice and embedded in notifications.
		var details *paymentDetails
		if in.Currency.Family == currency.FamilySolana {
			details = solanaPaymentDetails(in, cfg.Solana.Mints)
			if details != nil {
				opts.PaymentURL = details.PaymentURL
			}
		}

		inv, err := invoices.Create(r.Context(), in, opts)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to create invoice", "error", err)
			writeError(w, "failed to create invoice", http.StatusInternalServerError)
			return
		}

		resp := invoiceToResponse(inv)
		if details != nil {
			resp.QRCodeData = details.QRCodeData
		}
		writeJSON(w, resp, http.StatusCreated)
	})
}

// handleListInvoices lists invoices with optional filters.
// GET /api/v1/invoices?address=&status=&limit=&offset=
func handleListInvoices(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, offset, err := parsePagination(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		invoices, err := store.ListInvoices(r.Context(), db.ListInvoicesParams{
			Address: r.URL.Query().Get("address"),
			Status:  r.URL.Query().Get("status"),
			Limit:   limit,
			Offset:  offset,
		})
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list invoices", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]invoiceResponse, len(invoices))
		for i, inv := range invoices {
			resp[i] = invoiceToResponse(inv)
		}
		writeJSON(w, map[string]any{
			"invoices": resp,
			"count":    len(resp),
			"limit":    limit,
			"offset":   offset,
		}, http.StatusOK)
	})
}

// handleGetInvoice fetches one invoice.
// GET /api/v1/invoices/{transaction_id}
func handleGetInvoice(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("transaction_id")

		inv, err := store.GetInvoice(r.Context(), id)
		if errors.Is(err, db.ErrInvoiceNotFound) {
			writeError(w, "invoice not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to get invoice", "transaction_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, invoiceToResponse(inv), http.StatusOK)
	})
}

type settleInvoiceRequest struct {
	Signature string `json:"signature"`
	Network   string `json:"network"`
}

// handleSettleInvoice marks an invoice paid.
// POST /api/v1/invoices/{transaction_id}/settle
func handleSettleInvoice(invoices InvoiceService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("transaction_id")

		var req settleInvoiceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Signature == "" {
			writeError(w, "signature is required", http.StatusBadRequest)
			return
		}

		inv, err := invoices.Settle(r.Context(), id, req.Signature, req.Network)
		switch {
		case errors.Is(err, db.ErrInvoiceNotFound):
			writeError(w, "invoice not found", http.StatusNotFound)
			return
		case errors.Is(err, db.ErrInvoiceAlreadyPaid):
			writeError(w, "invoice already paid", http.StatusConflict)
			return
		case err != nil:
			logger.ErrorContext(r.Context(), "failed to settle invoice", "transaction_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, invoiceToResponse(inv), http.StatusOK)
	})
}

// handleInvoiceStats reports invoice counters for an address.
// GET /api/v1/invoices/stats?address=
func handleInvoiceStats(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.URL.Query().Get("address")
		if address == "" {
			writeError(w, "address query parameter is required", http.StatusBadRequest)
			return
		}

		stats, err := store.GetInvoiceStats(r.Context(), address)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to get invoice stats", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{
			"address":       stats.Address,
			"pending":       stats.Pending,
			"overdue":       stats.Overdue,
			"paid":          stats.Paid,
			"pending_total": stats.PendingTotal,
			"paid_total":    stats.PaidTotal,
		}, http.StatusOK)
	})
}

type createTransactionRequest struct {
	intent.Raw
	Signature   string `json:"signature"`
	ExplorerURL string `json:"explorer_url,omitempty"`
}

// handleCreateTransaction records an already confirmed payment.
// POST /api/v1/transactions
func handleCreateTransaction(builder *intent.Builder, store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req createTransactionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Signature == "" {
			writeError(w, "signature is required", http.StatusBadRequest)
			return
		}

		in, err := builder.Build(req.Raw)
		if err != nil {
			logger.DebugContext(r.Context(), "transaction rejected", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		params := db.CreateTransactionParams{
			TransactionID: payment.NewTransactionID(),
			Sender:        in.PayerAddress,
			Recipient:     in.RecipientAddress,
			Amount:        in.Amount.String(),
			AmountDisplay: in.AmountDisplay,
			Currency:      in.Currency.Symbol,
			Network:       in.Currency.Network,
			Signature:     req.Signature,
		}
		if in.Reason != "" {
			params.Reason = &in.Reason
		}
		if req.ExplorerURL != "" {
			params.ExplorerURL = &req.ExplorerURL
		}

		txn, err := store.CreateTransaction(r.Context(), params)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to record transaction", "error", err)
			writeError(w, "failed to record transaction", http.StatusInternalServerError)
			return
		}
		writeJSON(w, transactionToResponse(txn), http.StatusCreated)
	})
}

// handleListTransactions lists recorded payments for an address.
// GET /api/v1/transactions?address=&direction=&network=&limit=&offset=
func handleListTransactions(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.URL.Query().Get("address")
		if address == "" {
			writeError(w, "address query parameter is required", http.StatusBadRequest)
			return
		}
		limit, offset, err := parsePagination(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		direction := r.URL.Query().Get("direction")
		if direction != "" && direction != "in" && direction != "out" {
			writeError(w, "direction must be in or out", http.StatusBadRequest)
			return
		}

		txns, err := store.ListTransactions(r.Context(), db.ListTransactionsParams{
			Address:   address,
			Network:   r.URL.Query().Get("network"),
			Direction: direction,
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list transactions", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]transactionResponse, len(txns))
		for i, txn := range txns {
			resp[i] = transactionToResponse(txn)
		}
		writeJSON(w, map[string]any{
			"transactions": resp,
			"count":        len(resp),
			"limit":        limit,
			"offset":       offset,
		}, http.StatusOK)
	})
}

// handleDashboardStats reports platform-wide counters.
// GET /api/v1/stats/dashboard
func handleDashboardStats(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := store.GetDashboardStats(r.Context())
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to get dashboard stats", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{
			"total_invoices":     stats.TotalInvoices,
			"pending_invoices":   stats.PendingInvoices,
			"paid_invoices":      stats.PaidInvoices,
			"total_transactions": stats.TotalTransactions,
		}, http.StatusOK)
	})
}

// handleAccountStats reports per-address counters.
// GET /api/v1/stats/account?address=
func handleAccountStats(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.URL.Query().Get("address")
		if address == "" {
			writeError(w, "address query parameter is required", http.StatusBadRequest)
			return
		}

		stats, err := store.GetAccountStats(r.Context(), address)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to get account stats", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{
			"address":           stats.Address,
			"invoices_issued":   stats.InvoicesIssued,
			"invoices_received": stats.InvoicesReceived,
			"payments_sent":     stats.PaymentsSent,
			"payments_received": stats.PaymentsReceived,
			"inflow_total":      stats.InflowTotal,
			"outflow_total":     stats.OutflowTotal,
			"net_flow":          stats.NetFlow,
		}, http.StatusOK)
	})
}

type startDisbursementRequest struct {
	PayerAddress string                           `json:"payer_address"`
	Recipients   []temporal.DisbursementRecipient `json:"recipients"`
	Currency     string                           `json:"currency"`
	Network      string                           `json:"network"`
}

// handleStartDisbursement starts a disbursement workflow.
// POST /api/v1/disbursements
func handleStartDisbursement(disbursements DisbursementClient, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if disbursements == nil {
			writeError(w, "disbursements are not enabled", http.StatusServiceUnavailable)
			return
		}

		var req startDisbursementRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.Recipients) == 0 {
			writeError(w, "at least one recipient is required", http.StatusBadRequest)
			return
		}

		input := temporal.DisbursementInput{
			DisbursementID: payment.NewTransactionID(),
			PayerAddress:   req.PayerAddress,
			Recipients:     req.Recipients,
			Currency:       req.Currency,
			Network:        req.Network,
		}

		handle, err := disbursements.StartDisbursement(r.Context(), input)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to start disbursement", "error", err)
			writeError(w, "failed to start disbursement", http.StatusInternalServerError)
			return
		}

		writeJSON(w, map[string]any{
			"disbursement_id": input.DisbursementID,
			"workflow_id":     handle.WorkflowID,
			"run_id":          handle.RunID,
			"status_url":      "/api/v1/disbursements/" + handle.WorkflowID,
		}, http.StatusAccepted)
	})
}

// handleGetDisbursement reports a disbursement workflow's state.
// GET /api/v1/disbursements/{workflow_id}
func handleGetDisbursement(disbursements DisbursementClient, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if disbursements == nil {
			writeError(w, "disbursements are not enabled", http.StatusServiceUnavailable)
			return
		}
		workflowID := r.PathValue("workflow_id")

		st, err := disbursements.GetDisbursement(r.Context(), workflowID)
		if err != nil {
			logger.DebugContext(r.Context(), "disbursement lookup failed", "workflow_id", workflowID, "error", err)
			writeError(w, "disbursement not found", http.StatusNotFound)
			return
		}
		writeJSON(w, st, http.StatusOK)
	})
}

// invoiceResponse is the JSON shape for an invoice.
type invoiceResponse struct {
	TransactionID string         `json:"transaction_id"`
	Status        string         `json:"status"`
	PayerAddress  string         `json:"payer_address"`
	PayeeAddress  string         `json:"payee_address"`
	Amount        string         `json:"amount"`
	AmountDisplay string         `json:"amount_display"`
	Currency      string         `json:"currency"`
	Network       string         `json:"network"`
	Reason        *string        `json:"reason,omitempty"`
	DueDate       *time.Time     `json:"due_date,omitempty"`
	ContentData   map[string]any `json:"content_data,omitempty"`
	PaymentURL    *string        `json:"payment_url,omitempty"`
	QRCodeData    string         `json:"qr_code_data,omitempty"`
	PaidAt        *time.Time     `json:"paid_at,omitempty"`
	ExplorerURL   *string        `json:"explorer_url,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

func invoiceToResponse(inv *db.Invoice) invoiceResponse {
	return invoiceResponse{
		TransactionID: inv.TransactionID,
		Status:        inv.Status,
		PayerAddress:  inv.PayerAddress,
		PayeeAddress:  inv.PayeeAddress,
		Amount:        inv.Amount,
		AmountDisplay: inv.AmountDisplay,
		Currency:      inv.Currency,
		Network:       inv.Network,
		Reason:        inv.Reason,
		DueDate:       inv.DueDate,
		ContentData:   inv.ContentData,
		PaymentURL:    inv.PaymentURL,
		PaidAt:        inv.PaidAt,
		ExplorerURL:   inv.ExplorerURL,
		CreatedAt:     inv.CreatedAt,
	}
}

// transactionResponse is the JSON shape for a recorded payment.
type transactionResponse struct {
	TransactionID string    `json:"transaction_id"`
	Sender        string    `json:"sender"`
	Recipient     string    `json:"recipient"`
	Amount        string    `json:"amount"`
	AmountDisplay string    `json:"amount_display"`
	Currency      string    `json:"currency"`
	Network       string    `json:"network"`
	Reason        *string   `json:"reason,omitempty"`
	Signature     string    `json:"signature"`
	ExplorerURL   *string   `json:"explorer_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func transactionToResponse(t *db.Transaction) transactionResponse {
	return transactionResponse{
		TransactionID: t.TransactionID,
		Sender:        t.Sender,
		Recipient:     t.Recipient,
		Amount:        t.Amount,
		AmountDisplay: t.AmountDisplay,
		Currency:      t.Currency,
		Network:       t.Network,
		Reason:        t.Reason,
		Signature:     t.Signature,
		ExplorerURL:   t.ExplorerURL,
		CreatedAt:     t.CreatedAt,
	}
}

// decodeJSON decodes a bounded request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

// parsePagination reads limit/offset query parameters with defaults.
func parsePagination(r *http.Request) (limit, offset int32, err error) {
	limit = 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil || n < 1 || n > 1000 {
			return 0, 0, errors.New("limit must be an integer between 1 and 1000")
		}
		limit = int32(n)
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil || n < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
		offset = int32(n)
	}
	return limit, offset, nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
