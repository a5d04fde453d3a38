// Package client is the HTTP client for the payce payment service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Sentinel errors mapped from API status codes.
var (
	ErrNotFound    = errors.New("not found")
	ErrAlreadyPaid = errors.New("invoice already paid")
)

// Invoice is a payment request tracked by the server.
type Invoice struct {
	TransactionID string     `json:"transaction_id"`
	Status        string     `json:"status"`
	PayerAddress  string     `json:"payer_address"`
	PayeeAddress  string     `json:"payee_address"`
	Amount        string     `json:"amount"`
	AmountDisplay string     `json:"amount_display"`
	Currency      string     `json:"currency"`
	Network       string     `json:"network"`
	Reason        *string    `json:"reason,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	PaymentURL    *string    `json:"payment_url,omitempty"`
	QRCodeData    string     `json:"qr_code_data,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	ExplorerURL   *string    `json:"explorer_url,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Transaction is a confirmed payment recorded by the server.
type Transaction struct {
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

// InvoiceParams creates an invoice.
type InvoiceParams struct {
	PayerAddress     string `json:"payer_address"`
	RecipientAddress string `json:"recipient_address"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	Network          string `json:"network"`
	Reason           string `json:"reason,omitempty"`
	DueDate          string `json:"due_date,omitempty"`
	BusinessEmail    string `json:"business_email,omitempty"`
	ClientEmail      string `json:"client_email,omitempty"`
}

// TransactionParams records an already confirmed payment.
type TransactionParams struct {
	PayerAddress     string `json:"payer_address"`
	RecipientAddress string `json:"recipient_address"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	Network          string `json:"network"`
	Reason           string `json:"reason,omitempty"`
	Signature        string `json:"signature"`
	ExplorerURL      string `json:"explorer_url,omitempty"`
}

// DisbursementRecipient is one line of a disbursement.
type DisbursementRecipient struct {
	Address       string `json:"address"`
	Amount        string `json:"amount"`
	Reason        string `json:"reason,omitempty"`
	RecipientName string `json:"recipient_name,omitempty"`
}

// DisbursementParams starts a disbursement workflow.
type DisbursementParams struct {
	PayerAddress string                  `json:"payer_address"`
	Recipients   []DisbursementRecipient `json:"recipients"`
	Currency     string                  `json:"currency"`
	Network      string                  `json:"network"`
}

// DisbursementHandle identifies a started disbursement.
type DisbursementHandle struct {
	DisbursementID string `json:"disbursement_id"`
	WorkflowID     string `json:"workflow_id"`
	RunID          string `json:"run_id"`
	StatusURL      string `json:"status_url"`
}

// DisbursementStatus reports a disbursement's progress.
type DisbursementStatus struct {
	WorkflowID string              `json:"workflow_id"`
	Status     string              `json:"status"`
	Result     *DisbursementResult `json:"result,omitempty"`
}

// RecipientOutcome is one recipient's final state in a disbursement.
type RecipientOutcome struct {
	Address     string `json:"address"`
	Amount      string `json:"amount"`
	Status      string `json:"status"`
	Signature   string `json:"signature,omitempty"`
	ExplorerURL string `json:"explorer_url,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// DisbursementResult is a completed disbursement's terminal state.
type DisbursementResult struct {
	DisbursementID string             `json:"disbursement_id"`
	Total          int                `json:"total"`
	Succeeded      int                `json:"succeeded"`
	Failed         int                `json:"failed"`
	Results        []RecipientOutcome `json:"results"`
	CompletedAt    time.Time          `json:"completed_at"`
	Error          *string            `json:"error,omitempty"`
}

// InvoiceStats are per-address invoice counters.
type InvoiceStats struct {
	Address      string `json:"address"`
	Pending      int64  `json:"pending"`
	Overdue      int64  `json:"overdue"`
	Paid         int64  `json:"paid"`
	PendingTotal string `json:"pending_total"`
	PaidTotal    string `json:"paid_total"`
}

// Client is the HTTP client for the payce service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new payce service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// CreateInvoice creates a pending invoice.
func (c *Client) CreateInvoice(ctx context.Context, params InvoiceParams) (*Invoice, error) {
	var invoice Invoice
	if err := c.do(ctx, "POST", "/api/v1/invoices", params, http.StatusCreated, &invoice); err != nil {
		return nil, err
	}
	c.logger.Debug("invoice created", "transaction_id", invoice.TransactionID)
	return &invoice, nil
}

// GetInvoice fetches one invoice.
func (c *Client) GetInvoice(ctx context.Context, transactionID string) (*Invoice, error) {
	var invoice Invoice
	path := "/api/v1/invoices/" + url.PathEscape(transactionID)
	if err := c.do(ctx, "GET", path, nil, http.StatusOK, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// ListInvoicesOptions filter the invoice listing.
type ListInvoicesOptions struct {
	Address string
	Status  string
	Limit   int
	Offset  int
}

// ListInvoices lists invoices newest first.
func (c *Client) ListInvoices(ctx context.Context, opts ListInvoicesOptions) ([]*Invoice, error) {
	q := url.Values{}
	if opts.Address != "" {
		q.Set("address", opts.Address)
	}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	var response struct {
		Invoices []*Invoice `json:"invoices"`
	}
	path := "/api/v1/invoices"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	if err := c.do(ctx, "GET", path, nil, http.StatusOK, &response); err != nil {
		return nil, err
	}
	return response.Invoices, nil
}

// SettleInvoice marks an invoice paid with the settling signature.
// Returns ErrAlreadyPaid if the invoice was settled before.
func (c *Client) SettleInvoice(ctx context.Context, transactionID, signature, network string) (*Invoice, error) {
	body := map[string]string{
		"signature": signature,
		"network":   network,
	}
	var invoice Invoice
	path := "/api/v1/invoices/" + url.PathEscape(transactionID) + "/settle"
	if err := c.do(ctx, "POST", path, body, http.StatusOK, &invoice); err != nil {
		return nil, err
	}
	c.logger.Debug("invoice settled", "transaction_id", transactionID, "signature", signature)
	return &invoice, nil
}

// GetInvoiceStats fetches invoice counters for an address.
func (c *Client) GetInvoiceStats(ctx context.Context, address string) (*InvoiceStats, error) {
	var stats InvoiceStats
	path := "/api/v1/invoices/stats?address=" + url.QueryEscape(address)
	if err := c.do(ctx, "GET", path, nil, http.StatusOK, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// CreateTransaction records an already confirmed payment.
func (c *Client) CreateTransaction(ctx context.Context, params TransactionParams) (*Transaction, error) {
	var txn Transaction
	if err := c.do(ctx, "POST", "/api/v1/transactions", params, http.StatusCreated, &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

// ListTransactions lists recorded payments for an address.
func (c *Client) ListTransactions(ctx context.Context, address string, limit, offset int) ([]*Transaction, error) {
	q := url.Values{}
	q.Set("address", address)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}

	var response struct {
		Transactions []*Transaction `json:"transactions"`
	}
	if err := c.do(ctx, "GET", "/api/v1/transactions?"+q.Encode(), nil, http.StatusOK, &response); err != nil {
		return nil, err
	}
	return response.Transactions, nil
}

// StartDisbursement starts a disbursement workflow and returns without
// waiting for it.
func (c *Client) StartDisbursement(ctx context.Context, params DisbursementParams) (*DisbursementHandle, error) {
	var handle DisbursementHandle
	if err := c.do(ctx, "POST", "/api/v1/disbursements", params, http.StatusAccepted, &handle); err != nil {
		return nil, err
	}
	c.logger.Debug("disbursement started", "workflow_id", handle.WorkflowID)
	return &handle, nil
}

// GetDisbursement reports a disbursement workflow's state.
func (c *Client) GetDisbursement(ctx context.Context, workflowID string) (*DisbursementStatus, error) {
	var status DisbursementStatus
	path := "/api/v1/disbursements/" + url.PathEscape(workflowID)
	if err := c.do(ctx, "GET", path, nil, http.StatusOK, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Health checks the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// do performs a JSON request and decodes the response into out when it
// matches the expected status.
func (c *Client) do(ctx context.Context, method, path string, body any, wantStatus int, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return c.parseErrorResponse(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrAlreadyPaid
	}

	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
