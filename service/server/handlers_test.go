package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payce-finance/payce/service/config"
	"github.com/payce-finance/payce/service/db"
	"github.com/payce-finance/payce/service/intent"
	"github.com/payce-finance/payce/service/payment"
	"github.com/payce-finance/payce/service/temporal"
)

const (
	testSolPayer     = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	testSolRecipient = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	testSolMint      = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func testHandlerLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		PublicURL: "http://localhost:8080",
		Solana: config.SolanaConfig{
			Mints: map[string]string{"USDC-solana": testSolMint},
		},
	}
}

// fakeInvoiceSvc is an in-memory InvoiceService.
type fakeInvoiceSvc struct {
	invoices  map[string]*db.Invoice
	createErr error
}

func newFakeInvoiceSvc() *fakeInvoiceSvc {
	return &fakeInvoiceSvc{invoices: make(map[string]*db.Invoice)}
}

func (f *fakeInvoiceSvc) Create(ctx context.Context, in *intent.Intent, opts payment.CreateInvoiceOptions) (*db.Invoice, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	inv := &db.Invoice{
		TransactionID: payment.NewTransactionID(),
		Status:        "pending",
		PayerAddress:  in.PayerAddress,
		PayeeAddress:  in.RecipientAddress,
		Amount:        in.Amount.String(),
		AmountDisplay: in.AmountDisplay,
		Currency:      in.Currency.Symbol,
		Network:       in.Currency.Network,
		CreatedAt:     time.Now().UTC(),
	}
	if opts.PaymentURL != "" {
		url := opts.PaymentURL
		inv.PaymentURL = &url
	}
	f.invoices[inv.TransactionID] = inv
	return inv, nil
}

func (f *fakeInvoiceSvc) Settle(ctx context.Context, transactionID, signature, network string) (*db.Invoice, error) {
	inv, ok := f.invoices[transactionID]
	if !ok {
		return nil, db.ErrInvoiceNotFound
	}
	if inv.Status == "paid" {
		return nil, db.ErrInvoiceAlreadyPaid
	}
	now := time.Now().UTC()
	inv.Status = "paid"
	inv.PaidAt = &now
	return inv, nil
}

// fakeServerStore is an in-memory Store.
type fakeServerStore struct {
	invoices     []*db.Invoice
	transactions []*db.Transaction
	listErr      error
}

func (f *fakeServerStore) GetInvoice(ctx context.Context, transactionID string) (*db.Invoice, error) {
	for _, inv := range f.invoices {
		if inv.TransactionID == transactionID {
			return inv, nil
		}
	}
	return nil, db.ErrInvoiceNotFound
}

func (f *fakeServerStore) ListInvoices(ctx context.Context, params db.ListInvoicesParams) ([]*db.Invoice, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.invoices, nil
}

func (f *fakeServerStore) CreateTransaction(ctx context.Context, params db.CreateTransactionParams) (*db.Transaction, error) {
	txn := &db.Transaction{
		TransactionID: params.TransactionID,
		Sender:        params.Sender,
		Recipient:     params.Recipient,
		Amount:        params.Amount,
		AmountDisplay: params.AmountDisplay,
		Currency:      params.Currency,
		Network:       params.Network,
		Reason:        params.Reason,
		Signature:     params.Signature,
		ExplorerURL:   params.ExplorerURL,
		CreatedAt:     time.Now().UTC(),
	}
	f.transactions = append(f.transactions, txn)
	return txn, nil
}

func (f *fakeServerStore) ListTransactions(ctx context.Context, params db.ListTransactionsParams) ([]*db.Transaction, error) {
	return f.transactions, nil
}

func (f *fakeServerStore) GetDashboardStats(ctx context.Context) (*db.DashboardStats, error) {
	return &db.DashboardStats{
		TotalInvoices:     int64(len(f.invoices)),
		TotalTransactions: int64(len(f.transactions)),
	}, nil
}

func (f *fakeServerStore) GetAccountStats(ctx context.Context, address string) (*db.AccountStats, error) {
	return &db.AccountStats{Address: address}, nil
}

func (f *fakeServerStore) GetInvoiceStats(ctx context.Context, address string) (*db.InvoiceStats, error) {
	return &db.InvoiceStats{Address: address, PendingTotal: "0", PaidTotal: "0"}, nil
}

// fakeDisbursements is an in-memory DisbursementClient.
type fakeDisbursements struct {
	started  []temporal.DisbursementInput
	startErr error
	status   *temporal.DisbursementStatus
}

func (f *fakeDisbursements) StartDisbursement(ctx context.Context, input temporal.DisbursementInput) (*temporal.DisbursementHandle, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, input)
	return &temporal.DisbursementHandle{
		WorkflowID: "disbursement:" + input.DisbursementID,
		RunID:      "run-001",
	}, nil
}

func (f *fakeDisbursements) GetDisbursement(ctx context.Context, workflowID string) (*temporal.DisbursementStatus, error) {
	if f.status == nil {
		return nil, assert.AnError
	}
	return f.status, nil
}

func TestCreateInvoice(t *testing.T) {
	builder := intent.NewBuilder()
	logger := testHandlerLogger()
	cfg := testConfig()

	tests := []struct {
		name           string
		body           string
		expectedStatus int
		check          func(t *testing.T, svc *fakeInvoiceSvc, body map[string]any)
	}{
		{
			name: "solana invoice gets a payment URL and QR code",
			body: `{
				"payer_address": "` + testSolPayer + `",
				"recipient_address": "` + testSolRecipient + `",
				"amount": "100.50",
				"currency": "USDC",
				"network": "solana",
				"reason": "consulting",
				"business_email": "biz@example.com",
				"client_email": "client@example.com"
			}`,
			expectedStatus: http.StatusCreated,
			check: func(t *testing.T, svc *fakeInvoiceSvc, body map[string]any) {
				url, ok := body["payment_url"].(string)
				require.True(t, ok, "payment_url missing")
				assert.True(t, strings.HasPrefix(url, "solana:"+testSolRecipient+"?"))
				assert.Contains(t, url, "spl-token="+testSolMint)
				assert.Contains(t, url, "amount=100.50")
				assert.NotEmpty(t, body["qr_code_data"])
				assert.Equal(t, "pending", body["status"])
			},
		},
		{
			name: "evm invoice has no payment URL",
			body: `{
				"payer_address": "0x1111111111111111111111111111111111111111",
				"recipient_address": "0x2222222222222222222222222222222222222222",
				"amount": "50",
				"currency": "USDC",
				"network": "base"
			}`,
			expectedStatus: http.StatusCreated,
			check: func(t *testing.T, svc *fakeInvoiceSvc, body map[string]any) {
				assert.NotContains(t, body, "payment_url")
				assert.NotContains(t, body, "qr_code_data")
			},
		},
		{
			name:           "unsupported currency",
			body:           `{"payer_address":"` + testSolPayer + `","recipient_address":"` + testSolRecipient + `","amount":"1","currency":"DOGE","network":"solana"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "malformed body",
			body:           `{"payer_address":`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing amount",
			body:           `{"payer_address":"` + testSolPayer + `","recipient_address":"` + testSolRecipient + `","currency":"USDC","network":"solana"}`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeInvoiceSvc()
			handler := handleCreateInvoice(builder, svc, cfg, logger)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())
			if tt.check != nil {
				var body map[string]any
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				tt.check(t, svc, body)
			}
		})
	}
}

func TestSettleInvoice(t *testing.T) {
	builder := intent.NewBuilder()
	logger := testHandlerLogger()
	svc := newFakeInvoiceSvc()

	in, err := builder.Build(intent.Raw{
		PayerAddress:     testSolPayer,
		RecipientAddress: testSolRecipient,
		Amount:           "100.50",
		Currency:         "USDC",
		Network:          "solana",
	})
	require.NoError(t, err)
	inv, err := svc.Create(context.Background(), in, payment.CreateInvoiceOptions{})
	require.NoError(t, err)

	handler := handleSettleInvoice(svc, logger)
	settle := func(id, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/"+id+"/settle", strings.NewReader(body))
		req.SetPathValue("transaction_id", id)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := settle(inv.TransactionID, `{"signature":"5ig","network":"solana"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "paid", body["status"])

	rec = settle(inv.TransactionID, `{"signature":"5ig","network":"solana"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = settle("txn-missing", `{"signature":"5ig","network":"solana"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = settle(inv.TransactionID, `{"network":"solana"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetInvoice(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeServerStore{invoices: []*db.Invoice{{
		TransactionID: "txn-abc",
		Status:        "pending",
		PayerAddress:  testSolPayer,
		PayeeAddress:  testSolRecipient,
		Amount:        "100500000",
		AmountDisplay: "100.50",
		Currency:      "USDC",
		Network:       "solana",
		CreatedAt:     now,
	}}}
	handler := handleGetInvoice(store, testHandlerLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices/txn-abc", nil)
	req.SetPathValue("transaction_id", "txn-abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/invoices/txn-nope", nil)
	req.SetPathValue("transaction_id", "txn-nope")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListInvoicesPagination(t *testing.T) {
	store := &fakeServerStore{}
	handler := handleListInvoices(store, testHandlerLogger())

	tests := []struct {
		name           string
		query          string
		expectedStatus int
	}{
		{"defaults", "", http.StatusOK},
		{"explicit limit and offset", "?limit=10&offset=20", http.StatusOK},
		{"limit too large", "?limit=5000", http.StatusBadRequest},
		{"limit not a number", "?limit=abc", http.StatusBadRequest},
		{"negative offset", "?offset=-1", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices"+tt.query, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestCreateTransaction(t *testing.T) {
	builder := intent.NewBuilder()
	store := &fakeServerStore{}
	handler := handleCreateTransaction(builder, store, testHandlerLogger())

	body := `{
		"payer_address": "` + testSolPayer + `",
		"recipient_address": "` + testSolRecipient + `",
		"amount": "25",
		"currency": "USDC",
		"network": "solana",
		"signature": "5ig"
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, store.transactions, 1)
	assert.Equal(t, "25000000", store.transactions[0].Amount)
	assert.Equal(t, "5ig", store.transactions[0].Signature)

	// Missing signature is rejected before any persistence.
	noSig := `{"payer_address":"` + testSolPayer + `","recipient_address":"` + testSolRecipient + `","amount":"25","currency":"USDC","network":"solana"}`
	req = httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader(noSig))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, store.transactions, 1)
}

func TestListTransactionsRequiresAddress(t *testing.T) {
	handler := handleListTransactions(&fakeServerStore{}, testHandlerLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/transactions?address="+testSolPayer, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/transactions?address="+testSolPayer+"&direction=sideways", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/transactions?address="+testSolPayer+"&direction=in", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatsHandlers(t *testing.T) {
	store := &fakeServerStore{}
	logger := testHandlerLogger()

	rec := httptest.NewRecorder()
	handleDashboardStats(store, logger).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats/dashboard", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handleAccountStats(store, logger).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats/account", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handleInvoiceStats(store, logger).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/invoices/stats?address="+testSolPayer, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartDisbursement(t *testing.T) {
	logger := testHandlerLogger()

	t.Run("accepted", func(t *testing.T) {
		client := &fakeDisbursements{}
		handler := handleStartDisbursement(client, logger)

		body := `{
			"payer_address": "` + testSolPayer + `",
			"currency": "USDC",
			"network": "solana",
			"recipients": [
				{"address": "` + testSolRecipient + `", "amount": "100"},
				{"address": "` + testSolMint + `", "amount": "50"}
			]
		}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/disbursements", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		require.Len(t, client.started, 1)
		assert.Len(t, client.started[0].Recipients, 2)
		assert.NotEmpty(t, client.started[0].DisbursementID)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "disbursement:"+client.started[0].DisbursementID, resp["workflow_id"])
		assert.Contains(t, resp["status_url"], "/api/v1/disbursements/")
	})

	t.Run("no recipients", func(t *testing.T) {
		client := &fakeDisbursements{}
		handler := handleStartDisbursement(client, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/disbursements",
			strings.NewReader(`{"payer_address":"`+testSolPayer+`","currency":"USDC","network":"solana","recipients":[]}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, client.started)
	})

	t.Run("disabled without a client", func(t *testing.T) {
		handler := handleStartDisbursement(nil, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/disbursements", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestGetDisbursement(t *testing.T) {
	logger := testHandlerLogger()

	client := &fakeDisbursements{status: &temporal.DisbursementStatus{
		WorkflowID: "disbursement:txn-abc",
		Status:     "completed",
	}}
	handler := handleGetDisbursement(client, logger)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/disbursements/disbursement:txn-abc", nil)
	req.SetPathValue("workflow_id", "disbursement:txn-abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp temporal.DisbursementStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp.Status)

	client.status = nil
	req = httptest.NewRequest(http.MethodGet, "/api/v1/disbursements/disbursement:txn-missing", nil)
	req.SetPathValue("workflow_id", "disbursement:txn-missing")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
