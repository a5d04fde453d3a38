package evm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"time"
)

// Gateway is the HTTP client for the request protocol gateway. It
// implements RequestClient.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGateway creates a request gateway client.
func NewGateway(baseURL string, httpClient *http.Client, logger *slog.Logger) *Gateway {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Gateway{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// requestResponse is the gateway's wire format for a request. Amounts
// come back as decimal strings.
type requestResponse struct {
	RequestID      string         `json:"request_id"`
	Payee          string         `json:"payee"`
	Payer          string         `json:"payer"`
	ExpectedAmount string         `json:"expected_amount"`
	PaymentNetwork PaymentNetwork `json:"payment_network"`
	Balance        string         `json:"balance"`
	CreatedAt      time.Time      `json:"created_at"`
}

// CreateRequest declares a new payment request with the gateway.
func (g *Gateway) CreateRequest(ctx context.Context, params CreateRequestParams) (*RequestRecord, error) {
	reqBody := map[string]any{
		"payee":           params.Payee,
		"payer":           params.Payer,
		"expected_amount": params.ExpectedAmount.String(),
		"payment_network": PaymentNetwork{
			PaymentAddress: params.PaymentAddress,
			FeeAddress:     params.FeeAddress,
			FeeAmount:      params.FeeAmount.String(),
			TokenAddress:   params.TokenAddress,
		},
		"content_data": params.ContentData,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/api/v1/requests", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, g.parseErrorResponse(resp)
	}

	var apiReq requestResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiReq); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	record, err := responseToRecord(&apiReq)
	if err != nil {
		return nil, err
	}
	g.logger.Debug("request created", "request_id", record.RequestID, "payee", record.Payee)
	return record, nil
}

// GetRequest fetches a request by id.
func (g *Gateway) GetRequest(ctx context.Context, requestID string) (*RequestRecord, error) {
	return g.get(ctx, requestID, false)
}

// Refresh re-fetches a request with its balance recomputed from the
// payment network.
func (g *Gateway) Refresh(ctx context.Context, requestID string) (*RequestRecord, error) {
	return g.get(ctx, requestID, true)
}

func (g *Gateway) get(ctx context.Context, requestID string, refresh bool) (*RequestRecord, error) {
	u := fmt.Sprintf("%s/api/v1/requests/%s", g.baseURL, url.PathEscape(requestID))
	if refresh {
		u += "?refresh=true"
	}
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, g.parseErrorResponse(resp)
	}

	var apiReq requestResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiReq); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return responseToRecord(&apiReq)
}

// responseToRecord converts the gateway wire format to a domain record.
func responseToRecord(resp *requestResponse) (*RequestRecord, error) {
	expected, ok := new(big.Int).SetString(resp.ExpectedAmount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid expected_amount %q", resp.ExpectedAmount)
	}
	balance := new(big.Int)
	if resp.Balance != "" {
		balance, ok = new(big.Int).SetString(resp.Balance, 10)
		if !ok {
			return nil, fmt.Errorf("invalid balance %q", resp.Balance)
		}
	}

	return &RequestRecord{
		RequestID:      resp.RequestID,
		Payee:          resp.Payee,
		Payer:          resp.Payer,
		ExpectedAmount: expected,
		PaymentNetwork: resp.PaymentNetwork,
		Balance:        balance,
		CreatedAt:      resp.CreatedAt,
	}, nil
}

// parseErrorResponse attempts to parse an error response from the gateway.
func (g *Gateway) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("gateway request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("gateway request failed: %s", errResp.Error)
}
