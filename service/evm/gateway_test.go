package evm

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRequest_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/requests", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		err := json.NewDecoder(r.Body).Decode(&body)
		require.NoError(t, err)
		assert.Equal(t, "0xPayee", body["payee"])
		assert.Equal(t, "100000000", body["expected_amount"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"request_id":      "req-abc123",
			"payee":           "0xPayee",
			"payer":           "0xPayer",
			"expected_amount": "100000000",
			"balance":         "0",
		})
	}))
	defer server.Close()

	g := NewGateway(server.URL, nil, nil)
	record, err := g.CreateRequest(context.Background(), CreateRequestParams{
		Payee:          "0xPayee",
		Payer:          "0xPayer",
		ExpectedAmount: big.NewInt(100000000),
		FeeAmount:      big.NewInt(500000),
	})
	require.NoError(t, err)

	assert.Equal(t, "req-abc123", record.RequestID)
	assert.Equal(t, "100000000", record.ExpectedAmount.String())
	assert.Equal(t, "0", record.Balance.String())
	assert.False(t, record.Settled())
}

func TestCreateRequest_GatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "payee address malformed",
		})
	}))
	defer server.Close()

	g := NewGateway(server.URL, nil, nil)
	_, err := g.CreateRequest(context.Background(), CreateRequestParams{
		Payee:          "bogus",
		ExpectedAmount: big.NewInt(1),
		FeeAmount:      big.NewInt(0),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payee address malformed")
}

func TestRefresh_ReportsSettledBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/v1/requests/req-abc123", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("refresh"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"request_id":      "req-abc123",
			"payee":           "0xPayee",
			"expected_amount": "100000000",
			"balance":         "100000000",
		})
	}))
	defer server.Close()

	g := NewGateway(server.URL, nil, nil)
	record, err := g.Refresh(context.Background(), "req-abc123")
	require.NoError(t, err)
	assert.True(t, record.Settled())
}

func TestGetRequest_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("refresh"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "request not found"})
	}))
	defer server.Close()

	g := NewGateway(server.URL, nil, nil)
	_, err := g.GetRequest(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request not found")
}

func TestGetRequest_BadAmount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"request_id":      "req-1",
			"expected_amount": "not-a-number",
		})
	}))
	defer server.Close()

	g := NewGateway(server.URL, nil, nil)
	_, err := g.GetRequest(context.Background(), "req-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid expected_amount")
}

func TestPaymentReferenceStable(t *testing.T) {
	a := PaymentReference("req-abc123")
	b := PaymentReference("req-abc123")
	c := PaymentReference("req-other")

	assert.Len(t, a, 8)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
