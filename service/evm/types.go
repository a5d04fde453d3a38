// Package evm provides the chain adapter for EVM networks: a request
// protocol gateway client and an on-chain transaction client used by the
// payment orchestrators. Amounts at this layer are always base-unit
// integers; validation and unit conversion happen upstream.
package evm

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PaymentNetwork describes how settlement of a request is detected on
// chain: where payment must land and what fee the protocol collects.
type PaymentNetwork struct {
	PaymentAddress string `json:"payment_address"`
	FeeAddress     string `json:"fee_address"`
	FeeAmount      string `json:"fee_amount"`
	TokenAddress   string `json:"token_address"`
}

// RequestRecord is a payment request tracked by the request protocol.
// RequestID is assigned once at creation and never changes. Balance is
// re-fetched on demand and is monotonically non-decreasing.
type RequestRecord struct {
	RequestID      string         `json:"request_id"`
	Payee          string         `json:"payee"`
	Payer          string         `json:"payer"`
	ExpectedAmount *big.Int       `json:"-"`
	PaymentNetwork PaymentNetwork `json:"payment_network"`
	Balance        *big.Int       `json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Settled reports whether the observed balance covers the expected amount.
func (r *RequestRecord) Settled() bool {
	return r.Balance != nil && r.Balance.Cmp(r.ExpectedAmount) >= 0
}

// CreateRequestParams are the inputs to request creation.
type CreateRequestParams struct {
	Payee          string
	Payer          string
	ExpectedAmount *big.Int
	TokenAddress   string
	PaymentAddress string
	FeeAddress     string
	FeeAmount      *big.Int
	ContentData    map[string]any
}

// Receipt summarizes a mined transaction.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
}

// RequestClient talks to the request protocol: declaring requests off
// chain and re-reading their settlement balance.
type RequestClient interface {
	CreateRequest(ctx context.Context, params CreateRequestParams) (*RequestRecord, error)
	GetRequest(ctx context.Context, requestID string) (*RequestRecord, error)
	// Refresh re-fetches the request's detected balance from the
	// protocol's payment network.
	Refresh(ctx context.Context, requestID string) (*RequestRecord, error)
}

// PayParams are the inputs to a fee-bearing ERC20 request payment.
type PayParams struct {
	TokenAddress     common.Address
	To               common.Address
	Amount           *big.Int
	PaymentReference []byte
	FeeAmount        *big.Int
	FeeAddress       common.Address
}

// BatchLine is one recipient of a combined batch payment.
type BatchLine struct {
	To               common.Address
	Amount           *big.Int
	PaymentReference []byte
	FeeAmount        *big.Int
}

// TxClient performs on-chain ERC20 and protocol-contract operations from
// a single signer account.
type TxClient interface {
	// Address returns the signer account address.
	Address() common.Address

	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	// Approve sets the token allowance for spender and waits for the
	// transaction to confirm.
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (*Receipt, error)

	// FeeProxyAddress is the spender for single request payments.
	FeeProxyAddress() common.Address
	// PayRequest pays one request through the fee proxy contract.
	PayRequest(ctx context.Context, params PayParams) (*Receipt, error)

	// BatchProxyAddress is the spender for combined batch payments.
	BatchProxyAddress() common.Address
	// PayBatch pays all lines in one combined transaction. The chain
	// either mines the whole batch or none of it.
	PayBatch(ctx context.Context, token common.Address, lines []BatchLine, feeAddress common.Address) (*Receipt, error)

	// EscrowAddress is the spender for escrow funding.
	EscrowAddress() common.Address
	PayEscrow(ctx context.Context, params PayParams) (*Receipt, error)
	PayRequestFromEscrow(ctx context.Context, paymentReference []byte) (*Receipt, error)
	FreezeRequest(ctx context.Context, paymentReference []byte) (*Receipt, error)
	InitiateEmergencyClaim(ctx context.Context, paymentReference []byte) (*Receipt, error)

	// DeployForwarder deploys a single-request forwarder bound to the
	// payee, token and payment reference, returning its address.
	DeployForwarder(ctx context.Context, payee, token common.Address, paymentReference []byte) (common.Address, *Receipt, error)
}
