// Package payment contains the orchestrators that drive multi-step
// payment flows across the EVM request protocol and Solana token
// transfers. Each orchestration is a single sequential flow of control:
// every chain step blocks on the confirmed result of the previous one,
// and progress is reported through a status callback between steps.
package payment

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// InsufficientFundsError means the payer cannot cover amount plus fee.
// No chain transaction was attempted.
type InsufficientFundsError struct {
	Available *big.Int
	Required  *big.Int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: have %s, need %s", e.Available, e.Required)
}

// ApprovalError means the token allowance transaction failed. The
// operation may be retried from the top; no partial resume is supported.
type ApprovalError struct {
	Err error
}

func (e *ApprovalError) Error() string { return fmt.Sprintf("approval failed: %v", e.Err) }
func (e *ApprovalError) Unwrap() error { return e.Err }

// SubmissionError means a chain transaction was rejected or reverted.
// The underlying message is surfaced verbatim.
type SubmissionError struct {
	Step string
	Err  error
}

func (e *SubmissionError) Error() string { return fmt.Sprintf("%s failed: %v", e.Step, e.Err) }
func (e *SubmissionError) Unwrap() error { return e.Err }

// SettlementTimeoutError means payment was submitted and mined but the
// request's detected balance did not reach the expected amount within
// the polling window.
type SettlementTimeoutError struct {
	RequestID string
	Attempts  int
}

func (e *SettlementTimeoutError) Error() string {
	return fmt.Sprintf("request %s not settled after %d polls", e.RequestID, e.Attempts)
}

// NewTransactionID generates an identifier for invoices and completed
// payments: the "payce" prefix plus 24 hex characters.
func NewTransactionID() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "payce" + hex[:24]
}
