package solana

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// TransferParams describe one SPL token transfer.
type TransferParams struct {
	Recipient solana.PublicKey
	Mint      solana.PublicKey
	// Amount in base units of the mint.
	Amount  uint64
	Network string
	Reason  string
}

// TransferResult is the settlement evidence for a confirmed transfer.
type TransferResult struct {
	Signature   string
	Slot        uint64
	ExplorerURL string
}

// InsufficientBalanceError is returned before any transaction is built
// when the sender's token account cannot cover the transfer.
type InsufficientBalanceError struct {
	Available uint64
	Required  uint64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient token balance: have %d, need %d", e.Available, e.Required)
}

// ConfirmationTimeoutError is returned when a broadcast transaction is
// not observed as confirmed within the polling window. The transaction
// may still land on chain afterwards.
type ConfirmationTimeoutError struct {
	Signature string
	Attempts  int
}

func (e *ConfirmationTimeoutError) Error() string {
	return fmt.Sprintf("transaction %s not confirmed after %d attempts", e.Signature, e.Attempts)
}

// ExplorerURL builds the explorer link for a transaction signature.
// Non-mainnet networks carry a cluster query parameter.
func ExplorerURL(network, signature string) string {
	u := "https://explorer.solana.com/tx/" + signature
	if strings.Contains(network, "devnet") {
		u += "?cluster=devnet"
	}
	return u
}
