package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/payce-finance/payce/service/metrics"
)

const (
	confirmPollInterval = 1 * time.Second
	confirmMaxAttempts  = 60
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real
// Solana nodes.
type RPCClient interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// Wallet signs transactions for one Solana account.
type Wallet interface {
	PublicKey() solana.PublicKey
	SignTransaction(tx *solana.Transaction) error
}

// LocalWallet is a Wallet backed by an in-process private key.
type LocalWallet struct {
	key solana.PrivateKey
}

// NewLocalWallet parses a base58-encoded private key.
func NewLocalWallet(base58Key string) (*LocalWallet, error) {
	key, err := solana.PrivateKeyFromBase58(base58Key)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &LocalWallet{key: key}, nil
}

func (w *LocalWallet) PublicKey() solana.PublicKey { return w.key.PublicKey() }

func (w *LocalWallet) SignTransaction(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.key.PublicKey()) {
			return &w.key
		}
		return nil
	})
	return err
}

// Client performs SPL token transfers from a single wallet.
// The endpoint parameter is used for metrics labeling (e.g. "mainnet",
// "devnet", or RPC hostname). If metrics is nil, no metrics are recorded.
type Client struct {
	rpc      RPCClient
	wallet   Wallet
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string

	pollInterval time.Duration
	maxAttempts  int
}

// NewClient creates a new Solana transfer client.
func NewClient(rpcClient RPCClient, wallet Wallet, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:          rpcClient,
		wallet:       wallet,
		logger:       logger,
		metrics:      m,
		endpoint:     endpoint,
		pollInterval: confirmPollInterval,
		maxAttempts:  confirmMaxAttempts,
	}
}

// Address returns the sending wallet's public key.
func (c *Client) Address() solana.PublicKey { return c.wallet.PublicKey() }

// Transfer sends params.Amount base units of the mint to the recipient
// and blocks until the transaction confirms. The recipient's associated
// token account is created in the same transaction when it does not
// exist yet. The sender's balance is checked first so an underfunded
// transfer never reaches the chain.
func (c *Client) Transfer(ctx context.Context, params TransferParams) (*TransferResult, error) {
	sender := c.wallet.PublicKey()

	sourceATA, _, err := solana.FindAssociatedTokenAddress(sender, params.Mint)
	if err != nil {
		return nil, fmt.Errorf("derive source token account: %w", err)
	}
	destATA, _, err := solana.FindAssociatedTokenAddress(params.Recipient, params.Mint)
	if err != nil {
		return nil, fmt.Errorf("derive recipient token account: %w", err)
	}

	available, err := c.tokenBalance(ctx, sourceATA)
	if err != nil {
		return nil, fmt.Errorf("fetch sender balance: %w", err)
	}
	if available < params.Amount {
		return nil, &InsufficientBalanceError{Available: available, Required: params.Amount}
	}

	instructions := []solana.Instruction{}
	needsATA, err := c.missingAccount(ctx, destATA)
	if err != nil {
		return nil, fmt.Errorf("check recipient token account: %w", err)
	}
	if needsATA {
		c.logger.DebugContext(ctx, "creating recipient token account",
			"recipient", params.Recipient.String(),
			"ata", destATA.String(),
		)
		instructions = append(instructions,
			associatedtokenaccount.NewCreateInstruction(sender, params.Recipient, params.Mint).Build(),
		)
	}
	instructions = append(instructions,
		token.NewTransferInstruction(params.Amount, sourceATA, destATA, sender, nil).Build(),
	)

	blockhash, err := c.latestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(sender))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	if err := c.wallet.SignTransaction(tx); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	start := time.Now()
	sig, err := c.rpc.SendTransaction(ctx, tx)
	c.record("SendTransaction", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("broadcast transaction: %w", err)
	}

	c.logger.InfoContext(ctx, "transfer submitted",
		"signature", sig.String(),
		"recipient", params.Recipient.String(),
		"amount", params.Amount,
	)

	slot, err := c.awaitConfirmation(ctx, sig)
	if err != nil {
		return nil, err
	}

	return &TransferResult{
		Signature:   sig.String(),
		Slot:        slot,
		ExplorerURL: ExplorerURL(params.Network, sig.String()),
	}, nil
}

// tokenBalance returns the base-unit balance of a token account. A
// missing account counts as zero.
func (c *Client) tokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	start := time.Now()
	out, err := c.rpc.GetTokenAccountBalance(ctx, account, rpc.CommitmentConfirmed)
	c.record("GetTokenAccountBalance", err, time.Since(start))
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if out == nil || out.Value == nil {
		return 0, nil
	}
	amount, err := strconv.ParseUint(out.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid balance %q: %w", out.Value.Amount, err)
	}
	return amount, nil
}

func (c *Client) missingAccount(ctx context.Context, account solana.PublicKey) (bool, error) {
	start := time.Now()
	out, err := c.rpc.GetAccountInfo(ctx, account)
	c.record("GetAccountInfo", err, time.Since(start))
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	return out == nil || out.Value == nil, nil
}

func (c *Client) latestBlockhash(ctx context.Context) (solana.Hash, error) {
	start := time.Now()
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	c.record("GetLatestBlockhash", err, time.Since(start))
	if err != nil {
		return solana.Hash{}, err
	}
	return out.Value.Blockhash, nil
}

// awaitConfirmation polls signature status until the transaction reaches
// confirmed or finalized commitment. The poll is bounded; on timeout the
// caller gets a ConfirmationTimeoutError rather than waiting forever.
func (c *Client) awaitConfirmation(ctx context.Context, sig solana.Signature) (uint64, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}

		start := time.Now()
		out, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
		c.record("GetSignatureStatuses", err, time.Since(start))
		if err != nil {
			c.logger.WarnContext(ctx, "signature status poll failed",
				"signature", sig.String(),
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}
		if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
			continue
		}

		st := out.Value[0]
		if st.Err != nil {
			return 0, fmt.Errorf("transaction %s failed on chain: %v", sig.String(), st.Err)
		}
		switch st.ConfirmationStatus {
		case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
			return st.Slot, nil
		}
	}

	return 0, &ConfirmationTimeoutError{Signature: sig.String(), Attempts: c.maxAttempts}
}

func (c *Client) record(method string, err error, d time.Duration) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, d.Seconds())
}
