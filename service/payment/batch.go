package payment

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	solanago "github.com/gagliardetto/solana-go"

	"github.com/payce-finance/payce/service/db"
	"github.com/payce-finance/payce/service/evm"
	"github.com/payce-finance/payce/service/fee"
	"github.com/payce-finance/payce/service/intent"
	"github.com/payce-finance/payce/service/metrics"
	solanasvc "github.com/payce-finance/payce/service/solana"
	"github.com/payce-finance/payce/service/status"
)

// RecipientResult is one recipient's outcome within a batch.
type RecipientResult struct {
	Address     string `json:"address"`
	Amount      string `json:"amount"`
	Status      string `json:"status"` // success or failed
	Signature   string `json:"signature,omitempty"`
	ExplorerURL string `json:"explorer_url,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// BatchResult summarizes a batch payment run.
type BatchResult struct {
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Results   []RecipientResult `json:"results"`
	// Receipt is the combined transaction receipt on EVM networks;
	// nil on Solana where no aggregate transaction exists.
	Receipt *evm.Receipt `json:"-"`
}

// BatchStrategy executes a batch payment for one chain family. The two
// implementations differ deliberately: EVM batches are all-or-nothing
// around one combined transaction, Solana batches are independent
// transfers that tolerate per-recipient failure.
type BatchStrategy interface {
	Execute(ctx context.Context, batch *intent.BatchIntent, reporter *status.Reporter, progress status.ProgressFunc) (*BatchResult, error)
}

// TransactionStore persists confirmed payments.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, params db.CreateTransactionParams) (*db.Transaction, error)
}

// EVMBatchStrategy prepares one request per recipient, then pays them
// all in a single combined transaction. If any request creation fails
// the whole batch aborts before anything reaches the chain.
type EVMBatchStrategy struct {
	requests   evm.RequestClient
	tx         evm.TxClient
	store      TransactionStore
	feeAddress common.Address
	// tokens maps a currency key to its ERC20 contract address.
	tokens  map[string]common.Address
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewEVMBatchStrategy wires the EVM batch strategy.
func NewEVMBatchStrategy(requests evm.RequestClient, tx evm.TxClient, store TransactionStore, feeAddress common.Address, tokens map[string]common.Address, m *metrics.Metrics, logger *slog.Logger) *EVMBatchStrategy {
	return &EVMBatchStrategy{
		requests:   requests,
		tx:         tx,
		store:      store,
		feeAddress: feeAddress,
		tokens:     tokens,
		logger:     logger,
		metrics:    m,
	}
}

func (s *EVMBatchStrategy) Execute(ctx context.Context, batch *intent.BatchIntent, reporter *status.Reporter, progress status.ProgressFunc) (result *BatchResult, err error) {
	start := time.Now()
	defer func() { s.record(start, len(batch.Recipients), err) }()

	token, ok := s.tokens[batch.Currency.Key()]
	if !ok {
		reporter.Report(status.Error)
		return nil, fmt.Errorf("no token contract configured for %s", batch.Currency.Key())
	}

	reporter.Report(status.Submitting)

	// Phase one: declare every request. A single failure aborts the
	// batch with no on-chain trace.
	type prepared struct {
		recipient intent.Recipient
		record    *evm.RequestRecord
		feeAmount *big.Int
	}
	preparedAll := make([]prepared, 0, len(batch.Recipients))
	totalRequired := new(big.Int)

	for i, r := range batch.Recipients {
		feeAmount, ferr := fee.Compute(r.AmountDisplay, batch.Currency.Decimals)
		if ferr != nil {
			reporter.Report(status.Error)
			return nil, ferr
		}

		record, cerr := s.requests.CreateRequest(ctx, evm.CreateRequestParams{
			Payee:          r.Address,
			Payer:          batch.PayerAddress,
			ExpectedAmount: r.Amount,
			TokenAddress:   token.Hex(),
			PaymentAddress: r.Address,
			FeeAddress:     s.feeAddress.Hex(),
			FeeAmount:      feeAmount,
		})
		if cerr != nil {
			reporter.Report(status.Error)
			return nil, &SubmissionError{
				Step: fmt.Sprintf("request creation for recipient %d/%d", i+1, len(batch.Recipients)),
				Err:  cerr,
			}
		}

		preparedAll = append(preparedAll, prepared{recipient: r, record: record, feeAmount: feeAmount})
		totalRequired.Add(totalRequired, r.Amount)
		totalRequired.Add(totalRequired, feeAmount)
		reporter.Progress(progress, i+1, len(batch.Recipients))
	}

	// Phase two: one aggregate allowance sized for the whole batch.
	owner := s.tx.Address()
	allowance, err := s.tx.Allowance(ctx, token, owner, s.tx.BatchProxyAddress())
	if err != nil {
		reporter.Report(status.Error)
		return nil, &SubmissionError{Step: "allowance check", Err: err}
	}
	if allowance.Cmp(totalRequired) < 0 {
		reporter.Report(status.ApprovingBatch)
		if _, err = s.tx.Approve(ctx, token, s.tx.BatchProxyAddress(), totalRequired); err != nil {
			reporter.Report(status.Error)
			return nil, &ApprovalError{Err: err}
		}
	}

	// Phase three: the combined payment. The chain mines the whole
	// batch or none of it.
	reporter.Report(status.ExecutingBatch)

	lines := make([]evm.BatchLine, len(preparedAll))
	for i, p := range preparedAll {
		lines[i] = evm.BatchLine{
			To:               common.HexToAddress(p.recipient.Address),
			Amount:           p.recipient.Amount,
			PaymentReference: evm.PaymentReference(p.record.RequestID),
			FeeAmount:        p.feeAmount,
		}
	}

	reporter.Report(status.ConfirmingBatch)
	receipt, err := s.tx.PayBatch(ctx, token, lines, s.feeAddress)
	if err != nil {
		reporter.Report(status.Error)
		return nil, &SubmissionError{Step: "batch payment", Err: err}
	}

	results := make([]RecipientResult, len(preparedAll))
	for i, p := range preparedAll {
		results[i] = RecipientResult{
			Address:   p.recipient.Address,
			Amount:    p.recipient.AmountDisplay,
			Status:    "success",
			RequestID: p.record.RequestID,
			Signature: receipt.TxHash,
		}
		s.recordRecipient("success")
		s.persist(ctx, batch, p.recipient, receipt.TxHash, "")
	}

	reporter.Report(status.BatchCompleted)

	s.logger.InfoContext(ctx, "batch payment completed",
		"recipients", len(preparedAll),
		"tx", receipt.TxHash,
	)

	return &BatchResult{
		Total:     len(preparedAll),
		Succeeded: len(preparedAll),
		Results:   results,
		Receipt:   receipt,
	}, nil
}

func (s *EVMBatchStrategy) persist(ctx context.Context, batch *intent.BatchIntent, r intent.Recipient, signature, explorerURL string) {
	var reason *string
	if r.Reason != "" {
		reason = &r.Reason
	}
	var explorer *string
	if explorerURL != "" {
		explorer = &explorerURL
	}
	_, err := s.store.CreateTransaction(ctx, db.CreateTransactionParams{
		TransactionID: NewTransactionID(),
		Sender:        batch.PayerAddress,
		Recipient:     r.Address,
		Amount:        r.Amount.String(),
		AmountDisplay: r.AmountDisplay,
		Currency:      batch.Currency.Symbol,
		Network:       batch.Currency.Network,
		Reason:        reason,
		Signature:     signature,
		ExplorerURL:   explorer,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to persist batch payment",
			"recipient", r.Address,
			"error", err,
		)
	}
}

func (s *EVMBatchStrategy) record(start time.Time, recipients int, err error) {
	if s.metrics == nil {
		return
	}
	st := "success"
	if err != nil {
		st = "error"
	}
	s.metrics.RecordBatchJob("evm", recipients)
	s.metrics.RecordPaymentOperation("batch", "evm", st, time.Since(start).Seconds())
}

func (s *EVMBatchStrategy) recordRecipient(st string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordBatchRecipient("evm", st)
}

// TransferClient performs one confirmed SPL token transfer.
type TransferClient interface {
	Transfer(ctx context.Context, params solanasvc.TransferParams) (*solanasvc.TransferResult, error)
}

// SolanaBatchStrategy performs one independent transfer per recipient
// in order. A failed transfer never aborts the rest; the caller gets a
// structured per-recipient result set.
type SolanaBatchStrategy struct {
	transfers TransferClient
	store     TransactionStore
	// mints maps a currency key to its SPL token mint.
	mints   map[string]solanago.PublicKey
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewSolanaBatchStrategy wires the Solana batch strategy.
func NewSolanaBatchStrategy(transfers TransferClient, store TransactionStore, mints map[string]solanago.PublicKey, m *metrics.Metrics, logger *slog.Logger) *SolanaBatchStrategy {
	return &SolanaBatchStrategy{
		transfers: transfers,
		store:     store,
		mints:     mints,
		logger:    logger,
		metrics:   m,
	}
}

func (s *SolanaBatchStrategy) Execute(ctx context.Context, batch *intent.BatchIntent, reporter *status.Reporter, progress status.ProgressFunc) (*BatchResult, error) {
	start := time.Now()

	mint, ok := s.mints[batch.Currency.Key()]
	if !ok {
		reporter.Report(status.Error)
		if s.metrics != nil {
			s.metrics.RecordPaymentOperation("batch", "solana", "error", time.Since(start).Seconds())
		}
		return nil, fmt.Errorf("no mint configured for %s", batch.Currency.Key())
	}

	reporter.Report(status.ExecutingBatch)

	result := &BatchResult{
		Total:   len(batch.Recipients),
		Results: make([]RecipientResult, 0, len(batch.Recipients)),
	}

	for i, r := range batch.Recipients {
		line := RecipientResult{Address: r.Address, Amount: r.AmountDisplay}

		recipientKey, err := solanago.PublicKeyFromBase58(r.Address)
		if err != nil {
			line.Status = "failed"
			line.Error = err.Error()
			result.Failed++
			result.Results = append(result.Results, line)
			s.recordRecipient("failed")
			reporter.Progress(progress, i+1, len(batch.Recipients))
			continue
		}

		transfer, err := s.transfers.Transfer(ctx, solanasvc.TransferParams{
			Recipient: recipientKey,
			Mint:      mint,
			Amount:    r.Amount.Uint64(),
			Network:   batch.Currency.Network,
			Reason:    r.Reason,
		})
		if err != nil {
			// Preserve the underlying message; the caller reports it
			// per recipient.
			line.Status = "failed"
			line.Error = err.Error()
			result.Failed++
			result.Results = append(result.Results, line)
			s.recordRecipient("failed")
			s.logger.WarnContext(ctx, "batch transfer failed, continuing",
				"recipient", r.Address,
				"error", err,
			)
			reporter.Progress(progress, i+1, len(batch.Recipients))
			continue
		}

		line.Status = "success"
		line.Signature = transfer.Signature
		line.ExplorerURL = transfer.ExplorerURL
		result.Succeeded++
		s.recordRecipient("success")

		s.persist(ctx, batch, r, transfer)
		result.Results = append(result.Results, line)
		reporter.Progress(progress, i+1, len(batch.Recipients))
	}

	reporter.Report(status.BatchCompleted)

	if s.metrics != nil {
		s.metrics.RecordBatchJob("solana", result.Total)
		s.metrics.RecordPaymentOperation("batch", "solana", "success", time.Since(start).Seconds())
	}

	s.logger.InfoContext(ctx, "batch transfers finished",
		"total", result.Total,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)

	return result, nil
}

// persist writes the confirmed transfer. A persistence failure is
// logged and does not affect the batch outcome.
func (s *SolanaBatchStrategy) persist(ctx context.Context, batch *intent.BatchIntent, r intent.Recipient, transfer *solanasvc.TransferResult) {
	var reason *string
	if r.Reason != "" {
		reason = &r.Reason
	}
	explorer := transfer.ExplorerURL
	_, err := s.store.CreateTransaction(ctx, db.CreateTransactionParams{
		TransactionID: NewTransactionID(),
		Sender:        batch.PayerAddress,
		Recipient:     r.Address,
		Amount:        r.Amount.String(),
		AmountDisplay: r.AmountDisplay,
		Currency:      batch.Currency.Symbol,
		Network:       batch.Currency.Network,
		Reason:        reason,
		Signature:     transfer.Signature,
		ExplorerURL:   &explorer,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to persist transfer",
			"recipient", r.Address,
			"signature", transfer.Signature,
			"error", err,
		)
	}
}

func (s *SolanaBatchStrategy) recordRecipient(st string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordBatchRecipient("solana", st)
}
