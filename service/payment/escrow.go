package payment

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/payce-finance/payce/service/evm"
	"github.com/payce-finance/payce/service/fee"
	"github.com/payce-finance/payce/service/intent"
	"github.com/payce-finance/payce/service/metrics"
	"github.com/payce-finance/payce/service/status"
)

// EscrowResult is the outcome of funding an escrow.
type EscrowResult struct {
	RequestID      string
	FundingReceipt *evm.Receipt
}

// EscrowOrchestrator funds and releases escrowed payments. Escrow state
// is never cached locally: release and claim operations re-derive it
// from the request's on-chain payment network at call time.
// Authorization (only the payee releases, only the payer freezes or
// claims) is enforced by the escrow contract itself.
type EscrowOrchestrator struct {
	requests   evm.RequestClient
	tx         evm.TxClient
	feeAddress common.Address
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewEscrowOrchestrator wires the orchestrator. If m is nil, no
// metrics are recorded.
func NewEscrowOrchestrator(requests evm.RequestClient, tx evm.TxClient, feeAddress common.Address, m *metrics.Metrics, logger *slog.Logger) *EscrowOrchestrator {
	return &EscrowOrchestrator{
		requests:   requests,
		tx:         tx,
		feeAddress: feeAddress,
		logger:     logger,
		metrics:    m,
	}
}

// CreateAndFund declares a request, approves the escrow allowance when
// needed, and transfers the funds into escrow. Every step blocks until
// its transaction is mined; a failing step aborts all later steps.
func (o *EscrowOrchestrator) CreateAndFund(ctx context.Context, in *intent.Intent, token common.Address, reporter *status.Reporter) (result *EscrowResult, err error) {
	start := time.Now()
	defer func() { o.record("escrow_fund", start, err) }()

	reporter.Report(status.Submitting)

	feeAmount, err := fee.Compute(in.AmountDisplay, in.Currency.Decimals)
	if err != nil {
		reporter.Report(status.Error)
		return nil, err
	}

	record, err := o.requests.CreateRequest(ctx, evm.CreateRequestParams{
		Payee:          in.RecipientAddress,
		Payer:          in.PayerAddress,
		ExpectedAmount: in.Amount,
		TokenAddress:   token.Hex(),
		PaymentAddress: in.RecipientAddress,
		FeeAddress:     o.feeAddress.Hex(),
		FeeAmount:      feeAmount,
		ContentData:    in.ContentData,
	})
	if err != nil {
		reporter.Report(status.Error)
		return nil, &SubmissionError{Step: "request creation", Err: err}
	}

	reporter.Report(status.RequestConfirmed)

	total := new(big.Int).Add(in.Amount, feeAmount)
	if err = o.ensureAllowance(ctx, token, total, reporter); err != nil {
		reporter.Report(status.Error)
		return nil, err
	}

	reporter.Report(status.FundingEscrow)

	receipt, err := o.tx.PayEscrow(ctx, evm.PayParams{
		TokenAddress:     token,
		To:               common.HexToAddress(record.Payee),
		Amount:           in.Amount,
		PaymentReference: evm.PaymentReference(record.RequestID),
		FeeAmount:        feeAmount,
		FeeAddress:       o.feeAddress,
	})
	if err != nil {
		reporter.Report(status.Error)
		return nil, &SubmissionError{Step: "escrow funding", Err: err}
	}

	reporter.Report(status.EscrowFunded)

	o.logger.InfoContext(ctx, "escrow funded",
		"request_id", record.RequestID,
		"tx", receipt.TxHash,
	)

	return &EscrowResult{
		RequestID:      record.RequestID,
		FundingReceipt: receipt,
	}, nil
}

// Release pays the request out of escrow. Meaningful only once the
// escrow is funded; the contract rejects anything else.
func (o *EscrowOrchestrator) Release(ctx context.Context, requestID string) (receipt *evm.Receipt, err error) {
	start := time.Now()
	defer func() { o.record("escrow_release", start, err) }()

	record, err := o.requests.Refresh(ctx, requestID)
	if err != nil {
		return nil, &SubmissionError{Step: "request lookup", Err: err}
	}

	receipt, err = o.tx.PayRequestFromEscrow(ctx, evm.PaymentReference(record.RequestID))
	if err != nil {
		return nil, &SubmissionError{Step: "escrow release", Err: err}
	}
	o.logger.InfoContext(ctx, "escrow released", "request_id", requestID, "tx", receipt.TxHash)
	return receipt, nil
}

// Freeze locks the escrowed funds for the payer.
func (o *EscrowOrchestrator) Freeze(ctx context.Context, requestID string) (receipt *evm.Receipt, err error) {
	start := time.Now()
	defer func() { o.record("escrow_freeze", start, err) }()

	record, err := o.requests.Refresh(ctx, requestID)
	if err != nil {
		return nil, &SubmissionError{Step: "request lookup", Err: err}
	}

	receipt, err = o.tx.FreezeRequest(ctx, evm.PaymentReference(record.RequestID))
	if err != nil {
		return nil, &SubmissionError{Step: "freeze", Err: err}
	}
	o.logger.InfoContext(ctx, "escrow frozen", "request_id", requestID, "tx", receipt.TxHash)
	return receipt, nil
}

// EmergencyClaim starts the payer's emergency recovery of escrowed funds.
func (o *EscrowOrchestrator) EmergencyClaim(ctx context.Context, requestID string) (receipt *evm.Receipt, err error) {
	start := time.Now()
	defer func() { o.record("escrow_claim", start, err) }()

	record, err := o.requests.Refresh(ctx, requestID)
	if err != nil {
		return nil, &SubmissionError{Step: "request lookup", Err: err}
	}

	receipt, err = o.tx.InitiateEmergencyClaim(ctx, evm.PaymentReference(record.RequestID))
	if err != nil {
		return nil, &SubmissionError{Step: "emergency claim", Err: err}
	}
	o.logger.InfoContext(ctx, "emergency claim initiated", "request_id", requestID, "tx", receipt.TxHash)
	return receipt, nil
}

// ensureAllowance approves the escrow contract when the current
// allowance does not cover the required amount.
func (o *EscrowOrchestrator) ensureAllowance(ctx context.Context, token common.Address, required *big.Int, reporter *status.Reporter) error {
	owner := o.tx.Address()
	allowance, err := o.tx.Allowance(ctx, token, owner, o.tx.EscrowAddress())
	if err != nil {
		return &SubmissionError{Step: "allowance check", Err: err}
	}
	if allowance.Cmp(required) >= 0 {
		return nil
	}

	reporter.Report(status.ApprovingEscrow)
	if _, err := o.tx.Approve(ctx, token, o.tx.EscrowAddress(), required); err != nil {
		return &ApprovalError{Err: err}
	}
	return nil
}

func (o *EscrowOrchestrator) record(operation string, start time.Time, err error) {
	if o.metrics == nil {
		return
	}
	st := "success"
	if err != nil {
		st = "error"
	}
	o.metrics.RecordPaymentOperation(operation, "evm", st, time.Since(start).Seconds())
}
