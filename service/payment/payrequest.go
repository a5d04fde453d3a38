package payment

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/payce-finance/payce/service/evm"
	"github.com/payce-finance/payce/service/metrics"
	"github.com/payce-finance/payce/service/status"
)

const (
	settlePollInterval = 1 * time.Second
	settleMaxAttempts  = 60
)

// PayResult is the outcome of paying an existing request.
type PayResult struct {
	RequestID string
	Receipt   *evm.Receipt
	// Balance is the last detected request balance.
	Balance *big.Int
}

// PayRequestOrchestrator pays an existing payment request. The flow is
// a strict linear progression: checking, optional approval, payment,
// then a bounded settlement poll. No step is retried automatically.
type PayRequestOrchestrator struct {
	requests evm.RequestClient
	tx       evm.TxClient
	logger   *slog.Logger
	metrics  *metrics.Metrics

	pollInterval time.Duration
	maxAttempts  int
}

// NewPayRequestOrchestrator wires the orchestrator. If m is nil, no
// metrics are recorded.
func NewPayRequestOrchestrator(requests evm.RequestClient, tx evm.TxClient, m *metrics.Metrics, logger *slog.Logger) *PayRequestOrchestrator {
	return &PayRequestOrchestrator{
		requests:     requests,
		tx:           tx,
		logger:       logger,
		metrics:      m,
		pollInterval: settlePollInterval,
		maxAttempts:  settleMaxAttempts,
	}
}

// Pay settles the request from the signer account. The payer must cover
// the expected amount plus the protocol fee; otherwise the flow stops
// before any chain transaction.
func (o *PayRequestOrchestrator) Pay(ctx context.Context, requestID string, reporter *status.Reporter) (result *PayResult, err error) {
	start := time.Now()
	defer func() { o.record(start, err) }()

	reporter.Report(status.Checking)

	record, err := o.requests.GetRequest(ctx, requestID)
	if err != nil {
		reporter.Report(status.Error)
		return nil, &SubmissionError{Step: "request lookup", Err: err}
	}

	token := common.HexToAddress(record.PaymentNetwork.TokenAddress)
	feeAmount, ok := new(big.Int).SetString(record.PaymentNetwork.FeeAmount, 10)
	if !ok {
		feeAmount = new(big.Int)
	}
	total := new(big.Int).Add(record.ExpectedAmount, feeAmount)

	payer := o.tx.Address()
	balance, err := o.tx.BalanceOf(ctx, token, payer)
	if err != nil {
		reporter.Report(status.Error)
		return nil, &SubmissionError{Step: "balance check", Err: err}
	}
	if balance.Cmp(total) < 0 {
		reporter.Report(status.InsufficientFunds)
		return nil, &InsufficientFundsError{Available: balance, Required: total}
	}

	allowance, err := o.tx.Allowance(ctx, token, payer, o.tx.FeeProxyAddress())
	if err != nil {
		reporter.Report(status.Error)
		return nil, &SubmissionError{Step: "allowance check", Err: err}
	}
	if allowance.Cmp(total) < 0 {
		reporter.Report(status.NeedsApproval)
		reporter.Report(status.Approving)
		if _, err = o.tx.Approve(ctx, token, o.tx.FeeProxyAddress(), total); err != nil {
			reporter.Report(status.Error)
			return nil, &ApprovalError{Err: err}
		}
		reporter.Report(status.Approved)
	}

	reporter.Report(status.Paying)

	receipt, err := o.tx.PayRequest(ctx, evm.PayParams{
		TokenAddress:     token,
		To:               common.HexToAddress(record.PaymentNetwork.PaymentAddress),
		Amount:           record.ExpectedAmount,
		PaymentReference: evm.PaymentReference(record.RequestID),
		FeeAmount:        feeAmount,
		FeeAddress:       common.HexToAddress(record.PaymentNetwork.FeeAddress),
	})
	if err != nil {
		reporter.Report(status.Error)
		return nil, &SubmissionError{Step: "payment", Err: err}
	}

	reporter.Report(status.Confirming)

	balanceSeen, err := o.awaitSettlement(ctx, record)
	if err != nil {
		reporter.Report(status.Error)
		return nil, err
	}

	reporter.Report(status.Completed)

	o.logger.InfoContext(ctx, "request paid",
		"request_id", requestID,
		"tx", receipt.TxHash,
	)

	return &PayResult{
		RequestID: requestID,
		Receipt:   receipt,
		Balance:   balanceSeen,
	}, nil
}

// awaitSettlement polls the request's detected balance until it covers
// the expected amount. The poll is bounded so a detection lag surfaces
// as a timeout error instead of spinning forever.
func (o *PayRequestOrchestrator) awaitSettlement(ctx context.Context, record *evm.RequestRecord) (*big.Int, error) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	last := new(big.Int)
	if record.Balance != nil {
		last.Set(record.Balance)
	}

	for attempt := 0; attempt < o.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		fresh, err := o.requests.Refresh(ctx, record.RequestID)
		if err != nil {
			o.logger.WarnContext(ctx, "settlement poll failed",
				"request_id", record.RequestID,
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}
		if fresh.Balance == nil {
			continue
		}
		// Detected balances only grow; keep the high-water mark.
		if fresh.Balance.Cmp(last) > 0 {
			last.Set(fresh.Balance)
		}
		if last.Cmp(record.ExpectedAmount) >= 0 {
			return last, nil
		}
	}

	return nil, &SettlementTimeoutError{RequestID: record.RequestID, Attempts: o.maxAttempts}
}

func (o *PayRequestOrchestrator) record(start time.Time, err error) {
	if o.metrics == nil {
		return
	}
	st := "success"
	if err != nil {
		st = "error"
	}
	o.metrics.RecordPaymentOperation("pay_request", "evm", st, time.Since(start).Seconds())
}
