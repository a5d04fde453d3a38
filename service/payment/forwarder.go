package payment

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/payce-finance/payce/service/evm"
	"github.com/payce-finance/payce/service/fee"
	"github.com/payce-finance/payce/service/intent"
	"github.com/payce-finance/payce/service/metrics"
	"github.com/payce-finance/payce/service/status"
)

// ForwarderResult is the outcome of a single-forwarder creation.
type ForwarderResult struct {
	RequestID        string
	ForwarderAddress string
	Receipt          *evm.Receipt
}

// ForwarderOrchestrator creates a payment request and deploys a
// dedicated forwarder address bound to it. There is no rollback: if
// deployment fails after the request is confirmed, the request stays
// valid and the caller retries deployment against the same request.
type ForwarderOrchestrator struct {
	requests   evm.RequestClient
	tx         evm.TxClient
	feeAddress common.Address
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewForwarderOrchestrator wires the orchestrator. If m is nil, no
// metrics are recorded.
func NewForwarderOrchestrator(requests evm.RequestClient, tx evm.TxClient, feeAddress common.Address, m *metrics.Metrics, logger *slog.Logger) *ForwarderOrchestrator {
	return &ForwarderOrchestrator{
		requests:   requests,
		tx:         tx,
		feeAddress: feeAddress,
		logger:     logger,
		metrics:    m,
	}
}

// CreateForwarder declares the payment request, waits for it to be
// confirmed, then deploys the request-bound forwarder.
func (o *ForwarderOrchestrator) CreateForwarder(ctx context.Context, in *intent.Intent, token common.Address, reporter *status.Reporter) (result *ForwarderResult, err error) {
	start := time.Now()
	defer func() { o.record("forwarder", start, err) }()

	reporter.Report(status.Submitting)

	feeAmount, err := fee.Compute(in.AmountDisplay, in.Currency.Decimals)
	if err != nil {
		reporter.Report(status.Error)
		return nil, err
	}

	reporter.Report(status.PersistingPayload)

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

	reporter.Report(status.PersistingOnChain)

	// Re-read the request so the confirmed record is what we bind
	// the forwarder to.
	confirmed, err := o.requests.GetRequest(ctx, record.RequestID)
	if err != nil {
		reporter.Report(status.Error)
		return nil, &SubmissionError{Step: "request confirmation", Err: err}
	}

	reporter.Report(status.RequestConfirmed)
	reporter.Report(status.DeployingForwarder)

	payee := common.HexToAddress(confirmed.Payee)
	forwarder, receipt, err := o.tx.DeployForwarder(ctx, payee, token, evm.PaymentReference(confirmed.RequestID))
	if err != nil {
		// The request stays valid; only the deployment needs a retry.
		o.logger.ErrorContext(ctx, "forwarder deployment failed, request remains valid",
			"request_id", confirmed.RequestID,
			"error", err,
		)
		reporter.Report(status.Error)
		return nil, &SubmissionError{Step: "forwarder deployment", Err: err}
	}

	reporter.Report(status.Done)

	o.logger.InfoContext(ctx, "forwarder created",
		"request_id", confirmed.RequestID,
		"forwarder", forwarder.Hex(),
	)

	return &ForwarderResult{
		RequestID:        confirmed.RequestID,
		ForwarderAddress: forwarder.Hex(),
		Receipt:          receipt,
	}, nil
}

func (o *ForwarderOrchestrator) record(operation string, start time.Time, err error) {
	if o.metrics == nil {
		return
	}
	st := "success"
	if err != nil {
		st = "error"
	}
	o.metrics.RecordPaymentOperation(operation, "evm", st, time.Since(start).Seconds())
}
