package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/payce-finance/payce/service/currency"
	"github.com/payce-finance/payce/service/intent"
	"github.com/payce-finance/payce/service/metrics"
	"github.com/payce-finance/payce/service/payment"
	"github.com/payce-finance/payce/service/status"
)

// ValidateDisbursementResult carries the normalized facts the workflow
// logs before committing to execution.
type ValidateDisbursementResult struct {
	Family         string `json:"family"`
	Recipients     int    `json:"recipients"`
	TotalBaseUnits string `json:"total_base_units"`
}

// ExecuteDisbursementResult is the batch outcome in serializable form.
type ExecuteDisbursementResult struct {
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Results   []RecipientOutcome `json:"results"`
}

// Activities holds the worker-side dependencies for disbursement
// workflows: one batch strategy per chain family.
type Activities struct {
	builder    *intent.Builder
	strategies map[currency.Family]payment.BatchStrategy
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewActivities creates the activity set. Metrics may be nil.
func NewActivities(strategies map[currency.Family]payment.BatchStrategy, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		builder:    intent.NewBuilder(),
		strategies: strategies,
		metrics:    m,
		logger:     logger,
	}
}

// ValidateDisbursement normalizes the input and rejects anything a
// batch strategy could not execute. It performs no chain interaction.
func (act *Activities) ValidateDisbursement(ctx context.Context, input DisbursementInput) (*ValidateDisbursementResult, error) {
	start := time.Now()
	defer act.recordActivity("ValidateDisbursement", start)

	batch, err := act.buildBatch(input)
	if err != nil {
		return nil, err
	}
	if _, ok := act.strategies[batch.Currency.Family]; !ok {
		return nil, fmt.Errorf("no batch strategy for chain family %q", batch.Currency.Family)
	}

	return &ValidateDisbursementResult{
		Family:         string(batch.Currency.Family),
		Recipients:     len(batch.Recipients),
		TotalBaseUnits: batch.TotalAmount().String(),
	}, nil
}

// ExecuteDisbursement runs the batch through the family's strategy.
// Status tokens are logged and progress is reported as activity
// heartbeats so a stalled batch is visible in Temporal.
func (act *Activities) ExecuteDisbursement(ctx context.Context, input DisbursementInput) (*ExecuteDisbursementResult, error) {
	start := time.Now()
	defer act.recordActivity("ExecuteDisbursement", start)

	batch, err := act.buildBatch(input)
	if err != nil {
		return nil, err
	}
	strategy, ok := act.strategies[batch.Currency.Family]
	if !ok {
		return nil, fmt.Errorf("no batch strategy for chain family %q", batch.Currency.Family)
	}

	reporter := status.NewReporter(func(s status.Status) {
		act.logger.InfoContext(ctx, "disbursement status",
			"disbursement_id", input.DisbursementID,
			"status", string(s),
		)
	}, act.logger)

	progress := func(completed, total int) {
		if activity.IsActivity(ctx) {
			activity.RecordHeartbeat(ctx, completed, total)
		}
	}

	result, err := strategy.Execute(ctx, batch, reporter, progress)
	if err != nil {
		return nil, err
	}

	outcomes := make([]RecipientOutcome, len(result.Results))
	for i, r := range result.Results {
		outcomes[i] = RecipientOutcome{
			Address:     r.Address,
			Amount:      r.Amount,
			Status:      r.Status,
			Signature:   r.Signature,
			ExplorerURL: r.ExplorerURL,
			RequestID:   r.RequestID,
			Error:       r.Error,
		}
	}

	return &ExecuteDisbursementResult{
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
		Results:   outcomes,
	}, nil
}

func (act *Activities) buildBatch(input DisbursementInput) (*intent.BatchIntent, error) {
	raw := intent.RawBatch{
		PayerAddress: input.PayerAddress,
		Currency:     input.Currency,
		Network:      input.Network,
	}
	for _, r := range input.Recipients {
		raw.Recipients = append(raw.Recipients, intent.RawRecipient{
			Address:       r.Address,
			Amount:        r.Amount,
			Reason:        r.Reason,
			RecipientName: r.RecipientName,
		})
	}
	return act.builder.BuildBatch(raw)
}

func (act *Activities) recordActivity(name string, start time.Time) {
	if act.metrics == nil {
		return
	}
	act.metrics.RecordActivityDuration(name, time.Since(start).Seconds())
}
