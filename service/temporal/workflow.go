// Package temporal runs payroll disbursements as Temporal workflows. A
// disbursement is one batch payment executed by the worker through the
// chain-family batch strategy; per-recipient outcomes are recorded in
// the workflow result so they survive worker restarts.
package temporal

import (
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// DisbursementRecipient is one payee line of a disbursement.
type DisbursementRecipient struct {
	Address       string `json:"address"`
	Amount        string `json:"amount"`
	Reason        string `json:"reason,omitempty"`
	RecipientName string `json:"recipient_name,omitempty"`
}

// DisbursementInput starts a DisbursementWorkflow. Amounts are
// human-unit decimal strings; validation and base-unit conversion
// happen in the validation activity.
type DisbursementInput struct {
	DisbursementID string                  `json:"disbursement_id"`
	PayerAddress   string                  `json:"payer_address"`
	Recipients     []DisbursementRecipient `json:"recipients"`
	Currency       string                  `json:"currency"`
	Network        string                  `json:"network"`
}

// RecipientOutcome is one recipient's final state.
type RecipientOutcome struct {
	Address     string `json:"address"`
	Amount      string `json:"amount"`
	Status      string `json:"status"`
	Signature   string `json:"signature,omitempty"`
	ExplorerURL string `json:"explorer_url,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// DisbursementResult is the workflow's terminal state.
type DisbursementResult struct {
	DisbursementID string             `json:"disbursement_id"`
	Total          int                `json:"total"`
	Succeeded      int                `json:"succeeded"`
	Failed         int                `json:"failed"`
	Results        []RecipientOutcome `json:"results"`
	CompletedAt    time.Time          `json:"completed_at"`
	Error          *string            `json:"error,omitempty"`
}

// DisbursementWorkflow validates the disbursement, then executes the
// batch payment. Validation retries are pointless (the input never
// changes) and execution must NOT retry automatically: a re-run could
// double-pay recipients whose transfers already confirmed. Operators
// inspect the per-recipient outcomes and re-submit failures explicitly.
func DisbursementWorkflow(ctx workflow.Context, input DisbursementInput) (*DisbursementResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("disbursement started",
		"disbursement_id", input.DisbursementID,
		"recipients", len(input.Recipients),
	)

	result := &DisbursementResult{
		DisbursementID: input.DisbursementID,
		Total:          len(input.Recipients),
	}

	validateOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	vctx := workflow.WithActivityOptions(ctx, validateOpts)

	var validation *ValidateDisbursementResult
	if err := workflow.ExecuteActivity(vctx, a.ValidateDisbursement, input).Get(ctx, &validation); err != nil {
		msg := err.Error()
		result.Error = &msg
		result.CompletedAt = workflow.Now(ctx)
		return result, err
	}

	logger.Info("disbursement validated",
		"disbursement_id", input.DisbursementID,
		"family", validation.Family,
		"total_base_units", validation.TotalBaseUnits,
	)

	executeOpts := workflow.ActivityOptions{
		// Generous ceiling: a batch of confirmed on-chain transfers can
		// take minutes under congestion.
		StartToCloseTimeout: 15 * time.Minute,
		HeartbeatTimeout:    2 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	ectx := workflow.WithActivityOptions(ctx, executeOpts)

	var execution *ExecuteDisbursementResult
	if err := workflow.ExecuteActivity(ectx, a.ExecuteDisbursement, input).Get(ctx, &execution); err != nil {
		msg := err.Error()
		result.Error = &msg
		result.CompletedAt = workflow.Now(ctx)
		return result, err
	}

	result.Succeeded = execution.Succeeded
	result.Failed = execution.Failed
	result.Results = execution.Results
	result.CompletedAt = workflow.Now(ctx)

	logger.Info("disbursement completed",
		"disbursement_id", input.DisbursementID,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)

	return result, nil
}
