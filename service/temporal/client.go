package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
)

// Client starts disbursement workflows and reports their state.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient connects to Temporal.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// DisbursementHandle identifies a started disbursement workflow.
type DisbursementHandle struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// StartDisbursement starts a DisbursementWorkflow and returns without
// waiting for it. The workflow id embeds the disbursement id so a
// client can re-derive it; duplicate submissions of the same id are
// rejected by Temporal's workflow id uniqueness.
func (c *Client) StartDisbursement(ctx context.Context, input DisbursementInput) (*DisbursementHandle, error) {
	workflowID := "disbursement:" + input.DisbursementID

	c.logger.Debug("starting disbursement workflow",
		"workflow_id", workflowID,
		"recipients", len(input.Recipients),
	)

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                c.taskQueue,
		WorkflowExecutionTimeout: time.Hour,
		WorkflowIDReusePolicy:    enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}, DisbursementWorkflow, input)
	if err != nil {
		return nil, fmt.Errorf("failed to start disbursement workflow: %w", err)
	}

	c.logger.Info("disbursement workflow started",
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)

	return &DisbursementHandle{WorkflowID: run.GetID(), RunID: run.GetRunID()}, nil
}

// DisbursementStatus is the observable state of a disbursement.
type DisbursementStatus struct {
	WorkflowID string              `json:"workflow_id"`
	Status     string              `json:"status"`
	Result     *DisbursementResult `json:"result,omitempty"`
}

// GetDisbursement describes the workflow and, once it has completed,
// attaches its result.
func (c *Client) GetDisbursement(ctx context.Context, workflowID string) (*DisbursementStatus, error) {
	desc, err := c.client.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to describe workflow %q: %w", workflowID, err)
	}

	st := desc.WorkflowExecutionInfo.Status
	out := &DisbursementStatus{
		WorkflowID: workflowID,
		Status:     workflowStatusString(st),
	}

	if st == enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED {
		var result DisbursementResult
		if err := c.client.GetWorkflow(ctx, workflowID, "").Get(ctx, &result); err != nil {
			return nil, fmt.Errorf("failed to fetch workflow result: %w", err)
		}
		out.Result = &result
	}

	return out, nil
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

func workflowStatusString(st enumspb.WorkflowExecutionStatus) string {
	switch st {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING:
		return "running"
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return "completed"
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED:
		return "failed"
	case enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED:
		return "canceled"
	case enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		return "terminated"
	case enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return "timed_out"
	default:
		return "unknown"
	}
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
