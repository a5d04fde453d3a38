// Package status defines the progress-reporting contract shared by all
// payment orchestrators. Every orchestration run emits a strictly ordered
// sequence of status tokens through a Reporter; callers use them to drive
// progress UI or test assertions.
package status

import (
	"log/slog"
)

// Status is a short machine-readable progress token.
type Status string

// Request creation and forwarder deployment statuses.
const (
	Submitting         Status = "submitting"
	PersistingPayload  Status = "persisting payload"
	PersistingOnChain  Status = "persisting on-chain"
	RequestConfirmed   Status = "request confirmed"
	DeployingForwarder Status = "deploying forwarder"
	Done               Status = "done"
)

// Pay-request statuses. These form a strict linear progression; Error is
// reachable from any state and is terminal.
const (
	Checking          Status = "checking"
	InsufficientFunds Status = "insufficient-funds"
	NeedsApproval     Status = "needs-approval"
	Approving         Status = "approving"
	Approved          Status = "approved"
	Paying            Status = "paying"
	Confirming        Status = "confirming"
	Completed         Status = "completed"
	Error             Status = "error"
)

// Escrow and batch statuses.
const (
	ApprovingEscrow  Status = "approving escrow"
	FundingEscrow    Status = "funding escrow"
	EscrowFunded     Status = "escrow funded"
	ApprovingBatch   Status = "approving batch"
	ExecutingBatch   Status = "executing batch"
	ConfirmingBatch  Status = "confirming batch"
	BatchCompleted   Status = "batch completed"
)

// Func receives a status token. Implementations must be fast; they are
// invoked synchronously between orchestration steps.
type Func func(Status)

// ProgressFunc receives per-recipient progress for batch operations.
type ProgressFunc func(completed, total int)

// Reporter delivers status tokens to an optional callback. Callbacks are
// isolated: a panicking callback is recovered and logged so it can never
// mask the outcome of the operation that triggered it. A nil Reporter and
// a Reporter with a nil callback are both safe to report through.
type Reporter struct {
	fn     Func
	logger *slog.Logger
}

// NewReporter wraps a status callback. Either argument may be nil.
func NewReporter(fn Func, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{fn: fn, logger: logger}
}

// Channel returns a Reporter that forwards statuses to a buffered channel,
// plus the receive side. The channel is never closed by the reporter; sends
// on a full channel are dropped rather than blocking the orchestration.
func Channel(buf int, logger *slog.Logger) (*Reporter, <-chan Status) {
	ch := make(chan Status, buf)
	fn := func(s Status) {
		select {
		case ch <- s:
		default:
		}
	}
	return NewReporter(fn, logger), ch
}

// Report delivers one status token to the callback, recovering any panic.
func (r *Reporter) Report(s Status) {
	if r == nil || r.fn == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("status callback panicked", "status", string(s), "panic", p)
		}
	}()
	r.fn(s)
}

// Progress delivers batch progress through an optional ProgressFunc with
// the same panic isolation as Report.
func (r *Reporter) Progress(fn ProgressFunc, completed, total int) {
	if r == nil || fn == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("progress callback panicked", "completed", completed, "total", total, "panic", p)
		}
	}()
	fn(completed, total)
}
