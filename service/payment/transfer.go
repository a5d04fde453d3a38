package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/payce-finance/payce/service/db"
	"github.com/payce-finance/payce/service/intent"
	"github.com/payce-finance/payce/service/metrics"
	"github.com/payce-finance/payce/service/notify"
	solanasvc "github.com/payce-finance/payce/service/solana"
	"github.com/payce-finance/payce/service/status"
)

// TransferService executes single confirmed SPL transfers and records
// them. A transaction row exists only for transfers that confirmed.
type TransferService struct {
	transfers TransferClient
	store     TransactionStore
	notifier  notify.Notifier
	sender    string
	mints     map[string]solanago.PublicKey
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewTransferService wires the transfer service. The notifier may be nil.
func NewTransferService(transfers TransferClient, store TransactionStore, notifier notify.Notifier, sender string, mints map[string]solanago.PublicKey, m *metrics.Metrics, logger *slog.Logger) *TransferService {
	return &TransferService{
		transfers: transfers,
		store:     store,
		notifier:  notifier,
		sender:    sender,
		mints:     mints,
		logger:    logger,
		metrics:   m,
	}
}

// SendOptions carries contact addresses for payment notifications.
// Empty fields drop the corresponding message.
type SendOptions struct {
	SenderEmail    string
	RecipientEmail string
}

// Send transfers the intent's amount to its recipient and persists the
// confirmed transaction. Insufficient balance is reported before any
// transaction is submitted.
func (s *TransferService) Send(ctx context.Context, in *intent.Intent, opts SendOptions, reporter *status.Reporter) (txn *db.Transaction, err error) {
	start := time.Now()
	defer func() { s.record(start, err) }()

	mint, ok := s.mints[in.Currency.Key()]
	if !ok {
		reporter.Report(status.Error)
		return nil, fmt.Errorf("no mint configured for %s", in.Currency.Key())
	}
	recipient, err := solanago.PublicKeyFromBase58(in.RecipientAddress)
	if err != nil {
		reporter.Report(status.Error)
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}

	reporter.Report(status.Checking)
	reporter.Report(status.Paying)

	result, err := s.transfers.Transfer(ctx, solanasvc.TransferParams{
		Recipient: recipient,
		Mint:      mint,
		Amount:    in.Amount.Uint64(),
		Network:   in.Currency.Network,
		Reason:    in.Reason,
	})
	if err != nil {
		var insufficient *solanasvc.InsufficientBalanceError
		if errors.As(err, &insufficient) {
			reporter.Report(status.InsufficientFunds)
		} else {
			reporter.Report(status.Error)
		}
		return nil, err
	}

	reporter.Report(status.Confirming)

	var reason *string
	if in.Reason != "" {
		reason = &in.Reason
	}
	explorer := result.ExplorerURL
	txn, err = s.store.CreateTransaction(ctx, db.CreateTransactionParams{
		TransactionID: NewTransactionID(),
		Sender:        s.sender,
		Recipient:     in.RecipientAddress,
		Amount:        in.Amount.String(),
		AmountDisplay: in.AmountDisplay,
		Currency:      in.Currency.Symbol,
		Network:       in.Currency.Network,
		Reason:        reason,
		Signature:     result.Signature,
		ExplorerURL:   &explorer,
	})
	if err != nil {
		// The transfer is on chain; surface the persistence failure
		// rather than pretend the payment did not happen.
		reporter.Report(status.Error)
		return nil, fmt.Errorf("transfer %s confirmed but not recorded: %w", result.Signature, err)
	}

	if s.notifier != nil {
		for _, msg := range notify.PaymentMessages(txn, opts.SenderEmail, opts.RecipientEmail) {
			if nerr := s.notifier.Send(ctx, msg); nerr != nil {
				s.logger.WarnContext(ctx, "notification failed",
					"template", string(msg.Template),
					"error", nerr,
				)
			}
		}
	}

	reporter.Report(status.Completed)

	s.logger.InfoContext(ctx, "transfer completed",
		"transaction_id", txn.TransactionID,
		"signature", result.Signature,
	)
	return txn, nil
}

func (s *TransferService) record(start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	st := "success"
	if err != nil {
		st = "error"
	}
	s.metrics.RecordPaymentOperation("transfer", "solana", st, time.Since(start).Seconds())
}
