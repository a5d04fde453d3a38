package payment

import (
	"context"
	"log/slog"
	"time"

	"github.com/payce-finance/payce/service/db"
	"github.com/payce-finance/payce/service/intent"
	"github.com/payce-finance/payce/service/metrics"
	"github.com/payce-finance/payce/service/notify"
	solanasvc "github.com/payce-finance/payce/service/solana"
)

// InvoiceStore is the persistence surface the invoice service needs.
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, params db.CreateInvoiceParams) (*db.Invoice, error)
	MarkInvoicePaid(ctx context.Context, transactionID string, paidAt time.Time, explorerURL string) (*db.Invoice, error)
}

// CreateInvoiceOptions carries the out-of-band fields an invoice may
// have beyond the payment intent itself.
type CreateInvoiceOptions struct {
	BusinessEmail string
	ClientEmail   string
	PaymentURL    string
}

// InvoiceService creates invoices and settles them exactly once.
type InvoiceService struct {
	store    InvoiceStore
	notifier notify.Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewInvoiceService wires the invoice service. The notifier may be nil.
func NewInvoiceService(store InvoiceStore, notifier notify.Notifier, m *metrics.Metrics, logger *slog.Logger) *InvoiceService {
	return &InvoiceService{store: store, notifier: notifier, metrics: m, logger: logger}
}

// Create persists a pending invoice from a validated intent and sends
// the issuance notifications. Notification failure never fails the
// creation.
func (s *InvoiceService) Create(ctx context.Context, in *intent.Intent, opts CreateInvoiceOptions) (*db.Invoice, error) {
	params := db.CreateInvoiceParams{
		TransactionID: NewTransactionID(),
		PayerAddress:  in.PayerAddress,
		PayeeAddress:  in.RecipientAddress,
		Amount:        in.Amount.String(),
		AmountDisplay: in.AmountDisplay,
		Currency:      in.Currency.Symbol,
		Network:       in.Currency.Network,
		DueDate:       in.DueDate,
		ContentData:   in.ContentData,
	}
	if in.Reason != "" {
		params.Reason = &in.Reason
	}
	if opts.BusinessEmail != "" {
		params.BusinessEmail = &opts.BusinessEmail
	}
	if opts.ClientEmail != "" {
		params.ClientEmail = &opts.ClientEmail
	}
	if opts.PaymentURL != "" {
		params.PaymentURL = &opts.PaymentURL
	}

	inv, err := s.store.CreateInvoice(ctx, params)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordInvoiceCreated(inv.Currency, inv.Network)
	}

	s.notifyAll(ctx, notify.InvoiceMessages(inv))

	s.logger.InfoContext(ctx, "invoice created",
		"transaction_id", inv.TransactionID,
		"amount", inv.AmountDisplay,
		"currency", inv.Currency,
	)
	return inv, nil
}

// Settle marks an invoice paid and sends the settlement notifications.
// The transition happens at most once: a second call for the same
// invoice returns db.ErrInvoiceAlreadyPaid and sends nothing.
func (s *InvoiceService) Settle(ctx context.Context, transactionID, signature, network string) (*db.Invoice, error) {
	explorerURL := solanasvc.ExplorerURL(network, signature)

	inv, err := s.store.MarkInvoicePaid(ctx, transactionID, time.Now().UTC(), explorerURL)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordInvoiceSettled(inv.Currency, inv.Network)
	}

	s.notifyAll(ctx, notify.SettlementMessages(inv))

	s.logger.InfoContext(ctx, "invoice settled",
		"transaction_id", inv.TransactionID,
		"signature", signature,
	)
	return inv, nil
}

func (s *InvoiceService) notifyAll(ctx context.Context, msgs []*notify.Message) {
	if s.notifier == nil {
		return
	}
	for _, msg := range msgs {
		if err := s.notifier.Send(ctx, msg); err != nil {
			s.logger.WarnContext(ctx, "notification failed",
				"template", string(msg.Template),
				"to", msg.To,
				"error", err,
			)
		}
	}
}
