package notify

import (
	"time"

	"github.com/payce-finance/payce/service/db"
)

// TemplateType selects which notification template a message renders with.
type TemplateType string

const (
	// TemplateBusiness notifies the invoice issuer that their invoice
	// was created.
	TemplateBusiness TemplateType = "business"
	// TemplateClient notifies the payer that an invoice awaits them.
	TemplateClient TemplateType = "client"
	// TemplateSent confirms an outgoing payment to its sender.
	TemplateSent TemplateType = "sent"
	// TemplateReceived informs a recipient of an incoming payment.
	TemplateReceived TemplateType = "received"
)

// LineItem is one row of invoice detail carried in a payload.
type LineItem struct {
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

// Payload is the template data for a notification.
type Payload struct {
	TransactionID string     `json:"transaction_id"`
	Amount        string     `json:"amount"`
	Currency      string     `json:"currency"`
	Network       string     `json:"network"`
	Counterparty  string     `json:"counterparty,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	PaymentURL    string     `json:"payment_url,omitempty"`
	ExplorerURL   string     `json:"explorer_url,omitempty"`
	LineItems     []LineItem `json:"line_items,omitempty"`
}

// Message is one notification to deliver. Delivery is best-effort and
// fire-and-forget; a failed send never fails the payment that caused it.
type Message struct {
	To          string       `json:"to"`
	Template    TemplateType `json:"template"`
	Payload     Payload      `json:"payload"`
	PublishedAt time.Time    `json:"published_at"`
}

// InvoiceMessages builds the business and client notifications for a
// freshly created invoice. An absent email drops that message.
func InvoiceMessages(inv *db.Invoice) []*Message {
	payload := Payload{
		TransactionID: inv.TransactionID,
		Amount:        inv.AmountDisplay,
		Currency:      inv.Currency,
		Network:       inv.Network,
	}
	if inv.Reason != nil {
		payload.Reason = *inv.Reason
	}
	if inv.DueDate != nil {
		payload.DueDate = inv.DueDate
	}
	if inv.PaymentURL != nil {
		payload.PaymentURL = *inv.PaymentURL
	}

	var msgs []*Message
	if inv.BusinessEmail != nil && *inv.BusinessEmail != "" {
		p := payload
		p.Counterparty = inv.PayerAddress
		msgs = append(msgs, &Message{To: *inv.BusinessEmail, Template: TemplateBusiness, Payload: p})
	}
	if inv.ClientEmail != nil && *inv.ClientEmail != "" {
		p := payload
		p.Counterparty = inv.PayeeAddress
		msgs = append(msgs, &Message{To: *inv.ClientEmail, Template: TemplateClient, Payload: p})
	}
	return msgs
}

// SettlementMessages builds the business and client notifications for a
// settled invoice, carrying the settlement evidence.
func SettlementMessages(inv *db.Invoice) []*Message {
	msgs := InvoiceMessages(inv)
	for _, m := range msgs {
		if inv.ExplorerURL != nil {
			m.Payload.ExplorerURL = *inv.ExplorerURL
		}
		switch m.Template {
		case TemplateBusiness:
			m.Template = TemplateReceived
		case TemplateClient:
			m.Template = TemplateSent
		}
	}
	return msgs
}

// PaymentMessages builds sent/received notifications for a direct
// payment when contact addresses are known.
func PaymentMessages(txn *db.Transaction, senderEmail, recipientEmail string) []*Message {
	payload := Payload{
		TransactionID: txn.TransactionID,
		Amount:        txn.AmountDisplay,
		Currency:      txn.Currency,
		Network:       txn.Network,
	}
	if txn.Reason != nil {
		payload.Reason = *txn.Reason
	}
	if txn.ExplorerURL != nil {
		payload.ExplorerURL = *txn.ExplorerURL
	}

	var msgs []*Message
	if senderEmail != "" {
		p := payload
		p.Counterparty = txn.Recipient
		msgs = append(msgs, &Message{To: senderEmail, Template: TemplateSent, Payload: p})
	}
	if recipientEmail != "" {
		p := payload
		p.Counterparty = txn.Sender
		msgs = append(msgs, &Message{To: recipientEmail, Template: TemplateReceived, Payload: p})
	}
	return msgs
}
