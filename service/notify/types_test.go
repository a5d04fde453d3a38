package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payce-finance/payce/service/db"
)

func strPtr(s string) *string { return &s }

func testInvoice() *db.Invoice {
	return &db.Invoice{
		TransactionID: "payce-inv-1",
		Status:        db.InvoiceStatusPending,
		PayerAddress:  "payer",
		PayeeAddress:  "payee",
		Amount:        "100000000",
		AmountDisplay: "100",
		Currency:      "USDC",
		Network:       "solana",
		Reason:        strPtr("design work"),
		PaymentURL:    strPtr("solana:payee?amount=100"),
	}
}

func TestInvoiceMessages_BothEmails(t *testing.T) {
	inv := testInvoice()
	inv.BusinessEmail = strPtr("biz@example.com")
	inv.ClientEmail = strPtr("client@example.com")

	msgs := InvoiceMessages(inv)
	require.Len(t, msgs, 2)

	assert.Equal(t, TemplateBusiness, msgs[0].Template)
	assert.Equal(t, "biz@example.com", msgs[0].To)
	assert.Equal(t, "payer", msgs[0].Payload.Counterparty)

	assert.Equal(t, TemplateClient, msgs[1].Template)
	assert.Equal(t, "client@example.com", msgs[1].To)
	assert.Equal(t, "payee", msgs[1].Payload.Counterparty)

	for _, m := range msgs {
		assert.Equal(t, "100", m.Payload.Amount)
		assert.Equal(t, "design work", m.Payload.Reason)
		assert.Equal(t, "solana:payee?amount=100", m.Payload.PaymentURL)
	}
}

func TestInvoiceMessages_NoEmails(t *testing.T) {
	msgs := InvoiceMessages(testInvoice())
	assert.Empty(t, msgs)
}

func TestInvoiceMessages_OneEmail(t *testing.T) {
	inv := testInvoice()
	inv.ClientEmail = strPtr("client@example.com")

	msgs := InvoiceMessages(inv)
	require.Len(t, msgs, 1)
	assert.Equal(t, TemplateClient, msgs[0].Template)
}

func TestSettlementMessages(t *testing.T) {
	inv := testInvoice()
	inv.BusinessEmail = strPtr("biz@example.com")
	inv.ClientEmail = strPtr("client@example.com")
	inv.ExplorerURL = strPtr("https://explorer.solana.com/tx/sig")

	msgs := SettlementMessages(inv)
	require.Len(t, msgs, 2)

	assert.Equal(t, TemplateReceived, msgs[0].Template)
	assert.Equal(t, TemplateSent, msgs[1].Template)
	for _, m := range msgs {
		assert.Equal(t, "https://explorer.solana.com/tx/sig", m.Payload.ExplorerURL)
	}
}

func TestPaymentMessages(t *testing.T) {
	txn := &db.Transaction{
		TransactionID: "payce-tx-1",
		Sender:        "alice",
		Recipient:     "bob",
		Amount:        "2500000",
		AmountDisplay: "2.5",
		Currency:      "USDC",
		Network:       "solana",
		ExplorerURL:   strPtr("https://explorer.solana.com/tx/sigx"),
	}

	msgs := PaymentMessages(txn, "alice@example.com", "")
	require.Len(t, msgs, 1)
	assert.Equal(t, TemplateSent, msgs[0].Template)
	assert.Equal(t, "bob", msgs[0].Payload.Counterparty)

	both := PaymentMessages(txn, "alice@example.com", "bob@example.com")
	require.Len(t, both, 2)
	assert.Equal(t, TemplateReceived, both[1].Template)
}
