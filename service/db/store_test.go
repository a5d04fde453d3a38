package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoiceLifecycle(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	reason := "consulting services"
	businessEmail := "ops@acme.example"

	inv, err := store.CreateInvoice(ctx, CreateInvoiceParams{
		TransactionID: "payce1234567890abcdef12345678",
		PayerAddress:  "payer-wallet",
		PayeeAddress:  "payee-wallet",
		Amount:        "100000000",
		AmountDisplay: "100",
		Currency:      "USDC",
		Network:       "solana-devnet",
		Reason:        &reason,
		BusinessEmail: &businessEmail,
		ContentData:   map[string]any{"lineItems": []any{map[string]any{"description": "work", "amount": "100"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusPending, inv.Status)
	assert.Nil(t, inv.PaidAt)
	assert.Nil(t, inv.ExplorerURL)
	assert.WithinDuration(t, time.Now(), inv.CreatedAt, 5*time.Second)

	t.Run("duplicate id rejected", func(t *testing.T) {
		_, err := store.CreateInvoice(ctx, CreateInvoiceParams{
			TransactionID: inv.TransactionID,
			PayerAddress:  "x",
			PayeeAddress:  "y",
			Amount:        "1",
			AmountDisplay: "1",
			Currency:      "USDC",
			Network:       "solana",
		})
		assert.ErrorIs(t, err, ErrDuplicateID)
	})

	t.Run("mark paid", func(t *testing.T) {
		paidAt := time.Now().UTC().Truncate(time.Microsecond)
		paid, err := store.MarkInvoicePaid(ctx, inv.TransactionID, paidAt, "https://explorer.solana.com/tx/sig?cluster=devnet")
		require.NoError(t, err)

		assert.Equal(t, InvoiceStatusPaid, paid.Status)
		require.NotNil(t, paid.PaidAt)
		assert.WithinDuration(t, paidAt, *paid.PaidAt, time.Microsecond)
		require.NotNil(t, paid.ExplorerURL)
		assert.Contains(t, *paid.ExplorerURL, "cluster=devnet")
	})

	t.Run("second mark paid rejected", func(t *testing.T) {
		_, err := store.MarkInvoicePaid(ctx, inv.TransactionID, time.Now(), "https://example.com")
		assert.ErrorIs(t, err, ErrInvoiceAlreadyPaid)
	})

	t.Run("unknown invoice", func(t *testing.T) {
		_, err := store.MarkInvoicePaid(ctx, "payce-nope", time.Now(), "u")
		assert.ErrorIs(t, err, ErrInvoiceNotFound)

		_, err = store.GetInvoice(ctx, "payce-nope")
		assert.ErrorIs(t, err, ErrInvoiceNotFound)
	})
}

func TestListInvoices(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	for _, id := range []string{"payce-a", "payce-b", "payce-c"} {
		_, err := store.CreateInvoice(ctx, CreateInvoiceParams{
			TransactionID: id,
			PayerAddress:  "payer-1",
			PayeeAddress:  "payee-1",
			Amount:        "5000000",
			AmountDisplay: "5",
			Currency:      "USDC",
			Network:       "solana",
		})
		require.NoError(t, err)
	}
	_, err := store.MarkInvoicePaid(ctx, "payce-b", time.Now(), "url")
	require.NoError(t, err)

	all, err := store.ListInvoices(ctx, ListInvoicesParams{Address: "payer-1"})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	pending, err := store.ListInvoices(ctx, ListInvoicesParams{Address: "payee-1", Status: InvoiceStatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	none, err := store.ListInvoices(ctx, ListInvoicesParams{Address: "stranger"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTransactions(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	explorer := "https://explorer.solana.com/tx/sigx"

	txn, err := store.CreateTransaction(ctx, CreateTransactionParams{
		TransactionID: "payce-tx-1",
		Sender:        "alice",
		Recipient:     "bob",
		Amount:        "2500000",
		AmountDisplay: "2.5",
		Currency:      "USDC",
		Network:       "solana",
		Signature:     "sigx",
		ExplorerURL:   &explorer,
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", txn.Sender)
	assert.Equal(t, "sigx", txn.Signature)

	got, err := store.GetTransaction(ctx, "payce-tx-1")
	require.NoError(t, err)
	assert.Equal(t, txn.TransactionID, got.TransactionID)

	_, err = store.GetTransaction(ctx, "missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)

	bySender, err := store.ListTransactions(ctx, ListTransactionsParams{Address: "alice"})
	require.NoError(t, err)
	assert.Len(t, bySender, 1)

	byRecipient, err := store.ListTransactions(ctx, ListTransactionsParams{Address: "bob"})
	require.NoError(t, err)
	assert.Len(t, byRecipient, 1)

	outgoing, err := store.ListTransactions(ctx, ListTransactionsParams{Address: "alice", Direction: "out"})
	require.NoError(t, err)
	assert.Len(t, outgoing, 1)

	incoming, err := store.ListTransactions(ctx, ListTransactionsParams{Address: "alice", Direction: "in"})
	require.NoError(t, err)
	assert.Empty(t, incoming)

	past := time.Now().Add(-time.Hour)
	old, err := store.ListTransactions(ctx, ListTransactionsParams{Address: "alice", EndTime: &past})
	require.NoError(t, err)
	assert.Empty(t, old)
}

func TestStats(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	_, err := store.CreateInvoice(ctx, CreateInvoiceParams{
		TransactionID: "payce-s1",
		PayerAddress:  "carol",
		PayeeAddress:  "dave",
		Amount:        "1000000",
		AmountDisplay: "1",
		Currency:      "USDC",
		Network:       "solana",
	})
	require.NoError(t, err)
	_, err = store.CreateTransaction(ctx, CreateTransactionParams{
		TransactionID: "payce-s2",
		Sender:        "dave",
		Recipient:     "carol",
		Amount:        "1000000",
		AmountDisplay: "1",
		Currency:      "USDC",
		Network:       "solana",
		Signature:     "sig-s2",
	})
	require.NoError(t, err)

	dash, err := store.GetDashboardStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dash.TotalInvoices)
	assert.Equal(t, int64(1), dash.PendingInvoices)
	assert.Equal(t, int64(0), dash.PaidInvoices)
	assert.Equal(t, int64(1), dash.TotalTransactions)

	acct, err := store.GetAccountStats(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, int64(1), acct.InvoicesIssued)
	assert.Equal(t, int64(0), acct.InvoicesReceived)
	assert.Equal(t, int64(1), acct.PaymentsSent)
	assert.Equal(t, int64(0), acct.PaymentsReceived)
	assert.Equal(t, "0", acct.InflowTotal)
	assert.Equal(t, "1000000", acct.OutflowTotal)
	assert.Equal(t, "-1000000", acct.NetFlow)
}

func TestInvoiceStats(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	overdue := time.Now().Add(-48 * time.Hour)

	_, err := store.CreateInvoice(ctx, CreateInvoiceParams{
		TransactionID: "payce-is1",
		PayerAddress:  "erin",
		PayeeAddress:  "frank",
		Amount:        "2000000",
		AmountDisplay: "2",
		Currency:      "USDC",
		Network:       "solana",
		DueDate:       &overdue,
	})
	require.NoError(t, err)

	_, err = store.CreateInvoice(ctx, CreateInvoiceParams{
		TransactionID: "payce-is2",
		PayerAddress:  "erin",
		PayeeAddress:  "frank",
		Amount:        "3000000",
		AmountDisplay: "3",
		Currency:      "USDC",
		Network:       "solana",
	})
	require.NoError(t, err)
	_, err = store.MarkInvoicePaid(ctx, "payce-is2", time.Now(), "https://explorer.example/tx/x")
	require.NoError(t, err)

	stats, err := store.GetInvoiceStats(ctx, "frank")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.Overdue)
	assert.Equal(t, int64(1), stats.Paid)
	assert.Equal(t, "2000000", stats.PendingTotal)
	assert.Equal(t, "3000000", stats.PaidTotal)

	empty, err := store.GetInvoiceStats(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.Pending)
	assert.Equal(t, "0", empty.PendingTotal)
}
