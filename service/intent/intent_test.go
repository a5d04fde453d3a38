package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payce-finance/payce/service/currency"
)

const (
	evmPayer     = "0x1111111111111111111111111111111111111111"
	evmRecipient = "0x2222222222222222222222222222222222222222"
	solPayer     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	solRecipient = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func TestBuildEVMIntent(t *testing.T) {
	b := NewBuilder()
	got, err := b.Build(Raw{
		PayerAddress:     evmPayer,
		RecipientAddress: evmRecipient,
		Amount:           "100",
		Currency:         "USDC",
		Network:          "base",
		Reason:           "consulting",
	})
	require.NoError(t, err)

	assert.Equal(t, currency.FamilyEVM, got.Currency.Family)
	assert.Equal(t, "100000000", got.Amount.String())
	assert.Equal(t, "100", got.AmountDisplay)
	assert.Equal(t, "consulting", got.Reason)
	assert.Nil(t, got.DueDate)
}

func TestBuildSolanaIntent(t *testing.T) {
	b := NewBuilder()
	got, err := b.Build(Raw{
		PayerAddress:     solPayer,
		RecipientAddress: solRecipient,
		Amount:           "12.5",
		Currency:         "USDC",
		Network:          "solana-devnet",
		DueDate:          "2026-09-15",
	})
	require.NoError(t, err)

	assert.Equal(t, currency.FamilySolana, got.Currency.Family)
	assert.Equal(t, "12500000", got.Amount.String())
	require.NotNil(t, got.DueDate)
	assert.Equal(t, "2026-09-15", got.DueDate.Format("2006-01-02"))
}

func TestBuildRejections(t *testing.T) {
	b := NewBuilder()
	tests := []struct {
		name string
		raw  Raw
	}{
		{
			name: "missing recipient",
			raw:  Raw{PayerAddress: evmPayer, Amount: "1", Currency: "USDC", Network: "base"},
		},
		{
			name: "missing amount",
			raw:  Raw{PayerAddress: evmPayer, RecipientAddress: evmRecipient, Currency: "USDC", Network: "base"},
		},
		{
			name: "zero amount",
			raw:  Raw{PayerAddress: evmPayer, RecipientAddress: evmRecipient, Amount: "0", Currency: "USDC", Network: "base"},
		},
		{
			name: "negative amount",
			raw:  Raw{PayerAddress: evmPayer, RecipientAddress: evmRecipient, Amount: "-5", Currency: "USDC", Network: "base"},
		},
		{
			name: "unsupported currency",
			raw:  Raw{PayerAddress: evmPayer, RecipientAddress: evmRecipient, Amount: "1", Currency: "DOGE", Network: "base"},
		},
		{
			name: "solana address on evm network",
			raw:  Raw{PayerAddress: solPayer, RecipientAddress: evmRecipient, Amount: "1", Currency: "USDC", Network: "base"},
		},
		{
			name: "evm address on solana network",
			raw:  Raw{PayerAddress: solPayer, RecipientAddress: evmRecipient, Amount: "1", Currency: "USDC", Network: "solana"},
		},
		{
			name: "bad due date",
			raw: Raw{
				PayerAddress: evmPayer, RecipientAddress: evmRecipient,
				Amount: "1", Currency: "USDC", Network: "base", DueDate: "next tuesday",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := b.Build(tc.raw)
			require.Error(t, err)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestBuildBatch(t *testing.T) {
	b := NewBuilder()
	got, err := b.BuildBatch(RawBatch{
		PayerAddress: evmPayer,
		Currency:     "USDC",
		Network:      "base",
		Recipients: []RawRecipient{
			{Address: evmRecipient, Amount: "10", RecipientName: "alice"},
			{Address: "0x3333333333333333333333333333333333333333", Amount: "2.5"},
		},
	})
	require.NoError(t, err)

	require.Len(t, got.Recipients, 2)
	assert.Equal(t, "10000000", got.Recipients[0].Amount.String())
	assert.Equal(t, "2500000", got.Recipients[1].Amount.String())
	assert.Equal(t, "12500000", got.TotalAmount().String())
}

func TestBuildBatchRejectsEmptyAndBadLines(t *testing.T) {
	b := NewBuilder()

	_, err := b.BuildBatch(RawBatch{
		PayerAddress: evmPayer,
		Currency:     "USDC",
		Network:      "base",
	})
	require.Error(t, err)

	_, err = b.BuildBatch(RawBatch{
		PayerAddress: evmPayer,
		Currency:     "USDC",
		Network:      "base",
		Recipients: []RawRecipient{
			{Address: evmRecipient, Amount: "10"},
			{Address: "not-an-address", Amount: "1"},
		},
	})
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Field, "recipients[1]")
}
