package fee

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals int32
		want     string
	}{
		// 100 * 0.005 = 0.5, under the cap
		{name: "below cap", amount: "100", decimals: 6, want: "500000"},
		// 2000 * 0.005 = 10, capped at 5
		{name: "above cap", amount: "2000", decimals: 6, want: "5000000"},
		// exactly at the cap boundary: 1000 * 0.005 = 5
		{name: "at cap", amount: "1000", decimals: 6, want: "5000000"},
		{name: "just above cap", amount: "1000.01", decimals: 6, want: "5000000"},
		{name: "zero amount", amount: "0", decimals: 6, want: "0"},
		// 0.01 * 0.005 = 0.00005
		{name: "tiny amount", amount: "0.01", decimals: 6, want: "50"},
		// truncation below representable precision: 0.0001 * 0.005 = 0.0000005
		{name: "fee truncates to zero", amount: "0.0001", decimals: 6, want: "0"},
		// 18-decimal currency, cap still 5 whole units
		{name: "eth above cap", amount: "5000", decimals: 18, want: "5000000000000000000"},
		{name: "eth below cap", amount: "2", decimals: 18, want: "10000000000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(tt.amount, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestComputeRejectsBadInput(t *testing.T) {
	_, err := Compute("not-a-number", 6)
	require.Error(t, err)

	_, err = Compute("-100", 6)
	require.Error(t, err)
}
