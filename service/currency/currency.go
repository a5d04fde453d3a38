package currency

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Family identifies which chain ecosystem a currency settles on.
// It selects the chain adapter and batch strategy used for a payment.
type Family string

const (
	FamilyEVM    Family = "evm"
	FamilySolana Family = "solana"
)

// Currency describes a supported token: which chain family it belongs to,
// the network it lives on, and the number of decimals used when converting
// between human-readable amounts and base units.
type Currency struct {
	Family   Family
	Symbol   string
	Network  string
	Decimals int32
}

// Key returns the registry key for a currency, e.g. "USDC-base".
func (c Currency) Key() string {
	return c.Symbol + "-" + c.Network
}

// supported is the closed set of currencies the service accepts.
// Amounts for anything outside this set are rejected at intent construction,
// so no chain-side code ever performs a currency lookup.
var supported = map[string]Currency{
	"ETH-mainnet":         {Family: FamilyEVM, Symbol: "ETH", Network: "mainnet", Decimals: 18},
	"ETH-sepolia":         {Family: FamilyEVM, Symbol: "ETH", Network: "sepolia", Decimals: 18},
	"ETH-base":            {Family: FamilyEVM, Symbol: "ETH", Network: "base", Decimals: 18},
	"USDC-mainnet":        {Family: FamilyEVM, Symbol: "USDC", Network: "mainnet", Decimals: 6},
	"USDC-base":           {Family: FamilyEVM, Symbol: "USDC", Network: "base", Decimals: 6},
	"USDT-base":           {Family: FamilyEVM, Symbol: "USDT", Network: "base", Decimals: 6},
	"USDC-solana":         {Family: FamilySolana, Symbol: "USDC", Network: "solana", Decimals: 6},
	"USDC-solana-devnet":  {Family: FamilySolana, Symbol: "USDC", Network: "solana-devnet", Decimals: 6},
}

// Lookup resolves a symbol+network pair against the supported set.
func Lookup(symbol, network string) (Currency, error) {
	c, ok := supported[symbol+"-"+network]
	if !ok {
		return Currency{}, fmt.Errorf("unsupported currency: %s on %s", symbol, network)
	}
	return c, nil
}

// Supported returns the registry keys of all supported currencies.
func Supported() []string {
	keys := make([]string, 0, len(supported))
	for k := range supported {
		keys = append(keys, k)
	}
	return keys
}

// ParseAmount converts a human-readable decimal amount string to base units,
// truncating toward zero at the currency's decimal precision. The returned
// value is always the full requested amount; fees are computed separately and
// charged on top, never subtracted from the payee's receipt.
func (c Currency) ParseAmount(amount string) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %q", amount)
	}
	base := d.Truncate(c.Decimals).Shift(c.Decimals)
	return base.BigInt(), nil
}

// FormatAmount converts base units back to a human-readable decimal string.
func (c Currency) FormatAmount(base *big.Int) string {
	return decimal.NewFromBigInt(base, -c.Decimals).String()
}
