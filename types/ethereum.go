package types

import (
	"fmt"
	"strings"
)

// NativeAssetAddress is the sentinel contract address of a chain's native asset.
const NativeAssetAddress = "0x0000000000000000000000000000000000000000"

var usdcContracts = map[Network]string{
	NetworkBase:        "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	NetworkBaseSepolia: "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
	NetworkPolygon:     "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
	NetworkPolygonAmoy: "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582",
}

// DefaultCurrencies returns the currencies a tip can be paid in on network.
// The native asset always comes first.
func DefaultCurrencies(network Network) []Currency {
	currencies := []Currency{
		{
			Symbol:   "ETH",
			Name:     "Ethereum",
			Decimals: 18,
			Address:  NativeAssetAddress,
			Standard: TokenStandardNative,
		},
	}

	if usdc, ok := usdcContracts[network]; ok {
		currencies = append(currencies, Currency{
			Symbol:   "USDC",
			Name:     "USD Coin",
			Decimals: 6,
			Address:  usdc,
			Standard: TokenStandardERC20,
		})
	}

	return currencies
}

// ValidateCurrencies checks a static currency list: non-empty, native asset
// first, unique symbols and a contract address for every token.
func ValidateCurrencies(currencies []Currency) error {
	if len(currencies) == 0 {
		return NewPaymentError(ErrConfigError, "at least one currency is required")
	}

	if !currencies[0].IsNative() {
		return NewPaymentError(ErrConfigError, "first currency must be the native asset, got %s", currencies[0].Symbol)
	}

	seen := make(map[string]struct{}, len(currencies))
	for _, c := range currencies {
		key := strings.ToUpper(c.Symbol)
		if _, dup := seen[key]; dup {
			return NewPaymentError(ErrConfigError, "duplicate currency symbol %s", c.Symbol)
		}
		seen[key] = struct{}{}

		switch c.Standard {
		case TokenStandardNative:
		case TokenStandardERC20:
			if c.Address == "" || strings.EqualFold(c.Address, NativeAssetAddress) {
				return NewPaymentError(ErrConfigError, "currency %s requires a contract address", c.Symbol)
			}
		default:
			return NewPaymentError(ErrConfigError, "currency %s has unsupported standard %q", c.Symbol, c.Standard)
		}
	}

	return nil
}

// FindCurrency looks a currency up by symbol, case-insensitively.
func FindCurrency(currencies []Currency, symbol string) (Currency, error) {
	for _, c := range currencies {
		if strings.EqualFold(c.Symbol, symbol) {
			return c, nil
		}
	}
	return Currency{}, fmt.Errorf("currency %s is not configured", symbol)
}
