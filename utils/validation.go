package utils

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vitwit/tipsplit/types"
)

var hexPattern = regexp.MustCompile("^[0-9a-fA-F]+$")

// ValidateAmount checks if an amount string is a valid non-negative decimal
func ValidateAmount(amount string) (*decimal.Decimal, error) {
	if amount == "" {
		return nil, fmt.Errorf("amount cannot be empty")
	}

	dec, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}

	if dec.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative")
	}

	return &dec, nil
}

// ValidatePositiveAmount is ValidateAmount that also rejects zero.
func ValidatePositiveAmount(amount string) (*decimal.Decimal, error) {
	dec, err := ValidateAmount(amount)
	if err != nil {
		return nil, err
	}
	if !dec.IsPositive() {
		return nil, fmt.Errorf("amount must be greater than zero")
	}
	return dec, nil
}

// ValidateTransactionHash checks an EVM transaction hash: 0x + 64 hex characters.
func ValidateTransactionHash(hash string) error {
	if hash == "" {
		return fmt.Errorf("transaction hash cannot be empty")
	}
	if !strings.HasPrefix(hash, "0x") {
		return fmt.Errorf("transaction hash must start with 0x")
	}
	if len(hash) != 66 {
		return fmt.Errorf("transaction hash must be 66 characters long")
	}
	if !isHexString(hash[2:]) {
		return fmt.Errorf("transaction hash must be valid hex")
	}
	return nil
}

// ValidateAddressForNetwork validates an account address on an EVM network
func ValidateAddressForNetwork(address string, network types.Network) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if !network.IsKnown() {
		return fmt.Errorf("unsupported network for address validation: %s", network)
	}
	if !strings.HasPrefix(address, "0x") {
		return fmt.Errorf("address must start with 0x")
	}
	if len(address) != 42 {
		return fmt.Errorf("address must be 42 characters long")
	}
	if !isHexString(address[2:]) {
		return fmt.Errorf("address must be valid hex")
	}
	return nil
}

func isHexString(s string) bool {
	return hexPattern.MatchString(s)
}

// ValidateNetwork checks if a network is supported
func ValidateNetwork(network string) error {
	if !types.Network(network).IsKnown() {
		return fmt.Errorf("unsupported network: %s", network)
	}
	return nil
}

// ParseAmountWithDecimals parses a decimal amount string and converts to big.Int with specified decimals.
// Digits beyond the currency's precision are truncated.
func ParseAmountWithDecimals(amount string, decimals int) (*big.Int, error) {
	dec, err := ValidateAmount(amount)
	if err != nil {
		return nil, err
	}

	return dec.Shift(int32(decimals)).BigInt(), nil
}

// FormatAmountFromBigInt formats a big.Int amount to decimal string with specified decimals
func FormatAmountFromBigInt(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// HasSufficientBalance compares a balance to a required amount, both decimal strings.
// An unparsable balance counts as zero.
func HasSufficientBalance(balance, required string) bool {
	have, err := decimal.NewFromString(balance)
	if err != nil {
		have = decimal.Zero
	}
	need, err := decimal.NewFromString(required)
	if err != nil {
		return false
	}
	return have.GreaterThanOrEqual(need)
}
