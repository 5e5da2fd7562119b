package utils

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/vitwit/tipsplit/types"
)

// SplitTolerance is the allowed distance, in percentage points, between the
// sum of split percentages and 100.
const SplitTolerance = types.DefaultSplitPercentTolerance

var (
	hundred   = decimal.NewFromInt(100)
	tolerance = decimal.NewFromFloat(SplitTolerance)
)

// SplitInput is one recipient share expressed as a percentage of the total.
type SplitInput struct {
	Address    string
	Percentage float64
}

// SplitAmount is one recipient share expressed as an amount of the total.
type SplitAmount struct {
	Address string
	Amount  string
}

// ComputeSplits derives each recipient's amount as total * percentage / 100.
// Amounts are exact decimal strings in input order. The percentage sum is not
// checked here; see ValidateSplitTotal.
func ComputeSplits(total string, splits []SplitInput) ([]SplitAmount, error) {
	if len(splits) == 0 {
		return nil, fmt.Errorf("at least one split is required")
	}

	amount, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("invalid total amount %q: %w", total, err)
	}

	out := make([]SplitAmount, 0, len(splits))
	for i, s := range splits {
		if !finite(s.Percentage) {
			return nil, fmt.Errorf("split %d: percentage %v is not a finite number", i+1, s.Percentage)
		}
		share := amount.Mul(decimal.NewFromFloat(s.Percentage)).Shift(-2)
		out = append(out, SplitAmount{
			Address: s.Address,
			Amount:  share.String(),
		})
	}

	return out, nil
}

// SumPercentages adds percentages exactly. NaN and infinities are rejected.
func SumPercentages(percentages []float64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for i, p := range percentages {
		if !finite(p) {
			return decimal.Zero, fmt.Errorf("split %d: percentage %v is not a finite number", i+1, p)
		}
		sum = sum.Add(decimal.NewFromFloat(p))
	}
	return sum, nil
}

// ValidateSplitTotal reports whether the percentages add up to 100 within
// SplitTolerance, inclusive. Any non-finite percentage makes it false.
func ValidateSplitTotal(percentages []float64) bool {
	sum, err := SumPercentages(percentages)
	if err != nil {
		return false
	}
	return sum.Sub(hundred).Abs().LessThanOrEqual(tolerance)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ShortAddress abbreviates a hex address for log output: 0x1234...abcd.
func ShortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
