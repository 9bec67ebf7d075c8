package httpapi

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var maxFactor = decimal.RequireFromString("18446744073709551615")

// ParsePrice converts a decimal price string into an integer price factor
// with scale implied decimal places. "1.25" at scale 2 is 125. Prices with
// more precision than scale, or that do not fit a uint64, are rejected.
func ParsePrice(s string, scale int32) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("price must be positive")
	}
	factor := d.Shift(scale)
	if !factor.IsInteger() {
		return 0, fmt.Errorf("price %s has more than %d decimal places", s, scale)
	}
	if factor.GreaterThan(maxFactor) {
		return 0, fmt.Errorf("price %s is too large", s)
	}
	return factor.BigInt().Uint64(), nil
}
