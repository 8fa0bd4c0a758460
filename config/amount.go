package config

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// CurrencyDecimals is the number of base units per major currency unit,
// as a power of ten.
const CurrencyDecimals = 9

// FormatAmount renders base units as a major-unit decimal string.
func FormatAmount(units uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -CurrencyDecimals).String()
}

// ParseAmount parses a major-unit decimal string into base units.
func ParseAmount(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("invalid amount %q: negative", s)
	}
	units := d.Shift(CurrencyDecimals)
	if !units.IsInteger() {
		return 0, fmt.Errorf("invalid amount %q: more than %d decimal places", s, CurrencyDecimals)
	}
	n := units.BigInt()
	if !n.IsUint64() {
		return 0, fmt.Errorf("invalid amount %q: overflow", s)
	}
	return n.Uint64(), nil
}
