package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Decimal exponents are bounded only by int32; values outside float64 range count as
// non-finite.
const (
	maxMagnitude = 309
	minMagnitude = -324
)

// ParseDecimal is the lenient boundary parser for user and external numeric input.
// Empty, malformed or non-finite values become zero instead of an error.
func ParseDecimal(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	s = strings.ReplaceAll(s, " ", "")
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsZero() {
		return decimal.Zero
	}
	// order of magnitude: digits of the coefficient plus the exponent
	mag := int64(len(d.Coefficient().String())) + int64(d.Exponent())
	if d.IsNegative() {
		mag-- // leading minus sign
	}
	if mag > maxMagnitude || mag < minMagnitude {
		return decimal.Zero
	}
	return d
}

// ParseLotSize parses a lot size, defaulting to 1 for anything that is not strictly positive.
func ParseLotSize(s string) decimal.Decimal {
	d := ParseDecimal(s)
	if !d.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return d
}
