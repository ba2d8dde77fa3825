// Package dmath provides the checked fixed-point arithmetic used for every
// monetary computation in the mint engine.
//
// Two value domains share decimal.Decimal:
//   - Amounts: whole-valued, non-negative, at most MaxAmount (2^128 - 1).
//   - Prices and ratios: fixed-point with 18 fractional digits.
//
// Division truncates at 18 fractional digits and amount-by-decimal
// multiplication floors to a whole amount, so every computation is
// deterministic under re-execution. Out-of-range results fail loudly with
// ErrOverflow instead of saturating or wrapping.
//
// All monetary values use shopspring/decimal: never float64 for money.
package dmath

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrDivideByZero is returned when a divisor or reciprocal argument is zero.
	ErrDivideByZero = errors.New("dmath: division by zero")

	// ErrOverflow is returned when a result leaves the representable range:
	// above MaxAmount, or negative where the amount domain is unsigned.
	ErrOverflow = errors.New("dmath: result outside representable range")

	// MaxAmount is the largest representable amount, 2^128 - 1.
	MaxAmount = decimal.RequireFromString("340282366920938463463374607431768211455")

	one = decimal.NewFromInt(1)
)

// FractionalDigits is the fixed-point precision for prices and ratios.
const FractionalDigits = 18

// Mul multiplies two decimals, truncating the product to FractionalDigits.
func Mul(a, b decimal.Decimal) (decimal.Decimal, error) {
	p := a.Mul(b).Truncate(FractionalDigits)
	if p.Abs().GreaterThan(MaxAmount) {
		return decimal.Zero, ErrOverflow
	}
	return p, nil
}

// Add sums two amounts, failing if the total leaves the amount range.
func Add(a, b decimal.Decimal) (decimal.Decimal, error) {
	s := a.Add(b)
	if s.GreaterThan(MaxAmount) {
		return decimal.Zero, ErrOverflow
	}
	return s, nil
}

// Div divides a by b, truncating the quotient to FractionalDigits.
// Truncation, not rounding: 2/3 yields 0.666...6.
func Div(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, ErrDivideByZero
	}
	q, _ := a.QuoRem(b, FractionalDigits)
	if q.Abs().GreaterThan(MaxAmount) {
		return decimal.Zero, ErrOverflow
	}
	return q, nil
}

// Recip returns 1/a with Div's truncation semantics.
func Recip(a decimal.Decimal) (decimal.Decimal, error) {
	return Div(one, a)
}

// Sub subtracts b from a. Amounts are unsigned, so a negative result is
// out of range.
func Sub(a, b decimal.Decimal) (decimal.Decimal, error) {
	r := a.Sub(b)
	if r.IsNegative() {
		return decimal.Zero, ErrOverflow
	}
	return r, nil
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	return decimal.Min(a, b)
}

// MulAmount multiplies a whole-unit amount by a decimal factor, flooring
// the product to a whole amount. This is the only place fractional value
// is dropped.
func MulAmount(amount, factor decimal.Decimal) (decimal.Decimal, error) {
	p := amount.Mul(factor).Floor()
	if p.IsNegative() || p.GreaterThan(MaxAmount) {
		return decimal.Zero, ErrOverflow
	}
	return p, nil
}
