// Package types provides common value types shared across the domain.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// NewMoneyFromString creates a Money value from a string.
// This is the preferred constructor for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ZeroMoney returns zero Money value.
func ZeroMoney() Money {
	return decimal.Zero
}

// MoneyPolicy bundles the rounding scale and comparison epsilon used by every
// money-touching computation. It is passed explicitly instead of living in a
// package-level constant so callers always see which policy prices a number.
type MoneyPolicy struct {
	// Scale is the number of fractional digits amounts are rounded to.
	Scale int32

	// Epsilon is the tolerance used when comparing amounts.
	// Anything with |v| < Epsilon counts as zero.
	Epsilon Money
}

// DefaultMoneyPolicy returns the standard 2-decimal, 0.009-epsilon policy.
func DefaultMoneyPolicy() MoneyPolicy {
	return MoneyPolicy{
		Scale:   2,
		Epsilon: MustMoney("0.009"),
	}
}

// Round rounds v to the policy scale, half away from zero.
func (p MoneyPolicy) Round(v Money) Money {
	return v.Round(p.Scale)
}

// IsZero reports whether v is zero within the policy epsilon.
func (p MoneyPolicy) IsZero(v Money) bool {
	return v.Abs().LessThan(p.Epsilon)
}

// Equal reports whether a and b differ by less than the policy epsilon.
func (p MoneyPolicy) Equal(a, b Money) bool {
	return p.IsZero(a.Sub(b))
}

// Clamp restricts v to the closed interval [lo, hi].
func (p MoneyPolicy) Clamp(v, lo, hi Money) Money {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

// Quantity is a whole-unit product count. Runs deal in physical pieces
// (packs or retail units), never fractional quantities.
type Quantity int64

func (q Quantity) IsZero() bool     { return q == 0 }
func (q Quantity) IsPositive() bool { return q > 0 }
func (q Quantity) IsNegative() bool { return q < 0 }

// Money converts the quantity to a decimal multiplier.
func (q Quantity) Money() Money {
	return decimal.NewFromInt(int64(q))
}
