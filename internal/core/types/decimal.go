// Package types provides common value types.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
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

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// LineTotal multiplies a unit price by an integer quantity.
func LineTotal(unit Money, qty int) Money {
	return unit.Mul(decimal.NewFromInt(int64(qty)))
}

// EffectivePrice returns discount when set, otherwise regular.
func EffectivePrice(regular Money, discount *Money) Money {
	if discount != nil {
		return *discount
	}
	return regular
}
