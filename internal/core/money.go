// Package core holds the ledger's domain types, validation rules and
// amount normalization.
package core

import (
	"github.com/shopspring/decimal"
)

// NormalizeAmount rounds a to cents, half away from zero, and rejects the
// result unless it is positive. Amounts are always normalized before they
// are validated, converted or stored.
//
// Examples:
//
//	NormalizeAmount(12.345) -> 12.35
//	NormalizeAmount(12.344) -> 12.34
//	NormalizeAmount(0.004)  -> error
func NormalizeAmount(a decimal.Decimal) (decimal.Decimal, error) {
	a = a.Round(2)
	if !a.IsPositive() {
		return decimal.Zero, Invalid("amount", ErrInvalidAmount)
	}
	return a, nil
}
