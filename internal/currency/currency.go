// Package currency holds the supported currency enum and the fixed-rate
// conversion used to normalize amounts into the primary currency.
//
// Rates are expressed as units of the reference currency (EUR) per one unit
// of the given currency. They are static: historical conversions are frozen
// at write time and never corrected afterwards.
package currency

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Code is an ISO 4217 currency code from the supported set.
type Code string

const (
	EUR Code = "EUR"
	USD Code = "USD"
	GBP Code = "GBP"
	JPY Code = "JPY"
	CHF Code = "CHF"
	CAD Code = "CAD"
	AUD Code = "AUD"
	CNY Code = "CNY"
)

// Reference is the currency every rate is expressed in.
const Reference = EUR

// ErrUnknownCurrency is returned for codes outside the supported set.
var ErrUnknownCurrency = errors.New("unknown currency")

type info struct {
	symbol string
	rate   decimal.Decimal
}

// Display order matches the order users pick currencies in.
var codes = []Code{EUR, USD, GBP, JPY, CHF, CAD, AUD, CNY}

var table = map[Code]info{
	EUR: {symbol: "€", rate: decimal.NewFromInt(1)},
	USD: {symbol: "$", rate: decimal.RequireFromString("0.92")},
	GBP: {symbol: "£", rate: decimal.RequireFromString("1.17")},
	JPY: {symbol: "¥", rate: decimal.RequireFromString("0.0064")},
	CHF: {symbol: "Fr", rate: decimal.RequireFromString("1.05")},
	CAD: {symbol: "C$", rate: decimal.RequireFromString("0.68")},
	AUD: {symbol: "A$", rate: decimal.RequireFromString("0.62")},
	CNY: {symbol: "¥", rate: decimal.RequireFromString("0.13")},
}

// Codes returns the supported currencies in display order.
func Codes() []Code {
	out := make([]Code, len(codes))
	copy(out, codes)
	return out
}

// Valid reports whether c is a supported currency.
func (c Code) Valid() bool {
	_, ok := table[c]
	return ok
}

func (c Code) String() string {
	return string(c)
}

// Parse normalizes user input (case and whitespace) into a supported Code.
func Parse(s string) (Code, error) {
	c := Code(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, s)
	}
	return c, nil
}

// Symbol returns the display symbol for c.
func Symbol(c Code) (string, error) {
	i, ok := table[c]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, string(c))
	}
	return i.symbol, nil
}

// Rate returns the number of EUR one unit of c is worth.
func Rate(c Code) (decimal.Decimal, error) {
	i, ok := table[c]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownCurrency, string(c))
	}
	return i.rate, nil
}

// Convert maps amount from one currency into another.
//
// The amount is first expressed in the reference currency and then divided
// by the target rate; the result is rounded to cents, half away from zero.
// Identical currencies still go through both steps.
func Convert(amount decimal.Decimal, from, to Code) (decimal.Decimal, error) {
	fromRate, err := Rate(from)
	if err != nil {
		return decimal.Zero, err
	}
	toRate, err := Rate(to)
	if err != nil {
		return decimal.Zero, err
	}
	inReference := amount.Mul(fromRate)
	return inReference.Div(toRate).Round(2), nil
}

// Format renders amount with the currency symbol, e.g. "€1,234.50" or "-$3.00".
func Format(amount decimal.Decimal, c Code) string {
	symbol, err := Symbol(c)
	if err != nil {
		symbol = string(c) + " "
	}
	neg := amount.IsNegative()
	s := amount.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := symbol + b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}
