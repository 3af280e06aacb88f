package currency

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestConvert(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		from, to Code
		want     string
	}{
		{"usd to eur", "100", USD, EUR, "92"},
		{"eur to usd", "92", EUR, USD, "100"},
		{"gbp to eur", "10", GBP, EUR, "11.7"},
		{"eur to jpy", "100", EUR, JPY, "15625"},
		{"jpy to eur", "10000", JPY, EUR, "64"},
		{"aud to eur", "100", AUD, EUR, "62"},
		{"chf to usd", "100", CHF, USD, "114.13"},
		{"half away from zero on cent boundary", "0.005", EUR, EUR, "0.01"},
		{"rounds down below half", "12.344", EUR, EUR, "12.34"},
		{"zero stays zero", "0", CNY, AUD, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(d(tt.amount), tt.from, tt.to)
			require.NoError(t, err)
			assert.True(t, got.Equal(d(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestRateTable(t *testing.T) {
	tests := []struct {
		code   Code
		symbol string
		rate   string
	}{
		{EUR, "€", "1"},
		{USD, "$", "0.92"},
		{GBP, "£", "1.17"},
		{JPY, "¥", "0.0064"},
		{CHF, "Fr", "1.05"},
		{CAD, "C$", "0.68"},
		{AUD, "A$", "0.62"},
		{CNY, "¥", "0.13"},
	}
	require.Len(t, tests, len(Codes()))
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			sym, err := Symbol(tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.symbol, sym)

			rate, err := Rate(tt.code)
			require.NoError(t, err)
			assert.True(t, rate.Equal(d(tt.rate)), "rate %s want %s", rate, tt.rate)
		})
	}
}

func TestConvertIdentity(t *testing.T) {
	amounts := []string{"0.01", "1", "12.34", "999.99", "123456.78"}
	for _, c := range Codes() {
		for _, a := range amounts {
			got, err := Convert(d(a), c, c)
			require.NoError(t, err)
			assert.True(t, got.Equal(d(a)), "%s %s: got %s", c, a, got)
		}
	}
}

func TestConvertNonNegative(t *testing.T) {
	for _, from := range Codes() {
		for _, to := range Codes() {
			for _, a := range []string{"0", "0.01", "5", "1000"} {
				got, err := Convert(d(a), from, to)
				require.NoError(t, err)
				assert.False(t, got.IsNegative(), "%s->%s %s", from, to, a)
			}
		}
	}
}

func TestConvertRoundTrip(t *testing.T) {
	// Pairs whose rate ratio stays below 2 keep two roundings within two cents.
	majors := []Code{EUR, USD, GBP, CHF, CAD, AUD}
	tolerance := d("0.02")
	for _, a := range majors {
		for _, b := range majors {
			for _, x := range []string{"1", "19.99", "250", "1234.56"} {
				there, err := Convert(d(x), a, b)
				require.NoError(t, err)
				back, err := Convert(there, b, a)
				require.NoError(t, err)
				diff := back.Sub(d(x)).Abs()
				assert.True(t, diff.LessThanOrEqual(tolerance), "%s->%s->%s %s: back %s", a, b, a, x, back)
			}
		}
	}
}

func TestConvertUnknownCurrency(t *testing.T) {
	_, err := Convert(d("1"), Code("XYZ"), EUR)
	assert.True(t, errors.Is(err, ErrUnknownCurrency))

	_, err = Convert(d("1"), EUR, Code(""))
	assert.True(t, errors.Is(err, ErrUnknownCurrency))
}

func TestParse(t *testing.T) {
	c, err := Parse(" usd ")
	require.NoError(t, err)
	assert.Equal(t, USD, c)

	_, err = Parse("BTC")
	assert.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "€1,234.50", Format(d("1234.5"), EUR))
	assert.Equal(t, "-$3.00", Format(d("-3"), USD))
	assert.Equal(t, "Fr0.99", Format(d("0.99"), CHF))
	assert.Equal(t, "£1,000,000.00", Format(d("1000000"), GBP))
}

func TestCodesIsACopy(t *testing.T) {
	c := Codes()
	require.Len(t, c, 8)
	c[0] = "XXX"
	assert.Equal(t, EUR, Codes()[0])
}
