package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.23", "1.23", true},
		{"0.01", "0.01", true},
		{"0.005", "0.01", true}, // half away from zero
		{"1.005", "1.01", true},
		{"1.004", "1", true},
		{"123456.789", "123456.79", true},
		{"0.004", "", false}, // rounds to zero
		{"0", "", false},
		{"-0.01", "", false},
		{"-5", "", false},
	}
	for _, tc := range cases {
		got, err := NormalizeAmount(decimal.RequireFromString(tc.in))
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
			continue
		}
		if err == nil {
			t.Fatalf("%q expected error, got %s", tc.in, got)
		}
		if !errors.Is(err, ErrInvalidAmount) || !IsValidation(err) {
			t.Fatalf("%q expected validation error, got %v", tc.in, err)
		}
	}
}

func TestValidateAmountRejectsSubCent(t *testing.T) {
	if err := ValidateAmount(decimal.RequireFromString("0.004")); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := ValidateAmount(decimal.RequireFromString("0.005")); err != nil {
		t.Fatalf("0.005 rounds to a cent, got %v", err)
	}
}
