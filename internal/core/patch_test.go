package core

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionalPresence(t *testing.T) {
	var p RecurringPatch
	require.NoError(t, json.Unmarshal([]byte(`{"isActive":false,"dayOfMonth":0}`), &p))

	assert.True(t, p.IsActive.Set)
	assert.False(t, p.IsActive.Value)
	assert.True(t, p.DayOfMonth.Set, "explicit zero is still present")
	assert.False(t, p.Amount.Set)
	assert.False(t, p.EndDate.Set)
}

func TestOptionalNullClearsPointerFields(t *testing.T) {
	var p RecurringPatch
	require.NoError(t, json.Unmarshal([]byte(`{"endDate":null}`), &p))

	assert.True(t, p.EndDate.Set)
	assert.Nil(t, p.EndDate.Value)
}

func TestOptionalNullRejectedOnValueFields(t *testing.T) {
	tests := []struct {
		name string
		body string
		dst  any
	}{
		{"recurring isActive", `{"isActive":null}`, &RecurringPatch{}},
		{"recurring amount", `{"amount":null}`, &RecurringPatch{}},
		{"transaction description", `{"description":null}`, &TransactionPatch{}},
		{"transaction date", `{"date":null}`, &TransactionPatch{}},
		{"category name", `{"name":null}`, &CategoryPatch{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := json.Unmarshal([]byte(tt.body), tt.dst)
			assert.ErrorIs(t, err, ErrNullValue)
		})
	}
}

func TestPatchValidateRejectsSubCentAmount(t *testing.T) {
	tiny := Some(decimal.RequireFromString("0.004"))

	assert.ErrorIs(t, TransactionPatch{Amount: tiny}.Validate(), ErrInvalidAmount)
	assert.ErrorIs(t, RecurringPatch{Amount: tiny}.Validate(), ErrInvalidAmount)
}
