package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/currency"
)

// Optional distinguishes an omitted field from one explicitly set to its
// zero value. Only fields with Set == true are written by an update.
type Optional[T any] struct {
	Value T
	Set   bool
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// Get returns the value and whether it was set.
func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Set
}

// Or returns the value when set, otherwise fallback.
func (o Optional[T]) Or(fallback T) T {
	if o.Set {
		return o.Value
	}
	return fallback
}

// ErrNullValue rejects a JSON null on a field that cannot be cleared.
var ErrNullValue = errors.New("null is only accepted for clearable fields")

// UnmarshalJSON marks the field as present; absent keys never reach it.
// A JSON null clears pointer fields (such as a recurring end date) and is
// rejected everywhere else, so null never silently becomes a zero value.
func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		var zero T
		if reflect.TypeOf(&zero).Elem().Kind() != reflect.Pointer {
			return ErrNullValue
		}
		o.Value, o.Set = zero, true
		return nil
	}
	o.Set = true
	return json.Unmarshal(b, &o.Value)
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

type (
	CategoryPatch struct {
		Name  Optional[string] `json:"name"`
		Icon  Optional[string] `json:"icon"`
		Color Optional[string] `json:"color"`
	}

	PaymentMethodPatch struct {
		Name Optional[string] `json:"name"`
	}

	TransactionPatch struct {
		Type            Optional[TransactionType] `json:"type"`
		Amount          Optional[decimal.Decimal] `json:"amount"`
		Currency        Optional[currency.Code]   `json:"currency"`
		ConvertedAmount Optional[decimal.Decimal] `json:"convertedAmount"`
		CategoryID      Optional[string]          `json:"categoryId"`
		PaymentMethodID Optional[string]          `json:"paymentMethodId"`
		Description     Optional[string]          `json:"description"`
		Date            Optional[time.Time]       `json:"date"`
	}

	// RecurringPatch sets EndDate to nil (JSON null) to clear it.
	RecurringPatch struct {
		Amount          Optional[decimal.Decimal] `json:"amount"`
		Currency        Optional[currency.Code]   `json:"currency"`
		CategoryID      Optional[string]          `json:"categoryId"`
		PaymentMethodID Optional[string]          `json:"paymentMethodId"`
		Description     Optional[string]          `json:"description"`
		DayOfMonth      Optional[int]             `json:"dayOfMonth"`
		IsActive        Optional[bool]            `json:"isActive"`
		EndDate         Optional[*time.Time]      `json:"endDate"`
	}
)

func (p CategoryPatch) IsEmpty() bool {
	return !p.Name.Set && !p.Icon.Set && !p.Color.Set
}

func (p CategoryPatch) Validate() error {
	if v, ok := p.Name.Get(); ok && v == "" {
		return Invalid("name", ErrEmptyName)
	}
	return nil
}

func (p PaymentMethodPatch) IsEmpty() bool {
	return !p.Name.Set
}

func (p PaymentMethodPatch) Validate() error {
	if v, ok := p.Name.Get(); ok && v == "" {
		return Invalid("name", ErrEmptyName)
	}
	return nil
}

func (p TransactionPatch) IsEmpty() bool {
	return !p.Type.Set && !p.Amount.Set && !p.Currency.Set && !p.ConvertedAmount.Set &&
		!p.CategoryID.Set && !p.PaymentMethodID.Set && !p.Description.Set && !p.Date.Set
}

// Validate checks only the fields present in the patch.
func (p TransactionPatch) Validate() error {
	if v, ok := p.Type.Get(); ok && !v.Valid() {
		return Invalid("type", ErrInvalidType)
	}
	if v, ok := p.Amount.Get(); ok {
		if err := ValidateAmount(v); err != nil {
			return err
		}
	}
	if v, ok := p.Currency.Get(); ok {
		if err := ValidateCurrency(v); err != nil {
			return err
		}
	}
	if v, ok := p.CategoryID.Get(); ok && v == "" {
		return Invalid("categoryId", ErrMissingCategory)
	}
	if v, ok := p.PaymentMethodID.Get(); ok && v == "" {
		return Invalid("paymentMethodId", ErrMissingPaymentMethod)
	}
	if v, ok := p.Description.Get(); ok {
		if err := ValidateDescription(v); err != nil {
			return err
		}
	}
	if v, ok := p.Date.Get(); ok && v.IsZero() {
		return Invalid("date", ErrInvalidDate)
	}
	return nil
}

func (p RecurringPatch) IsEmpty() bool {
	return !p.Amount.Set && !p.Currency.Set && !p.CategoryID.Set && !p.PaymentMethodID.Set &&
		!p.Description.Set && !p.DayOfMonth.Set && !p.IsActive.Set && !p.EndDate.Set
}

func (p RecurringPatch) Validate() error {
	if v, ok := p.Amount.Get(); ok {
		if err := ValidateAmount(v); err != nil {
			return err
		}
	}
	if v, ok := p.Currency.Get(); ok {
		if err := ValidateCurrency(v); err != nil {
			return err
		}
	}
	if v, ok := p.CategoryID.Get(); ok && v == "" {
		return Invalid("categoryId", ErrMissingCategory)
	}
	if v, ok := p.PaymentMethodID.Get(); ok && v == "" {
		return Invalid("paymentMethodId", ErrMissingPaymentMethod)
	}
	if v, ok := p.Description.Get(); ok {
		if err := ValidateDescription(v); err != nil {
			return err
		}
	}
	if v, ok := p.DayOfMonth.Get(); ok && (v < 1 || v > 31) {
		return Invalid("dayOfMonth", ErrInvalidDayOfMonth)
	}
	return nil
}
