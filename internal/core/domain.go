package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/currency"
)

const (
	Expense TransactionType = "expense"
	Income  TransactionType = "income"
)

const (
	Cash       PaymentMethodType = "cash"
	DebitCard  PaymentMethodType = "debit_card"
	CreditCard PaymentMethodType = "credit_card"
	Custom     PaymentMethodType = "custom"
)

// Monthly is the only recurrence currently supported.
const Monthly Frequency = "monthly"

// MaxDescriptionLength bounds free-text descriptions.
const MaxDescriptionLength = 200

type (
	TransactionType   string
	PaymentMethodType string
	Frequency         string

	Category struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Icon      string          `json:"icon"`
		Color     string          `json:"color"`
		Type      TransactionType `json:"type"`
		IsDefault bool            `json:"isDefault"`
		CreatedAt time.Time       `json:"createdAt"`
	}

	PaymentMethod struct {
		ID        string            `json:"id"`
		Name      string            `json:"name"`
		Type      PaymentMethodType `json:"type"`
		IsDefault bool              `json:"isDefault"`
		CreatedAt time.Time         `json:"createdAt"`
	}

	Transaction struct {
		ID                     string          `json:"id"`
		Type                   TransactionType `json:"type"`
		Amount                 decimal.Decimal `json:"amount"`
		Currency               currency.Code   `json:"currency"`
		ConvertedAmount        decimal.Decimal `json:"convertedAmount"` // in the primary currency at write time
		CategoryID             string          `json:"categoryId"`
		PaymentMethodID        string          `json:"paymentMethodId"`
		Description            string          `json:"description"`
		Date                   time.Time       `json:"date"`
		IsRecurring            bool            `json:"isRecurring"`
		RecurringTransactionID string          `json:"recurringTransactionId,omitempty"`
		CreatedAt              time.Time       `json:"createdAt"`
		UpdatedAt              time.Time       `json:"updatedAt"`
	}

	// TransactionWithDetails is a read-only join view; it is never persisted.
	TransactionWithDetails struct {
		Transaction
		Category      Category      `json:"category"`
		PaymentMethod PaymentMethod `json:"paymentMethod"`
	}

	RecurringTransaction struct {
		ID              string          `json:"id"`
		Type            TransactionType `json:"type"`
		Amount          decimal.Decimal `json:"amount"`
		Currency        currency.Code   `json:"currency"`
		CategoryID      string          `json:"categoryId"`
		PaymentMethodID string          `json:"paymentMethodId"`
		Description     string          `json:"description"`
		Frequency       Frequency       `json:"frequency"`
		DayOfMonth      int             `json:"dayOfMonth"`
		IsActive        bool            `json:"isActive"`
		StartDate       time.Time       `json:"startDate"`
		EndDate         *time.Time      `json:"endDate,omitempty"`
		CreatedAt       time.Time       `json:"createdAt"`
		UpdatedAt       time.Time       `json:"updatedAt"`
	}
)

var (
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrInvalidType          = errors.New("invalid transaction type")
	ErrInvalidPaymentType   = errors.New("invalid payment method type")
	ErrInvalidFrequency     = errors.New("invalid frequency")
	ErrInvalidDayOfMonth    = errors.New("day of month must be between 1 and 31")
	ErrInvalidDate          = errors.New("date cannot be zero")
	ErrInvalidDateRange     = errors.New("end date must not be before start date")
	ErrEmptyName            = errors.New("name cannot be empty")
	ErrMissingCategory      = errors.New("category is required")
	ErrMissingPaymentMethod = errors.New("payment method is required")
	ErrDescriptionTooLong   = errors.New("description too long (max 200 characters)")
	ErrCategoryTypeMismatch = errors.New("category does not match transaction type")
	ErrUnknownCategory      = errors.New("category does not exist")
	ErrUnknownPaymentMethod = errors.New("payment method does not exist")
)

// ValidationError marks user input rejected before any write happens.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid wraps err as a validation failure on field.
func Invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func (t TransactionType) Valid() bool {
	return t == Expense || t == Income
}

func (t PaymentMethodType) Valid() bool {
	switch t {
	case Cash, DebitCard, CreditCard, Custom:
		return true
	}
	return false
}

// Sign returns +1 for income and -1 for expenses.
func (t TransactionType) Sign() int {
	if t == Income {
		return 1
	}
	return -1
}

// ValidateAmount accepts a only if it is still positive once rounded to
// cents.
func ValidateAmount(a decimal.Decimal) error {
	_, err := NormalizeAmount(a)
	return err
}

func ValidateDescription(s string) error {
	if len(s) > MaxDescriptionLength {
		return Invalid("description", ErrDescriptionTooLong)
	}
	return nil
}

func ValidateCurrency(c currency.Code) error {
	if !c.Valid() {
		return Invalid("currency", currency.ErrUnknownCurrency)
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return Invalid("name", ErrEmptyName)
	}
	if !c.Type.Valid() {
		return Invalid("type", ErrInvalidType)
	}
	return nil
}

func (p PaymentMethod) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return Invalid("name", ErrEmptyName)
	}
	if !p.Type.Valid() {
		return Invalid("type", ErrInvalidPaymentType)
	}
	return nil
}

func (r RecurringTransaction) Validate() error {
	if !r.Type.Valid() {
		return Invalid("type", ErrInvalidType)
	}
	if err := ValidateAmount(r.Amount); err != nil {
		return err
	}
	if err := ValidateCurrency(r.Currency); err != nil {
		return err
	}
	if strings.TrimSpace(r.CategoryID) == "" {
		return Invalid("categoryId", ErrMissingCategory)
	}
	if strings.TrimSpace(r.PaymentMethodID) == "" {
		return Invalid("paymentMethodId", ErrMissingPaymentMethod)
	}
	if err := ValidateDescription(r.Description); err != nil {
		return err
	}
	if r.Frequency != Monthly {
		return Invalid("frequency", ErrInvalidFrequency)
	}
	if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
		return Invalid("dayOfMonth", ErrInvalidDayOfMonth)
	}
	if r.StartDate.IsZero() {
		return Invalid("startDate", ErrInvalidDate)
	}
	if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		return Invalid("endDate", ErrInvalidDateRange)
	}
	return nil
}

// ActiveOn reports whether the template covers the calendar day of t, with
// start and end dates compared as whole days in t's location.
func (r RecurringTransaction) ActiveOn(t time.Time) bool {
	if !r.IsActive {
		return false
	}
	day := startOfDay(t, t.Location())
	if day.Before(startOfDay(r.StartDate, t.Location())) {
		return false
	}
	return r.EndDate == nil || !day.After(startOfDay(*r.EndDate, t.Location()))
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
