package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/currency"
	"fintrack/internal/log"
	"fintrack/internal/state"
	"fintrack/internal/storage"
)

// TransactionReader fetches persisted transactions outside the cached window.
type TransactionReader interface {
	Get(ctx context.Context, id string) (core.Transaction, error)
	GetWithDetails(ctx context.Context, id string) (core.TransactionWithDetails, error)
}

// EventPublisher announces ledger changes. *amqp.Client satisfies it.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, ev amqp.TransactionEvent) error
}

// TransactionInput is what a user submits to record a transaction. An empty
// Currency means the primary currency; a zero Date means now.
type TransactionInput struct {
	Type            core.TransactionType `json:"type"`
	Amount          decimal.Decimal      `json:"amount"`
	Currency        currency.Code        `json:"currency"`
	CategoryID      string               `json:"categoryId"`
	PaymentMethodID string               `json:"paymentMethodId"`
	Description     string               `json:"description"`
	Date            time.Time            `json:"date"`
}

// RecurringInput is what a user submits to schedule a monthly template. A
// zero StartDate means today.
type RecurringInput struct {
	Type            core.TransactionType `json:"type"`
	Amount          decimal.Decimal      `json:"amount"`
	Currency        currency.Code        `json:"currency"`
	CategoryID      string               `json:"categoryId"`
	PaymentMethodID string               `json:"paymentMethodId"`
	Description     string               `json:"description"`
	DayOfMonth      int                  `json:"dayOfMonth"`
	StartDate       time.Time            `json:"startDate"`
	EndDate         *time.Time           `json:"endDate,omitempty"`
}

// Ledger validates user input, converts amounts into the primary currency at
// write time and applies the result through the state cache.
type Ledger struct {
	state     *state.State
	txns      TransactionReader
	publisher EventPublisher
	logger    *log.Logger
	now       func() time.Time
}

type LedgerOption func(*Ledger)

// WithPublisher enables change events. Leave it unset when no broker is
// configured; a nil *amqp.Client must not be passed here.
func WithPublisher(p EventPublisher) LedgerOption {
	return func(l *Ledger) { l.publisher = p }
}

func WithLedgerLogger(logger *log.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = logger.WithComponent(log.ComponentLedger) }
}

func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

func NewLedger(st *state.State, txns TransactionReader, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		state:  st,
		txns:   txns,
		logger: log.FromContext(context.Background()).WithComponent(log.ComponentLedger),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordTransaction validates in, converts it with the current primary
// currency and stores it. Nothing is written when validation fails.
func (l *Ledger) RecordTransaction(ctx context.Context, in TransactionInput) (core.Transaction, error) {
	primary := l.state.PrimaryCurrency()
	if in.Currency == "" {
		in.Currency = primary
	}
	in.Description = strings.TrimSpace(in.Description)

	amount, err := core.NormalizeAmount(in.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	if !in.Type.Valid() {
		return core.Transaction{}, core.Invalid("type", core.ErrInvalidType)
	}
	if err := core.ValidateCurrency(in.Currency); err != nil {
		return core.Transaction{}, err
	}
	if err := l.checkCategory(in.CategoryID, in.Type); err != nil {
		return core.Transaction{}, err
	}
	if err := l.checkPaymentMethod(in.PaymentMethodID); err != nil {
		return core.Transaction{}, err
	}
	if err := core.ValidateDescription(in.Description); err != nil {
		return core.Transaction{}, err
	}

	converted, err := currency.Convert(amount, in.Currency, primary)
	if err != nil {
		return core.Transaction{}, core.Invalid("currency", err)
	}
	date := in.Date
	if date.IsZero() {
		date = l.now()
	}

	created, err := l.state.AddTransaction(ctx, core.Transaction{
		ID:              uuid.NewString(),
		Type:            in.Type,
		Amount:          amount,
		Currency:        in.Currency,
		ConvertedAmount: converted,
		CategoryID:      in.CategoryID,
		PaymentMethodID: in.PaymentMethodID,
		Description:     in.Description,
		Date:            date,
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("record transaction: %w", err)
	}

	l.logTransaction(ctx, log.OpCreate, created)
	l.publish(ctx, amqp.ActionCreated, created.ID, nil)
	return created, nil
}

// EditTransaction applies the fields present in p. Any change recomputes the
// converted amount from the effective amount and currency using the primary
// currency current at edit time.
func (l *Ledger) EditTransaction(ctx context.Context, id string, p core.TransactionPatch) error {
	if p.Amount.Set {
		amount, err := core.NormalizeAmount(p.Amount.Value)
		if err != nil {
			return err
		}
		p.Amount.Value = amount
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if p.IsEmpty() {
		return nil
	}

	existing, err := l.txns.Get(ctx, id)
	if err != nil {
		return err
	}

	typ := p.Type.Or(existing.Type)
	if p.Type.Set || p.CategoryID.Set {
		if err := l.checkCategory(p.CategoryID.Or(existing.CategoryID), typ); err != nil {
			return err
		}
	}
	if p.PaymentMethodID.Set {
		if err := l.checkPaymentMethod(p.PaymentMethodID.Value); err != nil {
			return err
		}
	}
	if p.Description.Set {
		p.Description.Value = strings.TrimSpace(p.Description.Value)
	}

	converted, err := currency.Convert(p.Amount.Or(existing.Amount), p.Currency.Or(existing.Currency), l.state.PrimaryCurrency())
	if err != nil {
		return core.Invalid("currency", err)
	}
	p.ConvertedAmount = core.Some(converted)

	if err := l.state.UpdateTransaction(ctx, id, p); err != nil {
		return fmt.Errorf("edit transaction: %w", err)
	}

	l.logger.InfoContext(ctx, "Transaction updated",
		log.FieldTransactionID, id,
		log.FieldConverted, converted.StringFixed(2))
	l.publish(ctx, amqp.ActionUpdated, id, nil)
	return nil
}

// RemoveTransaction deletes id. Deleting an unknown id is not an error and
// publishes nothing.
func (l *Ledger) RemoveTransaction(ctx context.Context, id string) error {
	snap, err := l.txns.GetWithDetails(ctx, id)
	found := err == nil
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	if err := l.state.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("remove transaction: %w", err)
	}
	if !found {
		return nil
	}

	l.logTransaction(ctx, log.OpDelete, snap.Transaction)
	l.publish(ctx, amqp.ActionDeleted, id, &snap)
	return nil
}

// ScheduleRecurring validates in and stores an active monthly template.
func (l *Ledger) ScheduleRecurring(ctx context.Context, in RecurringInput) (core.RecurringTransaction, error) {
	if in.Currency == "" {
		in.Currency = l.state.PrimaryCurrency()
	}
	if in.StartDate.IsZero() {
		y, m, d := l.now().Date()
		in.StartDate = time.Date(y, m, d, 0, 0, 0, 0, l.now().Location())
	}

	amount, err := core.NormalizeAmount(in.Amount)
	if err != nil {
		return core.RecurringTransaction{}, err
	}

	rt := core.RecurringTransaction{
		ID:              uuid.NewString(),
		Type:            in.Type,
		Amount:          amount,
		Currency:        in.Currency,
		CategoryID:      in.CategoryID,
		PaymentMethodID: in.PaymentMethodID,
		Description:     strings.TrimSpace(in.Description),
		Frequency:       core.Monthly,
		DayOfMonth:      in.DayOfMonth,
		IsActive:        true,
		StartDate:       in.StartDate,
		EndDate:         in.EndDate,
	}
	if err := rt.Validate(); err != nil {
		return core.RecurringTransaction{}, err
	}
	if err := l.checkCategory(rt.CategoryID, rt.Type); err != nil {
		return core.RecurringTransaction{}, err
	}
	if err := l.checkPaymentMethod(rt.PaymentMethodID); err != nil {
		return core.RecurringTransaction{}, err
	}

	created, err := l.state.AddRecurringTransaction(ctx, rt)
	if err != nil {
		return core.RecurringTransaction{}, fmt.Errorf("schedule recurring: %w", err)
	}
	l.logger.InfoContext(ctx, "Recurring transaction scheduled",
		log.FieldRecurringID, created.ID,
		"day_of_month", created.DayOfMonth)
	return created, nil
}

// recordOccurrence materializes one occurrence of rt dated on date.
func (l *Ledger) recordOccurrence(ctx context.Context, rt core.RecurringTransaction, date time.Time) (core.Transaction, error) {
	converted, err := currency.Convert(rt.Amount, rt.Currency, l.state.PrimaryCurrency())
	if err != nil {
		return core.Transaction{}, err
	}
	created, err := l.state.AddTransaction(ctx, core.Transaction{
		ID:                     uuid.NewString(),
		Type:                   rt.Type,
		Amount:                 rt.Amount,
		Currency:               rt.Currency,
		ConvertedAmount:        converted,
		CategoryID:             rt.CategoryID,
		PaymentMethodID:        rt.PaymentMethodID,
		Description:            rt.Description,
		Date:                   date,
		IsRecurring:            true,
		RecurringTransactionID: rt.ID,
	})
	if err != nil {
		return core.Transaction{}, err
	}
	l.publish(ctx, amqp.ActionCreated, created.ID, nil)
	return created, nil
}

// EditRecurring applies the fields present in p to template id with the
// same checks ScheduleRecurring runs: the effective category must exist and
// match the template's type, and the payment method must exist.
func (l *Ledger) EditRecurring(ctx context.Context, id string, p core.RecurringPatch) error {
	if p.Amount.Set {
		amount, err := core.NormalizeAmount(p.Amount.Value)
		if err != nil {
			return err
		}
		p.Amount.Value = amount
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if p.IsEmpty() {
		return nil
	}

	existing, ok := l.state.RecurringTransaction(id)
	if !ok {
		return fmt.Errorf("edit recurring %s: %w", id, storage.ErrNotFound)
	}
	if p.CategoryID.Set {
		if err := l.checkCategory(p.CategoryID.Value, existing.Type); err != nil {
			return err
		}
	}
	if p.PaymentMethodID.Set {
		if err := l.checkPaymentMethod(p.PaymentMethodID.Value); err != nil {
			return err
		}
	}
	if p.Description.Set {
		p.Description.Value = strings.TrimSpace(p.Description.Value)
	}
	if end, ok := p.EndDate.Get(); ok && end != nil && end.Before(existing.StartDate) {
		return core.Invalid("endDate", core.ErrInvalidDateRange)
	}

	if err := l.state.UpdateRecurringTransaction(ctx, id, p); err != nil {
		return fmt.Errorf("edit recurring: %w", err)
	}
	l.logger.InfoContext(ctx, "Recurring transaction updated", log.FieldRecurringID, id)
	return nil
}

func (l *Ledger) checkCategory(id string, typ core.TransactionType) error {
	if strings.TrimSpace(id) == "" {
		return core.Invalid("categoryId", core.ErrMissingCategory)
	}
	c, ok := l.state.Category(id)
	if !ok {
		return core.Invalid("categoryId", core.ErrUnknownCategory)
	}
	if c.Type != typ {
		return core.Invalid("categoryId", core.ErrCategoryTypeMismatch)
	}
	return nil
}

func (l *Ledger) checkPaymentMethod(id string) error {
	if strings.TrimSpace(id) == "" {
		return core.Invalid("paymentMethodId", core.ErrMissingPaymentMethod)
	}
	if _, ok := l.state.PaymentMethod(id); !ok {
		return core.Invalid("paymentMethodId", core.ErrUnknownPaymentMethod)
	}
	return nil
}

// publish never fails the caller: the local write already succeeded.
func (l *Ledger) publish(ctx context.Context, action amqp.Action, id string, snap *core.TransactionWithDetails) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.PublishTransactionEvent(ctx, amqp.NewTransactionEvent(action, id, snap)); err != nil {
		l.logger.ErrorContext(ctx, "Failed to publish transaction event",
			log.FieldTransactionID, id,
			log.FieldOperation, string(action),
			log.FieldError, err)
	}
}

func (l *Ledger) logTransaction(ctx context.Context, op string, t core.Transaction) {
	log.NewStructuredLogger(l.logger).LogTransaction(ctx, op, t)
}
