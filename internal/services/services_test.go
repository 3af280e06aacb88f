package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/currency"
	"fintrack/internal/log"
	"fintrack/internal/state"
	"fintrack/internal/storage"
)

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.TransactionEvent
	err    error
}

func (p *recordingPublisher) PublishTransactionEvent(_ context.Context, ev amqp.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) actions() []amqp.Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.Action, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Action)
	}
	return out
}

type fixture struct {
	ledger *Ledger
	state  *state.State
	store  *storage.Store
	pub    *recordingPublisher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	st, err := storage.Open(ctx, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	s := state.New(state.FromStore(st), state.WithLogger(log.Discard()))
	require.NoError(t, s.Initialize(ctx))

	pub := &recordingPublisher{}
	l := NewLedger(s, st.Transactions(),
		WithPublisher(pub),
		WithLedgerLogger(log.Discard()),
		WithLedgerClock(func() time.Time { return fixedNow }))
	return fixture{ledger: l, state: s, store: st, pub: pub}
}

func lunch() TransactionInput {
	return TransactionInput{
		Type:            core.Expense,
		Amount:          decimal.RequireFromString("100"),
		Currency:        currency.USD,
		CategoryID:      "cat-food",
		PaymentMethodID: "pm-cash",
		Description:     "  Lunch  ",
		Date:            time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC),
	}
}

func TestRecordTransactionConvertsAtWriteTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.ledger.RecordTransaction(ctx, lunch())
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Lunch", created.Description)
	assert.True(t, created.ConvertedAmount.Equal(decimal.RequireFromString("92")), created.ConvertedAmount.String())

	snap := f.state.Snapshot()
	require.Len(t, snap.Transactions, 1)
	assert.Equal(t, created.ID, snap.Transactions[0].ID)
	assert.Equal(t, "Food & Dining", snap.Transactions[0].Category.Name)
	assert.Equal(t, []amqp.Action{amqp.ActionCreated}, f.pub.actions())

	// A later primary currency change leaves stored conversions alone.
	require.NoError(t, f.state.SetPrimaryCurrency(ctx, currency.GBP))
	stored, err := f.store.Transactions().Get(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, stored.ConvertedAmount.Equal(decimal.RequireFromString("92")))
}

func TestRecordTransactionDefaults(t *testing.T) {
	f := newFixture(t)
	in := lunch()
	in.Currency = ""
	in.Date = time.Time{}

	created, err := f.ledger.RecordTransaction(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, currency.EUR, created.Currency)
	assert.True(t, created.ConvertedAmount.Equal(created.Amount))
	assert.True(t, created.Date.Equal(fixedNow))
}

func TestRecordTransactionValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*TransactionInput)
		want   error
	}{
		{"zero amount", func(in *TransactionInput) { in.Amount = decimal.Zero }, core.ErrInvalidAmount},
		{"negative amount", func(in *TransactionInput) { in.Amount = decimal.NewFromInt(-5) }, core.ErrInvalidAmount},
		{"bad type", func(in *TransactionInput) { in.Type = "transfer" }, core.ErrInvalidType},
		{"unknown currency", func(in *TransactionInput) { in.Currency = "XYZ" }, currency.ErrUnknownCurrency},
		{"no category", func(in *TransactionInput) { in.CategoryID = "" }, core.ErrMissingCategory},
		{"unknown category", func(in *TransactionInput) { in.CategoryID = "cat-nope" }, core.ErrUnknownCategory},
		{"category type mismatch", func(in *TransactionInput) { in.Type = core.Income }, core.ErrCategoryTypeMismatch},
		{"no payment method", func(in *TransactionInput) { in.PaymentMethodID = " " }, core.ErrMissingPaymentMethod},
		{"unknown payment method", func(in *TransactionInput) { in.PaymentMethodID = "pm-nope" }, core.ErrUnknownPaymentMethod},
		{"long description", func(in *TransactionInput) { in.Description = strings.Repeat("a", 201) }, core.ErrDescriptionTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			in := lunch()
			tc.mutate(&in)

			_, err := f.ledger.RecordTransaction(context.Background(), in)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, core.IsValidation(err))
			assert.Empty(t, f.state.Snapshot().Transactions)
			assert.Empty(t, f.pub.actions())
		})
	}
}

func TestRecordTransactionSurvivesPublishFailure(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")

	_, err := f.ledger.RecordTransaction(context.Background(), lunch())
	require.NoError(t, err)
	assert.Len(t, f.state.Snapshot().Transactions, 1)
}

func TestEditTransactionRecomputesConversion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.ledger.RecordTransaction(ctx, lunch())
	require.NoError(t, err)

	require.NoError(t, f.state.SetPrimaryCurrency(ctx, currency.USD))
	require.NoError(t, f.ledger.EditTransaction(ctx, created.ID, core.TransactionPatch{Description: core.Some(" Dinner ")}))

	got, err := f.store.Transactions().Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dinner", got.Description)
	assert.True(t, got.ConvertedAmount.Equal(decimal.RequireFromString("100")), got.ConvertedAmount.String())

	require.NoError(t, f.ledger.EditTransaction(ctx, created.ID, core.TransactionPatch{Amount: core.Some(decimal.RequireFromString("50"))}))
	got, err = f.store.Transactions().Get(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.ConvertedAmount.Equal(decimal.RequireFromString("50")))

	assert.Equal(t, []amqp.Action{amqp.ActionCreated, amqp.ActionUpdated, amqp.ActionUpdated}, f.pub.actions())
}

func TestEditTransactionChecksReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.ledger.RecordTransaction(ctx, lunch())
	require.NoError(t, err)

	err = f.ledger.EditTransaction(ctx, created.ID, core.TransactionPatch{CategoryID: core.Some("cat-salary")})
	assert.ErrorIs(t, err, core.ErrCategoryTypeMismatch)

	err = f.ledger.EditTransaction(ctx, created.ID, core.TransactionPatch{PaymentMethodID: core.Some("pm-nope")})
	assert.ErrorIs(t, err, core.ErrUnknownPaymentMethod)

	err = f.ledger.EditTransaction(ctx, created.ID, core.TransactionPatch{
		Type:       core.Some(core.Income),
		CategoryID: core.Some("cat-salary"),
	})
	require.NoError(t, err)
	assert.Equal(t, core.Income, f.state.Snapshot().Transactions[0].Type)
}

func TestEditTransactionEdgeCases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.ledger.EditTransaction(ctx, "missing", core.TransactionPatch{Description: core.Some("x")})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, f.ledger.EditTransaction(ctx, "missing", core.TransactionPatch{}))
	assert.Empty(t, f.pub.actions())

	err = f.ledger.EditTransaction(ctx, "missing", core.TransactionPatch{Amount: core.Some(decimal.Zero)})
	assert.True(t, core.IsValidation(err))
}

func TestRemoveTransactionPublishesSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.ledger.RecordTransaction(ctx, lunch())
	require.NoError(t, err)

	require.NoError(t, f.ledger.RemoveTransaction(ctx, created.ID))
	assert.Empty(t, f.state.Snapshot().Transactions)

	require.Len(t, f.pub.events, 2)
	ev := f.pub.events[1]
	assert.Equal(t, amqp.ActionDeleted, ev.Action)
	require.NotNil(t, ev.Snapshot)
	assert.Equal(t, "Food & Dining", ev.Snapshot.Category.Name)
	assert.Equal(t, "Cash", ev.Snapshot.PaymentMethod.Name)

	require.NoError(t, f.ledger.RemoveTransaction(ctx, created.ID))
	assert.Len(t, f.pub.events, 2, "removing an unknown id publishes nothing")
}

func TestScheduleRecurring(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := RecurringInput{
		Type:            core.Expense,
		Amount:          decimal.NewFromInt(850),
		CategoryID:      "cat-housing",
		PaymentMethodID: "pm-debit",
		Description:     "Rent",
		DayOfMonth:      1,
	}

	rt, err := f.ledger.ScheduleRecurring(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, currency.EUR, rt.Currency)
	assert.Equal(t, core.Monthly, rt.Frequency)
	assert.True(t, rt.IsActive)
	assert.True(t, rt.StartDate.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)))
	assert.Len(t, f.state.Snapshot().RecurringTransactions, 1)

	bad := in
	bad.DayOfMonth = 0
	_, err = f.ledger.ScheduleRecurring(ctx, bad)
	assert.ErrorIs(t, err, core.ErrInvalidDayOfMonth)

	bad = in
	bad.CategoryID = "cat-salary"
	_, err = f.ledger.ScheduleRecurring(ctx, bad)
	assert.ErrorIs(t, err, core.ErrCategoryTypeMismatch)
	assert.Len(t, f.state.Snapshot().RecurringTransactions, 1)
}

func TestRecordTransactionRoundsBeforeValidating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := lunch()
	in.Amount = decimal.RequireFromString("0.004")
	_, err := f.ledger.RecordTransaction(ctx, in)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
	assert.Empty(t, f.state.Snapshot().Transactions)
	assert.Empty(t, f.pub.actions())

	in.Amount = decimal.RequireFromString("10.005")
	created, err := f.ledger.RecordTransaction(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "10.01", created.Amount.StringFixed(2))
	// 10.01 USD * 0.92, not 10.005 USD * 0.92.
	assert.Equal(t, "9.21", created.ConvertedAmount.StringFixed(2))

	stored, err := f.store.Transactions().Get(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, stored.Amount.Equal(decimal.RequireFromString("10.01")), stored.Amount.String())
}

func TestEditTransactionRoundsBeforeValidating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.ledger.RecordTransaction(ctx, lunch())
	require.NoError(t, err)

	err = f.ledger.EditTransaction(ctx, created.ID, core.TransactionPatch{Amount: core.Some(decimal.RequireFromString("0.004"))})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	require.NoError(t, f.ledger.EditTransaction(ctx, created.ID, core.TransactionPatch{Amount: core.Some(decimal.RequireFromString("10.005"))}))
	got, err := f.store.Transactions().Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.01", got.Amount.StringFixed(2))
	assert.Equal(t, "9.21", got.ConvertedAmount.StringFixed(2))
}

func rentInput() RecurringInput {
	return RecurringInput{
		Type:            core.Expense,
		Amount:          decimal.NewFromInt(850),
		CategoryID:      "cat-housing",
		PaymentMethodID: "pm-debit",
		Description:     "Rent",
		DayOfMonth:      1,
	}
}

func TestScheduleRecurringRejectsSubCentAmount(t *testing.T) {
	f := newFixture(t)
	in := rentInput()
	in.Amount = decimal.RequireFromString("0.004")

	_, err := f.ledger.ScheduleRecurring(context.Background(), in)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
	assert.Empty(t, f.state.Snapshot().RecurringTransactions)
}

func TestEditRecurringChecksReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rt, err := f.ledger.ScheduleRecurring(ctx, rentInput())
	require.NoError(t, err)

	cases := []struct {
		name  string
		patch core.RecurringPatch
		want  error
	}{
		{"category of the other type", core.RecurringPatch{CategoryID: core.Some("cat-salary")}, core.ErrCategoryTypeMismatch},
		{"unknown category", core.RecurringPatch{CategoryID: core.Some("cat-nope")}, core.ErrUnknownCategory},
		{"unknown payment method", core.RecurringPatch{PaymentMethodID: core.Some("pm-nope")}, core.ErrUnknownPaymentMethod},
		{"sub-cent amount", core.RecurringPatch{Amount: core.Some(decimal.RequireFromString("0.004"))}, core.ErrInvalidAmount},
		{"unknown currency", core.RecurringPatch{Currency: core.Some(currency.Code("XYZ"))}, currency.ErrUnknownCurrency},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.ledger.EditRecurring(ctx, rt.ID, tc.patch)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, core.IsValidation(err))

			got, ok := f.state.RecurringTransaction(rt.ID)
			require.True(t, ok)
			assert.Equal(t, "cat-housing", got.CategoryID)
			assert.Equal(t, "pm-debit", got.PaymentMethodID)
			assert.True(t, got.Amount.Equal(decimal.NewFromInt(850)))
		})
	}
}

func TestEditRecurringAppliesPatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rt, err := f.ledger.ScheduleRecurring(ctx, rentInput())
	require.NoError(t, err)

	require.NoError(t, f.ledger.EditRecurring(ctx, rt.ID, core.RecurringPatch{
		Amount:          core.Some(decimal.RequireFromString("900.005")),
		CategoryID:      core.Some("cat-bills"),
		PaymentMethodID: core.Some("pm-cash"),
		Description:     core.Some("  Rent and bills  "),
	}))

	got, ok := f.state.RecurringTransaction(rt.ID)
	require.True(t, ok)
	assert.Equal(t, "900.01", got.Amount.StringFixed(2))
	assert.Equal(t, "cat-bills", got.CategoryID)
	assert.Equal(t, "pm-cash", got.PaymentMethodID)
	assert.Equal(t, "Rent and bills", got.Description)

	err = f.ledger.EditRecurring(ctx, "missing", core.RecurringPatch{Description: core.Some("x")})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, f.ledger.EditRecurring(ctx, "missing", core.RecurringPatch{}))

	before := rt.StartDate.AddDate(0, 0, -1)
	err = f.ledger.EditRecurring(ctx, rt.ID, core.RecurringPatch{EndDate: core.Some(&before)})
	assert.ErrorIs(t, err, core.ErrInvalidDateRange)
}
