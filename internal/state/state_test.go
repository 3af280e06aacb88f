package state

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/currency"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	st, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newState(t *testing.T) (*State, *storage.Store) {
	t.Helper()
	st := openStore(t)
	s := New(FromStore(st), WithLogger(log.Discard()))
	require.NoError(t, s.Initialize(context.Background()))
	return s, st
}

func expense(id, amount string) core.Transaction {
	return core.Transaction{
		ID:              id,
		Type:            core.Expense,
		Amount:          decimal.RequireFromString(amount),
		Currency:        currency.EUR,
		ConvertedAmount: decimal.RequireFromString(amount),
		CategoryID:      "cat-food",
		PaymentMethodID: "pm-cash",
		Date:            time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC),
	}
}

// failingTransactions wraps a real repository and fails on demand.
type failingTransactions struct {
	TransactionRepository
	failWrite bool
	failList  bool
}

var errBoom = errors.New("boom")

func (f *failingTransactions) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if f.failWrite {
		return core.Transaction{}, errBoom
	}
	return f.TransactionRepository.Create(ctx, t)
}

func (f *failingTransactions) ListWithDetails(ctx context.Context, limit int) ([]core.TransactionWithDetails, error) {
	if f.failList {
		return nil, errBoom
	}
	return f.TransactionRepository.ListWithDetails(ctx, limit)
}

func TestInitializeLoadsEverything(t *testing.T) {
	s, _ := newState(t)
	snap := s.Snapshot()

	assert.True(t, snap.Initialized)
	assert.Equal(t, currency.EUR, snap.PrimaryCurrency)
	assert.Len(t, snap.Categories, 12)
	assert.Len(t, snap.PaymentMethods, 3)
	assert.Empty(t, snap.Transactions)
	assert.Empty(t, snap.RecurringTransactions)
	assert.Equal(t, DefaultTransactionLimit, snap.TransactionLimit)
	assert.NotZero(t, snap.Version)

	c, ok := s.Category("cat-salary")
	require.True(t, ok)
	assert.Equal(t, core.Income, c.Type)
	_, ok = s.PaymentMethod("pm-nope")
	assert.False(t, ok)
}

func TestInitializeOnClosedStore(t *testing.T) {
	st := openStore(t)
	require.NoError(t, st.Close())
	s := New(FromStore(st), WithLogger(log.Discard()))

	err := s.Initialize(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotInitialized)
	assert.False(t, s.Initialized())
}

func TestAddTransactionReloads(t *testing.T) {
	s, _ := newState(t)
	ctx := context.Background()
	before := s.Version()

	created, err := s.AddTransaction(ctx, expense("t1", "12.50"))
	require.NoError(t, err)
	assert.False(t, created.CreatedAt.IsZero())

	snap := s.Snapshot()
	require.Len(t, snap.Transactions, 1)
	assert.Equal(t, "Food & Dining", snap.Transactions[0].Category.Name)
	assert.Greater(t, snap.Version, before)

	require.NoError(t, s.UpdateTransaction(ctx, "t1", core.TransactionPatch{Description: core.Some("lunch")}))
	assert.Equal(t, "lunch", s.Snapshot().Transactions[0].Description)

	require.NoError(t, s.DeleteTransaction(ctx, "t1"))
	assert.Empty(t, s.Snapshot().Transactions)
}

func TestEmptyPatchDoesNotReload(t *testing.T) {
	s, _ := newState(t)
	v := s.Version()
	require.NoError(t, s.UpdateTransaction(context.Background(), "t1", core.TransactionPatch{}))
	require.NoError(t, s.UpdateCategory(context.Background(), "cat-food", core.CategoryPatch{}))
	assert.Equal(t, v, s.Version())
}

func TestFailedWriteLeavesCacheUntouched(t *testing.T) {
	st := openStore(t)
	repos := FromStore(st)
	failing := &failingTransactions{TransactionRepository: repos.Transactions}
	repos.Transactions = failing
	s := New(repos, WithLogger(log.Discard()))
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))

	_, err := s.AddTransaction(ctx, expense("t1", "5"))
	require.NoError(t, err)
	before := s.Snapshot()

	failing.failWrite = true
	_, err = s.AddTransaction(ctx, expense("t2", "6"))
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, before.Version, s.Version())
	assert.Len(t, s.Snapshot().Transactions, 1)
}

func TestFailedReloadLeavesCacheStale(t *testing.T) {
	st := openStore(t)
	repos := FromStore(st)
	failing := &failingTransactions{TransactionRepository: repos.Transactions}
	repos.Transactions = failing
	s := New(repos, WithLogger(log.Discard()))
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))

	failing.failList = true
	_, err := s.AddTransaction(ctx, expense("t1", "5"))
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, s.Snapshot().Transactions, "cache is stale until the next successful load")

	failing.failList = false
	require.NoError(t, s.LoadTransactions(ctx, 0))
	assert.Len(t, s.Snapshot().Transactions, 1)
}

func TestLoadTransactionsLimit(t *testing.T) {
	s, _ := newState(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.AddTransaction(ctx, expense(id, "1"))
		require.NoError(t, err)
	}
	require.NoError(t, s.LoadTransactions(ctx, 2))
	snap := s.Snapshot()
	assert.Len(t, snap.Transactions, 2)
	assert.Equal(t, 2, snap.TransactionLimit)

	// Later reloads keep the chosen limit.
	_, err := s.AddTransaction(ctx, expense("d", "1"))
	require.NoError(t, err)
	assert.Len(t, s.Snapshot().Transactions, 2)
}

func TestCategoryActions(t *testing.T) {
	s, _ := newState(t)
	ctx := context.Background()

	_, err := s.AddCategory(ctx, core.Category{Name: "", Type: core.Expense})
	assert.True(t, core.IsValidation(err))

	pets, err := s.AddCategory(ctx, core.Category{Name: "Pets", Icon: "other", Color: "#123456", Type: core.Expense})
	require.NoError(t, err)
	assert.Len(t, s.Snapshot().Categories, 13)

	require.NoError(t, s.UpdateCategory(ctx, pets.ID, core.CategoryPatch{Name: core.Some("Animals")}))
	c, ok := s.Category(pets.ID)
	require.True(t, ok)
	assert.Equal(t, "Animals", c.Name)

	require.NoError(t, s.DeleteCategory(ctx, "cat-food"))
	assert.Len(t, s.Snapshot().Categories, 13, "defaults cannot be deleted")

	require.NoError(t, s.DeleteCategory(ctx, pets.ID))
	assert.Len(t, s.Snapshot().Categories, 12)
}

func TestPaymentMethodActions(t *testing.T) {
	s, _ := newState(t)
	ctx := context.Background()

	pm, err := s.AddPaymentMethod(ctx, core.PaymentMethod{Name: "Revolut", Type: core.Custom})
	require.NoError(t, err)
	require.NoError(t, s.UpdatePaymentMethod(ctx, pm.ID, core.PaymentMethodPatch{Name: core.Some("N26")}))
	got, ok := s.PaymentMethod(pm.ID)
	require.True(t, ok)
	assert.Equal(t, "N26", got.Name)

	require.NoError(t, s.DeletePaymentMethod(ctx, pm.ID))
	_, ok = s.PaymentMethod(pm.ID)
	assert.False(t, ok)
}

func TestRecurringActions(t *testing.T) {
	s, _ := newState(t)
	ctx := context.Background()

	rec, err := s.AddRecurringTransaction(ctx, core.RecurringTransaction{
		Type: core.Expense, Amount: decimal.NewFromInt(850), Currency: currency.EUR,
		CategoryID: "cat-housing", PaymentMethodID: "pm-debit", Frequency: core.Monthly,
		DayOfMonth: 1, IsActive: true, StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, s.Snapshot().RecurringTransactions, 1)

	err = s.UpdateRecurringTransaction(ctx, rec.ID, core.RecurringPatch{DayOfMonth: core.Some(40)})
	assert.ErrorIs(t, err, core.ErrInvalidDayOfMonth)

	require.NoError(t, s.UpdateRecurringTransaction(ctx, rec.ID, core.RecurringPatch{IsActive: core.Some(false)}))
	assert.False(t, s.Snapshot().RecurringTransactions[0].IsActive)

	require.NoError(t, s.DeleteRecurringTransaction(ctx, rec.ID))
	assert.Empty(t, s.Snapshot().RecurringTransactions)
}

func TestLoadActionsPickUpExternalWrites(t *testing.T) {
	s, st := newState(t)
	ctx := context.Background()
	before := s.Version()

	cat, err := st.Categories().Create(ctx, core.Category{Name: "Pets", Type: core.Expense})
	require.NoError(t, err)
	pm, err := st.PaymentMethods().Create(ctx, core.PaymentMethod{Name: "PayPal", Type: core.Custom})
	require.NoError(t, err)
	rt, err := st.Recurring().Create(ctx, core.RecurringTransaction{
		Type: core.Expense, Amount: decimal.NewFromInt(10), Currency: currency.EUR,
		CategoryID: "cat-food", PaymentMethodID: "pm-cash", Frequency: core.Monthly,
		DayOfMonth: 5, IsActive: true, StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	_, ok := s.Category(cat.ID)
	require.False(t, ok, "cache only changes through actions")

	require.NoError(t, s.LoadCategories(ctx))
	require.NoError(t, s.LoadPaymentMethods(ctx))
	require.NoError(t, s.LoadRecurringTransactions(ctx))

	_, ok = s.Category(cat.ID)
	assert.True(t, ok)
	_, ok = s.PaymentMethod(pm.ID)
	assert.True(t, ok)
	require.Len(t, s.Snapshot().RecurringTransactions, 1)
	assert.Equal(t, rt.ID, s.Snapshot().RecurringTransactions[0].ID)
	assert.Greater(t, s.Version(), before)
}

func TestSetPrimaryCurrency(t *testing.T) {
	s, st := newState(t)
	ctx := context.Background()

	require.NoError(t, s.SetPrimaryCurrency(ctx, currency.USD))
	assert.Equal(t, currency.USD, s.PrimaryCurrency())
	stored, err := st.Settings().PrimaryCurrency(ctx)
	require.NoError(t, err)
	assert.Equal(t, currency.USD, stored)

	err = s.SetPrimaryCurrency(ctx, "XYZ")
	assert.ErrorIs(t, err, currency.ErrUnknownCurrency)
	assert.Equal(t, currency.USD, s.PrimaryCurrency())
}

func TestSnapshotIsACopy(t *testing.T) {
	s, _ := newState(t)
	snap := s.Snapshot()
	snap.Categories[0].Name = "mutated"
	assert.NotEqual(t, "mutated", s.Snapshot().Categories[0].Name)
}

func TestConcurrentMutationsAreSerialised(t *testing.T) {
	s, _ := newState(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AddTransaction(ctx, expense(string(rune('a'+i)), "1"))
			assert.NoError(t, err)
			_ = s.Snapshot()
		}(i)
	}
	wg.Wait()
	assert.Len(t, s.Snapshot().Transactions, 10)
}
