package stats

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/currency"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func txn(typ core.TransactionType, converted string, cat core.Category, date time.Time) core.TransactionWithDetails {
	return core.TransactionWithDetails{
		Transaction: core.Transaction{
			Type:            typ,
			Amount:          dec(converted),
			Currency:        currency.EUR,
			ConvertedAmount: dec(converted),
			CategoryID:      cat.ID,
			Date:            date,
		},
		Category: cat,
	}
}

var (
	food   = core.Category{ID: "cat-food", Name: "Food", Color: "#EC4899", Type: core.Expense}
	other  = core.Category{ID: "cat-other-expense", Name: "Other", Color: "#6B7280", Type: core.Expense}
	salary = core.Category{ID: "cat-salary", Name: "Salary", Color: "#10B981", Type: core.Income}
)

// fixture mirrors a ledger with one USD expense already converted to EUR.
func fixture() []core.TransactionWithDetails {
	usd, err := currency.Convert(dec("100"), currency.USD, currency.EUR)
	if err != nil {
		panic(err)
	}
	first := txn(core.Expense, "0", food, time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC))
	first.Amount = dec("100")
	first.Currency = currency.USD
	first.ConvertedAmount = usd
	return []core.TransactionWithDetails{
		first,
		txn(core.Income, "50", salary, time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)),
		txn(core.Expense, "20", other, time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)),
	}
}

func TestMonthlyScenario(t *testing.T) {
	m := Monthly(fixture(), 2024, time.March, time.UTC)

	assert.Equal(t, "March", m.Label)
	assert.True(t, m.TotalIncome.Equal(dec("50")), "income %s", m.TotalIncome)
	assert.True(t, m.TotalExpenses.Equal(dec("92")), "expenses %s", m.TotalExpenses)
	assert.True(t, m.Balance.Equal(dec("-42")), "balance %s", m.Balance)
	assert.Equal(t, 2, m.TransactionCount)
}

func TestMonthlyEqualsBalanceInsideOneMonth(t *testing.T) {
	txns := fixture()[:2]
	m := Monthly(txns, 2024, time.March, time.UTC)
	assert.True(t, m.Balance.Equal(Balance(txns)))
	assert.True(t, m.TotalIncome.Sub(m.TotalExpenses).Equal(m.Balance))
}

func TestMonthlyEmpty(t *testing.T) {
	m := Monthly(nil, 2024, time.February, time.UTC)
	assert.True(t, m.TotalIncome.IsZero())
	assert.True(t, m.TotalExpenses.IsZero())
	assert.True(t, m.Balance.IsZero())
	assert.Zero(t, m.TransactionCount)
}

func TestMonthRangeBounds(t *testing.T) {
	cases := []struct {
		year  int
		month time.Month
		last  int
	}{
		{2024, time.February, 29},
		{2023, time.February, 28},
		{2024, time.April, 30},
		{2024, time.December, 31},
	}
	for _, tc := range cases {
		start, end := MonthRange(tc.year, tc.month, time.UTC)
		assert.Equal(t, time.Date(tc.year, tc.month, 1, 0, 0, 0, 0, time.UTC), start)
		assert.Equal(t, tc.last, end.Day())
		assert.Equal(t, tc.month, end.Month())
		assert.Equal(t, time.Date(tc.year, tc.month, tc.last, 23, 59, 59, 999000000, time.UTC), end)
	}
}

func TestMonthlyInclusiveBounds(t *testing.T) {
	start, end := MonthRange(2024, time.March, time.UTC)
	txns := []core.TransactionWithDetails{
		txn(core.Expense, "1", food, start),
		txn(core.Expense, "2", food, end),
		txn(core.Expense, "4", food, start.Add(-time.Millisecond)),
		txn(core.Expense, "8", food, end.Add(time.Millisecond)),
	}
	m := Monthly(txns, 2024, time.March, time.UTC)
	assert.Equal(t, 2, m.TransactionCount)
	assert.True(t, m.TotalExpenses.Equal(dec("3")))
}

func TestMonthlyUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	// 22:30 UTC on Mar 31 is already April 1 in UTC+2.
	txns := []core.TransactionWithDetails{
		txn(core.Expense, "5", food, time.Date(2024, 3, 31, 22, 30, 0, 0, time.UTC)),
	}
	assert.Equal(t, 1, Monthly(txns, 2024, time.March, time.UTC).TransactionCount)
	assert.Equal(t, 0, Monthly(txns, 2024, time.March, loc).TransactionCount)
	assert.Equal(t, 1, Monthly(txns, 2024, time.April, loc).TransactionCount)
}

func TestBalanceAllTime(t *testing.T) {
	assert.True(t, Balance(fixture()).Equal(dec("-62")))
	assert.True(t, Balance(nil).IsZero())
}

func TestByCategoryScenario(t *testing.T) {
	got := ByCategory(fixture(), core.Expense, nil)
	require.Len(t, got, 2)

	assert.Equal(t, "Food", got[0].CategoryName)
	assert.Equal(t, "#EC4899", got[0].CategoryColor)
	assert.True(t, got[0].Total.Equal(dec("92")))
	assert.Equal(t, 1, got[0].TransactionCount)
	assert.Equal(t, 82.1, decimal.NewFromFloat(got[0].Percentage).Round(1).InexactFloat64())

	assert.Equal(t, "Other", got[1].CategoryName)
	assert.Equal(t, 17.9, decimal.NewFromFloat(got[1].Percentage).Round(1).InexactFloat64())
}

func TestByCategoryWithPeriod(t *testing.T) {
	got := ByCategory(fixture(), core.Expense, &Period{Year: 2024, Month: time.April, Location: time.UTC})
	require.Len(t, got, 1)
	assert.Equal(t, "cat-other-expense", got[0].CategoryID)
	assert.InDelta(t, 100.0, got[0].Percentage, 1e-9)
}

func TestByCategoryPercentagesSumTo100(t *testing.T) {
	d := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	txns := []core.TransactionWithDetails{
		txn(core.Expense, "10.01", food, d),
		txn(core.Expense, "33.33", other, d),
		txn(core.Expense, "7.77", food, d),
		txn(core.Expense, "0.01", other, d),
		txn(core.Income, "999", salary, d),
	}
	got := ByCategory(txns, core.Expense, nil)
	require.Len(t, got, 2)

	var sum float64
	for _, s := range got {
		sum += s.Percentage
	}
	assert.InDelta(t, 100.0, sum, 1e-9)
	assert.Equal(t, 2, got[0].TransactionCount)
	assert.Equal(t, "cat-other-expense", got[0].CategoryID)
}

func TestByCategoryZeroTotal(t *testing.T) {
	d := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	txns := []core.TransactionWithDetails{
		txn(core.Expense, "0", food, d),
		txn(core.Expense, "0", other, d),
	}
	got := ByCategory(txns, core.Expense, nil)
	require.Len(t, got, 2)
	for _, s := range got {
		assert.Zero(t, s.Percentage)
	}
}

func TestByCategoryTiesKeepFirstAppearance(t *testing.T) {
	d := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	txns := []core.TransactionWithDetails{
		txn(core.Expense, "5", other, d),
		txn(core.Expense, "5", food, d),
	}
	got := ByCategory(txns, core.Expense, nil)
	require.Len(t, got, 2)
	assert.Equal(t, "cat-other-expense", got[0].CategoryID)
	assert.Equal(t, "cat-food", got[1].CategoryID)
}

func TestByCategoryNoMatches(t *testing.T) {
	assert.Empty(t, ByCategory(fixture(), core.Income, &Period{Year: 2020, Month: time.January}))
}

func TestTrend(t *testing.T) {
	got := Trend(fixture(), 2024, time.April, 6, time.UTC)
	require.Len(t, got, 6)

	labels := make([]string, len(got))
	for i, p := range got {
		labels[i] = p.Label
	}
	assert.Equal(t, []string{"Nov", "Dec", "Jan", "Feb", "Mar", "Apr"}, labels)
	assert.Equal(t, 2023, got[0].Year)
	assert.Equal(t, time.November, got[0].Month)

	assert.True(t, got[4].Income.Equal(dec("50")))
	assert.True(t, got[4].Expenses.Equal(dec("92")))
	assert.True(t, got[5].Expenses.Equal(dec("20")))
	assert.True(t, got[0].Income.IsZero())

	assert.Nil(t, Trend(fixture(), 2024, time.April, 0, time.UTC))
}

func TestSearch(t *testing.T) {
	txns := fixture()
	txns[0].Description = "Team LUNCH"
	txns[1].Amount = dec("12.5")
	txns[1].ConvertedAmount = dec("12.5")

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"   ", 3},
		{"lunch", 1},
		{"SAL", 1},
		{"other", 1},
		{"12.5", 1},
		{"10", 1},
		{"rent", 0},
	}
	for _, tt := range tests {
		assert.Len(t, Search(txns, tt.query), tt.want, tt.query)
	}

	assert.True(t, Balance(Search(txns, "sal")).Equal(dec("12.5")))
	// "e" hits "Team LUNCH" and the "Other" category, both expenses.
	got := Balance(Search(txns, "e"))
	assert.True(t, got.Equal(dec("-112")), got.String())
}
