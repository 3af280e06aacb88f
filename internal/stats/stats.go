// Package stats derives monthly totals, per-category breakdowns, running
// balances and trends from a loaded transaction list. Every function is pure;
// sums always use the converted (primary currency) amount.
package stats

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

var hundred = decimal.NewFromInt(100)

// Period selects one calendar month in Location (nil means time.Local).
type Period struct {
	Year     int
	Month    time.Month
	Location *time.Location
}

type MonthlyStats struct {
	Label            string          `json:"month"`
	Year             int             `json:"year"`
	Month            time.Month      `json:"monthNumber"`
	TotalIncome      decimal.Decimal `json:"totalIncome"`
	TotalExpenses    decimal.Decimal `json:"totalExpenses"`
	Balance          decimal.Decimal `json:"balance"`
	TransactionCount int             `json:"transactionCount"`
}

type CategoryStat struct {
	CategoryID       string          `json:"categoryId"`
	CategoryName     string          `json:"categoryName"`
	CategoryColor    string          `json:"categoryColor"`
	Total            decimal.Decimal `json:"total"`
	Percentage       float64         `json:"percentage"`
	TransactionCount int             `json:"transactionCount"`
}

type TrendPoint struct {
	Label    string          `json:"label"`
	Year     int             `json:"year"`
	Month    time.Month      `json:"month"`
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
}

// MonthRange returns the inclusive bounds of a calendar month: its first
// instant and its last millisecond (day 0 of the following month at
// 23:59:59.999).
func MonthRange(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	end := time.Date(year, month+1, 0, 23, 59, 59, int(999*time.Millisecond), loc)
	return start, end
}

func (p Period) Range() (time.Time, time.Time) {
	return MonthRange(p.Year, p.Month, p.Location)
}

func (p Period) contains(t time.Time) bool {
	start, end := p.Range()
	return !t.Before(start) && !t.After(end)
}

// Monthly sums income and expenses dated inside the given month.
func Monthly(txns []core.TransactionWithDetails, year int, month time.Month, loc *time.Location) MonthlyStats {
	p := Period{Year: year, Month: month, Location: loc}
	out := MonthlyStats{
		Label:         month.String(),
		Year:          year,
		Month:         month,
		TotalIncome:   decimal.Zero,
		TotalExpenses: decimal.Zero,
	}
	for _, t := range txns {
		if !p.contains(t.Date) {
			continue
		}
		out.TransactionCount++
		switch t.Type {
		case core.Income:
			out.TotalIncome = out.TotalIncome.Add(t.ConvertedAmount)
		case core.Expense:
			out.TotalExpenses = out.TotalExpenses.Add(t.ConvertedAmount)
		}
	}
	out.Balance = out.TotalIncome.Sub(out.TotalExpenses)
	return out
}

// ByCategory groups transactions of type typ by category, optionally limited
// to one month. The result is ordered by total descending; equal totals keep
// the order in which their category first appeared in txns.
func ByCategory(txns []core.TransactionWithDetails, typ core.TransactionType, period *Period) []CategoryStat {
	index := make(map[string]int)
	var out []CategoryStat
	for _, t := range txns {
		if t.Type != typ {
			continue
		}
		if period != nil && !period.contains(t.Date) {
			continue
		}
		i, ok := index[t.CategoryID]
		if !ok {
			i = len(out)
			index[t.CategoryID] = i
			out = append(out, CategoryStat{
				CategoryID:    t.CategoryID,
				CategoryName:  t.Category.Name,
				CategoryColor: t.Category.Color,
				Total:         decimal.Zero,
			})
		}
		out[i].Total = out[i].Total.Add(t.ConvertedAmount)
		out[i].TransactionCount++
	}

	sum := decimal.Zero
	for _, s := range out {
		sum = sum.Add(s.Total)
	}
	if sum.IsPositive() {
		for i := range out {
			out[i].Percentage = out[i].Total.Div(sum).Mul(hundred).InexactFloat64()
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Total.GreaterThan(out[b].Total)
	})
	return out
}

// Balance is the all-time net of the given transactions: income adds,
// expenses subtract. It only sees what the caller loaded.
func Balance(txns []core.TransactionWithDetails) decimal.Decimal {
	b := decimal.Zero
	for _, t := range txns {
		switch t.Type {
		case core.Income:
			b = b.Add(t.ConvertedAmount)
		case core.Expense:
			b = b.Sub(t.ConvertedAmount)
		}
	}
	return b
}

// Matches reports whether t matches a free-text query: a case-insensitive
// substring of its description or category name, or a substring of its
// original amount ("12.5" matches 12.50). A blank query matches everything.
func Matches(t core.TransactionWithDetails, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Description), q) ||
		strings.Contains(strings.ToLower(t.Category.Name), q) ||
		strings.Contains(t.Amount.String(), q)
}

// Search keeps the transactions matching query, in order.
func Search(txns []core.TransactionWithDetails, query string) []core.TransactionWithDetails {
	out := make([]core.TransactionWithDetails, 0, len(txns))
	for _, t := range txns {
		if Matches(t, query) {
			out = append(out, t)
		}
	}
	return out
}

// Trend returns income and expense totals for the n calendar months ending
// at endYear/endMonth, oldest first.
func Trend(txns []core.TransactionWithDetails, endYear int, endMonth time.Month, n int, loc *time.Location) []TrendPoint {
	if n <= 0 {
		return nil
	}
	points := make([]TrendPoint, 0, n)
	for i := n - 1; i >= 0; i-- {
		first := time.Date(endYear, endMonth-time.Month(i), 1, 0, 0, 0, 0, time.UTC)
		m := Monthly(txns, first.Year(), first.Month(), loc)
		points = append(points, TrendPoint{
			Label:    m.Label[:3],
			Year:     m.Year,
			Month:    m.Month,
			Income:   m.TotalIncome,
			Expenses: m.TotalExpenses,
		})
	}
	return points
}
