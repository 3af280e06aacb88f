// Package services holds the ledger workflows that sit between the HTTP layer
// and the state cache: input validation, write-time conversion, event
// publishing and recurring-template materialization.
//
// This file implements the strategy used to decide when a recurring template
// falls due. Each frequency has its own checker; only monthly exists today.
package services

import (
	"fmt"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/stats"
	"fintrack/internal/storage"
)

// DuenessChecker decides when a recurring template produces a transaction.
type DuenessChecker interface {
	// Period returns the window in which a template produces at most one
	// transaction.
	Period(now time.Time) storage.DateRange

	// Occurrence returns the date the template falls on inside now's period
	// and whether that date has been reached.
	Occurrence(rt core.RecurringTransaction, now time.Time) (time.Time, bool)
}

// MonthlyChecker implements DuenessChecker for monthly templates.
type MonthlyChecker struct{}

func (MonthlyChecker) Period(now time.Time) storage.DateRange {
	start, end := stats.MonthRange(now.Year(), now.Month(), now.Location())
	return storage.DateRange{Start: start, End: end}
}

// Occurrence clamps the template day to the month length, so day 31 falls on
// the 28th or 29th in February.
func (MonthlyChecker) Occurrence(rt core.RecurringTransaction, now time.Time) (time.Time, bool) {
	day := rt.DayOfMonth
	if last := daysIn(now.Year(), now.Month(), now.Location()); day > last {
		day = last
	}
	occ := time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, now.Location())
	return occ, now.Day() >= day
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

var duenessStrategies = map[core.Frequency]DuenessChecker{
	core.Monthly: MonthlyChecker{},
}

// GetDuenessChecker returns the checker registered for frequency.
func GetDuenessChecker(frequency core.Frequency) (DuenessChecker, error) {
	checker, ok := duenessStrategies[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown frequency: %s", frequency)
	}
	return checker, nil
}

// RegisterDuenessChecker adds or replaces the checker for frequency. It is
// not safe for use while a processor is running.
func RegisterDuenessChecker(frequency core.Frequency, checker DuenessChecker) {
	duenessStrategies[frequency] = checker
}
