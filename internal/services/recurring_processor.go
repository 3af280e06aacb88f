package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// RecurringSource lists templates eligible for materialization.
type RecurringSource interface {
	ListActive(ctx context.Context) ([]core.RecurringTransaction, error)
}

// OccurrenceIndex tells whether a template already produced a transaction in
// a period.
type OccurrenceIndex interface {
	ExistsForRecurring(ctx context.Context, recurringID string, rng storage.DateRange) (bool, error)
}

// RecurringProcessor turns due recurring templates into transactions.
type RecurringProcessor struct {
	templates   RecurringSource
	occurrences OccurrenceIndex
	ledger      *Ledger
	logger      *log.Logger
}

func NewRecurringProcessor(templates RecurringSource, occurrences OccurrenceIndex, ledger *Ledger, logger *log.Logger) *RecurringProcessor {
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &RecurringProcessor{
		templates:   templates,
		occurrences: occurrences,
		ledger:      ledger,
		logger:      logger.WithComponent(log.ComponentRecurring),
	}
}

// ProcessDue creates at most one transaction per active template and period,
// dated on the template's day. Running it again in the same period creates
// nothing. A failing template does not stop the others; their errors are
// joined into the result.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	if p.templates == nil || p.occurrences == nil || p.ledger == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	templates, err := p.templates.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active recurring transactions: %w", err)
	}

	p.logger.InfoContext(ctx, "Processing recurring transactions",
		"total_active", len(templates),
		"processing_date", now.Format(time.DateOnly))

	var (
		created int
		errs    []error
	)
	for _, rt := range templates {
		ok, err := p.process(ctx, rt, now)
		if err != nil {
			log.NewStructuredLogger(p.logger).LogError(ctx, "Failed to process recurring transaction",
				err, log.ComponentRecurring, "materialize", log.LogFields{log.FieldRecurringID: rt.ID})
			errs = append(errs, fmt.Errorf("recurring %s: %w", rt.ID, err))
			continue
		}
		if ok {
			created++
		}
	}

	p.logger.InfoContext(ctx, "Recurring processing complete",
		"created", created,
		"total_checked", len(templates))
	return created, errors.Join(errs...)
}

func (p *RecurringProcessor) process(ctx context.Context, rt core.RecurringTransaction, now time.Time) (bool, error) {
	checker, err := GetDuenessChecker(rt.Frequency)
	if err != nil {
		return false, err
	}
	occ, due := checker.Occurrence(rt, now)
	if !due || !rt.ActiveOn(occ) {
		return false, nil
	}

	exists, err := p.occurrences.ExistsForRecurring(ctx, rt.ID, checker.Period(now))
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	t, err := p.ledger.recordOccurrence(ctx, rt, occ)
	if err != nil {
		return false, err
	}
	p.logger.InfoContext(ctx, "Created transaction from recurring template",
		log.FieldRecurringID, rt.ID,
		log.FieldTransactionID, t.ID,
		log.FieldAmount, t.Amount.StringFixed(2),
		log.FieldCurrency, string(t.Currency))
	return true, nil
}
