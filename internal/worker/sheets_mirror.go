// Package worker consumes ledger events outside the request path.
package worker

import (
	"context"
	"errors"
	"fmt"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

// DetailsReader loads a transaction joined with its category and payment
// method. *storage.TransactionRepository satisfies it.
type DetailsReader interface {
	GetWithDetails(ctx context.Context, id string) (core.TransactionWithDetails, error)
}

// SheetsMirror appends a spreadsheet row for every transaction event.
type SheetsMirror struct {
	details DetailsReader
	sheets  sheets.TransactionAppender
	logger  *log.Logger
}

func NewSheetsMirror(details DetailsReader, appender sheets.TransactionAppender, logger *log.Logger) *SheetsMirror {
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &SheetsMirror{
		details: details,
		sheets:  appender,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent mirrors ev. Created and updated events read the current row;
// a row deleted in the meantime is skipped because its own delete event
// follows. Deleted events use the snapshot they carry. A returned error
// asks the consumer to redeliver.
func (m *SheetsMirror) HandleEvent(ctx context.Context, ev amqp.TransactionEvent) error {
	m.logger.InfoContext(ctx, "Processing transaction event",
		log.FieldTransactionID, ev.ID,
		log.FieldOperation, string(ev.Action))

	var t core.TransactionWithDetails
	switch ev.Action {
	case amqp.ActionDeleted:
		if ev.Snapshot == nil {
			m.logger.WarnContext(ctx, "Delete event without snapshot, skipping", log.FieldTransactionID, ev.ID)
			return nil
		}
		t = *ev.Snapshot
	case amqp.ActionCreated, amqp.ActionUpdated:
		var err error
		t, err = m.details.GetWithDetails(ctx, ev.ID)
		if errors.Is(err, storage.ErrNotFound) {
			m.logger.WarnContext(ctx, "Transaction no longer exists, skipping", log.FieldTransactionID, ev.ID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("load transaction %s: %w", ev.ID, err)
		}
	default:
		m.logger.WarnContext(ctx, "Unknown event action, skipping",
			log.FieldTransactionID, ev.ID,
			log.FieldOperation, string(ev.Action))
		return nil
	}

	ref, err := m.sheets.AppendTransaction(ctx, string(ev.Action), t)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}

	m.logger.InfoContext(ctx, "Mirrored transaction to sheets",
		log.FieldTransactionID, ev.ID,
		log.FieldOperation, string(ev.Action),
		"sheets_ref", ref)
	return nil
}
