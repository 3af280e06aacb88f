// Package sheets mirrors ledger changes into a spreadsheet.
package sheets

import (
	"context"

	"fintrack/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionAppender appends one audit row per ledger change. action is
	// one of "created", "updated" or "deleted".
	TransactionAppender interface {
		AppendTransaction(ctx context.Context, action string, t core.TransactionWithDetails) (rowRef string, err error)
	}
)
