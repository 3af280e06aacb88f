package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
)

// Header is the first row written to every transactions sheet.
var Header = []any{
	"Logged At", "Action", "ID", "Date", "Type", "Description",
	"Amount", "Currency", "Converted Amount", "Category", "Payment Method",
}

// lastColumn is the column letter of the final Header cell.
const lastColumn = "K"

// transactionRow renders t as a sheet row. Amounts are plain decimal strings
// so USER_ENTERED input stores them as numbers.
func transactionRow(action string, t core.TransactionWithDetails, loggedAt time.Time) []any {
	return []any{
		loggedAt.UTC().Format(time.RFC3339),
		action,
		t.ID,
		t.Date.Format("02/01/2006"),
		string(t.Type),
		t.Description,
		t.Amount.StringFixed(2),
		string(t.Currency),
		t.ConvertedAmount.StringFixed(2),
		t.Category.Name,
		t.PaymentMethod.Name,
	}
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

// quoteSheet quotes a sheet title for use in A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
