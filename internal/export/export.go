// Package export renders transactions as downloadable files.
package export

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"fintrack/internal/core"
)

var (
	ErrNoTransactions    = errors.New("no transactions to export")
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// Columns is the header shared by every format.
var Columns = []string{
	"Date",
	"Type",
	"Description",
	"Amount",
	"Currency",
	"Converted Amount (Primary Currency)",
	"Category",
	"Payment Method",
}

const (
	dateLayout = "02/01/2006"
	sheetName  = "Transactions"
)

// ParseFormat accepts "csv" and "xlsx" in any case; empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return CSV, nil
	case CSV, XLSX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

func (f Format) ContentType() string {
	switch f {
	case XLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Filename follows transactions_<unix millis>.<ext>.
func (f Format) Filename(now time.Time) string {
	return fmt.Sprintf("transactions_%d.%s", now.UnixMilli(), f)
}

// Write renders txns in format f.
func Write(w io.Writer, f Format, txns []core.TransactionWithDetails) error {
	switch f {
	case CSV:
		return WriteCSV(w, txns)
	case XLSX:
		return WriteXLSX(w, txns)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(f))
	}
}

func record(t core.TransactionWithDetails) []string {
	return []string{
		t.Date.Format(dateLayout),
		string(t.Type),
		t.Description,
		t.Amount.StringFixed(2),
		string(t.Currency),
		t.ConvertedAmount.StringFixed(2),
		t.Category.Name,
		t.PaymentMethod.Name,
	}
}

// CSVString renders the header line followed by one line per transaction.
// Every data field is quoted with inner quotes doubled; lines are joined by
// "\n" without a trailing newline.
func CSVString(txns []core.TransactionWithDetails) (string, error) {
	if len(txns) == 0 {
		return "", ErrNoTransactions
	}
	var sb strings.Builder
	sb.WriteString(strings.Join(Columns, ","))
	for _, t := range txns {
		sb.WriteByte('\n')
		for i, field := range record(t) {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteByte('"')
			sb.WriteString(strings.ReplaceAll(field, `"`, `""`))
			sb.WriteByte('"')
		}
	}
	return sb.String(), nil
}

func WriteCSV(w io.Writer, txns []core.TransactionWithDetails) error {
	s, err := CSVString(txns)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, s)
	return err
}

// WriteXLSX writes a single-sheet workbook with a bold header row. Amounts
// are numeric cells formatted with two decimals.
func WriteXLSX(w io.Writer, txns []core.TransactionWithDetails) error {
	if len(txns) == 0 {
		return ErrNoTransactions
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return fmt.Errorf("amount style: %w", err)
	}

	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", "H1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, t := range txns {
		row := i + 2
		values := []any{
			t.Date.Format(dateLayout),
			string(t.Type),
			t.Description,
			t.Amount.Round(2).InexactFloat64(),
			string(t.Currency),
			t.ConvertedAmount.Round(2).InexactFloat64(),
			t.Category.Name,
			t.PaymentMethod.Name,
		}
		if err := f.SetSheetRow(sheetName, fmt.Sprintf("A%d", row), &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
	}

	last := len(txns) + 1
	if err := f.SetCellStyle(sheetName, "D2", fmt.Sprintf("D%d", last), amountStyle); err != nil {
		return fmt.Errorf("style amounts: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "F2", fmt.Sprintf("F%d", last), amountStyle); err != nil {
		return fmt.Errorf("style amounts: %w", err)
	}

	f.SetColWidth(sheetName, "A", "B", 12)
	f.SetColWidth(sheetName, "C", "C", 30)
	f.SetColWidth(sheetName, "D", "E", 12)
	f.SetColWidth(sheetName, "F", "F", 34)
	f.SetColWidth(sheetName, "G", "H", 20)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
