package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// DateRange is an inclusive window on the transaction date.
type DateRange struct {
	Start time.Time
	End   time.Time
}

type rowScanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms) }

func toFlag(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func fromFlag(v int64) bool { return v != 0 }

func toAmount(d decimal.Decimal) float64 { return d.InexactFloat64() }

func fromAmount(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

// assignments collects the SET clauses of a partial update. Only fields
// present in a patch are added, so an explicit zero value is still written.
type assignments struct {
	cols []string
	args []any
}

func (a *assignments) set(col string, v any) {
	a.cols = append(a.cols, col+" = ?")
	a.args = append(a.args, v)
}

func (a *assignments) empty() bool { return len(a.cols) == 0 }

func setOpt[T any](a *assignments, col string, o core.Optional[T], conv func(T) any) {
	if v, ok := o.Get(); ok {
		a.set(col, conv(v))
	}
}

func asString[T ~string](v T) any { return string(v) }

func asInt(v int) any { return int64(v) }

func asFlag(v bool) any { return toFlag(v) }

func asAmount(v decimal.Decimal) any { return toAmount(v) }

func asMillis(v time.Time) any { return toMillis(v) }

func asNullMillis(v *time.Time) any { return nullMillis(v) }

// apply runs UPDATE table SET ... WHERE id = ?. It reports ErrNotFound when
// no row matched.
func (a *assignments) apply(ctx context.Context, db *sql.DB, table, id string) error {
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(a.cols, ", "))
	res, err := db.ExecContext(ctx, query, append(a.args, id)...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// limitClause appends LIMIT ? when limit is positive; zero or less means all rows.
func limitClause(query string, args []any, limit int) (string, []any) {
	if limit > 0 {
		return query + " LIMIT ?", append(args, int64(limit))
	}
	return query, args
}
