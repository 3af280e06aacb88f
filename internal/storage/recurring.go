package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/currency"
)

const recurringColumns = "id, type, amount, currency, categoryId, paymentMethodId, description, " +
	"frequency, dayOfMonth, isActive, startDate, endDate, createdAt, updatedAt"

type RecurringRepository struct {
	st *Store
}

func scanRecurring(r rowScanner) (core.RecurringTransaction, error) {
	var (
		rt               core.RecurringTransaction
		typ, cur, freq   string
		amount           float64
		day              int64
		isActive         int64
		start            int64
		end              sql.NullInt64
		created, updated int64
	)
	err := r.Scan(&rt.ID, &typ, &amount, &cur, &rt.CategoryID, &rt.PaymentMethodID, &rt.Description,
		&freq, &day, &isActive, &start, &end, &created, &updated)
	if err != nil {
		return core.RecurringTransaction{}, err
	}
	rt.Type = core.TransactionType(typ)
	rt.Amount = fromAmount(amount)
	rt.Currency = currency.Code(cur)
	rt.Frequency = core.Frequency(freq)
	rt.DayOfMonth = int(day)
	rt.IsActive = fromFlag(isActive)
	rt.StartDate = fromMillis(start)
	if end.Valid {
		e := fromMillis(end.Int64)
		rt.EndDate = &e
	}
	rt.CreatedAt = fromMillis(created)
	rt.UpdatedAt = fromMillis(updated)
	return rt, nil
}

func (r *RecurringRepository) query(ctx context.Context, query string, args ...any) ([]core.RecurringTransaction, error) {
	db, err := r.st.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recurring transactions: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringTransaction
	for rows.Next() {
		rt, err := scanRecurring(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring transaction: %w", err)
		}
		out = append(out, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recurring transactions: %w", err)
	}
	return out, nil
}

// List returns every template ordered by day of month.
func (r *RecurringRepository) List(ctx context.Context) ([]core.RecurringTransaction, error) {
	return r.query(ctx, "SELECT "+recurringColumns+" FROM recurring_transactions ORDER BY dayOfMonth ASC")
}

func (r *RecurringRepository) ListActive(ctx context.Context) ([]core.RecurringTransaction, error) {
	return r.query(ctx, "SELECT "+recurringColumns+" FROM recurring_transactions WHERE isActive = 1 ORDER BY dayOfMonth ASC")
}

func (r *RecurringRepository) Get(ctx context.Context, id string) (core.RecurringTransaction, error) {
	db, err := r.st.conn()
	if err != nil {
		return core.RecurringTransaction{}, err
	}
	rt, err := scanRecurring(db.QueryRowContext(ctx, "SELECT "+recurringColumns+" FROM recurring_transactions WHERE id = ?", id))
	if err != nil {
		return core.RecurringTransaction{}, fmt.Errorf("get recurring transaction %s: %w", id, notFound(err))
	}
	return rt, nil
}

func (r *RecurringRepository) Create(ctx context.Context, rt core.RecurringTransaction) (core.RecurringTransaction, error) {
	db, err := r.st.conn()
	if err != nil {
		return core.RecurringTransaction{}, err
	}
	if rt.ID == "" {
		rt.ID = uuid.NewString()
	}
	if rt.Frequency == "" {
		rt.Frequency = core.Monthly
	}
	now := r.st.now()
	rt.CreatedAt, rt.UpdatedAt = now, now
	_, err = db.ExecContext(ctx,
		"INSERT INTO recurring_transactions ("+recurringColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		rt.ID, string(rt.Type), toAmount(rt.Amount), string(rt.Currency), rt.CategoryID, rt.PaymentMethodID,
		rt.Description, string(rt.Frequency), int64(rt.DayOfMonth), toFlag(rt.IsActive),
		toMillis(rt.StartDate), nullMillis(rt.EndDate), toMillis(now), toMillis(now))
	if err != nil {
		return core.RecurringTransaction{}, fmt.Errorf("insert recurring transaction: %w", err)
	}
	return rt, nil
}

func (r *RecurringRepository) Update(ctx context.Context, id string, p core.RecurringPatch) error {
	db, err := r.st.conn()
	if err != nil {
		return err
	}
	var a assignments
	setOpt(&a, "amount", p.Amount, asAmount)
	setOpt(&a, "currency", p.Currency, asString[currency.Code])
	setOpt(&a, "categoryId", p.CategoryID, asString[string])
	setOpt(&a, "paymentMethodId", p.PaymentMethodID, asString[string])
	setOpt(&a, "description", p.Description, asString[string])
	setOpt(&a, "dayOfMonth", p.DayOfMonth, asInt)
	setOpt(&a, "isActive", p.IsActive, asFlag)
	setOpt(&a, "endDate", p.EndDate, asNullMillis)
	if a.empty() {
		return nil
	}
	a.set("updatedAt", toMillis(r.st.now()))
	if err := a.apply(ctx, db, "recurring_transactions", id); err != nil {
		return fmt.Errorf("update recurring transaction %s: %w", id, err)
	}
	return nil
}

func (r *RecurringRepository) Delete(ctx context.Context, id string) error {
	db, err := r.st.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM recurring_transactions WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete recurring transaction %s: %w", id, err)
	}
	return nil
}
