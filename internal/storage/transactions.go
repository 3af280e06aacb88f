package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/currency"
)

const transactionColumns = "id, type, amount, currency, convertedAmount, categoryId, paymentMethodId, " +
	"description, date, isRecurring, recurringTransactionId, createdAt, updatedAt"

const transactionOrder = " ORDER BY date DESC, createdAt DESC"

const detailsQuery = `SELECT
	t.id, t.type, t.amount, t.currency, t.convertedAmount, t.categoryId, t.paymentMethodId,
	t.description, t.date, t.isRecurring, t.recurringTransactionId, t.createdAt, t.updatedAt,
	c.name, c.icon, c.color, c.isDefault, c.type, c.createdAt,
	pm.name, pm.type, pm.isDefault, pm.createdAt
FROM transactions t
LEFT JOIN categories c ON t.categoryId = c.id
LEFT JOIN payment_methods pm ON t.paymentMethodId = pm.id`

type TransactionRepository struct {
	st *Store
}

type transactionRow struct {
	typ, cur         string
	amount, conv     float64
	date             int64
	isRecurring      int64
	recurringID      sql.NullString
	created, updated int64
}

func (row *transactionRow) dest(t *core.Transaction) []any {
	return []any{&t.ID, &row.typ, &row.amount, &row.cur, &row.conv, &t.CategoryID, &t.PaymentMethodID,
		&t.Description, &row.date, &row.isRecurring, &row.recurringID, &row.created, &row.updated}
}

func (row *transactionRow) fill(t *core.Transaction) {
	t.Type = core.TransactionType(row.typ)
	t.Amount = fromAmount(row.amount)
	t.Currency = currency.Code(row.cur)
	t.ConvertedAmount = fromAmount(row.conv)
	t.Date = fromMillis(row.date)
	t.IsRecurring = fromFlag(row.isRecurring)
	t.RecurringTransactionID = row.recurringID.String
	t.CreatedAt = fromMillis(row.created)
	t.UpdatedAt = fromMillis(row.updated)
}

func scanTransaction(r rowScanner) (core.Transaction, error) {
	var (
		t   core.Transaction
		row transactionRow
	)
	if err := r.Scan(row.dest(&t)...); err != nil {
		return core.Transaction{}, err
	}
	row.fill(&t)
	return t, nil
}

// scanDetails reads a joined row. Category and payment method columns are
// NULL when the referenced row no longer exists.
func scanDetails(r rowScanner) (core.TransactionWithDetails, error) {
	var (
		d   core.TransactionWithDetails
		row transactionRow

		catName, catIcon, catColor, catType sql.NullString
		catDefault, catCreated              sql.NullInt64
		pmName, pmType                      sql.NullString
		pmDefault, pmCreated                sql.NullInt64
	)
	dest := append(row.dest(&d.Transaction),
		&catName, &catIcon, &catColor, &catDefault, &catType, &catCreated,
		&pmName, &pmType, &pmDefault, &pmCreated)
	if err := r.Scan(dest...); err != nil {
		return core.TransactionWithDetails{}, err
	}
	row.fill(&d.Transaction)

	d.Category = core.Category{
		ID:        d.CategoryID,
		Name:      catName.String,
		Icon:      catIcon.String,
		Color:     catColor.String,
		Type:      core.TransactionType(catType.String),
		IsDefault: fromFlag(catDefault.Int64),
	}
	if catCreated.Valid {
		d.Category.CreatedAt = fromMillis(catCreated.Int64)
	}
	d.PaymentMethod = core.PaymentMethod{
		ID:        d.PaymentMethodID,
		Name:      pmName.String,
		Type:      core.PaymentMethodType(pmType.String),
		IsDefault: fromFlag(pmDefault.Int64),
	}
	if pmCreated.Valid {
		d.PaymentMethod.CreatedAt = fromMillis(pmCreated.Int64)
	}
	return d, nil
}

func (r *TransactionRepository) query(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	db, err := r.st.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// List returns the newest transactions first. limit <= 0 returns all rows.
func (r *TransactionRepository) List(ctx context.Context, limit int) ([]core.Transaction, error) {
	q, args := limitClause("SELECT "+transactionColumns+" FROM transactions"+transactionOrder, nil, limit)
	return r.query(ctx, q, args...)
}

func (r *TransactionRepository) ListByType(ctx context.Context, typ core.TransactionType, limit int) ([]core.Transaction, error) {
	q, args := limitClause("SELECT "+transactionColumns+" FROM transactions WHERE type = ?"+transactionOrder,
		[]any{string(typ)}, limit)
	return r.query(ctx, q, args...)
}

// ListByDateRange returns transactions dated inside rng (inclusive), newest first.
func (r *TransactionRepository) ListByDateRange(ctx context.Context, rng DateRange) ([]core.Transaction, error) {
	return r.query(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE date >= ? AND date <= ? ORDER BY date DESC",
		toMillis(rng.Start), toMillis(rng.End))
}

func (r *TransactionRepository) Get(ctx context.Context, id string) (core.Transaction, error) {
	db, err := r.st.conn()
	if err != nil {
		return core.Transaction{}, err
	}
	row := db.QueryRowContext(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	t, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, notFound(err))
	}
	return t, nil
}

// ListWithDetails joins each transaction with its category and payment method.
func (r *TransactionRepository) ListWithDetails(ctx context.Context, limit int) ([]core.TransactionWithDetails, error) {
	db, err := r.st.conn()
	if err != nil {
		return nil, err
	}
	q, args := limitClause(detailsQuery+" ORDER BY t.date DESC, t.createdAt DESC", nil, limit)
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query transaction details: %w", err)
	}
	defer rows.Close()

	var out []core.TransactionWithDetails
	for rows.Next() {
		d, err := scanDetails(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction details: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction details: %w", err)
	}
	return out, nil
}

func (r *TransactionRepository) GetWithDetails(ctx context.Context, id string) (core.TransactionWithDetails, error) {
	db, err := r.st.conn()
	if err != nil {
		return core.TransactionWithDetails{}, err
	}
	d, err := scanDetails(db.QueryRowContext(ctx, detailsQuery+" WHERE t.id = ?", id))
	if err != nil {
		return core.TransactionWithDetails{}, fmt.Errorf("get transaction details %s: %w", id, notFound(err))
	}
	return d, nil
}

// TotalByType sums convertedAmount for typ, optionally restricted to rng.
func (r *TransactionRepository) TotalByType(ctx context.Context, typ core.TransactionType, rng *DateRange) (decimal.Decimal, error) {
	db, err := r.st.conn()
	if err != nil {
		return decimal.Zero, err
	}
	var sb strings.Builder
	sb.WriteString("SELECT COALESCE(SUM(convertedAmount), 0) FROM transactions WHERE type = ?")
	args := []any{string(typ)}
	if rng != nil {
		sb.WriteString(" AND date >= ? AND date <= ?")
		args = append(args, toMillis(rng.Start), toMillis(rng.End))
	}
	var total float64
	if err := db.QueryRowContext(ctx, sb.String(), args...).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("sum %s transactions: %w", typ, err)
	}
	return fromAmount(total).Round(2), nil
}

// ExistsForRecurring reports whether a transaction generated from the given
// template is already dated inside rng.
func (r *TransactionRepository) ExistsForRecurring(ctx context.Context, recurringID string, rng DateRange) (bool, error) {
	db, err := r.st.conn()
	if err != nil {
		return false, err
	}
	var n int64
	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE recurringTransactionId = ? AND date >= ? AND date <= ?",
		recurringID, toMillis(rng.Start), toMillis(rng.End)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check recurring %s: %w", recurringID, err)
	}
	return n > 0, nil
}

// Create inserts t with CreatedAt and UpdatedAt set to the store clock.
func (r *TransactionRepository) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	db, err := r.st.conn()
	if err != nil {
		return core.Transaction{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := r.st.now()
	t.CreatedAt, t.UpdatedAt = now, now
	_, err = db.ExecContext(ctx,
		"INSERT INTO transactions ("+transactionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		t.ID, string(t.Type), toAmount(t.Amount), string(t.Currency), toAmount(t.ConvertedAmount),
		t.CategoryID, t.PaymentMethodID, t.Description, toMillis(t.Date), toFlag(t.IsRecurring),
		nullString(t.RecurringTransactionID), toMillis(now), toMillis(now))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return t, nil
}

// Update writes the fields present in p and bumps updatedAt. An empty patch
// returns without touching the database.
func (r *TransactionRepository) Update(ctx context.Context, id string, p core.TransactionPatch) error {
	db, err := r.st.conn()
	if err != nil {
		return err
	}
	var a assignments
	setOpt(&a, "type", p.Type, asString[core.TransactionType])
	setOpt(&a, "amount", p.Amount, asAmount)
	setOpt(&a, "currency", p.Currency, asString[currency.Code])
	setOpt(&a, "convertedAmount", p.ConvertedAmount, asAmount)
	setOpt(&a, "categoryId", p.CategoryID, asString[string])
	setOpt(&a, "paymentMethodId", p.PaymentMethodID, asString[string])
	setOpt(&a, "description", p.Description, asString[string])
	setOpt(&a, "date", p.Date, asMillis)
	if a.empty() {
		return nil
	}
	a.set("updatedAt", toMillis(r.st.now()))
	if err := a.apply(ctx, db, "transactions", id); err != nil {
		return fmt.Errorf("update transaction %s: %w", id, err)
	}
	return nil
}

func (r *TransactionRepository) Delete(ctx context.Context, id string) error {
	db, err := r.st.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return nil
}
