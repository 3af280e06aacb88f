package storage

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/core"
	"fintrack/internal/currency"
)

var defaultCategories = []core.Category{
	{ID: "cat-food", Name: "Food & Dining", Icon: "food", Color: "#EC4899", Type: core.Expense},
	{ID: "cat-transport", Name: "Transportation", Icon: "transport", Color: "#3B82F6", Type: core.Expense},
	{ID: "cat-shopping", Name: "Shopping", Icon: "shopping", Color: "#8B5CF6", Type: core.Expense},
	{ID: "cat-bills", Name: "Bills & Utilities", Icon: "bills", Color: "#F59E0B", Type: core.Expense},
	{ID: "cat-entertainment", Name: "Entertainment", Icon: "entertainment", Color: "#EF4444", Type: core.Expense},
	{ID: "cat-health", Name: "Healthcare", Icon: "health", Color: "#10B981", Type: core.Expense},
	{ID: "cat-housing", Name: "Housing", Icon: "housing", Color: "#06B6D4", Type: core.Expense},
	{ID: "cat-other-expense", Name: "Other", Icon: "other", Color: "#6B7280", Type: core.Expense},
	{ID: "cat-salary", Name: "Salary", Icon: "salary", Color: "#10B981", Type: core.Income},
	{ID: "cat-freelance", Name: "Freelance", Icon: "salary", Color: "#06B6D4", Type: core.Income},
	{ID: "cat-investments", Name: "Investments", Icon: "investment", Color: "#8B5CF6", Type: core.Income},
	{ID: "cat-other-income", Name: "Other", Icon: "other", Color: "#10B981", Type: core.Income},
}

var defaultPaymentMethods = []core.PaymentMethod{
	{ID: "pm-cash", Name: "Cash", Type: core.Cash},
	{ID: "pm-debit", Name: "Debit Card", Type: core.DebitCard},
	{ID: "pm-credit", Name: "Credit Card", Type: core.CreditCard},
}

// seed inserts the default rows in one transaction, only when the categories
// table is empty.
func (s *Store) seed(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	var count int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM categories").Scan(&count); err != nil {
		return fmt.Errorf("count categories: %w", err)
	}
	if count > 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	ts := toMillis(s.now())
	for _, c := range defaultCategories {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO categories ("+categoryColumns+") VALUES (?, ?, ?, ?, 1, ?, ?)",
			c.ID, c.Name, c.Icon, c.Color, string(c.Type), ts)
		if err != nil {
			return fmt.Errorf("seed category %s: %w", c.ID, err)
		}
	}
	for _, p := range defaultPaymentMethods {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO payment_methods ("+paymentMethodColumns+") VALUES (?, ?, ?, 1, ?)",
			p.ID, p.Name, string(p.Type), ts)
		if err != nil {
			return fmt.Errorf("seed payment method %s: %w", p.ID, err)
		}
	}
	_, err = tx.ExecContext(ctx, "INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)",
		primaryCurrencyKey, string(currency.Reference))
	if err != nil {
		return fmt.Errorf("seed primary currency: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	slog.InfoContext(ctx, "Seeded default data",
		"categories", len(defaultCategories),
		"payment_methods", len(defaultPaymentMethods))
	return nil
}
