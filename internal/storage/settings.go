package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fintrack/internal/core"
	"fintrack/internal/currency"
)

const primaryCurrencyKey = "primaryCurrency"

type SettingsRepository struct {
	st *Store
}

// PrimaryCurrency returns the stored primary currency, falling back to the
// reference currency when the key is missing or holds an unknown code.
func (r *SettingsRepository) PrimaryCurrency(ctx context.Context) (currency.Code, error) {
	db, err := r.st.conn()
	if err != nil {
		return "", err
	}
	var v string
	err = db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", primaryCurrencyKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return currency.Reference, nil
	}
	if err != nil {
		return "", fmt.Errorf("get primary currency: %w", err)
	}
	c, err := currency.Parse(v)
	if err != nil {
		return currency.Reference, nil
	}
	return c, nil
}

func (r *SettingsRepository) SetPrimaryCurrency(ctx context.Context, c currency.Code) error {
	if err := core.ValidateCurrency(c); err != nil {
		return err
	}
	db, err := r.st.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, "INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)", primaryCurrencyKey, string(c))
	if err != nil {
		return fmt.Errorf("set primary currency: %w", err)
	}
	return nil
}
