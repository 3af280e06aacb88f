package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

const paymentMethodColumns = "id, name, type, isDefault, createdAt"

type PaymentMethodRepository struct {
	st *Store
}

func scanPaymentMethod(r rowScanner) (core.PaymentMethod, error) {
	var (
		p         core.PaymentMethod
		typ       string
		isDefault int64
		createdAt int64
	)
	if err := r.Scan(&p.ID, &p.Name, &typ, &isDefault, &createdAt); err != nil {
		return core.PaymentMethod{}, err
	}
	p.Type = core.PaymentMethodType(typ)
	p.IsDefault = fromFlag(isDefault)
	p.CreatedAt = fromMillis(createdAt)
	return p, nil
}

func (r *PaymentMethodRepository) List(ctx context.Context) ([]core.PaymentMethod, error) {
	db, err := r.st.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, "SELECT "+paymentMethodColumns+" FROM payment_methods ORDER BY isDefault DESC, name ASC")
	if err != nil {
		return nil, fmt.Errorf("query payment methods: %w", err)
	}
	defer rows.Close()

	var out []core.PaymentMethod
	for rows.Next() {
		p, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment method: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment methods: %w", err)
	}
	return out, nil
}

func (r *PaymentMethodRepository) Get(ctx context.Context, id string) (core.PaymentMethod, error) {
	db, err := r.st.conn()
	if err != nil {
		return core.PaymentMethod{}, err
	}
	row := db.QueryRowContext(ctx, "SELECT "+paymentMethodColumns+" FROM payment_methods WHERE id = ?", id)
	p, err := scanPaymentMethod(row)
	if err != nil {
		return core.PaymentMethod{}, fmt.Errorf("get payment method %s: %w", id, notFound(err))
	}
	return p, nil
}

func (r *PaymentMethodRepository) Create(ctx context.Context, p core.PaymentMethod) (core.PaymentMethod, error) {
	db, err := r.st.conn()
	if err != nil {
		return core.PaymentMethod{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = r.st.now()
	_, err = db.ExecContext(ctx,
		"INSERT INTO payment_methods ("+paymentMethodColumns+") VALUES (?, ?, ?, ?, ?)",
		p.ID, p.Name, string(p.Type), toFlag(p.IsDefault), toMillis(p.CreatedAt))
	if err != nil {
		return core.PaymentMethod{}, fmt.Errorf("insert payment method: %w", err)
	}
	return p, nil
}

func (r *PaymentMethodRepository) Update(ctx context.Context, id string, p core.PaymentMethodPatch) error {
	db, err := r.st.conn()
	if err != nil {
		return err
	}
	var a assignments
	setOpt(&a, "name", p.Name, asString[string])
	if a.empty() {
		return nil
	}
	if err := a.apply(ctx, db, "payment_methods", id); err != nil {
		return fmt.Errorf("update payment method %s: %w", id, err)
	}
	return nil
}

// Delete is a no-op for default payment methods.
func (r *PaymentMethodRepository) Delete(ctx context.Context, id string) error {
	db, err := r.st.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM payment_methods WHERE id = ? AND isDefault = 0", id); err != nil {
		return fmt.Errorf("delete payment method %s: %w", id, err)
	}
	return nil
}
