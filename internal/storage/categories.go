package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

const categoryColumns = "id, name, icon, color, isDefault, type, createdAt"

type CategoryRepository struct {
	st *Store
}

func scanCategory(r rowScanner) (core.Category, error) {
	var (
		c         core.Category
		typ       string
		isDefault int64
		createdAt int64
	)
	if err := r.Scan(&c.ID, &c.Name, &c.Icon, &c.Color, &isDefault, &typ, &createdAt); err != nil {
		return core.Category{}, err
	}
	c.Type = core.TransactionType(typ)
	c.IsDefault = fromFlag(isDefault)
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

// List returns every category, defaults first, then by name.
func (r *CategoryRepository) List(ctx context.Context) ([]core.Category, error) {
	return r.query(ctx, "SELECT "+categoryColumns+" FROM categories ORDER BY isDefault DESC, name ASC")
}

func (r *CategoryRepository) query(ctx context.Context, query string, args ...any) ([]core.Category, error) {
	db, err := r.st.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return out, nil
}

func (r *CategoryRepository) Get(ctx context.Context, id string) (core.Category, error) {
	db, err := r.st.conn()
	if err != nil {
		return core.Category{}, err
	}
	row := db.QueryRowContext(ctx, "SELECT "+categoryColumns+" FROM categories WHERE id = ?", id)
	c, err := scanCategory(row)
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %s: %w", id, notFound(err))
	}
	return c, nil
}

// Create inserts c and returns it with CreatedAt set. An empty ID is
// replaced by a random UUID.
func (r *CategoryRepository) Create(ctx context.Context, c core.Category) (core.Category, error) {
	db, err := r.st.conn()
	if err != nil {
		return core.Category{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = r.st.now()
	_, err = db.ExecContext(ctx,
		"INSERT INTO categories ("+categoryColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		c.ID, c.Name, c.Icon, c.Color, toFlag(c.IsDefault), string(c.Type), toMillis(c.CreatedAt))
	if err != nil {
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return c, nil
}

// Update writes the fields present in p. An empty patch returns without
// touching the database.
func (r *CategoryRepository) Update(ctx context.Context, id string, p core.CategoryPatch) error {
	db, err := r.st.conn()
	if err != nil {
		return err
	}
	var a assignments
	setOpt(&a, "name", p.Name, asString[string])
	setOpt(&a, "icon", p.Icon, asString[string])
	setOpt(&a, "color", p.Color, asString[string])
	if a.empty() {
		return nil
	}
	if err := a.apply(ctx, db, "categories", id); err != nil {
		return fmt.Errorf("update category %s: %w", id, err)
	}
	return nil
}

// Delete removes a user-created category. Default categories are protected
// by the query itself, so deleting one is a silent no-op.
func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	db, err := r.st.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM categories WHERE id = ? AND isDefault = 0", id); err != nil {
		return fmt.Errorf("delete category %s: %w", id, err)
	}
	return nil
}
