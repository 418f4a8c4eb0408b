package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"saldo/internal/core"
)

const categorySelect = `SELECT c.id, c.user_id, c.name, c.type, c.color, c.icon, c.created_at, c.updated_at,
	u.email, u.full_name, u.is_staff
FROM categories c
JOIN users u ON u.id = c.user_id`

// ListCategories returns categories matching f ordered by type then name.
// Owner details are attached only when f.WithOwner is set.
func (r *SQLiteRepository) ListCategories(ctx context.Context, f core.CategoryFilter) ([]core.Category, error) {
	var (
		conds []string
		args  []any
	)
	if f.OwnerID != "" {
		conds = append(conds, "c.user_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.Type != "" {
		conds = append(conds, "c.type = ?")
		args = append(args, string(f.Type))
	}

	query := categorySelect + whereClause(conds) + ` ORDER BY c.type, c.name COLLATE NOCASE, c.id`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []core.Category{}
	for rows.Next() {
		c, err := scanCategory(rows, f.WithOwner)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// GetCategory loads one category. An empty ownerID matches any owner.
func (r *SQLiteRepository) GetCategory(ctx context.Context, id, ownerID string, withOwner bool) (core.Category, error) {
	conds := []string{"c.id = ?"}
	args := []any{id}
	if ownerID != "" {
		conds = append(conds, "c.user_id = ?")
		args = append(args, ownerID)
	}
	c, err := scanCategory(r.db.QueryRowContext(ctx, categorySelect+whereClause(conds), args...), withOwner)
	if isNoRows(err) {
		return core.Category{}, notFound("category")
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (id, user_id, name, type, color, icon) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, string(c.Type), c.Color, c.Icon)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", translateError(err))
	}
	return r.GetCategory(ctx, c.ID, c.UserID, false)
}

// UpdateCategory writes the mutable columns of c, matching on id and owner.
func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, type = ?, color = ?, icon = ? WHERE id = ? AND user_id = ?`,
		c.Name, string(c.Type), c.Color, c.Icon, c.ID, c.UserID)
	if err != nil {
		return core.Category{}, fmt.Errorf("update category: %w", translateError(err))
	}
	if err := rowsAffected(res, "category"); err != nil {
		return core.Category{}, err
	}
	return r.GetCategory(ctx, c.ID, c.UserID, false)
}

// DeleteCategory removes a category owned by ownerID. A category still
// referenced by transactions fails with a conflict.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id, ownerID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ? AND user_id = ?`, id, ownerID)
	if isForeignKeyError(err) {
		return core.Errorf(core.ErrConflict, "category is used by existing transactions")
	}
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return rowsAffected(res, "category")
}

// CountCategoryTransactions returns how many transactions reference the category.
func (r *SQLiteRepository) CountCategoryTransactions(ctx context.Context, id string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE category_id = ?`, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("count category transactions: %w", err)
	}
	return n, nil
}

func scanCategory(row rowScanner, withOwner bool) (core.Category, error) {
	var (
		c                    core.Category
		typ                  string
		createdAt, updatedAt string
		owner                core.OwnerSummary
		ownerStaff           int
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &typ, &c.Color, &c.Icon, &createdAt, &updatedAt,
		&owner.Email, &owner.FullName, &ownerStaff); err != nil {
		return core.Category{}, err
	}
	c.Type = core.TransactionType(typ)
	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Category{}, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.Category{}, err
	}
	if withOwner {
		owner.ID = c.UserID
		owner.IsStaff = ownerStaff == 1
		c.Owner = &owner
	}
	return c, nil
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}
