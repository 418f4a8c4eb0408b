package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"saldo/internal/core"
)

const transactionSelect = `SELECT t.id, t.user_id, t.type, t.amount_cents, t.description, t.date, t.category_id,
	t.tags, t.notes, t.is_paid, t.paid_at, t.created_at, t.updated_at,
	c.name, c.type, c.color, c.icon,
	u.email, u.full_name, u.is_staff
FROM transactions t
JOIN users u ON u.id = t.user_id
LEFT JOIN categories c ON c.id = t.category_id`

// ListTransactions returns one page of transactions matching f, newest first,
// together with the total number of matching rows.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, int, error) {
	conds, args := transactionConditions(f)
	where := whereClause(conds)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions t`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = -1 // no limit in SQLite
	}
	query := transactionSelect + where + ` ORDER BY t.date DESC, t.created_at DESC, t.id LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows, f.WithOwner)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, total, nil
}

func transactionConditions(f core.TransactionFilter) ([]string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.OwnerID != "" {
		conds = append(conds, "t.user_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.StartDate != nil {
		conds = append(conds, "t.date >= ?")
		args = append(args, f.StartDate.String())
	}
	if f.EndDate != nil {
		conds = append(conds, "t.date <= ?")
		args = append(args, f.EndDate.String())
	}
	if f.Type != "" {
		conds = append(conds, "t.type = ?")
		args = append(args, string(f.Type))
	}
	if f.CategoryID != "" {
		conds = append(conds, "t.category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.IsPaid != nil {
		conds = append(conds, "t.is_paid = ?")
		args = append(args, boolToInt(*f.IsPaid))
	}
	return conds, args
}

// GetTransaction loads one transaction. An empty ownerID matches any owner.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id, ownerID string, withOwner bool) (core.Transaction, error) {
	conds := []string{"t.id = ?"}
	args := []any{id}
	if ownerID != "" {
		conds = append(conds, "t.user_id = ?")
		args = append(args, ownerID)
	}
	t, err := scanTransaction(r.db.QueryRowContext(ctx, transactionSelect+whereClause(conds), args...), withOwner)
	if isNoRows(err) {
		return core.Transaction{}, notFound("transaction")
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return core.Transaction{}, err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, type, amount_cents, description, date, category_id, tags, notes, is_paid, paid_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, string(t.Type), t.Amount.Cents, t.Description, t.Date.String(),
		nullableString(t.CategoryID), tags, nullableString(t.Notes), boolToInt(t.IsPaid), nullableTime(t.PaidAt))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", translateError(err))
	}
	return r.GetTransaction(ctx, t.ID, t.UserID, false)
}

// UpdateTransaction writes the mutable columns of t, matching on id and owner.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return core.Transaction{}, err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET type = ?, amount_cents = ?, description = ?, date = ?, category_id = ?,
			tags = ?, notes = ?, is_paid = ?, paid_at = ?
		WHERE id = ? AND user_id = ?`,
		string(t.Type), t.Amount.Cents, t.Description, t.Date.String(), nullableString(t.CategoryID),
		tags, nullableString(t.Notes), boolToInt(t.IsPaid), nullableTime(t.PaidAt), t.ID, t.UserID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", translateError(err))
	}
	if err := rowsAffected(res, "transaction"); err != nil {
		return core.Transaction{}, err
	}
	return r.GetTransaction(ctx, t.ID, t.UserID, false)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id, ownerID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return rowsAffected(res, "transaction")
}

// SetPaid moves a transaction into the requested paid state in one statement.
// It reports false when no row changed, either because the row does not
// exist for ownerID or because it is already in that state.
func (r *SQLiteRepository) SetPaid(ctx context.Context, id, ownerID string, paid bool, at time.Time) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if paid {
		res, err = r.db.ExecContext(ctx,
			`UPDATE transactions SET is_paid = 1, paid_at = ? WHERE id = ? AND user_id = ? AND is_paid = 0`,
			formatTime(at), id, ownerID)
	} else {
		res, err = r.db.ExecContext(ctx,
			`UPDATE transactions SET is_paid = 0, paid_at = NULL WHERE id = ? AND user_id = ? AND is_paid = 1`,
			id, ownerID)
	}
	if err != nil {
		return false, fmt.Errorf("set paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// TogglePaid flips the paid state, stamping or clearing paid_at.
func (r *SQLiteRepository) TogglePaid(ctx context.Context, id, ownerID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions
		SET is_paid = 1 - is_paid,
			paid_at = CASE WHEN is_paid = 1 THEN NULL ELSE ? END
		WHERE id = ? AND user_id = ?`,
		formatTime(at), id, ownerID)
	if err != nil {
		return fmt.Errorf("toggle paid: %w", err)
	}
	return rowsAffected(res, "transaction")
}

func scanTransaction(row rowScanner, withOwner bool) (core.Transaction, error) {
	var (
		t                          core.Transaction
		typ, date, tags            string
		categoryID, notes, paidAt  sql.NullString
		catName, catType, catColor sql.NullString
		catIcon                    sql.NullString
		paid, ownerStaff           int
		createdAt, updatedAt       string
		owner                      core.OwnerSummary
	)
	if err := row.Scan(&t.ID, &t.UserID, &typ, &t.Amount.Cents, &t.Description, &date, &categoryID,
		&tags, &notes, &paid, &paidAt, &createdAt, &updatedAt,
		&catName, &catType, &catColor, &catIcon,
		&owner.Email, &owner.FullName, &ownerStaff); err != nil {
		return core.Transaction{}, err
	}

	t.Type = core.TransactionType(typ)
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	t.Date = d
	if categoryID.Valid {
		id := categoryID.String
		t.CategoryID = &id
		if catName.Valid {
			t.Category = &core.CategoryRef{
				ID:    id,
				Name:  catName.String,
				Type:  core.TransactionType(catType.String),
				Color: catColor.String,
				Icon:  catIcon.String,
			}
		}
	}
	t.Tags = []string{}
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return core.Transaction{}, fmt.Errorf("decode tags: %w", err)
	}
	if notes.Valid {
		n := notes.String
		t.Notes = &n
	}
	t.IsPaid = paid == 1
	if t.PaidAt, err = parseNullTime(paidAt); err != nil {
		return core.Transaction{}, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Transaction{}, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.Transaction{}, err
	}
	if withOwner {
		owner.ID = t.UserID
		owner.IsStaff = ownerStaff == 1
		t.Owner = &owner
	}
	return t, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
