package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Account holds the credentials the identity provider signs users in with.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	LastSignInAt *time.Time
	CreatedAt    time.Time
}

// Session is a revocable login. Access tokens carry its id.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	UserAgent string
	ClientIP  string
	CreatedAt time.Time
}

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash) VALUES (?, ?, ?)`,
		a.ID, strings.ToLower(strings.TrimSpace(a.Email)), a.PasswordHash)
	if err != nil {
		return fmt.Errorf("create account: %w", translateError(err))
	}
	return nil
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id string) (Account, error) {
	return r.getAccount(ctx, `WHERE id = ?`, id)
}

func (r *SQLiteRepository) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	return r.getAccount(ctx, `WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)))
}

func (r *SQLiteRepository) getAccount(ctx context.Context, where string, arg any) (Account, error) {
	var (
		a          Account
		lastSignIn sql.NullString
		createdAt  string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, last_sign_in_at, created_at FROM accounts `+where, arg).
		Scan(&a.ID, &a.Email, &a.PasswordHash, &lastSignIn, &createdAt)
	if isNoRows(err) {
		return Account{}, notFound("account")
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	if a.LastSignInAt, err = parseNullTime(lastSignIn); err != nil {
		return Account{}, err
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return Account{}, err
	}
	return a, nil
}

// DeleteAccount removes the identity. Profile, categories, transactions and
// sessions cascade.
func (r *SQLiteRepository) DeleteAccount(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return rowsAffected(res, "account")
}

func (r *SQLiteRepository) RecordSignIn(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE accounts SET last_sign_in_at = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("record sign in: %w", err)
	}
	return rowsAffected(res, "account")
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, s Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expires_at, user_agent, client_ip) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.UserID, formatTime(s.ExpiresAt), s.UserAgent, s.ClientIP)
	if err != nil {
		return fmt.Errorf("create session: %w", translateError(err))
	}
	return nil
}

func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (Session, error) {
	var (
		s                    Session
		expiresAt, createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, expires_at, user_agent, client_ip, created_at FROM sessions WHERE id = ?`, id).
		Scan(&s.ID, &s.UserID, &expiresAt, &s.UserAgent, &s.ClientIP, &createdAt)
	if isNoRows(err) {
		return Session{}, notFound("session")
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	if s.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return Session{}, err
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return Session{}, err
	}
	return s, nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return rowsAffected(res, "session")
}

// DeleteUserSessions revokes every session of a user and returns how many were removed.
func (r *SQLiteRepository) DeleteUserSessions(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user sessions: %w", err)
	}
	return res.RowsAffected()
}

// DeleteExpiredSessions removes sessions that expired before now.
func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}
