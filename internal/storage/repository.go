package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"saldo/internal/core"

	_ "modernc.org/sqlite"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

// SQLiteRepository is the elevated data accessor: it applies only the owner
// filters its callers pass in.
type SQLiteRepository struct {
	db  *sql.DB
	dsn string
}

// DSN returns the connection string used for dbPath, enabling foreign keys
// and WAL on every pooled connection.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("SQLite repository ready", "path", dbPath)

	return &SQLiteRepository{db: db, dsn: dsn}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks that the database answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// MigrationVersion reports the schema version of this database.
func (r *SQLiteRepository) MigrationVersion() (uint, bool, error) {
	return MigrationVersion(r.dsn)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func notFound(entity string) error {
	return core.Errorf(core.ErrNotFound, "%s not found", entity)
}

// translateError maps constraint failures to validation errors carrying the
// store's message. Other errors pass through unchanged.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case isUniqueConstraintError(err):
		return core.Errorf(core.ErrValidation, "%s already in use", constraintColumn(msg, "UNIQUE constraint failed: "))
	case isForeignKeyError(err):
		return core.Errorf(core.ErrValidation, "referenced record does not exist")
	case strings.Contains(msg, "CHECK constraint failed"):
		return core.Errorf(core.ErrValidation, "%s", msg[strings.Index(msg, "CHECK constraint failed"):])
	}
	return err
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// constraintColumn extracts "email" from "...UNIQUE constraint failed: users.email (2067)".
func constraintColumn(msg, marker string) string {
	i := strings.Index(msg, marker)
	if i < 0 {
		return "value"
	}
	col := msg[i+len(marker):]
	if j := strings.IndexAny(col, " ,("); j >= 0 {
		col = col[:j]
	}
	if k := strings.LastIndex(col, "."); k >= 0 {
		col = col[k+1:]
	}
	if col == "" {
		return "value"
	}
	return col
}

func rowsAffected(res sql.Result, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound(entity)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
