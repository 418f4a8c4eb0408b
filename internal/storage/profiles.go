package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"saldo/internal/core"
)

const profileColumns = `id, email, full_name, username, bio, phone, location, website, avatar_url,
	is_staff, is_active, is_verified, preferences, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteRepository) CreateProfile(ctx context.Context, p core.Profile) (core.Profile, error) {
	prefs, err := encodePreferences(p.Preferences)
	if err != nil {
		return core.Profile{}, err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, full_name, username, bio, phone, location, website, avatar_url,
			is_staff, is_active, is_verified, preferences)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, strings.ToLower(strings.TrimSpace(p.Email)), p.FullName, nullableString(p.Username),
		p.Bio, p.Phone, p.Location, p.Website, p.AvatarURL,
		boolToInt(p.IsStaff), boolToInt(p.IsActive), boolToInt(p.IsVerified), prefs)
	if err != nil {
		return core.Profile{}, fmt.Errorf("create profile: %w", translateError(err))
	}
	return r.GetProfile(ctx, p.ID)
}

func (r *SQLiteRepository) GetProfile(ctx context.Context, id string) (core.Profile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM users WHERE id = ?`, id)
	p, err := scanProfile(row)
	if isNoRows(err) {
		return core.Profile{}, notFound("profile")
	}
	if err != nil {
		return core.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) ListProfiles(ctx context.Context) ([]core.Profile, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	profiles := []core.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// UpdateProfile writes every mutable column of p.
func (r *SQLiteRepository) UpdateProfile(ctx context.Context, p core.Profile) (core.Profile, error) {
	prefs, err := encodePreferences(p.Preferences)
	if err != nil {
		return core.Profile{}, err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET full_name = ?, username = ?, bio = ?, phone = ?, location = ?, website = ?,
			avatar_url = ?, is_staff = ?, is_active = ?, is_verified = ?, preferences = ?
		WHERE id = ?`,
		p.FullName, nullableString(p.Username), p.Bio, p.Phone, p.Location, p.Website,
		p.AvatarURL, boolToInt(p.IsStaff), boolToInt(p.IsActive), boolToInt(p.IsVerified), prefs, p.ID)
	if err != nil {
		return core.Profile{}, fmt.Errorf("update profile: %w", translateError(err))
	}
	if err := rowsAffected(res, "profile"); err != nil {
		return core.Profile{}, err
	}
	return r.GetProfile(ctx, p.ID)
}

// SetStaff changes only the staff flag of a profile.
func (r *SQLiteRepository) SetStaff(ctx context.Context, id string, staff bool) (core.Profile, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET is_staff = ? WHERE id = ?`, boolToInt(staff), id)
	if err != nil {
		return core.Profile{}, fmt.Errorf("set staff: %w", err)
	}
	if err := rowsAffected(res, "profile"); err != nil {
		return core.Profile{}, err
	}
	return r.GetProfile(ctx, id)
}

func scanProfile(row rowScanner) (core.Profile, error) {
	var (
		p                           core.Profile
		username                    sql.NullString
		staff, active, verified     int
		prefs, createdAt, updatedAt string
	)
	if err := row.Scan(&p.ID, &p.Email, &p.FullName, &username, &p.Bio, &p.Phone, &p.Location,
		&p.Website, &p.AvatarURL, &staff, &active, &verified, &prefs, &createdAt, &updatedAt); err != nil {
		return core.Profile{}, err
	}
	if username.Valid {
		u := username.String
		p.Username = &u
	}
	p.IsStaff, p.IsActive, p.IsVerified = staff == 1, active == 1, verified == 1
	p.Preferences = map[string]any{}
	if err := json.Unmarshal([]byte(prefs), &p.Preferences); err != nil {
		return core.Profile{}, fmt.Errorf("decode preferences: %w", err)
	}
	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Profile{}, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.Profile{}, err
	}
	return p, nil
}

func encodePreferences(prefs map[string]any) (string, error) {
	if prefs == nil {
		return "{}", nil
	}
	b, err := json.Marshal(prefs)
	if err != nil {
		return "", core.Errorf(core.ErrValidation, "preferences must be a JSON object")
	}
	return string(b), nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
