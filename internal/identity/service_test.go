package identity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"saldo/internal/core"
	"saldo/internal/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setupService(t *testing.T) (*Service, *storage.SQLiteRepository) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	svc := NewService(repo, NewTokenIssuer([]byte(testSecret)), Options{
		TokenTTL:   time.Hour,
		BcryptCost: bcrypt.MinCost,
	})
	return svc, repo
}

func TestRegister(t *testing.T) {
	svc, repo := setupService(t)
	ctx := context.Background()

	account, err := svc.Register(ctx, "  Ada@Example.com ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", account.Email)
	assert.NotEqual(t, "correct horse", account.PasswordHash)

	stored, err := repo.GetAccountByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, account.ID, stored.ID)

	_, err = svc.Register(ctx, "ada@example.com", "another password")
	assert.True(t, errors.Is(err, core.ErrValidation), "duplicate email: %v", err)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"missing email", "", "long enough", ErrInvalidEmail},
		{"display name", "Ada <ada@example.com>", "long enough", ErrInvalidEmail},
		{"no at sign", "ada.example.com", "long enough", ErrInvalidEmail},
		{"short password", "bob@example.com", "short", ErrWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.email, tt.password)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSignInAndAuthenticate(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	account, err := svc.Register(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)

	session, err := svc.SignIn(ctx, "ADA@example.com", "correct horse", ClientInfo{UserAgent: "test", ClientIP: "127.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "bearer", session.TokenType)
	assert.Equal(t, int64(3600), session.ExpiresIn)
	assert.Equal(t, account.ID, session.User.UserID)
	require.NotNil(t, session.User.LastSignInAt)

	id, err := svc.Authenticate(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, account.ID, id.UserID)
	assert.Equal(t, "ada@example.com", id.Email)
	assert.Equal(t, session.User.SessionID, id.SessionID)
	assert.NotNil(t, id.LastSignInAt)

	_, err = svc.SignIn(ctx, "ada@example.com", "wrong password", ClientInfo{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.SignIn(ctx, "nobody@example.com", "correct horse", ClientInfo{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.True(t, errors.Is(err, core.ErrUnauthenticated))
}

type signInFailingStore struct {
	*storage.SQLiteRepository
}

func (signInFailingStore) RecordSignIn(context.Context, string, time.Time) error {
	return errors.New("disk I/O error")
}

func TestSignInFailureLeavesNoSession(t *testing.T) {
	_, repo := setupService(t)
	ctx := context.Background()

	svc := NewService(signInFailingStore{repo}, NewTokenIssuer([]byte(testSecret)), Options{
		TokenTTL:   time.Hour,
		BcryptCost: bcrypt.MinCost,
	})
	account, err := svc.Register(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)

	_, err = svc.SignIn(ctx, "ada@example.com", "correct horse", ClientInfo{})
	require.Error(t, err)
	assert.False(t, core.IsKnown(err))

	n, err := repo.DeleteUserSessions(ctx, account.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "failed sign-in must not leave a session behind")
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = svc.Authenticate(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewTokenIssuer([]byte("ffffffffffffffffffffffffffffffff"))
	forged, err := other.Issue("user", "session", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := svc.tokens.Issue("user", "session", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	unknownSession, err := svc.tokens.Issue("user", "session", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, unknownSession)
	assert.ErrorIs(t, err, ErrSessionRevoked)
}

func TestSignOut(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)

	first, err := svc.SignIn(ctx, "ada@example.com", "correct horse", ClientInfo{})
	require.NoError(t, err)
	second, err := svc.SignIn(ctx, "ada@example.com", "correct horse", ClientInfo{})
	require.NoError(t, err)

	id, err := svc.Authenticate(ctx, first.AccessToken)
	require.NoError(t, err)
	n, err := svc.SignOut(ctx, id, ScopeLocal)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = svc.Authenticate(ctx, first.AccessToken)
	assert.ErrorIs(t, err, ErrSessionRevoked)
	_, err = svc.Authenticate(ctx, second.AccessToken)
	require.NoError(t, err)

	third, err := svc.SignIn(ctx, "ada@example.com", "correct horse", ClientInfo{})
	require.NoError(t, err)
	id, err = svc.Authenticate(ctx, third.AccessToken)
	require.NoError(t, err)
	n, err = svc.SignOut(ctx, id, ScopeGlobal)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = svc.Authenticate(ctx, second.AccessToken)
	assert.ErrorIs(t, err, ErrSessionRevoked)
}

func TestSweepExpired(t *testing.T) {
	svc, repo := setupService(t)
	ctx := context.Background()

	account, err := svc.Register(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)
	require.NoError(t, repo.CreateSession(ctx, storage.Session{
		ID:        "old",
		UserID:    account.ID,
		ExpiresAt: time.Now().Add(-time.Hour),
	}))
	live, err := svc.SignIn(ctx, "ada@example.com", "correct horse", ClientInfo{})
	require.NoError(t, err)

	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = svc.Authenticate(ctx, live.AccessToken)
	assert.NoError(t, err)
}

func TestParseLogoutScope(t *testing.T) {
	tests := []struct {
		input   string
		want    LogoutScope
		wantErr bool
	}{
		{"", ScopeLocal, false},
		{"local", ScopeLocal, false},
		{"GLOBAL", ScopeGlobal, false},
		{"others", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogoutScope(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidScope)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr error
	}{
		{"Bearer abc.def", "abc.def", nil},
		{"bearer abc", "abc", nil},
		{"", "", ErrMissingToken},
		{"Bearer ", "", ErrMissingToken},
		{"Basic dXNlcjpwYXNz", "", ErrInvalidToken},
		{"abc", "", ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, err := ExtractBearerToken(tt.header)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
