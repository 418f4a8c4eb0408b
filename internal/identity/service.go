// Package identity is the built-in identity provider: it stores credentials,
// signs users in with bcrypt-checked passwords, and issues access tokens bound
// to revocable sessions.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"saldo/internal/core"
	applog "saldo/internal/log"
	"saldo/internal/storage"
)

const (
	ScopeLocal  LogoutScope = "local"
	ScopeGlobal LogoutScope = "global"

	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt input limit

	// dummyHash keeps sign-in timing uniform when the email is unknown.
	dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"
)

var (
	ErrMissingToken       = &core.Error{Kind: core.ErrUnauthenticated, Message: "missing bearer token"}
	ErrInvalidToken       = &core.Error{Kind: core.ErrUnauthenticated, Message: "invalid token"}
	ErrExpiredToken       = &core.Error{Kind: core.ErrUnauthenticated, Message: "token expired"}
	ErrSessionRevoked     = &core.Error{Kind: core.ErrUnauthenticated, Message: "session expired or revoked"}
	ErrInvalidCredentials = &core.Error{Kind: core.ErrUnauthenticated, Message: "invalid email or password"}
	ErrInvalidEmail       = &core.Error{Kind: core.ErrValidation, Message: "a valid email is required"}
	ErrWeakPassword       = &core.Error{Kind: core.ErrValidation, Message: "password must be between 8 and 72 characters"}
	ErrInvalidScope       = &core.Error{Kind: core.ErrValidation, Message: "scope must be one of: local, global"}
)

type LogoutScope string

// Store is the persistence the provider needs.
type Store interface {
	CreateAccount(ctx context.Context, a storage.Account) error
	GetAccount(ctx context.Context, id string) (storage.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (storage.Account, error)
	DeleteAccount(ctx context.Context, id string) error
	RecordSignIn(ctx context.Context, id string, at time.Time) error
	CreateSession(ctx context.Context, s storage.Session) error
	GetSession(ctx context.Context, id string) (storage.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteUserSessions(ctx context.Context, userID string) (int64, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Identity is an authenticated caller as seen by the provider.
type Identity struct {
	UserID       string     `json:"id"`
	Email        string     `json:"email"`
	SessionID    string     `json:"-"`
	LastSignInAt *time.Time `json:"last_sign_in_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Session is what a successful sign-in returns to the client.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        Identity  `json:"user"`
}

// ClientInfo describes where a sign-in came from.
type ClientInfo struct {
	UserAgent string
	ClientIP  string
}

type Options struct {
	TokenTTL   time.Duration
	BcryptCost int
}

type Service struct {
	store  Store
	tokens *TokenIssuer
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

func NewService(store Store, tokens *TokenIssuer, opts Options) *Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		store:  store,
		tokens: tokens,
		ttl:    opts.TokenTTL,
		cost:   opts.BcryptCost,
		now:    time.Now,
	}
}

// ParseLogoutScope maps an empty value to the local scope.
func ParseLogoutScope(s string) (LogoutScope, error) {
	switch LogoutScope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeLocal:
		return ScopeLocal, nil
	case ScopeGlobal:
		return ScopeGlobal, nil
	}
	return "", ErrInvalidScope
}

// NormalizeEmail validates an address and returns it lower-cased.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// Register creates credentials for a new user and returns the account.
func (s *Service) Register(ctx context.Context, email, password string) (storage.Account, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return storage.Account{}, err
	}
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return storage.Account{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return storage.Account{}, fmt.Errorf("hash password: %w", err)
	}

	account := storage.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return storage.Account{}, err
	}

	applog.FromContext(ctx).InfoContext(ctx, "Account registered", "user_id", account.ID)
	return account, nil
}

// DeleteAccount removes a user's credentials and everything owned by them.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	return s.store.DeleteAccount(ctx, userID)
}

// SignIn checks the password and opens a new session.
func (s *Service) SignIn(ctx context.Context, email, password string, client ClientInfo) (Session, error) {
	account, err := s.store.GetAccountByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("load account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	session := storage.Session{
		ID:        uuid.NewString(),
		UserID:    account.ID,
		ExpiresAt: now.Add(s.ttl),
		UserAgent: client.UserAgent,
		ClientIP:  client.ClientIP,
	}
	// The session row is written last so a failed sign-in leaves none behind.
	if err := s.store.RecordSignIn(ctx, account.ID, now); err != nil {
		return Session{}, fmt.Errorf("record sign-in: %w", err)
	}
	token, err := s.tokens.Issue(account.ID, session.ID, session.ExpiresAt)
	if err != nil {
		return Session{}, err
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}

	applog.FromContext(ctx).InfoContext(ctx, "User signed in", "user_id", account.ID, "session_id", session.ID)

	return Session{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.ttl.Seconds()),
		ExpiresAt:   session.ExpiresAt,
		User: Identity{
			UserID:       account.ID,
			Email:        account.Email,
			SessionID:    session.ID,
			LastSignInAt: &now,
			CreatedAt:    account.CreatedAt,
		},
	}, nil
}

// Authenticate resolves a bearer token to the identity behind a live session.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingToken
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return Identity{}, err
	}

	session, err := s.store.GetSession(ctx, claims.SessionID)
	if errors.Is(err, core.ErrNotFound) {
		return Identity{}, ErrSessionRevoked
	}
	if err != nil {
		return Identity{}, fmt.Errorf("load session: %w", err)
	}
	if session.UserID != claims.UserID || !session.ExpiresAt.After(s.now()) {
		return Identity{}, ErrSessionRevoked
	}

	account, err := s.store.GetAccount(ctx, claims.UserID)
	if errors.Is(err, core.ErrNotFound) {
		return Identity{}, ErrSessionRevoked
	}
	if err != nil {
		return Identity{}, fmt.Errorf("load account: %w", err)
	}

	return Identity{
		UserID:       account.ID,
		Email:        account.Email,
		SessionID:    session.ID,
		LastSignInAt: account.LastSignInAt,
		CreatedAt:    account.CreatedAt,
	}, nil
}

// SignOut revokes the caller's current session, or all of their sessions for
// the global scope. It returns the number of sessions revoked.
func (s *Service) SignOut(ctx context.Context, id Identity, scope LogoutScope) (int64, error) {
	switch scope {
	case ScopeGlobal:
		n, err := s.store.DeleteUserSessions(ctx, id.UserID)
		if err != nil {
			return 0, err
		}
		applog.FromContext(ctx).InfoContext(ctx, "User signed out everywhere", "user_id", id.UserID, "sessions", n)
		return n, nil
	case ScopeLocal, "":
		if err := s.store.DeleteSession(ctx, id.SessionID); err != nil {
			return 0, err
		}
		applog.FromContext(ctx).InfoContext(ctx, "User signed out", "user_id", id.UserID, "session_id", id.SessionID)
		return 1, nil
	}
	return 0, ErrInvalidScope
}

// SweepExpired deletes sessions past their expiry.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredSessions(ctx, s.now())
}

// ExtractBearerToken returns the token of an "Authorization: Bearer" header.
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrInvalidToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
