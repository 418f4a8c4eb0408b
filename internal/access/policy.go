package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"saldo/internal/core"
)

var (
	ErrNoProfile       = &core.Error{Kind: core.ErrUnauthenticated, Message: "profile not found"}
	ErrInactive        = &core.Error{Kind: core.ErrForbidden, Message: "account is disabled"}
	ErrStaffOnly       = &core.Error{Kind: core.ErrForbidden, Message: "staff privileges required"}
	ErrNotYourProfile  = &core.Error{Kind: core.ErrForbidden, Message: "cannot modify another user's profile"}
	ErrSelfStaffChange = &core.Error{Kind: core.ErrValidation, Message: "cannot change your own staff status"}
	ErrForeignCategory = &core.Error{Kind: core.ErrInvalidReference, Message: "category does not exist"}
	ErrCategoryInUse   = &core.Error{Kind: core.ErrConflict, Message: "category is used by existing transactions"}
	ErrAlreadyPaid     = &core.Error{Kind: core.ErrConflict, Message: "transaction is already paid"}
	ErrAlreadyUnpaid   = &core.Error{Kind: core.ErrConflict, Message: "transaction is already unpaid"}
)

// Store is the unrestricted data layer. Empty owner ids match every owner.
type Store interface {
	CreateProfile(ctx context.Context, p core.Profile) (core.Profile, error)
	GetProfile(ctx context.Context, id string) (core.Profile, error)
	ListProfiles(ctx context.Context) ([]core.Profile, error)
	UpdateProfile(ctx context.Context, p core.Profile) (core.Profile, error)
	SetStaff(ctx context.Context, id string, staff bool) (core.Profile, error)

	ListCategories(ctx context.Context, f core.CategoryFilter) ([]core.Category, error)
	GetCategory(ctx context.Context, id, ownerID string, withOwner bool) (core.Category, error)
	CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
	UpdateCategory(ctx context.Context, c core.Category) (core.Category, error)
	DeleteCategory(ctx context.Context, id, ownerID string) error
	CountCategoryTransactions(ctx context.Context, id string) (int, error)

	ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, int, error)
	GetTransaction(ctx context.Context, id, ownerID string, withOwner bool) (core.Transaction, error)
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id, ownerID string) error
	SetPaid(ctx context.Context, id, ownerID string, paid bool, at time.Time) (bool, error)
	TogglePaid(ctx context.Context, id, ownerID string, at time.Time) error
}

// Policy owns the elevated store and hands out scoped accessors.
type Policy struct {
	store Store
	now   func() time.Time
}

func NewPolicy(store Store) *Policy {
	return &Policy{store: store, now: time.Now}
}

// Resolve reads the caller's profile and returns the scope it grants. The
// profile is read on every call so staff changes apply to the next request.
func (p *Policy) Resolve(ctx context.Context, userID string) (Scope, core.Profile, error) {
	profile, err := p.store.GetProfile(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return Scope{}, core.Profile{}, ErrNoProfile
	}
	if err != nil {
		return Scope{}, core.Profile{}, fmt.Errorf("resolve caller: %w", err)
	}
	if !profile.IsActive {
		return Scope{}, core.Profile{}, ErrInactive
	}
	return ScopeFor(profile), profile, nil
}

// For returns an accessor bound to scope.
func (p *Policy) For(scope Scope) *Accessor {
	return &Accessor{store: p.store, scope: scope, now: p.now}
}

// CreateProfile creates the profile of a newly registered identity. Callers
// without a staff scope, including anonymous ones, cannot set the staff,
// active or verified flags.
func (p *Policy) CreateProfile(ctx context.Context, caller *Scope, id, email string, patch core.ProfilePatch) (core.Profile, error) {
	if caller == nil || !caller.IsStaff() {
		patch = patch.WithoutPrivileged()
	}
	if err := patch.Validate(); err != nil {
		return core.Profile{}, err
	}
	profile := patch.Apply(core.Profile{
		ID:          id,
		Email:       email,
		IsActive:    true,
		Preferences: map[string]any{},
	})
	return p.store.CreateProfile(ctx, profile)
}
