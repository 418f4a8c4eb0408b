package access

import (
	"context"
	"errors"
	"time"

	"saldo/internal/core"
)

// Accessor is the data handle of one request. Reads are filtered by the
// scope's read owner; category and transaction writes always match the caller.
type Accessor struct {
	store Store
	scope Scope
	now   func() time.Time
}

func (a *Accessor) Scope() Scope {
	return a.scope
}

func (a *Accessor) ListCategories(ctx context.Context, typ core.TransactionType) ([]core.Category, error) {
	if typ != "" && !typ.IsValid() {
		return nil, core.ErrInvalidType
	}
	return a.store.ListCategories(ctx, core.CategoryFilter{
		OwnerID:   a.scope.ReadOwner(),
		Type:      typ,
		WithOwner: a.scope.IsStaff(),
	})
}

func (a *Accessor) GetCategory(ctx context.Context, id string) (core.Category, error) {
	return a.store.GetCategory(ctx, id, a.scope.ReadOwner(), a.scope.IsStaff())
}

// CreateCategory stores c for the caller, whatever owner c carries.
func (a *Accessor) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c = core.NewCategory(a.scope.WriteOwner(), c.Name, c.Type, c.Color, c.Icon)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	return a.store.CreateCategory(ctx, c)
}

func (a *Accessor) UpdateCategory(ctx context.Context, id string, patch core.CategoryPatch) (core.Category, error) {
	existing, err := a.store.GetCategory(ctx, id, a.scope.WriteOwner(), false)
	if err != nil {
		return core.Category{}, err
	}
	updated, err := patch.Apply(existing)
	if err != nil {
		return core.Category{}, err
	}
	return a.store.UpdateCategory(ctx, updated)
}

// DeleteCategory removes an unused category. Categories still referenced by
// transactions are kept and a conflict is returned.
func (a *Accessor) DeleteCategory(ctx context.Context, id string) error {
	if _, err := a.store.GetCategory(ctx, id, a.scope.WriteOwner(), false); err != nil {
		return err
	}
	n, err := a.store.CountCategoryTransactions(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrCategoryInUse
	}
	return a.store.DeleteCategory(ctx, id, a.scope.WriteOwner())
}

func (a *Accessor) ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, int, error) {
	f.OwnerID = a.scope.ReadOwner()
	f.WithOwner = a.scope.IsStaff()
	if err := f.Validate(); err != nil {
		return nil, 0, err
	}
	return a.store.ListTransactions(ctx, f)
}

// OwnTransactions returns every transaction of the caller in the date range,
// regardless of scope.
func (a *Accessor) OwnTransactions(ctx context.Context, start, end *core.Date) ([]core.Transaction, error) {
	f := core.TransactionFilter{OwnerID: a.scope.WriteOwner(), StartDate: start, EndDate: end}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	txs, _, err := a.store.ListTransactions(ctx, f)
	return txs, err
}

func (a *Accessor) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return a.store.GetTransaction(ctx, id, a.scope.ReadOwner(), a.scope.IsStaff())
}

// CreateTransaction stores t for the caller. A paid transaction is stamped
// with the current time.
func (a *Accessor) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.ID = ""
	t.UserID = a.scope.WriteOwner()
	t.Category, t.Owner = nil, nil
	t.PaidAt = nil
	if t.IsPaid {
		now := a.now().UTC()
		t.PaidAt = &now
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := a.checkCategory(ctx, t.CategoryID); err != nil {
		return core.Transaction{}, err
	}
	return a.store.CreateTransaction(ctx, t)
}

func (a *Accessor) UpdateTransaction(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error) {
	existing, err := a.store.GetTransaction(ctx, id, a.scope.WriteOwner(), false)
	if err != nil {
		return core.Transaction{}, err
	}
	updated, err := patch.Apply(existing, a.now())
	if err != nil {
		return core.Transaction{}, err
	}
	if !patch.ClearCategory && patch.CategoryID != nil {
		if err := a.checkCategory(ctx, updated.CategoryID); err != nil {
			return core.Transaction{}, err
		}
	}
	return a.store.UpdateTransaction(ctx, updated)
}

func (a *Accessor) DeleteTransaction(ctx context.Context, id string) error {
	return a.store.DeleteTransaction(ctx, id, a.scope.WriteOwner())
}

// MarkPaid sets the transaction paid. It conflicts when it already is.
func (a *Accessor) MarkPaid(ctx context.Context, id string) (core.Transaction, error) {
	return a.setPaid(ctx, id, true)
}

// MarkUnpaid clears the paid state. It conflicts when the transaction is unpaid.
func (a *Accessor) MarkUnpaid(ctx context.Context, id string) (core.Transaction, error) {
	return a.setPaid(ctx, id, false)
}

func (a *Accessor) setPaid(ctx context.Context, id string, paid bool) (core.Transaction, error) {
	owner := a.scope.WriteOwner()
	changed, err := a.store.SetPaid(ctx, id, owner, paid, a.now())
	if err != nil {
		return core.Transaction{}, err
	}
	if !changed {
		// Either missing for this owner or already in the requested state.
		if _, err := a.store.GetTransaction(ctx, id, owner, false); err != nil {
			return core.Transaction{}, err
		}
		if paid {
			return core.Transaction{}, ErrAlreadyPaid
		}
		return core.Transaction{}, ErrAlreadyUnpaid
	}
	return a.store.GetTransaction(ctx, id, owner, false)
}

// TogglePaid flips the paid state unconditionally.
func (a *Accessor) TogglePaid(ctx context.Context, id string) (core.Transaction, error) {
	owner := a.scope.WriteOwner()
	if err := a.store.TogglePaid(ctx, id, owner, a.now()); err != nil {
		return core.Transaction{}, err
	}
	return a.store.GetTransaction(ctx, id, owner, false)
}

func (a *Accessor) checkCategory(ctx context.Context, categoryID *string) error {
	if categoryID == nil {
		return nil
	}
	_, err := a.store.GetCategory(ctx, *categoryID, a.scope.WriteOwner(), false)
	if errors.Is(err, core.ErrNotFound) {
		return ErrForeignCategory
	}
	return err
}

// GetProfile returns the caller's own profile, or any profile for staff.
func (a *Accessor) GetProfile(ctx context.Context, id string) (core.Profile, error) {
	if id != a.scope.CallerID && !a.scope.IsStaff() {
		return core.Profile{}, core.Errorf(core.ErrNotFound, "profile not found")
	}
	return a.store.GetProfile(ctx, id)
}

// ListProfiles returns every profile for staff and only the caller's otherwise.
func (a *Accessor) ListProfiles(ctx context.Context) ([]core.Profile, error) {
	if a.scope.IsStaff() {
		return a.store.ListProfiles(ctx)
	}
	p, err := a.store.GetProfile(ctx, a.scope.CallerID)
	if err != nil {
		return nil, err
	}
	return []core.Profile{p}, nil
}

// UpdateProfile edits a profile. Owners edit only their own and cannot touch
// the privileged flags; staff may edit any profile but not their own staff flag.
func (a *Accessor) UpdateProfile(ctx context.Context, id string, patch core.ProfilePatch) (core.Profile, error) {
	if id == "" {
		id = a.scope.CallerID
	}
	if id != a.scope.CallerID && !a.scope.IsStaff() {
		return core.Profile{}, ErrNotYourProfile
	}
	if !a.scope.IsStaff() {
		patch = patch.WithoutPrivileged()
	}
	if err := patch.Validate(); err != nil {
		return core.Profile{}, err
	}
	if patch.IsEmpty() {
		return core.Profile{}, core.ErrEmptyPatch
	}

	existing, err := a.store.GetProfile(ctx, id)
	if err != nil {
		return core.Profile{}, err
	}
	if id == a.scope.CallerID && patch.IsStaff != nil && *patch.IsStaff != existing.IsStaff {
		return core.Profile{}, ErrSelfStaffChange
	}
	return a.store.UpdateProfile(ctx, patch.Apply(existing))
}

// ChangeStaff grants or revokes staff on another profile. Staff only.
func (a *Accessor) ChangeStaff(ctx context.Context, targetID string, staff bool) (core.Profile, error) {
	if !a.scope.IsStaff() {
		return core.Profile{}, ErrStaffOnly
	}
	if targetID == "" {
		return core.Profile{}, core.Errorf(core.ErrValidation, "user_id is required")
	}
	if targetID == a.scope.CallerID {
		return core.Profile{}, ErrSelfStaffChange
	}
	return a.store.SetStaff(ctx, targetID, staff)
}
