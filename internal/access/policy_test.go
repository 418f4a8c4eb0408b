package access

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saldo/internal/core"
	"saldo/internal/storage"
)

type fixture struct {
	repo   *storage.SQLiteRepository
	policy *Policy
}

func setupPolicy(t *testing.T) *fixture {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "access.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return &fixture{repo: repo, policy: NewPolicy(repo)}
}

// user registers an account and profile and returns the accessor of its scope.
func (f *fixture) user(t *testing.T, email string, staff bool) (*Accessor, core.Profile) {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()
	require.NoError(t, f.repo.CreateAccount(ctx, storage.Account{ID: id, Email: email, PasswordHash: "x"}))

	var caller *Scope
	patch := core.ProfilePatch{FullName: ptr("User " + email)}
	if staff {
		caller = &Scope{Kind: StaffScope}
		patch.IsStaff = ptr(true)
	}
	_, err := f.policy.CreateProfile(ctx, caller, id, email, patch)
	require.NoError(t, err)

	scope, profile, err := f.policy.Resolve(ctx, id)
	require.NoError(t, err)
	return f.policy.For(scope), profile
}

func ptr[T any](v T) *T {
	return &v
}

func expense(description string, cents int64) core.Transaction {
	return core.Transaction{
		Type:        core.Expense,
		Amount:      core.NewMoney(cents),
		Description: description,
		Date:        core.NewDate(2025, 3, 1),
	}
}

func TestResolve(t *testing.T) {
	f := setupPolicy(t)
	ctx := context.Background()

	_, _, err := f.policy.Resolve(ctx, uuid.NewString())
	assert.ErrorIs(t, err, core.ErrUnauthenticated)

	owner, profile := f.user(t, "ada@example.com", false)
	assert.Equal(t, OwnerScope, owner.Scope().Kind)
	assert.Equal(t, profile.ID, owner.Scope().CallerID)

	staff, _ := f.user(t, "root@example.com", true)
	assert.Equal(t, StaffScope, staff.Scope().Kind)

	profile.IsActive = false
	_, err = f.repo.UpdateProfile(ctx, profile)
	require.NoError(t, err)
	_, _, err = f.policy.Resolve(ctx, profile.ID)
	assert.ErrorIs(t, err, core.ErrForbidden)
}

func TestResolveReadsStaffFlagFresh(t *testing.T) {
	f := setupPolicy(t)
	ctx := context.Background()

	_, profile := f.user(t, "ada@example.com", false)
	_, err := f.repo.SetStaff(ctx, profile.ID, true)
	require.NoError(t, err)

	scope, _, err := f.policy.Resolve(ctx, profile.ID)
	require.NoError(t, err)
	assert.True(t, scope.IsStaff())
}

func TestCreateProfileStripsPrivilegesForNonStaff(t *testing.T) {
	f := setupPolicy(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		caller    *Scope
		wantStaff bool
	}{
		{"anonymous", nil, false},
		{"owner", &Scope{Kind: OwnerScope, CallerID: "someone"}, false},
		{"staff", &Scope{Kind: StaffScope, CallerID: "admin"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := uuid.NewString()
			email := id + "@example.com"
			require.NoError(t, f.repo.CreateAccount(ctx, storage.Account{ID: id, Email: email, PasswordHash: "x"}))

			p, err := f.policy.CreateProfile(ctx, tt.caller, id, email, core.ProfilePatch{
				IsStaff:    ptr(true),
				IsVerified: ptr(true),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantStaff, p.IsStaff)
			assert.Equal(t, tt.wantStaff, p.IsVerified)
			assert.True(t, p.IsActive)
		})
	}
}

func TestOwnerSeesOnlyOwnRows(t *testing.T) {
	f := setupPolicy(t)
	ctx := context.Background()

	ada, _ := f.user(t, "ada@example.com", false)
	bob, _ := f.user(t, "bob@example.com", false)

	adaCat, err := ada.CreateCategory(ctx, core.Category{Name: "Food", Type: core.Expense})
	require.NoError(t, err)
	_, err = bob.CreateCategory(ctx, core.Category{Name: "Rent", Type: core.Expense})
	require.NoError(t, err)

	adaTx, err := ada.CreateTransaction(ctx, expense("groceries", 1250))
	require.NoError(t, err)
	_, err = bob.CreateTransaction(ctx, expense("rent", 90000))
	require.NoError(t, err)

	cats, err := ada.ListCategories(ctx, "")
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, adaCat.ID, cats[0].ID)
	assert.Nil(t, cats[0].Owner)

	txs, total, err := ada.ListTransactions(ctx, core.TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, txs, 1)
	assert.Equal(t, adaTx.ID, txs[0].ID)
	assert.Nil(t, txs[0].Owner)

	_, err = bob.GetCategory(ctx, adaCat.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = bob.GetTransaction(ctx, adaTx.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStaffReadsAllWithOwnerButWritesOwnOnly(t *testing.T) {
	f := setupPolicy(t)
	ctx := context.Background()

	ada, adaProfile := f.user(t, "ada@example.com", false)
	staff, staffProfile := f.user(t, "root@example.com", true)

	adaCat, err := ada.CreateCategory(ctx, core.Category{Name: "Food", Type: core.Expense})
	require.NoError(t, err)
	adaTx, err := ada.CreateTransaction(ctx, expense("groceries", 1250))
	require.NoError(t, err)
	_, err = staff.CreateCategory(ctx, core.Category{Name: "Salary", Type: core.Income})
	require.NoError(t, err)

	cats, err := staff.ListCategories(ctx, "")
	require.NoError(t, err)
	require.Len(t, cats, 2)
	for _, c := range cats {
		require.NotNil(t, c.Owner)
		assert.Equal(t, c.UserID, c.Owner.ID)
	}

	tx, err := staff.GetTransaction(ctx, adaTx.ID)
	require.NoError(t, err)
	require.NotNil(t, tx.Owner)
	assert.Equal(t, adaProfile.ID, tx.Owner.ID)
	assert.Equal(t, "ada@example.com", tx.Owner.Email)
	assert.Equal(t, adaProfile.FullName, tx.Owner.FullName)
	assert.False(t, tx.Owner.IsStaff)

	_, err = staff.UpdateCategory(ctx, adaCat.ID, core.CategoryPatch{Name: ptr("Mine now")})
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, staff.DeleteCategory(ctx, adaCat.ID), core.ErrNotFound)
	_, err = staff.UpdateTransaction(ctx, adaTx.ID, core.TransactionPatch{Description: ptr("changed")})
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, staff.DeleteTransaction(ctx, adaTx.ID), core.ErrNotFound)
	_, err = staff.MarkPaid(ctx, adaTx.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = staff.TogglePaid(ctx, adaTx.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	// Staff transactions referencing another user's category are rejected too.
	foreign := expense("borrowed", 100)
	foreign.CategoryID = &adaCat.ID
	_, err = staff.CreateTransaction(ctx, foreign)
	assert.ErrorIs(t, err, core.ErrInvalidReference)

	own, err := staff.CreateTransaction(ctx, expense("coffee", 300))
	require.NoError(t, err)
	assert.Equal(t, staffProfile.ID, own.UserID)
}

func TestCreateTransactionWithForeignCategory(t *testing.T) {
	f := setupPolicy(t)
	ctx := context.Background()

	ada, _ := f.user(t, "ada@example.com", false)
	bob, _ := f.user(t, "bob@example.com", false)

	bobCat, err := bob.CreateCategory(ctx, core.Category{Name: "Rent", Type: core.Expense})
	require.NoError(t, err)

	tx := expense("sneaky", 100)
	tx.CategoryID = &bobCat.ID
	_, err = ada.CreateTransaction(ctx, tx)
	assert.ErrorIs(t, err, core.ErrInvalidReference)

	tx.CategoryID = ptr(uuid.NewString())
	_, err = ada.CreateTransaction(ctx, tx)
	assert.ErrorIs(t, err, core.ErrInvalidReference)

	tx.CategoryID = nil
	created, err := ada.CreateTransaction(ctx, tx)
	require.NoError(t, err)

	_, err = ada.UpdateTransaction(ctx, created.ID, core.TransactionPatch{CategoryID: &bobCat.ID})
	assert.ErrorIs(t, err, core.ErrInvalidReference)
}

func TestCreateTransactionPaidStamp(t *testing.T) {
	f := setupPolicy(t)
	ctx := context.Background()
	ada, _ := f.user(t, "ada@example.com", false)

	unpaid, err := ada.CreateTransaction(ctx, expense("later", 100))
	require.NoError(t, err)
	assert.False(t, unpaid.IsPaid)
	assert.Nil(t, unpaid.PaidAt)

	tx := expense("now", 100)
	tx.IsPaid = true
	paid, err := ada.CreateTransaction(ctx, tx)
	require.NoError(t, err)
	assert.True(t, paid.IsPaid)
	assert.NotNil(t, paid.PaidAt)

	updated, err := ada.UpdateTransaction(ctx, paid.ID, core.TransactionPatch{IsPaid: ptr(false)})
	require.NoError(t, err)
	assert.False(t, updated.IsPaid)
	assert.Nil(t, updated.PaidAt)

	_, err = ada.CreateTransaction(ctx, expense("zero", 0))
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = ada.UpdateTransaction(ctx, updated.ID, core.TransactionPatch{Amount: ptr(core.NewMoney(-5))})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestPaidTransitions(t *testing.T) {
	f := setupPolicy(t)
	ctx := context.Background()
	ada, _ := f.user(t, "ada@example.com", false)

	tx, err := ada.CreateTransaction(ctx, expense("bill", 5000))
	require.NoError(t, err)

	_, err = ada.MarkUnpaid(ctx, tx.ID)
	assert.ErrorIs(t, err, ErrAlreadyUnpaid)

	paid, err := ada.MarkPaid(ctx, tx.ID)
	require.NoError(t, err)
	require.NotNil(t, paid.PaidAt)

	_, err = ada.MarkPaid(ctx, tx.ID)
	assert.ErrorIs(t, err, core.ErrConflict)
	again, err := ada.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, paid.PaidAt, again.PaidAt)

	toggled, err := ada.TogglePaid(ctx, tx.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsPaid)
	assert.Nil(t, toggled.PaidAt)

	toggled, err = ada.TogglePaid(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, toggled.IsPaid)
	assert.NotNil(t, toggled.PaidAt)

	_, err = ada.MarkPaid(ctx, uuid.NewString())
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestDeleteCategoryInUse(t *testing.T) {
	f := setupPolicy(t)
	ctx := context.Background()
	ada, _ := f.user(t, "ada@example.com", false)

	cat, err := ada.CreateCategory(ctx, core.Category{Name: "Food", Type: core.Expense})
	require.NoError(t, err)
	tx := expense("groceries", 100)
	tx.CategoryID = &cat.ID
	created, err := ada.CreateTransaction(ctx, tx)
	require.NoError(t, err)

	assert.ErrorIs(t, ada.DeleteCategory(ctx, cat.ID), core.ErrConflict)

	_, err = ada.UpdateTransaction(ctx, created.ID, core.TransactionPatch{ClearCategory: true})
	require.NoError(t, err)
	require.NoError(t, ada.DeleteCategory(ctx, cat.ID))

	_, err = ada.GetCategory(ctx, cat.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestOwnTransactionsIgnoresStaffScope(t *testing.T) {
	f := setupPolicy(t)
	ctx := context.Background()

	ada, _ := f.user(t, "ada@example.com", false)
	staff, _ := f.user(t, "root@example.com", true)

	_, err := ada.CreateTransaction(ctx, expense("ada", 100))
	require.NoError(t, err)
	_, err = staff.CreateTransaction(ctx, expense("staff", 200))
	require.NoError(t, err)

	txs, err := staff.OwnTransactions(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "staff", txs[0].Description)
}

func TestProfileAccess(t *testing.T) {
	f := setupPolicy(t)
	ctx := context.Background()

	ada, adaProfile := f.user(t, "ada@example.com", false)
	_, bobProfile := f.user(t, "bob@example.com", false)
	staff, staffProfile := f.user(t, "root@example.com", true)

	_, err := ada.GetProfile(ctx, bobProfile.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	list, err := ada.ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, adaProfile.ID, list[0].ID)

	list, err = staff.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	_, err = ada.UpdateProfile(ctx, bobProfile.ID, core.ProfilePatch{Bio: ptr("hacked")})
	assert.ErrorIs(t, err, core.ErrForbidden)

	updated, err := ada.UpdateProfile(ctx, "", core.ProfilePatch{Bio: ptr(" hello "), IsStaff: ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, "hello", updated.Bio)
	assert.False(t, updated.IsStaff)

	_, err = ada.UpdateProfile(ctx, "", core.ProfilePatch{IsStaff: ptr(true)})
	assert.ErrorIs(t, err, core.ErrEmptyPatch)

	edited, err := staff.UpdateProfile(ctx, bobProfile.ID, core.ProfilePatch{IsVerified: ptr(true)})
	require.NoError(t, err)
	assert.True(t, edited.IsVerified)

	_, err = staff.UpdateProfile(ctx, staffProfile.ID, core.ProfilePatch{IsStaff: ptr(false)})
	assert.ErrorIs(t, err, ErrSelfStaffChange)
}

func TestChangeStaff(t *testing.T) {
	f := setupPolicy(t)
	ctx := context.Background()

	ada, adaProfile := f.user(t, "ada@example.com", false)
	staff, staffProfile := f.user(t, "root@example.com", true)

	_, err := ada.ChangeStaff(ctx, staffProfile.ID, false)
	assert.ErrorIs(t, err, core.ErrForbidden)

	_, err = staff.ChangeStaff(ctx, staffProfile.ID, false)
	assert.ErrorIs(t, err, ErrSelfStaffChange)

	_, err = staff.ChangeStaff(ctx, uuid.NewString(), true)
	assert.ErrorIs(t, err, core.ErrNotFound)

	promoted, err := staff.ChangeStaff(ctx, adaProfile.ID, true)
	require.NoError(t, err)
	assert.True(t, promoted.IsStaff)

	// The old accessor keeps its scope; a fresh resolve picks up the change.
	scope, _, err := f.policy.Resolve(ctx, adaProfile.ID)
	require.NoError(t, err)
	assert.Equal(t, StaffScope, scope.Kind)
	assert.Equal(t, OwnerScope, ada.Scope().Kind)
}
