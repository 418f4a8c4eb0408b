package services

import (
	"context"
	"fmt"

	"saldo/internal/access"
	"saldo/internal/amqp"
	"saldo/internal/core"
	applog "saldo/internal/log"
	"saldo/internal/storage"
)

// Registrar creates and removes identities.
type Registrar interface {
	Register(ctx context.Context, email, password string) (storage.Account, error)
	DeleteAccount(ctx context.Context, userID string) error
}

// ProfileService manages profiles: registration of new identities and
// reads and edits through a scoped accessor.
type ProfileService struct {
	notifier
	identity Registrar
	policy   *access.Policy
}

func NewProfileService(identity Registrar, policy *access.Policy, events Publisher) *ProfileService {
	return &ProfileService{
		notifier: notifier{events: events},
		identity: identity,
		policy:   policy,
	}
}

// Registration is a request to create a user.
type Registration struct {
	Email    string
	Password string
	Profile  core.ProfilePatch
}

// Register creates an identity and its profile. caller is nil for anonymous
// self-registration. When the profile cannot be stored the identity is
// removed again.
func (s *ProfileService) Register(ctx context.Context, caller *access.Scope, r Registration) (core.Profile, error) {
	account, err := s.identity.Register(ctx, r.Email, r.Password)
	if err != nil {
		return core.Profile{}, fmt.Errorf("register identity: %w", err)
	}

	profile, err := s.policy.CreateProfile(ctx, caller, account.ID, account.Email, r.Profile)
	if err != nil {
		if delErr := s.identity.DeleteAccount(ctx, account.ID); delErr != nil {
			applog.FromContext(ctx).ErrorContext(ctx, "Failed to roll back identity after profile error",
				"user_id", account.ID,
				"error", delErr)
		}
		return core.Profile{}, fmt.Errorf("create profile: %w", err)
	}

	actor := profile.ID
	if caller != nil {
		actor = caller.CallerID
	}
	applog.FromContext(ctx).InfoContext(ctx, "User registered", "user_id", profile.ID, "is_staff", profile.IsStaff)
	s.publish(ctx, amqp.UserRegistered, profile.ID, profile.ID, actor)
	return profile, nil
}

func (s *ProfileService) Get(ctx context.Context, acc *access.Accessor, id string) (core.Profile, error) {
	return acc.GetProfile(ctx, id)
}

func (s *ProfileService) List(ctx context.Context, acc *access.Accessor) ([]core.Profile, error) {
	profiles, err := acc.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return profiles, nil
}

// Update edits the profile with the given id, or the caller's when id is empty.
func (s *ProfileService) Update(ctx context.Context, acc *access.Accessor, id string, patch core.ProfilePatch) (core.Profile, error) {
	profile, err := acc.UpdateProfile(ctx, id, patch)
	if err != nil {
		return core.Profile{}, fmt.Errorf("update profile: %w", err)
	}

	applog.FromContext(ctx).InfoContext(ctx, "Profile updated", "user_id", profile.ID)
	s.publish(ctx, amqp.UserUpdated, profile.ID, profile.ID, acc.Scope().CallerID)
	return profile, nil
}

// ChangeStaff grants or revokes staff on another user.
func (s *ProfileService) ChangeStaff(ctx context.Context, acc *access.Accessor, userID string, staff bool) (core.Profile, error) {
	profile, err := acc.ChangeStaff(ctx, userID, staff)
	if err != nil {
		return core.Profile{}, fmt.Errorf("change staff: %w", err)
	}

	applog.FromContext(ctx).InfoContext(ctx, "Staff status changed",
		"user_id", profile.ID,
		"is_staff", profile.IsStaff,
		"changed_by", acc.Scope().CallerID)
	s.publish(ctx, amqp.UserStaffChanged, profile.ID, profile.ID, acc.Scope().CallerID)
	return profile, nil
}
