package http

import (
	"net/http"
	"strings"

	"saldo/internal/access"
	"saldo/internal/core"
	"saldo/internal/identity"
	applog "saldo/internal/log"
	"saldo/internal/services"
)

const actionChangeStaff = "change_staff"

type loginResponse struct {
	identity.Session
	Profile core.Profile `json:"profile"`
}

type meResponse struct {
	User    identity.Identity `json:"user"`
	Profile core.Profile      `json:"profile"`
}

type logoutResponse struct {
	Scope           identity.LogoutScope `json:"scope"`
	SessionsRevoked int64                `json:"sessions_revoked"`
}

// handleLogin signs the user in and returns the session with the caller's
// profile. A session whose profile cannot be resolved is revoked again.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, core.Errorf(core.ErrValidation, "email and password are required"))
		return
	}
	email, err := identity.NormalizeEmail(req.Email)
	if err != nil {
		writeError(w, r, identity.ErrInvalidCredentials)
		return
	}

	session, err := s.identity.SignIn(r.Context(), email, req.Password, identity.ClientInfo{
		UserAgent: r.UserAgent(),
		ClientIP:  s.detector.ExtractClientIP(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	_, profile, err := s.policy.Resolve(r.Context(), session.User.UserID)
	if err != nil {
		if _, signOutErr := s.identity.SignOut(r.Context(), session.User, identity.ScopeLocal); signOutErr != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Failed to revoke session after login error",
				"user_id", session.User.UserID,
				"error", signOutErr)
		}
		writeError(w, r, err)
		return
	}

	OK(loginResponse{Session: session, Profile: profile}).Message("Login successful").Write(w)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, p principal) {
	OK(meResponse{User: p.identity, Profile: p.profile}).Write(w)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, p principal) {
	scope, err := identity.ParseLogoutScope(r.URL.Query().Get("scope"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.identity.SignOut(r.Context(), p.identity, scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(logoutResponse{Scope: scope, SessionsRevoked: n}).Message("Logged out").Write(w)
}

// handleGetUsers returns one profile with ?id= or every visible profile.
func (s *Server) handleGetUsers(w http.ResponseWriter, r *http.Request, p principal) {
	if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
		profile, err := s.profiles.Get(r.Context(), p.accessor, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		OK(profile).Write(w)
		return
	}

	profiles, err := s.profiles.List(r.Context(), p.accessor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	profiles = nonNil(profiles)
	OK(profiles).Count(len(profiles)).Write(w)
}

// handleCreateUser registers a new user. Credentials are optional; only a
// staff caller may set privileged profile flags.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	caller, err := s.optionalScope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req registrationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	profile, err := s.profiles.Register(r.Context(), caller, services.Registration{
		Email:    req.Email,
		Password: req.Password,
		Profile:  req.ProfilePatch,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	Created(profile).Message("User created").Write(w)
}

// handleUpdateUser edits the caller's profile, or the one named by ?id=.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request, p principal) {
	var patch core.ProfilePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("id"))
	profile, err := s.profiles.Update(r.Context(), p.accessor, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(profile).Message("Profile updated").Write(w)
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request, p principal) {
	if !p.scope().IsStaff() {
		writeError(w, r, access.ErrStaffOnly)
		return
	}

	var req changeStaffRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Action != actionChangeStaff {
		writeError(w, r, core.Errorf(core.ErrValidation, "unknown action %q", req.Action))
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" || req.IsStaff == nil {
		writeError(w, r, core.Errorf(core.ErrValidation, "user_id and is_staff are required"))
		return
	}

	profile, err := s.profiles.ChangeStaff(r.Context(), p.accessor, userID, *req.IsStaff)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(profile).Message("Staff status updated").Write(w)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
