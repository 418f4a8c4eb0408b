package http

import (
	"net/http"

	"saldo/internal/access"
	"saldo/internal/core"
	"saldo/internal/identity"
	applog "saldo/internal/log"
)

// principal is an authenticated caller with its resolved scope.
type principal struct {
	identity identity.Identity
	profile  core.Profile
	accessor *access.Accessor
}

func (p principal) scope() access.Scope {
	return p.accessor.Scope()
}

type authedHandler func(w http.ResponseWriter, r *http.Request, p principal)

// requireAuth resolves the bearer token into a principal. The profile is
// read on every request so staff and active flag changes apply immediately.
func (s *Server) requireAuth(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.authenticate(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := applog.WithUser(r.Context(), p.profile.ID, p.scope().Kind.String())
		h(w, r.WithContext(ctx), p)
	}
}

func (s *Server) authenticate(r *http.Request) (principal, error) {
	token, err := identity.ExtractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return principal{}, err
	}
	id, err := s.identity.Authenticate(r.Context(), token)
	if err != nil {
		return principal{}, err
	}
	scope, profile, err := s.policy.Resolve(r.Context(), id.UserID)
	if err != nil {
		return principal{}, err
	}
	return principal{identity: id, profile: profile, accessor: s.policy.For(scope)}, nil
}

// optionalScope returns the caller's scope when a usable bearer token is
// present and nil otherwise. Only infrastructure failures are returned as
// errors; bad or stale credentials fall back to anonymous.
func (s *Server) optionalScope(r *http.Request) (*access.Scope, error) {
	if r.Header.Get("Authorization") == "" {
		return nil, nil
	}
	p, err := s.authenticate(r)
	if err != nil {
		if !core.IsKnown(err) {
			return nil, err
		}
		applog.FromContext(r.Context()).DebugContext(r.Context(), "Ignoring credentials on registration", "error", err)
		return nil, nil
	}
	scope := p.scope()
	return &scope, nil
}
