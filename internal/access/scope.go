// Package access decides which rows a caller may see and change.
//
// A Policy holds the only unrestricted store handle. Each request resolves the
// caller's profile into a Scope and receives an Accessor bound to that scope;
// every data call goes through the Accessor, which applies the owner filter for
// reads and writes.
package access

import "saldo/internal/core"

// Kind is the privilege level of a resolved caller.
type Kind int

const (
	OwnerScope Kind = iota
	StaffScope
)

func (k Kind) String() string {
	if k == StaffScope {
		return "staff"
	}
	return "owner"
}

// Scope is resolved once per request from a fresh profile read.
type Scope struct {
	Kind     Kind
	CallerID string
}

// ScopeFor returns the scope granted to profile.
func ScopeFor(profile core.Profile) Scope {
	kind := OwnerScope
	if profile.IsStaff {
		kind = StaffScope
	}
	return Scope{Kind: kind, CallerID: profile.ID}
}

func (s Scope) IsStaff() bool {
	return s.Kind == StaffScope
}

// ReadOwner is the owner filter for reads. Staff read every owner.
func (s Scope) ReadOwner() string {
	if s.IsStaff() {
		return ""
	}
	return s.CallerID
}

// WriteOwner is the owner filter for category and transaction writes, which
// stay owner-scoped for staff too.
func (s Scope) WriteOwner() string {
	return s.CallerID
}
