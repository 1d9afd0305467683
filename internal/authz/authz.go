// Package authz holds the org-scoped permission model. Every org-scoped
// handler resolves the caller's capabilities through Evaluate and applies
// RequireMember or RequireAdmin before touching data. The evaluator is the
// single source of truth for authorization; any row-level policies in the
// backing store are defense-in-depth duplicates, not the primary mechanism.
package authz

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Role is the closed set of membership roles within an organization.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

var (
	ErrNotMember = errors.New("not a member of this organization")
	ErrNotAdmin  = errors.New("owners or admins only")
)

// Capabilities is the result of evaluating one (user, org) pair. The zero
// value represents "no membership": all predicates false.
type Capabilities struct {
	role   Role
	member bool
}

// CapabilitiesForRole builds capabilities from a known membership role.
func CapabilitiesForRole(role Role) Capabilities {
	return Capabilities{role: role, member: role.Valid()}
}

func (c Capabilities) IsMember() bool { return c.member }

func (c Capabilities) IsAdmin() bool {
	return c.member && (c.role == RoleOwner || c.role == RoleAdmin)
}

func (c Capabilities) IsOwner() bool { return c.member && c.role == RoleOwner }

// Role returns the membership role, or "" when there is no membership.
func (c Capabilities) Role() Role {
	if !c.member {
		return ""
	}
	return c.role
}

// MembershipFinder looks up the membership role for one (user, org) pair.
// found=false means no membership row exists, which is a normal state.
type MembershipFinder interface {
	FindRole(ctx context.Context, userID, orgID uuid.UUID) (role Role, found bool, err error)
}

// Evaluate performs at most one membership lookup and returns the caller's
// capabilities in orgID. A missing membership is not an error; it yields the
// zero Capabilities. The error return is reserved for store failures.
func Evaluate(ctx context.Context, f MembershipFinder, userID, orgID uuid.UUID) (Capabilities, error) {
	if userID == uuid.Nil || orgID == uuid.Nil {
		return Capabilities{}, nil
	}
	role, found, err := f.FindRole(ctx, userID, orgID)
	if err != nil {
		return Capabilities{}, err
	}
	if !found || !role.Valid() {
		return Capabilities{}, nil
	}
	return CapabilitiesForRole(role), nil
}

// RequireMember rejects callers without any membership in the org.
func RequireMember(c Capabilities) error {
	if !c.IsMember() {
		return ErrNotMember
	}
	return nil
}

// RequireAdmin rejects callers below admin. Owners pass.
func RequireAdmin(c Capabilities) error {
	if !c.IsAdmin() {
		return ErrNotAdmin
	}
	return nil
}
