// Package access resolves an authenticated end-user identity into a
// store.Principal plus its group memberships, and provisions new
// principals with the minimal privileges spec.md §4.6 requires. It
// generalizes infrastructure/middleware/serviceauth.go's JWT-based
// service-to-service authentication to end-user callers: the same
// RS256/golang-jwt/v5 machinery, one claim added (the caller's group
// memberships) in place of a service ID.
package access

import (
	"context"

	"github.com/r3e-network/objectstore/store"
)

// Role is one of spec.md §3's two well-known groups a principal can
// belong to.
type Role string

const (
	// RoleUser is the default membership every provisioned principal has.
	RoleUser Role = "app_user"

	// RoleAdmin bypasses row-level ACL entirely (store.Event.Visible,
	// store.Event.CanWrite). Every admin is also implicitly an app_user.
	RoleAdmin Role = "app_admin"
)

// Identity is a resolved caller: the real principal that every event's
// owner/updated_by records, plus the roles it was provisioned with.
type Identity struct {
	Principal store.Principal
	Roles     []Role
}

// HasRole reports whether id holds r.
func (id Identity) HasRole(r Role) bool {
	for _, have := range id.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// IsAdmin reports whether id holds RoleAdmin.
func (id Identity) IsAdmin() bool {
	return id.HasRole(RoleAdmin)
}

// RealPrincipal returns id's true principal, always used for
// Owner/UpdatedBy/Caller fields on writes. Satisfies store.Identity.
func (id Identity) RealPrincipal() store.Principal {
	return id.Principal
}

// EffectiveCaller returns the store.Principal value to pass as the
// Repository-level caller on a read-path call (Read/Query/History/AsOf/
// Audit/Count/ListTypes/ListSharedWith): store.AdminPrincipal for an
// admin identity so store.Event.Visible bypasses ACL, or the real
// principal otherwise. Write-path calls must NOT use this — they take the
// real Principal directly from id.Principal so Owner/UpdatedBy are never
// anonymized to "app_admin".
func (id Identity) EffectiveCaller() store.Principal {
	if id.IsAdmin() {
		return store.AdminPrincipal
	}
	return id.Principal
}

type identityKey struct{}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext extracts the Identity attached by WithIdentity, or
// the zero Identity and false if none is present.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Provision builds the minimal-privilege Identity spec.md §4.6 requires
// for a newly authenticated principal: membership only in RoleUser, no
// ACL bypass, no role-escalation capability, no schema-modification
// rights (schema governance is itself a Non-goal — see SPEC_FULL.md §3).
func Provision(principal store.Principal) Identity {
	return Identity{Principal: principal, Roles: []Role{RoleUser}}
}
