// Package security defines the authenticated actor and role rules shared by workflows.
package security

import (
	"fmt"

	"marketplace/internal/core/id"
)

// Role is the marketplace role of an actor.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleVendor   Role = "vendor"
	RoleCustomer Role = "customer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleVendor, RoleCustomer:
		return true
	}
	return false
}

// ParseRole converts a token claim into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Actor is the identity on whose behalf an operation runs.
// Identity verification happens before the actor reaches the domain.
type Actor struct {
	ID   id.ID
	Role Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

func (a Actor) IsVendor() bool { return a.Role == RoleVendor }

// Owns reports whether the actor is the given user.
func (a Actor) Owns(userID id.ID) bool { return a.ID == userID }

// System is used by background jobs (payment reaper, webhooks).
var System = Actor{Role: RoleAdmin}
