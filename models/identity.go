package models

import "github.com/google/uuid"

// Identity is the authenticated principal of a single request.
// It is a value type: handlers receive copies and cannot mutate the original.
type Identity struct {
	UserID        uuid.UUID `json:"user_id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Role          UserRole  `json:"role"`
	EmailVerified bool      `json:"email_verified"`
}

// IsOperator reports whether the identity carries the platform super-role
func (i Identity) IsOperator() bool {
	return i.Role == RoleOperator
}

// Principal pairs an identity with the tenant it belongs to
type Principal struct {
	Identity Identity
	Tenant   Tenant
}
