package models

import (
	"time"

	"github.com/google/uuid"
)

// UserRole represents the role of a user within a tenant
type UserRole string

const (
	// RoleOperator is the platform super-role; it is not bound by tenant status or capabilities
	RoleOperator UserRole = "operator"
	RoleAdmin    UserRole = "admin"
	RoleMember   UserRole = "member"
	RoleViewer   UserRole = "viewer"
)

// User represents a login-capable account belonging to one tenant
type User struct {
	ID            uuid.UUID `json:"id" db:"id"`
	TenantID      uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Name          string    `json:"name" db:"name"`
	Email         string    `json:"email" db:"email"`
	PasswordHash  string    `json:"-" db:"password_hash"`
	Role          UserRole  `json:"role" db:"role"`
	EmailVerified bool      `json:"email_verified" db:"email_verified"`
	IsEnabled     bool      `json:"is_enabled" db:"is_enabled"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new enabled User instance
func NewUser(tenantID uuid.UUID, name, email, passwordHash string, role UserRole) *User {
	now := time.Now()
	return &User{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		IsEnabled:    true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsOperator returns true for platform operators
func (u *User) IsOperator() bool {
	return u.Role == RoleOperator
}

// Identity returns the request-scoped view of the user
func (u *User) Identity() Identity {
	return Identity{
		UserID:        u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
	}
}
