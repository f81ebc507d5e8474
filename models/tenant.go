package models

import (
	"time"

	"github.com/google/uuid"
)

// TenantStatus is the lifecycle state of a tenant account
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusTrial     TenantStatus = "trial"
	TenantStatusBlocked   TenantStatus = "blocked"
	TenantStatusSuspended TenantStatus = "suspended"
)

// RequiresPayment reports whether the tenant is restricted to billing and recovery routes
func (s TenantStatus) RequiresPayment() bool {
	return s == TenantStatusBlocked || s == TenantStatusSuspended
}

// IsActive reports whether the status grants normal access
func (s TenantStatus) IsActive() bool {
	return s == TenantStatusActive || s == TenantStatusTrial
}

// Tenant represents an isolated customer account
type Tenant struct {
	ID        uuid.UUID    `json:"id" db:"id"`
	Name      string       `json:"name" db:"name"`
	Slug      string       `json:"slug" db:"slug"` // URL-friendly identifier
	Status    TenantStatus `json:"status" db:"status"`
	PlanID    *uuid.UUID   `json:"plan_id,omitempty" db:"plan_id"`
	IsEnabled bool         `json:"is_enabled" db:"is_enabled"`

	// FeatureOverrides takes precedence over the plan defaults; nil means no overrides
	FeatureOverrides FeatureMap `json:"feature_overrides,omitempty" db:"feature_overrides"`

	LastSeenAt *time.Time `json:"last_seen_at,omitempty" db:"last_seen_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Tenant model
func (Tenant) TableName() string {
	return "tenants"
}

// NewTenant creates a new enabled Tenant on trial
func NewTenant(name, slug string, planID *uuid.UUID) *Tenant {
	now := time.Now()
	return &Tenant{
		ID:        uuid.New(),
		Name:      name,
		Slug:      slug,
		Status:    TenantStatusTrial,
		PlanID:    planID,
		IsEnabled: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TenantSummary is the caller-visible part of a tenant
type TenantSummary struct {
	ID     uuid.UUID    `json:"id"`
	Name   string       `json:"name"`
	Slug   string       `json:"slug"`
	Status TenantStatus `json:"status"`
	PlanID *uuid.UUID   `json:"plan_id,omitempty"`
}

// Summary returns the caller-visible view of the tenant
func (t Tenant) Summary() TenantSummary {
	return TenantSummary{
		ID:     t.ID,
		Name:   t.Name,
		Slug:   t.Slug,
		Status: t.Status,
		PlanID: t.PlanID,
	}
}
