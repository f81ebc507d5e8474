package models

import (
	"time"

	"github.com/google/uuid"
)

// CampaignStatus represents the lifecycle of a campaign
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusSending   CampaignStatus = "sending"
	CampaignStatusFinished  CampaignStatus = "finished"
)

// Campaign is a tenant-owned bulk message campaign
type Campaign struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	TenantID    uuid.UUID      `json:"tenant_id" db:"tenant_id"`
	Name        string         `json:"name" db:"name"`
	Status      CampaignStatus `json:"status" db:"status"`
	ScheduledAt *time.Time     `json:"scheduled_at,omitempty" db:"scheduled_at"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Campaign model
func (Campaign) TableName() string {
	return "campaigns"
}

// NewCampaign creates a draft campaign for a tenant
func NewCampaign(tenantID uuid.UUID, name string) *Campaign {
	now := time.Now()
	return &Campaign{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      name,
		Status:    CampaignStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CampaignReport is the delivery summary of a campaign
type CampaignReport struct {
	CampaignID uuid.UUID `json:"campaign_id"`
	Sent       int       `json:"sent"`
	Delivered  int       `json:"delivered"`
	Failed     int       `json:"failed"`
}
