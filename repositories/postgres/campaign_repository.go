package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/campaign-gateway/models"
	"github.com/upb/campaign-gateway/repositories"
	"github.com/upb/campaign-gateway/services"
	"github.com/upb/campaign-gateway/tenancy"
	"go.uber.org/zap"
)

// CampaignRepository implements the repositories.CampaignRepository interface
type CampaignRepository struct {
	logger *zap.Logger
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(logger *zap.Logger) repositories.CampaignRepository {
	return &CampaignRepository{logger: logger}
}

// tenantLease returns the tenant lease bound to ctx
func tenantLease(ctx context.Context) (*tenancy.Lease, error) {
	lease, err := tenancy.Scoped(ctx)
	if err != nil {
		return nil, err
	}
	if lease.Scope() != tenancy.ScopeTenant {
		return nil, services.ErrTenantRequired
	}
	return lease, nil
}

// List retrieves the campaigns of the bound tenant, newest first
func (r *CampaignRepository) List(ctx context.Context, limit, offset int) ([]*models.Campaign, error) {
	lease, err := tenantLease(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, status, scheduled_at, created_at, updated_at
		FROM campaigns
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := lease.QueryContext(ctx, query, lease.TenantID(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*models.Campaign
	for rows.Next() {
		c := &models.Campaign{}
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Status, &c.ScheduledAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaigns: %w", err)
	}
	return campaigns, nil
}

// GetByID retrieves a campaign of the bound tenant
func (r *CampaignRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	lease, err := tenantLease(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, status, scheduled_at, created_at, updated_at
		FROM campaigns
		WHERE id = $1 AND tenant_id = $2
	`

	c := &models.Campaign{}
	err = lease.QueryRowContext(ctx, query, id, lease.TenantID()).
		Scan(&c.ID, &c.TenantID, &c.Name, &c.Status, &c.ScheduledAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("campaign %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return c, nil
}

// GetReport aggregates message delivery for a campaign of the bound tenant
func (r *CampaignRepository) GetReport(ctx context.Context, id uuid.UUID) (*models.CampaignReport, error) {
	lease, err := tenantLease(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT count(*),
		       count(*) FILTER (WHERE status = 'delivered'),
		       count(*) FILTER (WHERE status = 'failed')
		FROM messages
		WHERE campaign_id = $1 AND tenant_id = $2
	`

	report := &models.CampaignReport{CampaignID: id}
	if err := lease.QueryRowContext(ctx, query, id, lease.TenantID()).
		Scan(&report.Sent, &report.Delivered, &report.Failed); err != nil {
		return nil, fmt.Errorf("failed to build campaign report: %w", err)
	}
	return report, nil
}
