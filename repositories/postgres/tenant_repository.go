package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/upb/campaign-gateway/models"
	"github.com/upb/campaign-gateway/repositories"
	"go.uber.org/zap"
)

var tenantColumns = []string{
	"id", "name", "slug", "status", "plan_id", "is_enabled",
	"feature_overrides", "last_seen_at", "created_at", "updated_at",
}

// TenantRepository implements the repositories.TenantRepository interface
type TenantRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *DB, logger *zap.Logger) repositories.TenantRepository {
	return &TenantRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new tenant
func (r *TenantRepository) Create(ctx context.Context, tenant *models.Tenant) error {
	var overrides []byte
	if tenant.FeatureOverrides != nil {
		data, err := json.Marshal(tenant.FeatureOverrides)
		if err != nil {
			return fmt.Errorf("failed to encode feature overrides: %w", err)
		}
		overrides = data
	}

	query, args, err := sq.Insert("tenants").
		Columns(tenantColumns...).
		Values(
			tenant.ID,
			tenant.Name,
			tenant.Slug,
			tenant.Status,
			tenant.PlanID,
			tenant.IsEnabled,
			overrides,
			tenant.LastSeenAt,
			tenant.CreatedAt,
			tenant.UpdatedAt,
		).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build tenant insert: %w", err)
	}

	if _, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	r.logger.Debug("tenant created", zap.String("id", tenant.ID.String()), zap.String("slug", tenant.Slug))
	return nil
}

func scanTenant(row interface{ Scan(...interface{}) error }) (*models.Tenant, error) {
	var (
		t         models.Tenant
		overrides []byte
	)
	if err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Slug,
		&t.Status,
		&t.PlanID,
		&t.IsEnabled,
		&overrides,
		&t.LastSeenAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	features, err := models.ParseFeatureMap(overrides)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: %w", t.ID, err)
	}
	t.FeatureOverrides = features
	return &t, nil
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	query, args, err := sq.Select(tenantColumns...).
		From("tenants").
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build tenant query: %w", err)
	}

	tenant, err := scanTenant(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tenant %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

// List retrieves tenants ordered by name
func (r *TenantRepository) List(ctx context.Context, filter repositories.TenantFilter) ([]*models.Tenant, error) {
	q := sq.Select(tenantColumns...).
		From("tenants").
		OrderBy("name ASC")

	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": filter.Status})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	query, args, err := q.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build tenant list: %w", err)
	}

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenants: %w", err)
	}
	return tenants, nil
}

// TouchLastSeen stamps the tenant's last activity
func (r *TenantRepository) TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE tenants SET last_seen_at = $1 WHERE id = $2`

	if _, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, at, id); err != nil {
		return fmt.Errorf("failed to update tenant last seen: %w", err)
	}
	return nil
}
