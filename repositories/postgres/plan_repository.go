package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/campaign-gateway/models"
	"github.com/upb/campaign-gateway/repositories"
	"go.uber.org/zap"
)

// PlanRepository implements the repositories.PlanRepository interface
type PlanRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewPlanRepository creates a new plan repository
func NewPlanRepository(db *DB, logger *zap.Logger) repositories.PlanRepository {
	return &PlanRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves a plan and decodes its feature map
func (r *PlanRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	query := `SELECT id, name, features, created_at, updated_at FROM plans WHERE id = $1`

	var (
		plan     models.Plan
		features []byte
	)
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&plan.ID,
		&plan.Name,
		&features,
		&plan.CreatedAt,
		&plan.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("plan %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}

	if plan.Features, err = models.ParseFeatureMap(features); err != nil {
		return nil, fmt.Errorf("plan %s: %w", id, err)
	}
	return &plan, nil
}
