package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/campaign-gateway/models"
	"github.com/upb/campaign-gateway/repositories"
	"github.com/upb/campaign-gateway/services/background"
	"go.uber.org/zap"
)

const touchTaskKind = "session_touch"

// PostgresRegistry keeps leases in the user_sessions table
type PostgresRegistry struct {
	repo   repositories.SessionRepository
	runner background.Runner
	logger *zap.Logger
	now    func() time.Time
}

// NewPostgresRegistry creates a registry backed by repo. Touches run on runner.
func NewPostgresRegistry(repo repositories.SessionRepository, runner background.Runner, logger *zap.Logger) *PostgresRegistry {
	return &PostgresRegistry{
		repo:   repo,
		runner: runner,
		logger: logger,
		now:    time.Now,
	}
}

// IsActive compares sessionID against the stored lease
func (r *PostgresRegistry) IsActive(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	lease, err := r.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load session: %w", err)
	}
	return lease.ID == sessionID, nil
}

// Touch queues a last-activity update
func (r *PostgresRegistry) Touch(_ context.Context, sessionID uuid.UUID) {
	at := r.now()
	r.runner.Go(touchTaskKind, func(ctx context.Context) error {
		if err := r.repo.Touch(ctx, sessionID, at); err != nil {
			r.logger.Debug("session touch failed",
				zap.String("session_id", sessionID.String()),
				zap.Error(err))
		}
		return nil
	})
}

// Create stores a fresh lease as the user's only session
func (r *PostgresRegistry) Create(ctx context.Context, userID uuid.UUID) (*models.SessionLease, error) {
	lease := models.NewSessionLease(userID)
	if err := r.repo.Replace(ctx, lease); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return lease, nil
}

// Revoke deletes the lease when it is still sessionID. A missing or
// superseded lease is not an error.
func (r *PostgresRegistry) Revoke(ctx context.Context, userID, sessionID uuid.UUID) error {
	if err := r.repo.Delete(ctx, userID, sessionID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}
