package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/campaign-gateway/models"
	"github.com/upb/campaign-gateway/repositories"
	"go.uber.org/zap"
)

// SessionRepository implements the repositories.SessionRepository interface
type SessionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB, logger *zap.Logger) repositories.SessionRepository {
	return &SessionRepository{
		db:     db,
		logger: logger,
	}
}

// Replace upserts on user_id, so the previous lease id stops matching in one statement
func (r *SessionRepository) Replace(ctx context.Context, lease *models.SessionLease) error {
	query := `
		INSERT INTO user_sessions (id, user_id, created_at, last_activity_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET id = EXCLUDED.id,
		    created_at = EXCLUDED.created_at,
		    last_activity_at = EXCLUDED.last_activity_at
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		lease.ID,
		lease.UserID,
		lease.CreatedAt,
		lease.LastActivityAt,
	)
	if err != nil {
		return fmt.Errorf("failed to replace session: %w", err)
	}

	r.logger.Debug("session replaced", zap.String("user_id", lease.UserID.String()))
	return nil
}

// GetByUserID retrieves the user's current lease
func (r *SessionRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.SessionLease, error) {
	query := `SELECT id, user_id, created_at, last_activity_at FROM user_sessions WHERE user_id = $1`

	lease := &models.SessionLease{}
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, userID).Scan(
		&lease.ID,
		&lease.UserID,
		&lease.CreatedAt,
		&lease.LastActivityAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session for user %s: %w", userID, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return lease, nil
}

// Touch updates the last activity of a lease
func (r *SessionRepository) Touch(ctx context.Context, sessionID uuid.UUID, at time.Time) error {
	query := `UPDATE user_sessions SET last_activity_at = $1 WHERE id = $2`

	if _, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, at, sessionID); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// Delete removes the user's lease when its id is sessionID
func (r *SessionRepository) Delete(ctx context.Context, userID, sessionID uuid.UUID) error {
	query := `DELETE FROM user_sessions WHERE user_id = $1 AND id = $2`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, userID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s for user %s: %w", sessionID, userID, repositories.ErrNotFound)
	}
	return nil
}
