package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/upb/campaign-gateway/repositories"
	"go.uber.org/zap"
)

// LoginAttemptRepository implements repositories.LoginAttemptRepository
type LoginAttemptRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewLoginAttemptRepository creates a new login attempt repository
func NewLoginAttemptRepository(db *DB, logger *zap.Logger) repositories.LoginAttemptRepository {
	return &LoginAttemptRepository{
		db:     db,
		logger: logger,
	}
}

// Record stores one failed attempt
func (r *LoginAttemptRepository) Record(ctx context.Context, scopeKey string, at time.Time) error {
	query := `INSERT INTO login_attempts (scope_key, attempted_at) VALUES ($1, $2)`

	if _, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, scopeKey, at); err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

// Window counts the attempts since the given time and returns the oldest of them
func (r *LoginAttemptRepository) Window(ctx context.Context, scopeKey string, since time.Time) (int, time.Time, error) {
	query := `
		SELECT COUNT(*), MIN(attempted_at)
		FROM login_attempts
		WHERE scope_key = $1
		  AND attempted_at >= $2
	`

	var (
		count  int
		oldest sql.NullTime
	)
	if err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, scopeKey, since).Scan(&count, &oldest); err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to count login attempts: %w", err)
	}
	return count, oldest.Time, nil
}

// Clear forgets every attempt of a scope key
func (r *LoginAttemptRepository) Clear(ctx context.Context, scopeKey string) error {
	query := `DELETE FROM login_attempts WHERE scope_key = $1`

	if _, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, scopeKey); err != nil {
		return fmt.Errorf("failed to clear login attempts: %w", err)
	}
	return nil
}

// DeleteBefore removes attempts older than cutoff
func (r *LoginAttemptRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM login_attempts WHERE attempted_at < $1`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup login attempts: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}
