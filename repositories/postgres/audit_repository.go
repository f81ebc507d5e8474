package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/campaign-gateway/models"
	"github.com/upb/campaign-gateway/repositories"
	"go.uber.org/zap"
)

// AuditRepository implements the repositories.AuditRepository interface.
// audit_logs is under row-level security, so every statement runs on the
// scoped executor of ctx.
type AuditRepository struct {
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{logger: logger}
}

// Insert inserts a new audit log entry
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	executor, err := ScopedExecutor(ctx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_logs (
			id, tenant_id, user_id, action, code, path,
			details, ip_address, user_agent, request_id, timestamp
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	var details interface{}
	if len(log.Details) > 0 {
		details = []byte(log.Details)
	}

	_, err = executor.ExecContext(ctx, query,
		log.ID,
		log.TenantID,
		log.UserID,
		log.Action,
		nullString(log.Code),
		nullString(log.Path),
		details,
		log.IPAddress,
		log.UserAgent,
		log.RequestID,
		log.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	r.logger.Debug("audit log inserted", zap.String("id", log.ID.String()), zap.String("action", string(log.Action)))
	return nil
}

// ListByTenant retrieves audit logs for a tenant, newest first
func (r *AuditRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	executor, err := ScopedExecutor(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, user_id, action, code, path,
		       details, ip_address, user_agent, request_id, timestamp
		FROM audit_logs
		WHERE tenant_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := executor.QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		var (
			log                            models.AuditLog
			code, path, ip, agent, request sql.NullString
			details                        []byte
		)
		if err := rows.Scan(
			&log.ID,
			&log.TenantID,
			&log.UserID,
			&log.Action,
			&code,
			&path,
			&details,
			&ip,
			&agent,
			&request,
			&log.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		log.Code = code.String
		log.Path = path.String
		log.Details = details
		log.IPAddress = ip.String
		log.UserAgent = agent.String
		log.RequestID = request.String
		logs = append(logs, &log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}
	return logs, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
