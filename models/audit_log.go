package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of security event being recorded
type AuditAction string

const (
	AuditActionLogin           AuditAction = "login"
	AuditActionLoginFailed     AuditAction = "login_failed"
	AuditActionLogout          AuditAction = "logout"
	AuditActionTokenRefreshed  AuditAction = "token_refreshed"
	AuditActionSessionReplaced AuditAction = "session_replaced"
	AuditActionAccessDenied    AuditAction = "access_denied"
	AuditActionOperatorAccess  AuditAction = "operator_access"
)

// AuditLog represents a tenant-visible security trail entry
type AuditLog struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	TenantID  uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	UserID    *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	Action    AuditAction     `json:"action" db:"action"`
	Code      string          `json:"code,omitempty" db:"code"`
	Path      string          `json:"path,omitempty" db:"path"`
	Details   json.RawMessage `json:"details,omitempty" db:"details"` // JSONB for flexible metadata
	IPAddress string          `json:"ip_address" db:"ip_address"`
	UserAgent string          `json:"user_agent" db:"user_agent"`
	RequestID string          `json:"request_id" db:"request_id"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(tenantID uuid.UUID, action AuditAction) *AuditLog {
	return &AuditLog{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Action:    action,
		Timestamp: time.Now(),
	}
}

// WithUser sets the user ID
func (a *AuditLog) WithUser(userID uuid.UUID) *AuditLog {
	a.UserID = &userID
	return a
}

// WithCode sets the API error code attached to a denial
func (a *AuditLog) WithCode(code string) *AuditLog {
	a.Code = code
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID, path, ipAddress, userAgent string) *AuditLog {
	a.RequestID = requestID
	a.Path = path
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}
