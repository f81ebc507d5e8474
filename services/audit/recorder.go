// Package audit writes the tenant-visible security trail. Entries are
// written in the background on a connection scoped to the entry's tenant.
package audit

import (
	"context"
	"fmt"
	"net"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/upb/campaign-gateway/models"
	"github.com/upb/campaign-gateway/repositories"
	"github.com/upb/campaign-gateway/services/background"
	"github.com/upb/campaign-gateway/tenancy"
	"go.uber.org/zap"
)

const taskKind = "audit_log"

// LeaseBinder scopes a connection to a tenant
type LeaseBinder interface {
	Bind(ctx context.Context, tenantID uuid.UUID) (*tenancy.Lease, error)
}

// RequestMeta is the request information copied onto an entry
type RequestMeta struct {
	RequestID string
	Path      string
	IPAddress string
	UserAgent string
}

// MetaFromRequest extracts RequestMeta before the request goes away
func MetaFromRequest(r *http.Request) RequestMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return RequestMeta{
		RequestID: chimw.GetReqID(r.Context()),
		Path:      r.URL.Path,
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	}
}

// Recorder queues audit entries
type Recorder struct {
	repo   repositories.AuditRepository
	binder LeaseBinder
	runner background.Runner
	logger *zap.Logger
}

// NewRecorder creates a Recorder
func NewRecorder(repo repositories.AuditRepository, binder LeaseBinder, runner background.Runner, logger *zap.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		binder: binder,
		runner: runner,
		logger: logger,
	}
}

// Record queues entry. Entries without a tenant have nowhere to go and are only logged.
func (r *Recorder) Record(entry *models.AuditLog) {
	if entry.TenantID == uuid.Nil {
		r.logger.Debug("audit entry without tenant, not persisted",
			zap.String("action", string(entry.Action)),
			zap.String("request_id", entry.RequestID))
		return
	}
	r.runner.Go(taskKind, func(ctx context.Context) error {
		return r.write(ctx, entry)
	})
}

func (r *Recorder) write(ctx context.Context, entry *models.AuditLog) error {
	lease, err := r.binder.Bind(ctx, entry.TenantID)
	if err != nil {
		return fmt.Errorf("failed to scope audit write: %w", err)
	}
	defer lease.Release()

	if err := r.repo.Insert(tenancy.WithLease(ctx, lease), entry); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// Convenience methods for the events the pipeline records

// LoginEntry builds the entry of a successful login. Every login replaces the
// user's previous session, so the entry names the new session id.
func LoginEntry(user *models.User, sessionID uuid.UUID, meta RequestMeta) *models.AuditLog {
	return models.NewAuditLog(user.TenantID, models.AuditActionLogin).
		WithUser(user.ID).
		WithRequest(meta.RequestID, meta.Path, meta.IPAddress, meta.UserAgent).
		WithDetails(map[string]interface{}{"session_id": sessionID})
}

// LoginFailed records a bad password for a known user
func (r *Recorder) LoginFailed(user *models.User, meta RequestMeta) {
	entry := models.NewAuditLog(user.TenantID, models.AuditActionLoginFailed).
		WithUser(user.ID).
		WithRequest(meta.RequestID, meta.Path, meta.IPAddress, meta.UserAgent)
	r.Record(entry)
}

// Logout records a session revocation
func (r *Recorder) Logout(tenantID, userID uuid.UUID, meta RequestMeta) {
	entry := models.NewAuditLog(tenantID, models.AuditActionLogout).
		WithUser(userID).
		WithRequest(meta.RequestID, meta.Path, meta.IPAddress, meta.UserAgent)
	r.Record(entry)
}

// TokenRefreshed records a refresh exchange
func (r *Recorder) TokenRefreshed(tenantID, userID uuid.UUID, meta RequestMeta) {
	entry := models.NewAuditLog(tenantID, models.AuditActionTokenRefreshed).
		WithUser(userID).
		WithRequest(meta.RequestID, meta.Path, meta.IPAddress, meta.UserAgent)
	r.Record(entry)
}

// AccessDenied records a pipeline rejection of a known principal
func (r *Recorder) AccessDenied(tenantID, userID uuid.UUID, code string, meta RequestMeta) {
	entry := models.NewAuditLog(tenantID, models.AuditActionAccessDenied).
		WithUser(userID).
		WithCode(code).
		WithRequest(meta.RequestID, meta.Path, meta.IPAddress, meta.UserAgent)
	r.Record(entry)
}

// OperatorAccess records an operator reading a tenant's data through the bypass channel
func (r *Recorder) OperatorAccess(tenantID, operatorID uuid.UUID, meta RequestMeta) {
	entry := models.NewAuditLog(tenantID, models.AuditActionOperatorAccess).
		WithUser(operatorID).
		WithRequest(meta.RequestID, meta.Path, meta.IPAddress, meta.UserAgent)
	r.Record(entry)
}
