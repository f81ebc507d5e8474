package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/upb/campaign-gateway/internal/observability"
	"github.com/upb/campaign-gateway/middleware"
	"github.com/upb/campaign-gateway/models"
	"github.com/upb/campaign-gateway/repositories"
	"github.com/upb/campaign-gateway/services"
	"github.com/upb/campaign-gateway/services/audit"
	"github.com/upb/campaign-gateway/utils"
	"go.uber.org/zap"
)

const recentActivityLimit = 20

// OperatorAccessRecorder audits operator reads of tenant data
type OperatorAccessRecorder interface {
	OperatorAccess(tenantID, operatorID uuid.UUID, meta audit.RequestMeta)
}

// TenantListResponse is the body of GET /admin/tenants
type TenantListResponse struct {
	Tenants []*models.Tenant `json:"tenants"`
	Page    Page             `json:"page"`
}

// TenantDetailResponse is the body of GET /admin/tenants/{id}
type TenantDetailResponse struct {
	Tenant         *models.Tenant     `json:"tenant"`
	RecentActivity []*models.AuditLog `json:"recentActivity"`
}

// AdminHandler serves the operator console. Routes are mounted behind
// BindOperator, so tenant-owned reads go through the bypass channel.
type AdminHandler struct {
	tenants   repositories.TenantRepository
	auditLogs repositories.AuditRepository
	recorder  OperatorAccessRecorder
	logger    *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(tenants repositories.TenantRepository, auditLogs repositories.AuditRepository, recorder OperatorAccessRecorder, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		tenants:   tenants,
		auditLogs: auditLogs,
		recorder:  recorder,
		logger:    logger,
	}
}

// HandleListTenants handles GET /admin/tenants
func (h *AdminHandler) HandleListTenants(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context(), h.logger)

	page, err := parsePage(r)
	if err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	status := models.TenantStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.TenantStatusActive, models.TenantStatusTrial, models.TenantStatusBlocked, models.TenantStatusSuspended:
	default:
		HandleValidationError(w, &utils.ValidationError{
			Message: "invalid status filter",
			Fields:  map[string]string{"status": "must be one of active, trial, blocked, suspended"},
		}, logger)
		return
	}

	tenants, err := h.tenants.List(r.Context(), repositories.TenantFilter{Status: status, Limit: page.Limit, Offset: page.Offset})
	if err != nil {
		HandleServiceError(w, repositoryError(err, "failed to list tenants"), logger)
		return
	}
	if tenants == nil {
		tenants = []*models.Tenant{}
	}

	_ = utils.WriteOK(w, TenantListResponse{Tenants: tenants, Page: page})
}

// HandleGetTenant handles GET /admin/tenants/{id}. Reading another tenant's
// activity is recorded against that tenant.
func (h *AdminHandler) HandleGetTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx, h.logger)

	operator, ok := middleware.GetIdentityFromContext(ctx)
	if !ok {
		HandleServiceError(w, services.ErrTokenMissing, logger)
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	tenant, err := h.tenants.GetByID(ctx, id)
	if err != nil {
		HandleServiceError(w, repositoryError(err, "failed to get tenant"), logger)
		return
	}

	activity, err := h.auditLogs.ListByTenant(ctx, tenant.ID, recentActivityLimit, 0)
	if err != nil {
		HandleServiceError(w, repositoryError(err, "failed to list tenant activity"), logger)
		return
	}
	if activity == nil {
		activity = []*models.AuditLog{}
	}

	logger.Info("operator accessed tenant",
		zap.String("operator_id", operator.UserID.String()),
		zap.String("tenant_id", tenant.ID.String()))
	h.recorder.OperatorAccess(tenant.ID, operator.UserID, audit.MetaFromRequest(r))

	_ = utils.WriteOK(w, TenantDetailResponse{Tenant: tenant, RecentActivity: activity})
}
