package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/upb/campaign-gateway/internal/observability"
	"github.com/upb/campaign-gateway/middleware"
	"github.com/upb/campaign-gateway/models"
	"github.com/upb/campaign-gateway/repositories"
	"github.com/upb/campaign-gateway/services"
	"github.com/upb/campaign-gateway/utils"
	"go.uber.org/zap"
)

// FeatureSource resolves a tenant's effective capabilities
type FeatureSource interface {
	Features(ctx context.Context, tenant models.Tenant) (models.FeatureMap, error)
}

// BillingResponse is the body of GET /gestao
type BillingResponse struct {
	Tenant          models.TenantSummary `json:"tenant"`
	Plan            *PlanSummary         `json:"plan,omitempty"`
	Features        models.FeatureMap    `json:"features"`
	RequiresPayment bool                 `json:"requiresPayment"`
}

// PlanSummary names the tenant's plan
type PlanSummary struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Features models.FeatureMap `json:"features"`
}

// SettingsResponse is the body of GET /settings
type SettingsResponse struct {
	User             models.Identity      `json:"user"`
	Tenant           models.TenantSummary `json:"tenant"`
	FeatureOverrides models.FeatureMap    `json:"featureOverrides,omitempty"`
}

// AuditLogListResponse is the body of GET /logs
type AuditLogListResponse struct {
	Logs []*models.AuditLog `json:"logs"`
	Page Page               `json:"page"`
}

// MemberListResponse is the body of GET /permissions
type MemberListResponse struct {
	Members []models.Identity `json:"members"`
	Page    Page              `json:"page"`
}

// AccountHandler serves the tenant account area. These routes stay reachable
// while the tenant is blocked so the account can be regularised.
type AccountHandler struct {
	plans     repositories.PlanRepository
	users     repositories.UserRepository
	auditLogs repositories.AuditRepository
	features  FeatureSource
	logger    *zap.Logger
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(
	plans repositories.PlanRepository,
	users repositories.UserRepository,
	auditLogs repositories.AuditRepository,
	features FeatureSource,
	logger *zap.Logger,
) *AccountHandler {
	return &AccountHandler{
		plans:     plans,
		users:     users,
		auditLogs: auditLogs,
		features:  features,
		logger:    logger,
	}
}

// principal returns the request principal or writes TOKEN_MISSING
func (h *AccountHandler) principal(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	principal, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		h.logger.Error("principal not found in context", zap.String("path", r.URL.Path))
		HandleServiceError(w, services.ErrTokenMissing, h.logger)
	}
	return principal, ok
}

// HandleBilling handles GET /gestao
func (h *AccountHandler) HandleBilling(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx, h.logger)
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	tenant := principal.Tenant

	response := BillingResponse{
		Tenant:          tenant.Summary(),
		RequiresPayment: tenant.Status.RequiresPayment(),
	}

	if tenant.PlanID != nil {
		plan, err := h.plans.GetByID(ctx, *tenant.PlanID)
		switch {
		case err == nil:
			response.Plan = &PlanSummary{ID: plan.ID.String(), Name: plan.Name, Features: plan.Features}
		case errors.Is(err, repositories.ErrNotFound):
			logger.Warn("tenant references unknown plan",
				zap.String("tenant_id", tenant.ID.String()),
				zap.String("plan_id", tenant.PlanID.String()))
		default:
			HandleServiceError(w, services.WrapInternal("failed to load plan", err), logger)
			return
		}
	}

	features, err := h.features.Features(ctx, tenant)
	if err != nil {
		HandleServiceError(w, services.WrapInternal("failed to resolve features", err), logger)
		return
	}
	response.Features = features

	_ = utils.WriteOK(w, response)
}

// HandleSettings handles GET /settings
func (h *AccountHandler) HandleSettings(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	_ = utils.WriteOK(w, SettingsResponse{
		User:             principal.Identity,
		Tenant:           principal.Tenant.Summary(),
		FeatureOverrides: principal.Tenant.FeatureOverrides,
	})
}

// HandleLogs handles GET /logs. It reads through the request's tenant lease.
func (h *AccountHandler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context(), h.logger)
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	page, err := parsePage(r)
	if err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	logs, err := h.auditLogs.ListByTenant(r.Context(), principal.Tenant.ID, page.Limit, page.Offset)
	if err != nil {
		HandleServiceError(w, repositoryError(err, "failed to list audit logs"), logger)
		return
	}
	if logs == nil {
		logs = []*models.AuditLog{}
	}

	_ = utils.WriteOK(w, AuditLogListResponse{Logs: logs, Page: page})
}

// HandlePermissions handles GET /permissions, listing the tenant's members and roles
func (h *AccountHandler) HandlePermissions(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context(), h.logger)
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	page, err := parsePage(r)
	if err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	users, err := h.users.ListByTenant(r.Context(), principal.Tenant.ID, page.Limit, page.Offset)
	if err != nil {
		HandleServiceError(w, repositoryError(err, "failed to list members"), logger)
		return
	}

	members := make([]models.Identity, 0, len(users))
	for _, u := range users {
		members = append(members, u.Identity())
	}

	_ = utils.WriteOK(w, MemberListResponse{Members: members, Page: page})
}
