package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/campaign-gateway/internal/observability"
	"github.com/upb/campaign-gateway/models"
	"github.com/upb/campaign-gateway/repositories"
	"github.com/upb/campaign-gateway/services"
	"github.com/upb/campaign-gateway/services/audit"
	"github.com/upb/campaign-gateway/tenancy"
	"go.uber.org/zap"
)

// ScopeBinder leases scoped connections
type ScopeBinder interface {
	Bind(ctx context.Context, tenantID uuid.UUID) (*tenancy.Lease, error)
	BindOperator(ctx context.Context, identity models.Identity) (*tenancy.Lease, error)
}

// CapabilityChecker decides feature access
type CapabilityChecker interface {
	Check(ctx context.Context, identity models.Identity, tenant models.Tenant, feature string) error
}

// OwnershipVerifier checks that a resource belongs to a tenant
type OwnershipVerifier interface {
	Verify(ctx context.Context, exec repositories.Executor, table, resourceID string, tenantID uuid.UUID) error
}

// TenantMiddleware binds the request to a database scope and guards
// tenant-owned routes. It must be mounted after AuthMiddleware.RequireAuth.
type TenantMiddleware struct {
	binder       ScopeBinder
	capabilities CapabilityChecker
	ownership    OwnershipVerifier
	denials      DenialRecorder
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// NewTenantMiddleware creates a new TenantMiddleware. denials and metrics may be nil.
func NewTenantMiddleware(
	binder ScopeBinder,
	capabilities CapabilityChecker,
	ownership OwnershipVerifier,
	denials DenialRecorder,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *TenantMiddleware {
	return &TenantMiddleware{
		binder:       binder,
		capabilities: capabilities,
		ownership:    ownership,
		denials:      denials,
		metrics:      metrics,
		logger:       logger,
	}
}

// BindTenant leases a connection scoped to the caller's tenant for the rest of the request
func (m *TenantMiddleware) BindTenant(next http.Handler) http.Handler {
	return m.bind(next, func(ctx context.Context, principal models.Principal) (*tenancy.Lease, error) {
		return m.binder.Bind(ctx, principal.Tenant.ID)
	})
}

// BindOperator leases a connection with row-level isolation disabled. Only operators pass.
func (m *TenantMiddleware) BindOperator(next http.Handler) http.Handler {
	return m.bind(next, func(ctx context.Context, principal models.Principal) (*tenancy.Lease, error) {
		return m.binder.BindOperator(ctx, principal.Identity)
	})
}

func (m *TenantMiddleware) bind(next http.Handler, lease func(context.Context, models.Principal) (*tenancy.Lease, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := observability.FromContext(ctx, m.logger)

		principal, ok := GetPrincipalFromContext(ctx)
		if !ok {
			logger.Error("principal not found in context", zap.String("path", r.URL.Path))
			m.reject(w, services.ErrTenantRequired)
			return
		}
		if _, bound := tenancy.FromContext(ctx); bound {
			logger.Error("connection scope already bound", zap.String("path", r.URL.Path))
			m.reject(w, tenancy.ErrScopeAlreadyBound)
			return
		}

		l, err := lease(ctx, principal)
		if err != nil {
			if services.IsIsolationError(err) {
				logger.Error("failed to bind connection scope",
					zap.String("tenant_id", principal.Tenant.ID.String()),
					zap.Error(err))
			}
			m.reject(w, err)
			return
		}

		// Release is idempotent. It runs on return or panic, and as soon as the client goes away.
		defer l.Release()
		stop := context.AfterFunc(ctx, l.Release)
		defer stop()

		ctx, err = tenancy.Attach(ctx, l)
		if err != nil {
			m.reject(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireFeature admits the request only when feature is enabled for the caller's tenant
func (m *TenantMiddleware) RequireFeature(feature string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal, ok := GetPrincipalFromContext(ctx)
			if !ok {
				m.reject(w, services.ErrTenantRequired)
				return
			}

			if err := m.capabilities.Check(ctx, principal.Identity, principal.Tenant, feature); err != nil {
				if services.IsForbiddenError(err) && m.denials != nil {
					m.denials.AccessDenied(principal.Tenant.ID, principal.Identity.UserID, services.CodeFeatureNotAvailable, audit.MetaFromRequest(r))
				}
				m.reject(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwnership verifies that the resource named by the URL parameter param
// belongs to the caller's tenant. Routes without the parameter pass through.
// This must run inside BindTenant.
func (m *TenantMiddleware) RequireOwnership(table, param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal, ok := GetPrincipalFromContext(ctx)
			if !ok {
				m.reject(w, services.ErrTenantRequired)
				return
			}

			lease, err := tenancy.Scoped(ctx)
			if err != nil {
				m.reject(w, err)
				return
			}

			if err := m.ownership.Verify(ctx, lease, table, chi.URLParam(r, param), principal.Tenant.ID); err != nil {
				if !services.IsNotFoundError(err) {
					observability.FromContext(ctx, m.logger).Error("ownership check failed",
						zap.String("table", table),
						zap.Error(err))
				}
				m.reject(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *TenantMiddleware) reject(w http.ResponseWriter, err error) {
	writeError(w, err, m.metrics, m.logger)
}
