package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/upb/campaign-gateway/app"
	"github.com/upb/campaign-gateway/models"
	"github.com/upb/campaign-gateway/services"
	"github.com/upb/campaign-gateway/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	authn := deps.AuthMiddleware
	tenants := deps.TenantMiddleware

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(deps.Config.Server.RequestTimeout))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)
	if deps.Config.Observability.MetricsEnabled {
		r.Handle(deps.Config.Observability.MetricsPath, promhttp.HandlerFor(deps.MetricsRegistry, promhttp.HandlerOpts{}))
	}

	// Credentials
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", deps.AuthHandler.HandleLogin)
		r.Post("/refresh", deps.AuthHandler.HandleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(authn.RequireAuth)
			r.Post("/logout", deps.AuthHandler.HandleLogout)
			r.Get("/me", deps.AuthHandler.HandleMe)
		})
	})

	// Tenant area. The status gate inside RequireAuth keeps blocked tenants
	// on the payment-exempt routes.
	r.Group(func(r chi.Router) {
		r.Use(authn.RequireAuth)
		r.Use(tenants.BindTenant)

		r.Get("/gestao", deps.AccountHandler.HandleBilling)
		r.Get("/settings", deps.AccountHandler.HandleSettings)

		r.With(authn.RequireRole(models.RoleAdmin)).Get("/logs", deps.AccountHandler.HandleLogs)
		r.With(authn.RequireRole(models.RoleAdmin)).Get("/permissions", deps.AccountHandler.HandlePermissions)

		r.Route("/campaigns", func(r chi.Router) {
			r.Use(tenants.RequireFeature(models.FeatureCampaigns))
			r.Get("/", deps.CampaignHandler.HandleList)

			// URL params are only resolved once the sub-route matches
			r.With(tenants.RequireOwnership("campaigns", "id")).Get("/{id}", deps.CampaignHandler.HandleGet)
			r.With(
				tenants.RequireOwnership("campaigns", "id"),
				tenants.RequireFeature(models.FeatureReports),
			).Get("/{id}/reports", deps.CampaignHandler.HandleReport)
		})
	})

	// Operator console
	r.Route("/admin", func(r chi.Router) {
		r.Use(authn.RequireAuth)
		r.Use(authn.RequireRole(models.RoleOperator))
		r.Use(tenants.BindOperator)

		r.Get("/tenants", deps.AdminHandler.HandleListTenants)
		r.Get("/tenants/{id}", deps.AdminHandler.HandleGetTenant)
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteDomainError(w, services.NewDomainError(services.ErrorTypeNotFound, "NOT_FOUND", "endpoint not found", nil))
	})

	return r
}
