package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/upb/campaign-gateway/internal/observability"
	"github.com/upb/campaign-gateway/models"
	"github.com/upb/campaign-gateway/services"
	"github.com/upb/campaign-gateway/services/audit"
	"github.com/upb/campaign-gateway/services/tenantstatus"
	"github.com/upb/campaign-gateway/sessions"
	"github.com/upb/campaign-gateway/tokens"
	"github.com/upb/campaign-gateway/utils"
	"go.uber.org/zap"
)

// authTokenCookieName is the cookie carrying the access credential when no
// Authorization header is sent
const authTokenCookieName = "auth_token"

// TokenVerifier verifies signed credentials
type TokenVerifier interface {
	Verify(token string, want tokens.TokenType) (*tokens.Claims, error)
}

// IdentityLoader loads the enabled user and its tenant
type IdentityLoader interface {
	Load(ctx context.Context, userID uuid.UUID) (*models.Principal, error)
}

// StatusGate decides whether a tenant's lifecycle state admits a request
type StatusGate interface {
	Evaluate(role models.UserRole, tenant models.Tenant, path string) tenantstatus.Decision
}

// DenialRecorder writes rejections of known principals to the audit trail
type DenialRecorder interface {
	AccessDenied(tenantID, userID uuid.UUID, code string, meta audit.RequestMeta)
}

// AuthMiddleware runs the authentication pipeline
type AuthMiddleware struct {
	tokens     TokenVerifier
	sessions   sessions.Validator
	identities IdentityLoader
	gate       StatusGate
	denials    DenialRecorder
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware. denials and metrics may be nil.
func NewAuthMiddleware(
	verifier TokenVerifier,
	validator sessions.Validator,
	identities IdentityLoader,
	gate StatusGate,
	denials DenialRecorder,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:     verifier,
		sessions:   validator,
		identities: identities,
		gate:       gate,
		denials:    denials,
		metrics:    metrics,
		logger:     logger,
	}
}

// RequireAuth authenticates the credential, checks it is bound to the user's
// current session, loads the principal and applies the tenant status gate.
// The first failing stage rejects the request.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := observability.FromContext(ctx, m.logger)

		claims, err := m.authenticate(r)
		if err != nil {
			logger.Debug("credential rejected", zap.Error(err))
			m.reject(w, err)
			return
		}

		active, err := m.sessions.IsActive(ctx, claims.SessionID, claims.UserID)
		if err != nil {
			// No answer from the registry is not a valid session
			logger.Error("session registry unavailable", zap.Error(err))
			m.reject(w, services.WrapInternal("failed to validate session", err))
			return
		}
		if !active {
			logger.Info("superseded session rejected",
				zap.String("user_id", claims.UserID.String()),
				zap.String("session_id", claims.SessionID.String()))
			m.reject(w, services.ErrSessionInvalid)
			return
		}
		m.sessions.Touch(ctx, claims.SessionID)

		principal, err := m.identities.Load(ctx, claims.UserID)
		if err != nil {
			if !services.IsUnauthorizedError(err) {
				logger.Error("failed to load principal", zap.Error(err))
			}
			m.reject(w, err)
			return
		}
		if principal.Tenant.ID != claims.TenantID {
			logger.Warn("credential tenant does not match user tenant",
				zap.String("user_id", claims.UserID.String()),
				zap.String("token_tenant_id", claims.TenantID.String()),
				zap.String("tenant_id", principal.Tenant.ID.String()))
			m.reject(w, services.ErrTokenInvalid)
			return
		}

		decision := m.gate.Evaluate(principal.Identity.Role, principal.Tenant, r.URL.Path)
		if !decision.Allowed() {
			err := decision.Err()
			logger.Info("tenant status gate denied request",
				zap.String("tenant_id", principal.Tenant.ID.String()),
				zap.String("status", string(principal.Tenant.Status)),
				zap.String("outcome", string(decision.Outcome)))
			if m.denials != nil {
				m.denials.AccessDenied(principal.Tenant.ID, principal.Identity.UserID, services.GetErrorCode(err), audit.MetaFromRequest(r))
			}
			m.reject(w, err)
			return
		}

		ctx = WithClaims(ctx, claims)
		ctx = WithPrincipal(ctx, *principal)

		logger.Debug("authentication successful",
			zap.String("user_id", principal.Identity.UserID.String()),
			zap.String("tenant_id", principal.Tenant.ID.String()))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate extracts and verifies the access credential
func (m *AuthMiddleware) authenticate(r *http.Request) (*tokens.Claims, error) {
	token := extractToken(r)
	if token == "" {
		return nil, services.ErrTokenMissing
	}

	claims, err := m.tokens.Verify(token, tokens.TypeAccess)
	if err != nil {
		return nil, CredentialError(err)
	}
	return claims, nil
}

// CredentialError maps a token verification failure onto its API error
func CredentialError(err error) error {
	switch {
	case errors.Is(err, tokens.ErrExpiredCredential):
		return services.ErrTokenExpired.Wrap(err)
	case errors.Is(err, tokens.ErrMissingCredential):
		return services.ErrTokenMissing
	default:
		return services.ErrTokenInvalid.Wrap(err)
	}
}

// RequireRole admits callers holding one of roles. Operators are always admitted.
// This should be mounted after RequireAuth.
func (m *AuthMiddleware) RequireRole(roles ...models.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := GetIdentityFromContext(r.Context())
			if !ok {
				m.logger.Error("principal not found in context", zap.String("path", r.URL.Path))
				m.reject(w, services.ErrTokenMissing)
				return
			}

			if !identity.IsOperator() && !hasRole(identity.Role, roles) {
				observability.FromContext(r.Context(), m.logger).Warn("insufficient permissions",
					zap.String("user_id", identity.UserID.String()),
					zap.String("role", string(identity.Role)))
				m.reject(w, services.ErrInsufficientPermissions)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func hasRole(role models.UserRole, allowed []models.UserRole) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}

// reject writes err and counts the rejection by its API code
func (m *AuthMiddleware) reject(w http.ResponseWriter, err error) {
	writeError(w, err, m.metrics, m.logger)
}

// writeError writes the envelope of a domain error. Anything else is internal.
func writeError(w http.ResponseWriter, err error, metrics *observability.Metrics, logger *zap.Logger) {
	var domainErr *services.DomainError
	if !errors.As(err, &domainErr) {
		domainErr = services.ErrInternal
	}
	metrics.Rejected(domainErr.Code)
	if err := utils.WriteDomainError(w, domainErr); err != nil {
		logger.Error("failed to write error response", zap.Error(err))
	}
}

// extractToken extracts the credential from the Authorization header ("Bearer TOKEN")
// or the auth_token cookie. The header takes precedence when both are present.
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		token, _ := tokens.BearerToken(header)
		return token
	}
	if cookie, err := r.Cookie(authTokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}
