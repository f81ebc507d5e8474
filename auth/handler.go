package auth

import (
	"net/http"
	"time"

	"github.com/upb/campaign-gateway/handlers"
	"github.com/upb/campaign-gateway/middleware"
	"github.com/upb/campaign-gateway/services"
	"github.com/upb/campaign-gateway/services/audit"
	"github.com/upb/campaign-gateway/utils"
	"go.uber.org/zap"
)

// SessionCookieName is the cookie carrying the access credential for browser clients
const SessionCookieName = "auth_token"

// Handler exposes Service over HTTP
type Handler struct {
	service      *Service
	secureCookie bool
	logger       *zap.Logger
	now          func() time.Time
}

// NewHandler creates a new auth handler. secureCookie marks the session cookie Secure.
func NewHandler(service *Service, secureCookie bool, logger *zap.Logger) *Handler {
	return &Handler{
		service:      service,
		secureCookie: secureCookie,
		logger:       logger,
		now:          time.Now,
	}
}

// HandleLogin authenticates email and password and opens a session
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		handlers.HandleValidationError(w, err, h.logger)
		return
	}

	result, err := h.service.Login(r.Context(), req, audit.MetaFromRequest(r))
	if err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}

	h.setSessionCookie(w, result.Tokens.AccessToken, result.Tokens.AccessExpiresAt)
	_ = utils.WriteOK(w, result)
}

// HandleRefresh issues a new access credential for the caller's session
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		handlers.HandleValidationError(w, err, h.logger)
		return
	}

	result, err := h.service.Refresh(r.Context(), req, audit.MetaFromRequest(r))
	if err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}

	h.setSessionCookie(w, result.AccessToken, result.AccessExpiresAt)
	_ = utils.WriteOK(w, result)
}

// HandleLogout revokes the session and clears the cookie.
// This should be mounted behind RequireAuth.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipalFromContext(r.Context())
	claims := middleware.GetClaimsFromContext(r.Context())
	if !ok || claims == nil {
		handlers.HandleServiceError(w, services.ErrTokenMissing, h.logger)
		return
	}

	if err := h.service.Logout(r.Context(), principal, claims.SessionID, audit.MetaFromRequest(r)); err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
	_ = utils.WriteOK(w, map[string]string{"status": "logged_out"})
}

// HandleMe returns the authenticated principal
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		handlers.HandleServiceError(w, services.ErrTokenMissing, h.logger)
		return
	}

	result, err := h.service.Me(r.Context(), principal)
	if err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, result)
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(h.now()).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}
