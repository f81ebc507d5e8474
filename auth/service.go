// Package auth implements the credential endpoints: password login, refresh,
// logout and the current principal.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/campaign-gateway/middleware"
	"github.com/upb/campaign-gateway/models"
	"github.com/upb/campaign-gateway/repositories"
	"github.com/upb/campaign-gateway/services"
	"github.com/upb/campaign-gateway/services/audit"
	"github.com/upb/campaign-gateway/services/ratelimit"
	"github.com/upb/campaign-gateway/sessions"
	"github.com/upb/campaign-gateway/tenancy"
	"github.com/upb/campaign-gateway/tokens"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// TokenIssuer signs credentials
type TokenIssuer interface {
	Issue(userID, tenantID, sessionID uuid.UUID, typ tokens.TokenType) (string, time.Time, error)
	IssuePair(userID, tenantID, sessionID uuid.UUID) (*tokens.Pair, error)
}

// EventRecorder queues audit entries written outside the login transaction
type EventRecorder interface {
	LoginFailed(user *models.User, meta audit.RequestMeta)
	Logout(tenantID, userID uuid.UUID, meta audit.RequestMeta)
	TokenRefreshed(tenantID, userID uuid.UUID, meta audit.RequestMeta)
}

// FeatureSource resolves a tenant's effective capabilities
type FeatureSource interface {
	Features(ctx context.Context, tenant models.Tenant) (models.FeatureMap, error)
}

// LoginThrottle bounds failed logins. Check returns ErrTooManyAttempts once a key is over the limit.
type LoginThrottle interface {
	Check(ctx context.Context, keys ...string) error
	RecordFailure(ctx context.Context, keys ...string) error
	Reset(ctx context.Context, key string) error
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}

// Normalize canonicalizes the email so surrounding whitespace and case never
// fail validation or split throttle keys.
func (r *LoginRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

// RefreshRequest is the body of POST /auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// LoginResult is returned by a successful login
type LoginResult struct {
	Tokens    *tokens.Pair    `json:"tokens"`
	SessionID uuid.UUID       `json:"sessionId"`
	User      models.Identity `json:"user"`
}

// RefreshResult carries a new access credential for the same session
type RefreshResult struct {
	AccessToken     string    `json:"accessToken"`
	AccessExpiresAt time.Time `json:"accessExpiresAt"`
}

// MeResult describes the authenticated principal
type MeResult struct {
	User     models.Identity      `json:"user"`
	Tenant   models.TenantSummary `json:"tenant"`
	Features models.FeatureMap    `json:"features"`
}

// Service implements the credential flows
type Service struct {
	users      repositories.UserRepository
	auditLogs  repositories.AuditRepository
	txManager  repositories.TransactionManager
	registry   sessions.Registry
	issuer     TokenIssuer
	verifier   middleware.TokenVerifier
	identities middleware.IdentityLoader
	features   FeatureSource
	recorder   EventRecorder
	throttle   LoginThrottle
	logger     *zap.Logger

	dummyOnce sync.Once
	dummyHash []byte
}

// ServiceDeps groups the collaborators of Service
type ServiceDeps struct {
	Users      repositories.UserRepository
	AuditLogs  repositories.AuditRepository
	TxManager  repositories.TransactionManager
	Registry   sessions.Registry
	Issuer     TokenIssuer
	Verifier   middleware.TokenVerifier
	Identities middleware.IdentityLoader
	Features   FeatureSource
	Recorder   EventRecorder
	Throttle   LoginThrottle // optional
	Logger     *zap.Logger
}

// NewService creates a new Service
func NewService(deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:      deps.Users,
		auditLogs:  deps.AuditLogs,
		txManager:  deps.TxManager,
		registry:   deps.Registry,
		issuer:     deps.Issuer,
		verifier:   deps.Verifier,
		identities: deps.Identities,
		features:   deps.Features,
		recorder:   deps.Recorder,
		throttle:   deps.Throttle,
		logger:     logger,
	}
}

// Login checks the password and opens a new session, replacing the previous
// one. The session row and its audit entry commit together.
func (s *Service) Login(ctx context.Context, req LoginRequest, meta audit.RequestMeta) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	keys := ratelimit.Keys(email, meta.IPAddress)

	if s.throttle != nil {
		if err := s.throttle.Check(ctx, keys...); err != nil {
			return nil, err
		}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// Keep unknown emails as slow as wrong passwords
			_ = bcrypt.CompareHashAndPassword(s.fallbackHash(), []byte(req.Password))
			s.recordFailure(ctx, keys)
			return nil, services.ErrInvalidCredentials
		}
		return nil, services.WrapInternal("failed to look up user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Info("login rejected", zap.String("user_id", user.ID.String()))
		s.recorder.LoginFailed(user, meta)
		s.recordFailure(ctx, keys)
		return nil, services.ErrInvalidCredentials
	}

	lease, err := services.InTx(ctx, s.txManager, func(ctx context.Context, tx repositories.Transaction) (*models.SessionLease, error) {
		lease, err := s.registry.Create(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if err := tenancy.ScopeTx(ctx, tx.Executor(), user.TenantID); err != nil {
			return nil, err
		}
		if err := s.auditLogs.Insert(ctx, audit.LoginEntry(user, lease.ID, meta)); err != nil {
			return nil, err
		}
		return lease, nil
	})
	if err != nil {
		return nil, services.WrapInternal("failed to open session", err)
	}

	pair, err := s.issuer.IssuePair(user.ID, user.TenantID, lease.ID)
	if err != nil {
		return nil, services.WrapInternal("failed to issue credentials", err)
	}

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, ratelimit.EmailKey(email)); err != nil {
			s.logger.Warn("failed to reset login throttle", zap.Error(err))
		}
	}

	s.logger.Info("login succeeded",
		zap.String("user_id", user.ID.String()),
		zap.String("tenant_id", user.TenantID.String()),
		zap.String("session_id", lease.ID.String()))

	return &LoginResult{
		Tokens:    pair,
		SessionID: lease.ID,
		User:      user.Identity(),
	}, nil
}

// Refresh exchanges a refresh credential for a new access credential bound
// to the same session. A superseded session cannot be refreshed.
func (s *Service) Refresh(ctx context.Context, req RefreshRequest, meta audit.RequestMeta) (*RefreshResult, error) {
	claims, err := s.verifier.Verify(req.RefreshToken, tokens.TypeRefresh)
	if err != nil {
		return nil, middleware.CredentialError(err)
	}

	active, err := s.registry.IsActive(ctx, claims.SessionID, claims.UserID)
	if err != nil {
		return nil, services.WrapInternal("failed to validate session", err)
	}
	if !active {
		return nil, services.ErrSessionInvalid
	}

	principal, err := s.identities.Load(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if principal.Tenant.ID != claims.TenantID {
		return nil, services.ErrTokenInvalid
	}

	access, expiresAt, err := s.issuer.Issue(claims.UserID, claims.TenantID, claims.SessionID, tokens.TypeAccess)
	if err != nil {
		return nil, services.WrapInternal("failed to issue credentials", err)
	}
	s.recorder.TokenRefreshed(claims.TenantID, claims.UserID, meta)

	return &RefreshResult{AccessToken: access, AccessExpiresAt: expiresAt}, nil
}

// Logout revokes the session the caller's credential is bound to. A session
// already replaced by a newer login is left alone.
func (s *Service) Logout(ctx context.Context, principal models.Principal, sessionID uuid.UUID, meta audit.RequestMeta) error {
	if err := s.registry.Revoke(ctx, principal.Identity.UserID, sessionID); err != nil {
		return services.WrapInternal("failed to revoke session", err)
	}
	s.recorder.Logout(principal.Tenant.ID, principal.Identity.UserID, meta)
	return nil
}

// Me describes the principal with its effective capabilities
func (s *Service) Me(ctx context.Context, principal models.Principal) (*MeResult, error) {
	features, err := s.features.Features(ctx, principal.Tenant)
	if err != nil {
		return nil, services.WrapInternal("failed to resolve features", err)
	}
	return &MeResult{
		User:     principal.Identity,
		Tenant:   principal.Tenant.Summary(),
		Features: features,
	}, nil
}

func (s *Service) recordFailure(ctx context.Context, keys []string) {
	if s.throttle == nil {
		return
	}
	if err := s.throttle.RecordFailure(ctx, keys...); err != nil {
		s.logger.Warn("failed to record login attempt", zap.Error(err))
	}
}

func (s *Service) fallbackHash() []byte {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
		if err != nil {
			s.logger.Error("failed to generate fallback hash", zap.Error(err))
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
