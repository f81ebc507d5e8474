// Package identity resolves authenticated claims into the user and tenant
// records a request runs as.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/campaign-gateway/models"
	"github.com/upb/campaign-gateway/repositories"
	"github.com/upb/campaign-gateway/services"
	"github.com/upb/campaign-gateway/services/background"
	"go.uber.org/zap"
)

const lastSeenTaskKind = "tenant_last_seen"

// ErrPrincipalNotFound is returned for deleted and disabled users alike
var ErrPrincipalNotFound = services.ErrUserNotFound

// Loader joins users with their tenant
type Loader struct {
	users   repositories.UserRepository
	tenants repositories.TenantRepository
	runner  background.Runner
	logger  *zap.Logger
	now     func() time.Time
}

// NewLoader creates a Loader. Last-seen stamps are submitted to runner.
func NewLoader(users repositories.UserRepository, tenants repositories.TenantRepository, runner background.Runner, logger *zap.Logger) *Loader {
	return &Loader{
		users:   users,
		tenants: tenants,
		runner:  runner,
		logger:  logger,
		now:     time.Now,
	}
}

// Load returns the principal for an enabled user
func (l *Loader) Load(ctx context.Context, userID uuid.UUID) (*models.Principal, error) {
	principal, err := l.users.GetPrincipal(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrPrincipalNotFound
		}
		return nil, services.WrapInternal("failed to load principal", err)
	}

	l.touchTenant(principal.Tenant.ID)
	return principal, nil
}

func (l *Loader) touchTenant(tenantID uuid.UUID) {
	at := l.now()
	l.runner.Go(lastSeenTaskKind, func(ctx context.Context) error {
		if err := l.tenants.TouchLastSeen(ctx, tenantID, at); err != nil {
			l.logger.Debug("tenant last seen update failed",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err))
		}
		return nil
	})
}
