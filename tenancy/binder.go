package tenancy

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/campaign-gateway/internal/observability"
	"github.com/upb/campaign-gateway/models"
	"github.com/upb/campaign-gateway/repositories"
	"github.com/upb/campaign-gateway/services"
	"go.uber.org/zap"
)

const (
	bindTenantSQL   = `SELECT set_config('app.current_tenant', $1, false), set_config('app.bypass_rls', 'off', false)`
	bindOperatorSQL = `SELECT set_config('app.bypass_rls', 'on', false), set_config('app.current_tenant', '', false)`
	scopeTxSQL      = `SELECT set_config('app.current_tenant', $1, true)`
)

// Binder leases connections from the pool and scopes them
type Binder struct {
	db           *sql.DB
	sentinel     *Sentinel
	logger       *zap.Logger
	metrics      *observability.Metrics
	leaseTimeout time.Duration
	resetTimeout time.Duration
}

// BinderOption configures a Binder
type BinderOption func(*Binder)

// WithSentinel audits every statement issued through leases
func WithSentinel(s *Sentinel) BinderOption {
	return func(b *Binder) {
		b.sentinel = s
	}
}

// WithLeaseTimeout bounds the wait for a pooled connection
func WithLeaseTimeout(d time.Duration) BinderOption {
	return func(b *Binder) {
		if d > 0 {
			b.leaseTimeout = d
		}
	}
}

// WithMetrics records lease gauges and counters
func WithMetrics(m *observability.Metrics) BinderOption {
	return func(b *Binder) {
		b.metrics = m
	}
}

// NewBinder creates a Binder over the shared pool
func NewBinder(db *sql.DB, logger *zap.Logger, opts ...BinderOption) *Binder {
	b := &Binder{
		db:           db,
		logger:       logger,
		leaseTimeout: 5 * time.Second,
		resetTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bind leases a connection scoped to tenantID.
// Any failure is reported as TENANT_CONTEXT_UNAVAILABLE; there is no unscoped fallback.
func (b *Binder) Bind(ctx context.Context, tenantID uuid.UUID) (*Lease, error) {
	if tenantID == uuid.Nil {
		return nil, services.ErrTenantRequired
	}
	lease, err := b.acquire(ctx, ScopeTenant, bindTenantSQL, tenantID.String())
	if err != nil {
		return nil, err
	}
	lease.tenantID = tenantID
	return lease, nil
}

// BindOperator leases a connection with row-level isolation disabled.
// Only operators may hold such a lease.
func (b *Binder) BindOperator(ctx context.Context, identity models.Identity) (*Lease, error) {
	if !identity.IsOperator() {
		return nil, services.ErrInsufficientPermissions
	}
	lease, err := b.acquire(ctx, ScopeOperator, bindOperatorSQL)
	if err != nil {
		return nil, err
	}
	lease.actorID = identity.UserID
	b.logger.Info("operator bypass lease granted", zap.String("user_id", identity.UserID.String()))
	return lease, nil
}

func (b *Binder) acquire(ctx context.Context, scope Scope, scopeSQL string, args ...interface{}) (*Lease, error) {
	leaseCtx, cancel := context.WithTimeout(ctx, b.leaseTimeout)
	defer cancel()

	conn, err := b.db.Conn(leaseCtx)
	if err != nil {
		b.metrics.LeaseFailed(string(scope), "lease")
		b.logger.Error("failed to lease connection", zap.String("scope", string(scope)), zap.Error(err))
		return nil, services.WrapIsolation(fmt.Errorf("lease connection: %w", err))
	}

	if _, err := conn.ExecContext(leaseCtx, scopeSQL, args...); err != nil {
		b.metrics.LeaseFailed(string(scope), "scope")
		b.logger.Error("failed to scope connection", zap.String("scope", string(scope)), zap.Error(err))
		// The scope may be half applied; never hand this connection to anyone else
		discardConn(conn)
		return nil, services.WrapIsolation(fmt.Errorf("set connection scope: %w", err))
	}

	b.metrics.LeaseAcquired(string(scope))

	var exec repositories.Executor = conn
	if b.sentinel != nil {
		exec = b.sentinel.Wrap(conn, "")
	}

	return &Lease{
		conn:         conn,
		exec:         exec,
		scope:        scope,
		logger:       b.logger,
		metrics:      b.metrics,
		resetTimeout: b.resetTimeout,
	}, nil
}

func discardConn(conn *sql.Conn) {
	_ = conn.Raw(func(interface{}) error { return driver.ErrBadConn })
	_ = conn.Close()
}

// ScopeTx applies a transaction-local tenant scope, cleared automatically at commit or rollback
func ScopeTx(ctx context.Context, exec repositories.Executor, tenantID uuid.UUID) error {
	if tenantID == uuid.Nil {
		return services.ErrTenantRequired
	}
	if _, err := exec.ExecContext(ctx, scopeTxSQL, tenantID.String()); err != nil {
		return services.WrapIsolation(fmt.Errorf("set transaction scope: %w", err))
	}
	return nil
}

// IsUnavailable reports whether err is a binding failure
func IsUnavailable(err error) bool {
	return errors.Is(err, services.ErrTenantContextUnavailable)
}
