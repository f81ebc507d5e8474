// Package tenancy binds request identity to leased database connections so
// that PostgreSQL row-level security policies see the caller's tenant.
package tenancy

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/upb/campaign-gateway/internal/observability"
	"github.com/upb/campaign-gateway/repositories"
	"go.uber.org/zap"
)

// Scope is the isolation mode carried by a leased connection
type Scope string

const (
	// ScopeTenant restricts rows to one tenant
	ScopeTenant Scope = "tenant"
	// ScopeOperator disables row-level isolation for platform operators
	ScopeOperator Scope = "operator"
)

// Session variables consulted by the row-level security policies
const (
	TenantSetting = "app.current_tenant"
	BypassSetting = "app.bypass_rls"
)

const resetScopeSQL = `SELECT set_config('app.current_tenant', '', false), set_config('app.bypass_rls', 'off', false)`

// ErrLeaseReleased is returned by statements issued after Release
var ErrLeaseReleased = errors.New("connection lease already released")

// Lease is a checked-out connection carrying a tenant or operator scope.
// Release is idempotent; only the first call has an effect.
type Lease struct {
	conn     *sql.Conn
	exec     repositories.Executor
	scope    Scope
	tenantID uuid.UUID
	actorID  uuid.UUID

	logger       *zap.Logger
	metrics      *observability.Metrics
	resetTimeout time.Duration

	once     sync.Once
	released atomic.Bool
}

// Scope returns the isolation mode of the lease
func (l *Lease) Scope() Scope {
	return l.scope
}

// TenantID returns the bound tenant, or uuid.Nil for operator leases
func (l *Lease) TenantID() uuid.UUID {
	return l.tenantID
}

// ActorID returns the user the lease was bound for
func (l *Lease) ActorID() uuid.UUID {
	return l.actorID
}

// Released reports whether Release has been called
func (l *Lease) Released() bool {
	return l.released.Load()
}

// ExecContext runs a statement on the scoped connection
func (l *Lease) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if l.released.Load() {
		return nil, ErrLeaseReleased
	}
	return l.exec.ExecContext(ctx, query, args...)
}

// QueryContext runs a query on the scoped connection
func (l *Lease) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if l.released.Load() {
		return nil, ErrLeaseReleased
	}
	return l.exec.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single row query on the scoped connection.
// After release the row carries a cancelled context error.
func (l *Lease) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	if l.released.Load() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		ctx = cancelled
	}
	return l.exec.QueryRowContext(ctx, query, args...)
}

// Release clears the scope and returns the connection to the pool. If the
// scope cannot be cleared the connection is discarded instead, so a scoped
// connection never serves another request.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.released.Store(true)

		// The request context may already be cancelled; the reset must still run.
		ctx, cancel := context.WithTimeout(context.Background(), l.resetTimeout)
		defer cancel()

		discarded := false
		if _, err := l.conn.ExecContext(ctx, resetScopeSQL); err != nil {
			discarded = true
			l.logger.Error("failed to reset connection scope, discarding connection",
				zap.String("scope", string(l.scope)),
				zap.String("tenant_id", l.tenantID.String()),
				zap.Error(err))
			_ = l.conn.Raw(func(interface{}) error { return driver.ErrBadConn })
		}

		if err := l.conn.Close(); err != nil && !discarded {
			l.logger.Warn("failed to return connection to pool", zap.Error(err))
		}

		l.metrics.LeaseReleased(string(l.scope), discarded)
		l.logger.Debug("connection lease released",
			zap.String("scope", string(l.scope)),
			zap.Bool("discarded", discarded))
	})
}
