package tenancy

import (
	"context"
	"database/sql"
	"errors"

	"github.com/upb/campaign-gateway/repositories"
	"go.uber.org/zap"
)

// Unscoped is an executor that deliberately runs outside any tenant scope.
// It exists for the tables the authentication pipeline reads before a tenant
// is known (users, tenants, plans, sessions), which are not under row-level
// security. It cannot be built without stating why.
type Unscoped struct {
	exec   repositories.Executor
	reason string
	logger *zap.Logger
}

// NewUnscoped wraps exec; reason must describe the opted-out call sites
func NewUnscoped(exec repositories.Executor, reason string, logger *zap.Logger) (*Unscoped, error) {
	if reason == "" {
		return nil, errors.New("unscoped executor requires a reason")
	}
	logger.Warn("unscoped database access enabled", zap.String("reason", reason))
	return &Unscoped{exec: exec, reason: reason, logger: logger}, nil
}

// Reason returns the documented justification
func (u *Unscoped) Reason() string {
	return u.reason
}

func (u *Unscoped) trace(query string) {
	if ce := u.logger.Check(zap.DebugLevel, "unscoped statement"); ce != nil {
		ce.Write(zap.String("reason", u.reason), zap.String("query", query))
	}
}

// ExecContext runs a statement on the raw pool
func (u *Unscoped) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	u.trace(query)
	return u.exec.ExecContext(ctx, query, args...)
}

// QueryContext runs a query on the raw pool
func (u *Unscoped) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	u.trace(query)
	return u.exec.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single row query on the raw pool
func (u *Unscoped) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	u.trace(query)
	return u.exec.QueryRowContext(ctx, query, args...)
}
