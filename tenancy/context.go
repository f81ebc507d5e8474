package tenancy

import (
	"context"
	"errors"

	"github.com/upb/campaign-gateway/services"
)

type leaseKey struct{}

// ErrScopeAlreadyBound is returned when a request tries to bind a second
// scope. Tenant and operator channels never share a request.
var ErrScopeAlreadyBound = services.NewDomainError(
	services.ErrorTypeIsolation,
	services.CodeTenantContextUnavailable,
	"connection scope already bound for this request",
	nil,
)

// ErrNotBound is returned by Scoped when no lease is attached to the context
var ErrNotBound = services.ErrTenantContextUnavailable.Wrap(errors.New("no connection scope bound to request"))

// WithLease returns a copy of ctx carrying lease
func WithLease(ctx context.Context, lease *Lease) context.Context {
	return context.WithValue(ctx, leaseKey{}, lease)
}

// Attach stores lease on ctx unless a scope is already bound
func Attach(ctx context.Context, lease *Lease) (context.Context, error) {
	if _, ok := FromContext(ctx); ok {
		return ctx, ErrScopeAlreadyBound
	}
	return WithLease(ctx, lease), nil
}

// FromContext returns the lease bound to ctx, if any
func FromContext(ctx context.Context) (*Lease, bool) {
	lease, ok := ctx.Value(leaseKey{}).(*Lease)
	return lease, ok && lease != nil
}

// Scoped returns the lease bound to ctx or ErrNotBound
func Scoped(ctx context.Context) (*Lease, error) {
	lease, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNotBound
	}
	return lease, nil
}
