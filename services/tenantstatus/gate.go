// Package tenantstatus decides whether a tenant's lifecycle state lets a
// request through.
package tenantstatus

import (
	"strings"

	"github.com/upb/campaign-gateway/models"
	"github.com/upb/campaign-gateway/services"
)

// Outcome is the result of evaluating a request
type Outcome string

const (
	OutcomeAllow           Outcome = "allow"
	OutcomePaymentRequired Outcome = "payment_required"
	OutcomeInactive        Outcome = "inactive"
)

// Decision carries the outcome and, for payment required, the billing route
type Decision struct {
	Outcome    Outcome
	RedirectTo string
}

// Allowed reports whether the request may continue
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllow
}

// Err converts a denial into the error returned to the client
func (d Decision) Err() error {
	switch d.Outcome {
	case OutcomePaymentRequired:
		return services.RequiresPayment(d.RedirectTo)
	case OutcomeInactive:
		return services.ErrTenantInactive
	default:
		return nil
	}
}

// Gate evaluates tenant status against the requested path
type Gate struct {
	exempt  []string
	billing string
}

// NewGate creates a Gate. exempt lists the path prefixes reachable while payment is required.
func NewGate(exempt []string, billingRoute string) *Gate {
	g := &Gate{billing: billingRoute}
	for _, p := range exempt {
		if p = normalizePrefix(p); p != "" {
			g.exempt = append(g.exempt, p)
		}
	}
	return g
}

// Evaluate applies, in order: operator bypass, payment required, deactivated
func (g *Gate) Evaluate(role models.UserRole, tenant models.Tenant, path string) Decision {
	if role == models.RoleOperator {
		return Decision{Outcome: OutcomeAllow}
	}

	// Checked before deactivation: blocked tenants must still reach billing
	if tenant.Status.RequiresPayment() {
		if g.Exempt(path) {
			return Decision{Outcome: OutcomeAllow}
		}
		return Decision{Outcome: OutcomePaymentRequired, RedirectTo: g.billing}
	}

	if !tenant.Status.IsActive() && !tenant.IsEnabled {
		return Decision{Outcome: OutcomeInactive}
	}

	return Decision{Outcome: OutcomeAllow}
}

// Exempt reports whether path falls under a payment-exempt prefix.
// Matching is per segment: /gestao covers /gestao/plans but not /gestaox.
func (g *Gate) Exempt(path string) bool {
	if path == "" {
		path = "/"
	}
	for _, prefix := range g.exempt {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

func normalizePrefix(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if p != "/" {
		p = strings.TrimRight(p, "/")
	}
	return p
}
