// Package ownership confirms that a path-addressed resource belongs to the
// caller's tenant.
package ownership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/upb/campaign-gateway/repositories"
	"github.com/upb/campaign-gateway/services"
)

// DefaultTables are the tenant-owned tables addressable by id in routes
var DefaultTables = []string{"campaigns", "contacts", "contact_lists", "templates"}

// Verifier checks resource ownership against a fixed table set
type Verifier struct {
	tables map[string]struct{}
}

// NewVerifier registers the tables Verify may query
func NewVerifier(tables ...string) *Verifier {
	v := &Verifier{tables: make(map[string]struct{}, len(tables))}
	for _, t := range tables {
		v.tables[t] = struct{}{}
	}
	return v
}

// Verify returns nil when resourceID is empty or names a row of tenantID in table.
// Foreign and missing rows both return ErrResourceNotFound.
func (v *Verifier) Verify(ctx context.Context, exec repositories.Executor, table, resourceID string, tenantID uuid.UUID) error {
	if resourceID == "" {
		return nil
	}
	if _, ok := v.tables[table]; !ok {
		return services.WrapInternal("ownership check on unregistered table", fmt.Errorf("table %q", table))
	}
	if tenantID == uuid.Nil {
		return services.ErrTenantRequired
	}

	id, err := uuid.Parse(resourceID)
	if err != nil {
		return services.ErrResourceNotFound
	}

	query, args, err := sq.Select("1").
		From(table).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"tenant_id": tenantID}).
		Limit(1).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return services.WrapInternal("failed to build ownership query", err)
	}

	var one int
	if err := exec.QueryRowContext(ctx, query, args...).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return services.ErrResourceNotFound
		}
		return services.WrapInternal("failed to verify ownership", err)
	}
	return nil
}
