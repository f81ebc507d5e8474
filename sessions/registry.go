// Package sessions tracks the single valid session of each user. Logging in
// again replaces the previous lease, which invalidates every token bound to it.
package sessions

import (
	"context"

	"github.com/google/uuid"
	"github.com/upb/campaign-gateway/models"
)

// Validator is consulted by the request pipeline
type Validator interface {
	// IsActive reports whether sessionID is the user's current lease
	IsActive(ctx context.Context, sessionID, userID uuid.UUID) (bool, error)

	// Touch records activity on the lease. It never blocks and never fails the caller.
	Touch(ctx context.Context, sessionID uuid.UUID)
}

// Registry extends Validator with the operations used by login and logout
type Registry interface {
	Validator

	// Create issues a new lease for the user, replacing any previous one
	Create(ctx context.Context, userID uuid.UUID) (*models.SessionLease, error)

	// Revoke drops sessionID if it is still the user's lease. A superseded
	// session leaves the current lease in place.
	Revoke(ctx context.Context, userID, sessionID uuid.UUID) error
}
