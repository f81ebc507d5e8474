package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionLease records the single currently valid session of a user.
// Creating a new lease for a user replaces the previous one.
type SessionLease struct {
	ID             uuid.UUID `json:"id" db:"id"`
	UserID         uuid.UUID `json:"user_id" db:"user_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at" db:"last_activity_at"`
}

// NewSessionLease creates a fresh lease for userID
func NewSessionLease(userID uuid.UUID) *SessionLease {
	now := time.Now()
	return &SessionLease{
		ID:             uuid.New(),
		UserID:         userID,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}
