// Package tokens issues and verifies the signed credentials carried by API calls.
package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes short-lived access credentials from refresh credentials
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

var (
	// ErrMissingCredential is returned when no bearer credential was presented
	ErrMissingCredential = errors.New("missing credential")

	// ErrInvalidCredential is returned for bad signatures, malformed payloads and wrong token types
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrExpiredCredential is returned when a correctly signed credential is past its expiry
	ErrExpiredCredential = errors.New("credential expired")
)

// jwtClaims is the wire form of a credential
type jwtClaims struct {
	jwt.RegisteredClaims
	TenantID  string    `json:"tid"`
	Type      TokenType `json:"typ"`
	SessionID string    `json:"sid"`
}

// Claims is a verified credential
type Claims struct {
	UserID    uuid.UUID
	TenantID  uuid.UUID
	SessionID uuid.UUID
	Type      TokenType
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// parseClaims converts wire claims, rejecting anything that is not a well formed id
func parseClaims(c *jwtClaims) (*Claims, error) {
	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid sub: %w", err)
	}
	tenantID, err := uuid.Parse(c.TenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tid: %w", err)
	}
	sessionID, err := uuid.Parse(c.SessionID)
	if err != nil {
		return nil, fmt.Errorf("invalid sid: %w", err)
	}

	parsed := &Claims{
		UserID:    userID,
		TenantID:  tenantID,
		SessionID: sessionID,
		Type:      c.Type,
	}
	if c.IssuedAt != nil {
		parsed.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		parsed.ExpiresAt = c.ExpiresAt.Time
	}
	return parsed, nil
}
