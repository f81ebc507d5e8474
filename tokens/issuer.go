package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Config holds the signing parameters shared by Issuer and Authenticator
type Config struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Option customises an Issuer or Authenticator
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Issuer signs credentials with HS256
type Issuer struct {
	cfg Config
	now func() time.Time
}

// NewIssuer creates an Issuer
func NewIssuer(cfg Config, opts ...Option) (*Issuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("signing secret is required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	o := buildOptions(opts)
	return &Issuer{cfg: cfg, now: o.now}, nil
}

// Pair is an access credential with its refresh counterpart
type Pair struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Issue signs a single credential of the given type bound to sessionID
func (i *Issuer) Issue(userID, tenantID, sessionID uuid.UUID, typ TokenType) (string, time.Time, error) {
	ttl := i.cfg.AccessTTL
	if typ == TypeRefresh {
		ttl = i.cfg.RefreshTTL
	}

	now := i.now()
	expiresAt := now.Add(ttl)
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		TenantID:  tenantID.String(),
		Type:      typ,
		SessionID: sessionID.String(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign %s token: %w", typ, err)
	}
	return signed, expiresAt, nil
}

// IssuePair signs an access and a refresh credential for the same session
func (i *Issuer) IssuePair(userID, tenantID, sessionID uuid.UUID) (*Pair, error) {
	access, accessExp, err := i.Issue(userID, tenantID, sessionID, TypeAccess)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := i.Issue(userID, tenantID, sessionID, TypeRefresh)
	if err != nil {
		return nil, err
	}
	return &Pair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}
