package tokens

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authenticator verifies credentials. It never touches storage.
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator for credentials signed with cfg.Secret
func NewAuthenticator(cfg Config, opts ...Option) *Authenticator {
	o := buildOptions(opts)
	return &Authenticator{
		secret: cfg.Secret,
		issuer: cfg.Issuer,
		now:    o.now,
	}
}

// Authenticate verifies an Authorization header value of the form "Bearer <credential>".
// Only access credentials are accepted.
func (a *Authenticator) Authenticate(header string) (*Claims, error) {
	token, ok := BearerToken(header)
	if !ok {
		return nil, ErrMissingCredential
	}
	return a.Verify(token, TypeAccess)
}

// Verify checks signature, expiry, issuer and type of a raw credential
func (a *Authenticator) Verify(token string, want TokenType) (*Claims, error) {
	if token == "" {
		return nil, ErrMissingCredential
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.issuer))
	}

	raw := &jwtClaims{}
	parsed, err := jwt.ParseWithClaims(token, raw, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, parserOpts...)
	if err != nil {
		// Signature is checked before claims, so an expired error implies a genuine credential
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenInvalidIssuer) {
			return nil, ErrExpiredCredential
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidCredential
	}

	if raw.Type != want {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrInvalidCredential, want, raw.Type)
	}

	claims, err := parseClaims(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	return claims, nil
}

// BearerToken extracts the credential from "Bearer <credential>".
// The scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
