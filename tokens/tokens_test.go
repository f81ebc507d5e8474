package tokens

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func testConfig() Config {
	return Config{
		Secret:     testSecret,
		Issuer:     "campaign-gateway",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func issue(t *testing.T, cfg Config, at time.Time, typ TokenType) (string, uuid.UUID, uuid.UUID, uuid.UUID) {
	t.Helper()
	issuer, err := NewIssuer(cfg, WithClock(fixedClock(at)))
	require.NoError(t, err)

	userID, tenantID, sessionID := uuid.New(), uuid.New(), uuid.New()
	token, _, err := issuer.Issue(userID, tenantID, sessionID, typ)
	require.NoError(t, err)
	return token, userID, tenantID, sessionID
}

func TestNewIssuer_Validation(t *testing.T) {
	_, err := NewIssuer(Config{AccessTTL: time.Minute, RefreshTTL: time.Hour})
	assert.Error(t, err)

	_, err = NewIssuer(Config{Secret: testSecret, AccessTTL: 0, RefreshTTL: time.Hour})
	assert.Error(t, err)
}

func TestAuthenticate_Success(t *testing.T) {
	now := time.Now()
	token, userID, tenantID, sessionID := issue(t, testConfig(), now, TypeAccess)

	auth := NewAuthenticator(testConfig(), WithClock(fixedClock(now.Add(time.Minute))))
	claims, err := auth.Authenticate("Bearer " + token)
	require.NoError(t, err)

	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, tenantID, claims.TenantID)
	assert.Equal(t, sessionID, claims.SessionID)
	assert.Equal(t, TypeAccess, claims.Type)
	assert.WithinDuration(t, now.Add(15*time.Minute), claims.ExpiresAt, time.Second)
}

func TestAuthenticate_Failures(t *testing.T) {
	now := time.Now()
	cfg := testConfig()

	valid, _, _, _ := issue(t, cfg, now, TypeAccess)
	refresh, _, _, _ := issue(t, cfg, now, TypeRefresh)
	expired, _, _, _ := issue(t, cfg, now.Add(-time.Hour), TypeAccess)

	otherSecret := cfg
	otherSecret.Secret = []byte("another-secret-another-secret-xx")
	forged, _, _, _ := issue(t, otherSecret, now, TypeAccess)
	forgedExpired, _, _, _ := issue(t, otherSecret, now.Add(-time.Hour), TypeAccess)

	otherIssuer := cfg
	otherIssuer.Issuer = "someone-else"
	foreign, _, _, _ := issue(t, otherIssuer, now, TypeAccess)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		TenantID:  uuid.NewString(),
		SessionID: uuid.NewString(),
		Type:      TypeAccess,
	}).SignedString(testSecret)
	require.NoError(t, err)

	noTenant, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		SessionID: uuid.NewString(),
		Type:      TypeAccess,
	}).SignedString(testSecret)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: uuid.NewString(),
			Issuer:  cfg.Issuer,
		},
		TenantID:  uuid.NewString(),
		SessionID: uuid.NewString(),
		Type:      TypeAccess,
	}).SignedString(testSecret)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   error
	}{
		{"empty header", "", ErrMissingCredential},
		{"basic scheme", "Basic dXNlcjpwYXNz", ErrMissingCredential},
		{"bearer without credential", "Bearer ", ErrMissingCredential},
		{"scheme only", "Bearer", ErrMissingCredential},
		{"garbage", "Bearer not.a.jwt", ErrInvalidCredential},
		{"bad signature", "Bearer " + forged, ErrInvalidCredential},
		{"bad signature and expired", "Bearer " + forgedExpired, ErrInvalidCredential},
		{"wrong issuer", "Bearer " + foreign, ErrInvalidCredential},
		{"refresh token", "Bearer " + refresh, ErrInvalidCredential},
		{"unexpected algorithm", "Bearer " + hs512, ErrInvalidCredential},
		{"missing tenant claim", "Bearer " + noTenant, ErrInvalidCredential},
		{"missing expiry", "Bearer " + noExpiry, ErrInvalidCredential},
		{"expired", "Bearer " + expired, ErrExpiredCredential},
	}

	auth := NewAuthenticator(cfg, WithClock(fixedClock(now)))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := auth.Authenticate(tt.header)
			assert.Nil(t, claims)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("valid control", func(t *testing.T) {
		_, err := auth.Authenticate("Bearer " + valid)
		assert.NoError(t, err)
	})
}

func TestVerify_Refresh(t *testing.T) {
	now := time.Now()
	refresh, userID, _, sessionID := issue(t, testConfig(), now, TypeRefresh)

	auth := NewAuthenticator(testConfig(), WithClock(fixedClock(now.Add(24*time.Hour))))
	claims, err := auth.Verify(refresh, TypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, sessionID, claims.SessionID)

	_, err = auth.Verify("", TypeRefresh)
	assert.ErrorIs(t, err, ErrMissingCredential)
}

func TestIssuePair(t *testing.T) {
	now := time.Now()
	issuer, err := NewIssuer(testConfig(), WithClock(fixedClock(now)))
	require.NoError(t, err)

	sessionID := uuid.New()
	pair, err := issuer.IssuePair(uuid.New(), uuid.New(), sessionID)
	require.NoError(t, err)

	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))

	auth := NewAuthenticator(testConfig(), WithClock(fixedClock(now)))
	access, err := auth.Verify(pair.AccessToken, TypeAccess)
	require.NoError(t, err)
	refresh, err := auth.Verify(pair.RefreshToken, TypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, access.SessionID, refresh.SessionID)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"BEARER   abc  ", "abc", true},
		{"Token abc", "", false},
		{"Bearer", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := BearerToken(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
