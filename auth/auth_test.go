package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/campaign-gateway/middleware"
	"github.com/upb/campaign-gateway/models"
	"github.com/upb/campaign-gateway/repositories"
	"github.com/upb/campaign-gateway/repositories/postgres"
	"github.com/upb/campaign-gateway/services"
	"github.com/upb/campaign-gateway/services/audit"
	"github.com/upb/campaign-gateway/sessions"
	"github.com/upb/campaign-gateway/tokens"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var tokenConfig = tokens.Config{
	Secret:     []byte("0123456789abcdef0123456789abcdef"),
	Issuer:     "campaign-gateway",
	AccessTTL:  15 * time.Minute,
	RefreshTTL: time.Hour,
}

const password = "correct-horse-battery"

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if u, ok := args.Get(0).(*models.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if u, ok := args.Get(0).(*models.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserRepository) GetPrincipal(ctx context.Context, userID uuid.UUID) (*models.Principal, error) {
	args := m.Called(ctx, userID)
	if p, ok := args.Get(0).(*models.Principal); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.User, error) {
	args := m.Called(ctx, tenantID, limit, offset)
	if u, ok := args.Get(0).([]*models.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockIdentityLoader struct {
	mock.Mock
}

func (m *mockIdentityLoader) Load(ctx context.Context, userID uuid.UUID) (*models.Principal, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Principal), args.Error(1)
}

// memoryRegistry keeps one session per user
type memoryRegistry struct {
	mu      sync.Mutex
	current map[uuid.UUID]uuid.UUID
}

func newMemoryRegistry() *memoryRegistry {
	return &memoryRegistry{current: make(map[uuid.UUID]uuid.UUID)}
}

func (m *memoryRegistry) IsActive(_ context.Context, sessionID, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current[userID] == sessionID, nil
}

func (m *memoryRegistry) Touch(context.Context, uuid.UUID) {}

func (m *memoryRegistry) Create(_ context.Context, userID uuid.UUID) (*models.SessionLease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lease := models.NewSessionLease(userID)
	m.current[userID] = lease.ID
	return lease, nil
}

func (m *memoryRegistry) Revoke(_ context.Context, userID, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current[userID] == sessionID {
		delete(m.current, userID)
	}
	return nil
}

type event struct {
	action   models.AuditAction
	tenantID uuid.UUID
	userID   uuid.UUID
}

type recordingEvents struct {
	mu     sync.Mutex
	events []event
}

func (r *recordingEvents) add(action models.AuditAction, tenantID, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{action, tenantID, userID})
}

func (r *recordingEvents) LoginFailed(user *models.User, _ audit.RequestMeta) {
	r.add(models.AuditActionLoginFailed, user.TenantID, user.ID)
}

func (r *recordingEvents) Logout(tenantID, userID uuid.UUID, _ audit.RequestMeta) {
	r.add(models.AuditActionLogout, tenantID, userID)
}

func (r *recordingEvents) TokenRefreshed(tenantID, userID uuid.UUID, _ audit.RequestMeta) {
	r.add(models.AuditActionTokenRefreshed, tenantID, userID)
}

type staticFeatures struct {
	features models.FeatureMap
	err      error
}

func (s staticFeatures) Features(context.Context, models.Tenant) (models.FeatureMap, error) {
	return s.features, s.err
}

type inlineRunner struct{}

func (inlineRunner) Go(_ string, run func(ctx context.Context) error) {
	_ = run(context.Background())
}

type fixture struct {
	handler  *Handler
	service  *Service
	users    *mockUserRepository
	loader   *mockIdentityLoader
	events   *recordingEvents
	issuer   *tokens.Issuer
	sqlMock  sqlmock.Sqlmock
	user     *models.User
	registry sessions.Registry
}

// newFixture builds the service on a sqlmock database. A nil registry
// selects the Postgres registry on the same database.
func newFixture(t *testing.T, registry sessions.Registry) *fixture {
	t.Helper()
	sqlDB, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	db, err := postgres.Wrap(sqlDB, zap.NewNop())
	require.NoError(t, err)

	if registry == nil {
		registry = sessions.NewPostgresRegistry(postgres.NewSessionRepository(db, zap.NewNop()), inlineRunner{}, zap.NewNop())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := models.NewUser(uuid.New(), "Ana", "ana@example.com", string(hash), models.RoleAdmin)

	issuer, err := tokens.NewIssuer(tokenConfig)
	require.NoError(t, err)

	f := &fixture{
		users:    new(mockUserRepository),
		loader:   new(mockIdentityLoader),
		events:   &recordingEvents{},
		issuer:   issuer,
		sqlMock:  sqlMock,
		user:     user,
		registry: registry,
	}
	f.service = NewService(ServiceDeps{
		Users:      f.users,
		AuditLogs:  postgres.NewAuditRepository(zap.NewNop()),
		TxManager:  postgres.NewTransactionManager(db, zap.NewNop()),
		Registry:   registry,
		Issuer:     issuer,
		Verifier:   tokens.NewAuthenticator(tokenConfig),
		Identities: f.loader,
		Features:   staticFeatures{features: models.FeatureMap{"campaigns": true, "reports": false}},
		Recorder:   f.events,
		Logger:     zap.NewNop(),
	})
	f.handler = NewHandler(f.service, true, zap.NewNop())
	return f
}

func (f *fixture) principal() models.Principal {
	return models.Principal{
		Identity: f.user.Identity(),
		Tenant:   models.Tenant{ID: f.user.TenantID, Name: "Acme", Status: models.TenantStatusActive, IsEnabled: true},
	}
}

func postJSON(handler http.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func decodeCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body.Code
}

func cookieNamed(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHandleLogin_Success(t *testing.T) {
	f := newFixture(t, nil)
	f.users.On("GetByEmail", mock.Anything, "ana@example.com").Return(f.user, nil)

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectExec(`INSERT INTO user_sessions`).WillReturnResult(sqlmock.NewResult(0, 1))
	f.sqlMock.ExpectExec(`set_config\('app.current_tenant', \$1, true\)`).
		WithArgs(f.user.TenantID.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	f.sqlMock.ExpectExec(`INSERT INTO audit_logs`).WillReturnResult(sqlmock.NewResult(0, 1))
	f.sqlMock.ExpectCommit()

	w := postJSON(f.handler.HandleLogin, "/auth/login", map[string]string{
		"email":    " Ana@Example.com ",
		"password": password,
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NoError(t, f.sqlMock.ExpectationsWereMet())

	var body struct {
		Success bool        `json:"success"`
		Data    LoginResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, f.user.ID, body.Data.User.UserID)

	claims, err := tokens.NewAuthenticator(tokenConfig).Verify(body.Data.Tokens.AccessToken, tokens.TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, body.Data.SessionID, claims.SessionID)
	assert.Equal(t, f.user.TenantID, claims.TenantID)

	refresh, err := tokens.NewAuthenticator(tokenConfig).Verify(body.Data.Tokens.RefreshToken, tokens.TypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, claims.SessionID, refresh.SessionID)

	cookie := cookieNamed(w, SessionCookieName)
	require.NotNil(t, cookie)
	assert.Equal(t, body.Data.Tokens.AccessToken, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Positive(t, cookie.MaxAge)
}

func TestHandleLogin_AuditFailureRollsBack(t *testing.T) {
	f := newFixture(t, nil)
	f.users.On("GetByEmail", mock.Anything, "ana@example.com").Return(f.user, nil)

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectExec(`INSERT INTO user_sessions`).WillReturnResult(sqlmock.NewResult(0, 1))
	f.sqlMock.ExpectExec(`set_config`).WillReturnResult(sqlmock.NewResult(0, 0))
	f.sqlMock.ExpectExec(`INSERT INTO audit_logs`).WillReturnError(errors.New("disk full"))
	f.sqlMock.ExpectRollback()

	w := postJSON(f.handler.HandleLogin, "/auth/login", map[string]string{
		"email":    "ana@example.com",
		"password": password,
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, services.CodeInternal, decodeCode(t, w))
	assert.Nil(t, cookieNamed(w, SessionCookieName))
	assert.NoError(t, f.sqlMock.ExpectationsWereMet())
}

func TestHandleLogin_Rejections(t *testing.T) {
	t.Run("wrong password is audited", func(t *testing.T) {
		f := newFixture(t, newMemoryRegistry())
		f.users.On("GetByEmail", mock.Anything, "ana@example.com").Return(f.user, nil)

		w := postJSON(f.handler.HandleLogin, "/auth/login", map[string]string{
			"email":    "ana@example.com",
			"password": "wrong-password",
		})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, services.CodeInvalidCredentials, decodeCode(t, w))
		require.Len(t, f.events.events, 1)
		assert.Equal(t, models.AuditActionLoginFailed, f.events.events[0].action)
	})

	t.Run("unknown email looks like a wrong password", func(t *testing.T) {
		f := newFixture(t, newMemoryRegistry())
		f.users.On("GetByEmail", mock.Anything, "ghost@example.com").
			Return(nil, repositories.ErrNotFound)

		w := postJSON(f.handler.HandleLogin, "/auth/login", map[string]string{
			"email":    "ghost@example.com",
			"password": password,
		})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, services.CodeInvalidCredentials, decodeCode(t, w))
		assert.Empty(t, f.events.events)
	})

	t.Run("store failure is internal", func(t *testing.T) {
		f := newFixture(t, newMemoryRegistry())
		f.users.On("GetByEmail", mock.Anything, "ana@example.com").
			Return(nil, errors.New("connection refused"))

		w := postJSON(f.handler.HandleLogin, "/auth/login", map[string]string{
			"email":    "ana@example.com",
			"password": password,
		})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		f := newFixture(t, newMemoryRegistry())

		w := postJSON(f.handler.HandleLogin, "/auth/login", map[string]string{"email": "not-an-email"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, services.CodeValidationFailed, decodeCode(t, w))
		f.users.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
	})
}

func TestLogin_SecondLoginSupersedesFirst(t *testing.T) {
	registry := newMemoryRegistry()
	f := newFixture(t, registry)
	f.users.On("GetByEmail", mock.Anything, "ana@example.com").Return(f.user, nil)

	login := func() *LoginResult {
		f.sqlMock.ExpectBegin()
		f.sqlMock.ExpectExec(`set_config`).WillReturnResult(sqlmock.NewResult(0, 0))
		f.sqlMock.ExpectExec(`INSERT INTO audit_logs`).WillReturnResult(sqlmock.NewResult(0, 1))
		f.sqlMock.ExpectCommit()
		result, err := f.service.Login(context.Background(), LoginRequest{Email: "ana@example.com", Password: password}, audit.RequestMeta{})
		require.NoError(t, err)
		return result
	}

	first := login()
	second := login()
	require.NotEqual(t, first.SessionID, second.SessionID)

	f.loader.On("Load", mock.Anything, f.user.ID).Return(&models.Principal{
		Identity: f.user.Identity(),
		Tenant:   models.Tenant{ID: f.user.TenantID},
	}, nil)

	_, err := f.service.Refresh(context.Background(), RefreshRequest{RefreshToken: first.Tokens.RefreshToken}, audit.RequestMeta{})
	assert.ErrorIs(t, err, services.ErrSessionInvalid)

	refreshed, err := f.service.Refresh(context.Background(), RefreshRequest{RefreshToken: second.Tokens.RefreshToken}, audit.RequestMeta{})
	require.NoError(t, err)
	claims, err := tokens.NewAuthenticator(tokenConfig).Verify(refreshed.AccessToken, tokens.TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, second.SessionID, claims.SessionID)
}

func TestHandleRefresh(t *testing.T) {
	t.Run("issues access credential for current session", func(t *testing.T) {
		registry := newMemoryRegistry()
		f := newFixture(t, registry)
		lease, _ := registry.Create(context.Background(), f.user.ID)
		refresh, _, err := f.issuer.Issue(f.user.ID, f.user.TenantID, lease.ID, tokens.TypeRefresh)
		require.NoError(t, err)
		p := f.principal()
		f.loader.On("Load", mock.Anything, f.user.ID).Return(&p, nil)

		w := postJSON(f.handler.HandleRefresh, "/auth/refresh", map[string]string{"refreshToken": refresh})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.NotNil(t, cookieNamed(w, SessionCookieName))
		require.Len(t, f.events.events, 1)
		assert.Equal(t, models.AuditActionTokenRefreshed, f.events.events[0].action)
	})

	t.Run("access credential is not a refresh credential", func(t *testing.T) {
		registry := newMemoryRegistry()
		f := newFixture(t, registry)
		lease, _ := registry.Create(context.Background(), f.user.ID)
		access, _, err := f.issuer.Issue(f.user.ID, f.user.TenantID, lease.ID, tokens.TypeAccess)
		require.NoError(t, err)

		w := postJSON(f.handler.HandleRefresh, "/auth/refresh", map[string]string{"refreshToken": access})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, services.CodeTokenInvalid, decodeCode(t, w))
	})

	t.Run("expired refresh credential", func(t *testing.T) {
		registry := newMemoryRegistry()
		f := newFixture(t, registry)
		lease, _ := registry.Create(context.Background(), f.user.ID)
		past, err := tokens.NewIssuer(tokenConfig, tokens.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }))
		require.NoError(t, err)
		refresh, _, err := past.Issue(f.user.ID, f.user.TenantID, lease.ID, tokens.TypeRefresh)
		require.NoError(t, err)

		w := postJSON(f.handler.HandleRefresh, "/auth/refresh", map[string]string{"refreshToken": refresh})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, services.CodeTokenExpired, decodeCode(t, w))
	})

	t.Run("disabled user", func(t *testing.T) {
		registry := newMemoryRegistry()
		f := newFixture(t, registry)
		lease, _ := registry.Create(context.Background(), f.user.ID)
		refresh, _, err := f.issuer.Issue(f.user.ID, f.user.TenantID, lease.ID, tokens.TypeRefresh)
		require.NoError(t, err)
		f.loader.On("Load", mock.Anything, f.user.ID).Return(nil, services.ErrUserNotFound)

		w := postJSON(f.handler.HandleRefresh, "/auth/refresh", map[string]string{"refreshToken": refresh})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, services.CodeUserNotFound, decodeCode(t, w))
	})
}

func (f *fixture) logoutRequest(sessionID uuid.UUID) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	ctx := middleware.WithClaims(req.Context(), &tokens.Claims{
		UserID:    f.user.ID,
		TenantID:  f.user.TenantID,
		SessionID: sessionID,
		Type:      tokens.TypeAccess,
	})
	return req.WithContext(middleware.WithPrincipal(ctx, f.principal()))
}

func TestHandleLogout(t *testing.T) {
	registry := newMemoryRegistry()
	f := newFixture(t, registry)
	lease, _ := registry.Create(context.Background(), f.user.ID)

	w := httptest.NewRecorder()
	f.handler.HandleLogout(w, f.logoutRequest(lease.ID))

	require.Equal(t, http.StatusOK, w.Code)
	active, _ := registry.IsActive(context.Background(), lease.ID, f.user.ID)
	assert.False(t, active)

	cookie := cookieNamed(w, SessionCookieName)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, models.AuditActionLogout, f.events.events[0].action)
	assert.Equal(t, f.user.TenantID, f.events.events[0].tenantID)
}

func TestHandleLogout_StaleSessionKeepsNewLease(t *testing.T) {
	registry := newMemoryRegistry()
	f := newFixture(t, registry)
	first, _ := registry.Create(context.Background(), f.user.ID)
	second, _ := registry.Create(context.Background(), f.user.ID)

	w := httptest.NewRecorder()
	f.handler.HandleLogout(w, f.logoutRequest(first.ID))

	require.Equal(t, http.StatusOK, w.Code)
	active, _ := registry.IsActive(context.Background(), second.ID, f.user.ID)
	assert.True(t, active, "device B stays signed in")
}

func TestHandleLogout_RequiresCredential(t *testing.T) {
	f := newFixture(t, newMemoryRegistry())

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req = req.WithContext(middleware.WithPrincipal(req.Context(), f.principal()))
	w := httptest.NewRecorder()
	f.handler.HandleLogout(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, f.events.events)
}

func TestHandleMe(t *testing.T) {
	f := newFixture(t, newMemoryRegistry())

	t.Run("returns principal and features", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req = req.WithContext(middleware.WithPrincipal(req.Context(), f.principal()))
		w := httptest.NewRecorder()
		f.handler.HandleMe(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Data MeResult `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, f.user.ID, body.Data.User.UserID)
		assert.Equal(t, f.user.TenantID, body.Data.Tenant.ID)
		assert.True(t, body.Data.Features["campaigns"])
		assert.False(t, body.Data.Features["reports"])
	})

	t.Run("requires principal", func(t *testing.T) {
		w := httptest.NewRecorder()
		f.handler.HandleMe(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

type recordingThrottle struct {
	blocked  error
	failures [][]string
	resets   []string
}

func (r *recordingThrottle) Check(context.Context, ...string) error { return r.blocked }

func (r *recordingThrottle) RecordFailure(_ context.Context, keys ...string) error {
	r.failures = append(r.failures, keys)
	return nil
}

func (r *recordingThrottle) Reset(_ context.Context, key string) error {
	r.resets = append(r.resets, key)
	return nil
}

func TestLogin_Throttle(t *testing.T) {
	meta := audit.RequestMeta{IPAddress: "10.0.0.1"}

	t.Run("throttled before any lookup", func(t *testing.T) {
		f := newFixture(t, newMemoryRegistry())
		throttle := &recordingThrottle{blocked: services.ErrTooManyAttempts.WithDetail(services.DetailRetryAfter, 30)}
		f.service.throttle = throttle

		w := postJSON(f.handler.HandleLogin, "/auth/login", LoginRequest{Email: "ana@example.com", Password: "wrong"})

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "TOO_MANY_ATTEMPTS", decodeCode(t, w))
		assert.Equal(t, "30", w.Header().Get("Retry-After"))
		f.users.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
	})

	t.Run("wrong password counts against email and address", func(t *testing.T) {
		f := newFixture(t, newMemoryRegistry())
		throttle := &recordingThrottle{}
		f.service.throttle = throttle
		f.users.On("GetByEmail", mock.Anything, "ana@example.com").Return(f.user, nil)

		_, err := f.service.Login(context.Background(), LoginRequest{Email: "Ana@Example.com", Password: "wrong"}, meta)
		assert.ErrorIs(t, err, services.ErrInvalidCredentials)
		assert.Equal(t, [][]string{{"email:ana@example.com", "ip:10.0.0.1"}}, throttle.failures)
		assert.Empty(t, throttle.resets)
	})

	t.Run("unknown email counts too", func(t *testing.T) {
		f := newFixture(t, newMemoryRegistry())
		throttle := &recordingThrottle{}
		f.service.throttle = throttle
		f.users.On("GetByEmail", mock.Anything, "ghost@example.com").Return(nil, repositories.ErrNotFound)

		_, err := f.service.Login(context.Background(), LoginRequest{Email: "ghost@example.com", Password: "whatever"}, meta)
		assert.ErrorIs(t, err, services.ErrInvalidCredentials)
		assert.Len(t, throttle.failures, 1)
	})

	t.Run("success resets the email key", func(t *testing.T) {
		f := newFixture(t, newMemoryRegistry())
		throttle := &recordingThrottle{}
		f.service.throttle = throttle
		f.users.On("GetByEmail", mock.Anything, "ana@example.com").Return(f.user, nil)

		f.sqlMock.ExpectBegin()
		f.sqlMock.ExpectExec(`set_config`).WillReturnResult(sqlmock.NewResult(0, 0))
		f.sqlMock.ExpectExec(`INSERT INTO audit_logs`).WillReturnResult(sqlmock.NewResult(0, 1))
		f.sqlMock.ExpectCommit()

		_, err := f.service.Login(context.Background(), LoginRequest{Email: "ana@example.com", Password: password}, meta)
		require.NoError(t, err)
		assert.Equal(t, []string{"email:ana@example.com"}, throttle.resets)
		assert.Empty(t, throttle.failures)
	})
}
