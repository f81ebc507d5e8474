package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/campaign-gateway/models"
	"github.com/upb/campaign-gateway/repositories"
	"github.com/upb/campaign-gateway/services"
	"github.com/upb/campaign-gateway/tenancy"
	"go.uber.org/zap"
)

func newTestDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := Wrap(sqlDB, zap.NewNop())
	require.NoError(t, err)
	return db, mock
}

var principalColumns = []string{
	"id", "name", "email", "role", "email_verified",
	"id", "name", "slug", "status", "plan_id", "is_enabled",
	"feature_overrides", "last_seen_at", "created_at", "updated_at",
}

func TestUserRepository_GetPrincipal(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	tenantID := uuid.New()
	planID := uuid.New()
	now := time.Now()

	t.Run("joins user and tenant", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewUserRepository(db, zap.NewNop())

		mock.ExpectQuery(`FROM users u\s+JOIN tenants t ON t.id = u.tenant_id\s+WHERE u.id = \$1 AND u.is_enabled = true`).
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows(principalColumns).AddRow(
				userID, "Ana", "ana@example.com", "admin", true,
				tenantID, "Acme", "acme", "blocked", planID, true,
				[]byte(`{"reports": true}`), nil, now, now,
			))

		p, err := repo.GetPrincipal(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, userID, p.Identity.UserID)
		assert.Equal(t, models.RoleAdmin, p.Identity.Role)
		assert.True(t, p.Identity.EmailVerified)
		assert.Equal(t, tenantID, p.Tenant.ID)
		assert.Equal(t, models.TenantStatusBlocked, p.Tenant.Status)
		require.NotNil(t, p.Tenant.PlanID)
		assert.Equal(t, planID, *p.Tenant.PlanID)
		assert.Equal(t, models.FeatureMap{"reports": true}, p.Tenant.FeatureOverrides)
		assert.Nil(t, p.Tenant.LastSeenAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("disabled or missing user", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewUserRepository(db, zap.NewNop())

		mock.ExpectQuery(`FROM users u`).WithArgs(userID).WillReturnRows(sqlmock.NewRows(principalColumns))

		_, err := repo.GetPrincipal(ctx, userID)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	t.Run("malformed overrides are rejected", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewUserRepository(db, zap.NewNop())

		mock.ExpectQuery(`FROM users u`).
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows(principalColumns).AddRow(
				userID, "Ana", "ana@example.com", "admin", true,
				tenantID, "Acme", "acme", "active", nil, true,
				[]byte(`{"reports": "yes"}`), nil, now, now,
			))

		_, err := repo.GetPrincipal(ctx, userID)
		require.Error(t, err)
		assert.NotErrorIs(t, err, repositories.ErrNotFound)
	})
}

func TestUserRepository_GetByEmail(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewUserRepository(db, zap.NewNop())
	now := time.Now()
	id, tenantID := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE lower(email) = lower($1) AND is_enabled = true`)).
		WithArgs("Ana@Example.com").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "name", "email", "password_hash", "role", "email_verified", "is_enabled", "created_at", "updated_at",
		}).AddRow(id, tenantID, "Ana", "ana@example.com", "$2a$10$hash", "member", false, true, now, now))

	user, err := repo.GetByEmail(context.Background(), "Ana@Example.com")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "$2a$10$hash", user.PasswordHash)

	mock.ExpectQuery(`FROM users WHERE lower`).WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestTenantRepository_List(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewTenantRepository(db, zap.NewNop())
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT id, name, slug, status, plan_id, is_enabled, feature_overrides, last_seen_at, created_at, updated_at FROM tenants WHERE status = $1 ORDER BY name ASC LIMIT 10 OFFSET 20`)).
		WithArgs(models.TenantStatusBlocked).
		WillReturnRows(sqlmock.NewRows(tenantColumns).
			AddRow(uuid.New(), "Acme", "acme", "blocked", nil, true, nil, now, now, now).
			AddRow(uuid.New(), "Beta", "beta", "blocked", nil, false, []byte(`null`), nil, now, now))

	tenants, err := repo.List(context.Background(), repositories.TenantFilter{
		Status: models.TenantStatusBlocked,
		Limit:  10,
		Offset: 20,
	})
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, "Acme", tenants[0].Name)
	assert.NotNil(t, tenants[0].LastSeenAt)
	assert.Nil(t, tenants[1].FeatureOverrides)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantRepository_GetByIDAndTouch(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewTenantRepository(db, zap.NewNop())
	id := uuid.New()
	at := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM tenants WHERE id = $1`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(tenantColumns))
	_, err := repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE tenants SET last_seen_at = $1 WHERE id = $2`)).
		WithArgs(at, id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.TouchLastSeen(context.Background(), id, at))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantRepository_Create(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewTenantRepository(db, zap.NewNop())
	tenant := models.NewTenant("Acme", "acme", nil)
	tenant.FeatureOverrides = models.FeatureMap{"campaigns": true}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO tenants (id,name,slug,status,plan_id,is_enabled,feature_overrides,last_seen_at,created_at,updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), tenant))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanRepository_GetByID(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewPlanRepository(db, zap.NewNop())
	id := uuid.New()
	now := time.Now()
	columns := []string{"id", "name", "features", "created_at", "updated_at"}

	mock.ExpectQuery(`FROM plans WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(id, "pro", []byte(`{"campaigns":true,"reports":false}`), now, now))

	plan, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.FeatureMap{"campaigns": true, "reports": false}, plan.Features)

	mock.ExpectQuery(`FROM plans`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(id, "broken", []byte(`["campaigns"]`), now, now))
	_, err = repo.GetByID(context.Background(), id)
	assert.Error(t, err)
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	db, mock := newTestDB(t)
	repo := NewSessionRepository(db, zap.NewNop())
	lease := models.NewSessionLease(uuid.New())

	mock.ExpectExec(`INSERT INTO user_sessions .* ON CONFLICT \(user_id\) DO UPDATE`).
		WithArgs(lease.ID, lease.UserID, lease.CreatedAt, lease.LastActivityAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Replace(ctx, lease))

	mock.ExpectQuery(`FROM user_sessions WHERE user_id = \$1`).
		WithArgs(lease.UserID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at", "last_activity_at"}).
			AddRow(lease.ID, lease.UserID, lease.CreatedAt, lease.LastActivityAt))
	got, err := repo.GetByUserID(ctx, lease.UserID)
	require.NoError(t, err)
	assert.Equal(t, lease.ID, got.ID)

	mock.ExpectExec(`DELETE FROM user_sessions WHERE user_id = \$1 AND id = \$2`).
		WithArgs(lease.UserID, lease.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(ctx, lease.UserID, lease.ID))

	stale := uuid.New()
	mock.ExpectExec(`DELETE FROM user_sessions WHERE user_id = \$1 AND id = \$2`).
		WithArgs(lease.UserID, stale).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(ctx, lease.UserID, stale), repositories.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func bindTestLease(t *testing.T, sqlDB *sql.DB, mock sqlmock.Sqlmock, tenantID uuid.UUID) context.Context {
	t.Helper()
	mock.ExpectExec(`set_config\('app.current_tenant', \$1, false\)`).
		WithArgs(tenantID.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	lease, err := tenancy.NewBinder(sqlDB, zap.NewNop()).Bind(context.Background(), tenantID)
	require.NoError(t, err)
	t.Cleanup(func() {
		mock.ExpectExec(`set_config\('app.current_tenant', '', false\)`).WillReturnResult(sqlmock.NewResult(0, 0))
		lease.Release()
	})
	return tenancy.WithLease(context.Background(), lease)
}

func TestCampaignRepository(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewCampaignRepository(zap.NewNop())
	tenantID := uuid.New()
	campaignID := uuid.New()
	now := time.Now()

	t.Run("requires a bound lease", func(t *testing.T) {
		_, err := repo.List(context.Background(), 10, 0)
		assert.ErrorIs(t, err, tenancy.ErrNotBound)
	})

	ctx := bindTestLease(t, db.DB, mock, tenantID)

	t.Run("list filters by bound tenant", func(t *testing.T) {
		mock.ExpectQuery(`FROM campaigns\s+WHERE tenant_id = \$1`).
			WithArgs(tenantID, 10, 0).
			WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name", "status", "scheduled_at", "created_at", "updated_at"}).
				AddRow(campaignID, tenantID, "Launch", "draft", nil, now, now))

		campaigns, err := repo.List(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, campaigns, 1)
		assert.Equal(t, models.CampaignStatusDraft, campaigns[0].Status)
	})

	t.Run("get of foreign campaign is not found", func(t *testing.T) {
		mock.ExpectQuery(`WHERE id = \$1 AND tenant_id = \$2`).
			WithArgs(campaignID, tenantID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name", "status", "scheduled_at", "created_at", "updated_at"}))

		_, err := repo.GetByID(ctx, campaignID)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	t.Run("report", func(t *testing.T) {
		mock.ExpectQuery(`FROM messages\s+WHERE campaign_id = \$1 AND tenant_id = \$2`).
			WithArgs(campaignID, tenantID).
			WillReturnRows(sqlmock.NewRows([]string{"count", "delivered", "failed"}).AddRow(10, 7, 2))

		report, err := repo.GetReport(ctx, campaignID)
		require.NoError(t, err)
		assert.Equal(t, &models.CampaignReport{CampaignID: campaignID, Sent: 10, Delivered: 7, Failed: 2}, report)
	})
}

func TestAuditRepository_Insert(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewAuditRepository(zap.NewNop())
	tenantID := uuid.New()
	entry := models.NewAuditLog(tenantID, models.AuditActionLogin).WithDetails(map[string]bool{"ok": true})

	t.Run("refuses the raw pool", func(t *testing.T) {
		err := repo.Insert(context.Background(), entry)
		assert.True(t, services.IsIsolationError(err))
	})

	t.Run("writes on bound lease", func(t *testing.T) {
		ctx := bindTestLease(t, db.DB, mock, tenantID)
		mock.ExpectExec(`INSERT INTO audit_logs`).
			WithArgs(entry.ID, tenantID, nil, entry.Action, sql.NullString{}, sql.NullString{}, []byte(`{"ok":true}`),
				"", "", "", entry.Timestamp).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Insert(ctx, entry))
	})
}

func TestTransactionManager(t *testing.T) {
	db, mock := newTestDB(t)
	tm := NewTransactionManager(db, zap.NewNop())
	tenantID := uuid.New()

	t.Run("commits and exposes transaction to repositories", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`set_config\('app.current_tenant', \$1, true\)`).WithArgs(tenantID.String()).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
			_, ok := GetTransactionFromContext(ctx)
			assert.True(t, ok)
			if err := tenancy.ScopeTx(ctx, tx.Executor(), tenantID); err != nil {
				return err
			}
			return NewAuditRepository(zap.NewNop()).Insert(ctx, models.NewAuditLog(tenantID, models.AuditActionLogin))
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := tm.InTransaction(context.Background(), func(context.Context, repositories.Transaction) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetExecutor(t *testing.T) {
	db, _ := newTestDB(t)

	exec := GetExecutor(context.Background(), db)
	_, isUnscoped := exec.(*tenancy.Unscoped)
	assert.True(t, isUnscoped)

	_, err := ScopedExecutor(context.Background())
	assert.ErrorIs(t, err, tenancy.ErrNotBound)
}

func TestMigrate(t *testing.T) {
	db, _ := newTestDB(t)

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	gooseUpContext = func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		assert.Equal(t, ".", dir)
		return nil
	}
	require.NoError(t, db.Migrate(context.Background()))

	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return errors.New("dirty database")
	}
	assert.Error(t, db.Migrate(context.Background()))
}

func TestHealthCheck(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()
	db, err := Wrap(sqlDB, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	assert.NoError(t, db.HealthCheck(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.Error(t, db.HealthCheck(context.Background()))
}

func TestLoginAttemptRepository(t *testing.T) {
	ctx := context.Background()
	db, mock := newTestDB(t)
	repo := NewLoginAttemptRepository(db, zap.NewNop())
	now := time.Now().UTC()
	since := now.Add(-15 * time.Minute)

	mock.ExpectExec(`INSERT INTO login_attempts`).
		WithArgs("email:ana@example.com", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.Record(ctx, "email:ana@example.com", now))

	mock.ExpectQuery(`SELECT COUNT\(\*\), MIN\(attempted_at\)\s+FROM login_attempts`).
		WithArgs("email:ana@example.com", since).
		WillReturnRows(sqlmock.NewRows([]string{"count", "min"}).AddRow(3, now.Add(-time.Minute)))
	count, oldest, err := repo.Window(ctx, "email:ana@example.com", since)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, now.Add(-time.Minute), oldest)

	t.Run("empty window has zero oldest", func(t *testing.T) {
		mock.ExpectQuery(`FROM login_attempts`).
			WithArgs("ip:10.0.0.1", since).
			WillReturnRows(sqlmock.NewRows([]string{"count", "min"}).AddRow(0, nil))
		count, oldest, err := repo.Window(ctx, "ip:10.0.0.1", since)
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.True(t, oldest.IsZero())
	})

	mock.ExpectExec(`DELETE FROM login_attempts WHERE scope_key = \$1`).
		WithArgs("email:ana@example.com").
		WillReturnResult(sqlmock.NewResult(0, 3))
	require.NoError(t, repo.Clear(ctx, "email:ana@example.com"))

	mock.ExpectExec(`DELETE FROM login_attempts WHERE attempted_at < \$1`).
		WithArgs(since).
		WillReturnResult(sqlmock.NewResult(0, 12))
	deleted, err := repo.DeleteBefore(ctx, since)
	require.NoError(t, err)
	assert.EqualValues(t, 12, deleted)

	assert.NoError(t, mock.ExpectationsWereMet())
}
