package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/campaign-gateway/models"
)

// ErrNotFound is wrapped by repositories when a lookup matches no row
var ErrNotFound = errors.New("record not found")

// Executor can run statements. *sql.DB, *sql.Tx, *sql.Conn and tenant leases all satisfy it.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	Commit() error
	Rollback() error
	// Context carries the transaction; repositories given it join the transaction
	Context() context.Context
	// Executor runs statements inside the transaction
	Executor() Executor
}

// UserRepository handles user data operations. Users and tenants are read
// by the authentication pipeline before any tenant scope exists, so these
// tables are not under row-level security.
type UserRepository interface {
	// Create creates a new user
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmail retrieves an enabled user by email, for login
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// GetPrincipal joins an enabled user with its tenant.
	// Disabled and missing users are both reported as ErrNotFound.
	GetPrincipal(ctx context.Context, userID uuid.UUID) (*models.Principal, error)

	// ListByTenant lists users of a tenant
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.User, error)
}

// TenantRepository handles tenant data operations
type TenantRepository interface {
	// Create creates a new tenant
	Create(ctx context.Context, tenant *models.Tenant) error

	// GetByID retrieves a tenant by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)

	// List retrieves tenants, optionally filtered by status
	List(ctx context.Context, filter TenantFilter) ([]*models.Tenant, error)

	// TouchLastSeen stamps the tenant's last activity
	TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error
}

// TenantFilter narrows tenant listings
type TenantFilter struct {
	Status models.TenantStatus // Empty means any
	Limit  int
	Offset int
}

// PlanRepository handles plan catalog reads
type PlanRepository interface {
	// GetByID retrieves a plan with its default feature map
	GetByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
}

// SessionRepository persists the single session lease of each user
type SessionRepository interface {
	// Replace stores lease as the user's only valid session
	Replace(ctx context.Context, lease *models.SessionLease) error

	// GetByUserID retrieves the user's current lease
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.SessionLease, error)

	// Touch updates the last activity of a lease
	Touch(ctx context.Context, sessionID uuid.UUID, at time.Time) error

	// Delete removes the user's lease when its id is sessionID
	Delete(ctx context.Context, userID, sessionID uuid.UUID) error
}

// CampaignRepository reads tenant-owned campaigns. Every method runs on the
// tenant scoped connection bound to ctx.
type CampaignRepository interface {
	// List retrieves the campaigns of the bound tenant
	List(ctx context.Context, limit, offset int) ([]*models.Campaign, error)

	// GetByID retrieves a campaign of the bound tenant
	GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)

	// GetReport aggregates message delivery for a campaign
	GetReport(ctx context.Context, id uuid.UUID) (*models.CampaignReport, error)
}

// AuditRepository handles security event data operations
type AuditRepository interface {
	// Insert inserts a new audit log entry on the connection bound to ctx
	Insert(ctx context.Context, log *models.AuditLog) error

	// ListByTenant retrieves the bound tenant's audit logs, newest first
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)
}

// LoginAttemptRepository keeps failed login attempts per scope key
type LoginAttemptRepository interface {
	// Record stores one failed attempt
	Record(ctx context.Context, scopeKey string, at time.Time) error

	// Window counts the attempts since the given time and returns the oldest of them
	Window(ctx context.Context, scopeKey string, since time.Time) (count int, oldest time.Time, err error)

	// Clear forgets every attempt of a scope key
	Clear(ctx context.Context, scopeKey string) error

	// DeleteBefore removes attempts older than cutoff
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Repositories holds all repository instances
type Repositories struct {
	Users     UserRepository
	Tenants   TenantRepository
	Plans     PlanRepository
	Sessions  SessionRepository
	Campaigns CampaignRepository
	AuditLogs AuditRepository

	LoginAttempts LoginAttemptRepository
}
