// Package store provides storage backends for SegakAI.
//
// It includes an in-memory store for tests and development, a SQLite store for
// single-node deployments and a PostgreSQL store. All backends hold users,
// sessions, generated plans, application configuration and the plan
// notification queue.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/segakai/segakai/internal/models"
)

// ErrNotFound is returned by updates whose target row does not exist.
// Lookups return a nil result and a nil error instead.
var ErrNotFound = errors.New("record not found")

// Store is the persistence interface used by the auth service and the API.
// Implementations are safe for concurrent use.
type Store interface {
	// CreateUser inserts u, assigning an ID and timestamps when unset.
	// A duplicate email returns an error matching models.ErrEmailTaken.
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SetUserAdmin(ctx context.Context, id string, isAdmin bool) error
	// UpdateUserProfile stores name and phone for the user. Unknown ids return ErrNotFound.
	UpdateUserProfile(ctx context.Context, id, name, phone string) error
	// SetUserPassword replaces the stored password hash. Unknown ids return ErrNotFound.
	SetUserPassword(ctx context.Context, id, passwordHash string) error

	CreateSession(ctx context.Context, s models.Session) error
	GetSession(ctx context.Context, token string) (*models.Session, error)
	DeleteSession(ctx context.Context, token string) error
	// DeleteUserSessions removes the user's sessions except keepToken and
	// returns how many were removed.
	DeleteUserSessions(ctx context.Context, userID, keepToken string) (int, error)
	// DeleteExpiredSessions removes sessions expired at now and returns how many.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)

	// CreatePlan inserts p, assigning an ID and timestamps when unset.
	CreatePlan(ctx context.Context, p *models.Plan) error
	GetPlan(ctx context.Context, id string) (*models.Plan, error)
	// ListPlansByUser returns the user's plans, newest first.
	ListPlansByUser(ctx context.Context, userID string) ([]models.Plan, error)

	GetConfig(ctx context.Context, key string) (*models.ConfigEntry, error)
	ListConfig(ctx context.Context) ([]models.ConfigEntry, error)
	// SetConfig updates an existing key. Unknown keys return ErrNotFound.
	SetConfig(ctx context.Context, key, value string) error

	NotificationRepo

	Close() error
}

// Opts holds configuration for store backends.
type Opts struct {
	DSN string // database connection string or SQLite file path
}

// Option configures a store backend.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL URLs and key/value
// connection strings, and "sqlite3" for anything else.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	lower := strings.ToLower(d)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(d, "host=") || strings.Contains(d, "dbname=") || strings.Contains(d, "user=") {
		return "postgres"
	}
	return "sqlite3"
}

// Open returns the backend that matches dsn: PostgreSQL for postgres DSNs,
// SQLite otherwise.
func Open(dsn string) (Store, error) {
	if DetectDSNType(dsn) == "postgres" {
		return NewPostgresStore(WithPostgresDSN(dsn))
	}
	return NewSQLiteStore(WithSQLiteDSN(dsn))
}
