package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/segakai/segakai/internal/models"
	"github.com/segakai/segakai/internal/util"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.seedConfig(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("Postgres migrations applied successfully")
	return s, nil
}

func (s *PostgresStore) seedConfig(ctx context.Context) error {
	for _, e := range models.DefaultConfigEntries() {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO app_config (key, value, is_secret, description) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (key) DO NOTHING`,
			e.Key, e.Value, e.IsSecret, e.Description)
		if err != nil {
			slog.Error("PostgresStore seedConfig failed", "error", err, "key", e.Key)
			return fmt.Errorf("failed to seed config key %s: %w", e.Key, err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = models.NormalizeEmail(u.Email)
	fillUserDefaults(u, time.Now().UTC())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, u.Name, u.Phone, u.PasswordHash, u.IsAdmin, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create user %s: %w", u.Email, models.ErrEmailTaken)
		}
		slog.Error("PostgresStore CreateUser failed", "error", err)
		return fmt.Errorf("failed to insert user: %w", err)
	}
	slog.Debug("PostgresStore CreateUser succeeded", "user_id", u.ID)
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id::text = $1`, id))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, models.NormalizeEmail(email)))
}

func (s *PostgresStore) SetUserAdmin(ctx context.Context, id string, isAdmin bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_admin = $1, updated_at = NOW() WHERE id::text = $2`, isAdmin, id)
	if err != nil {
		slog.Error("PostgresStore SetUserAdmin failed", "error", err, "user_id", id)
		return fmt.Errorf("failed to update user %s: %w", id, err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) UpdateUserProfile(ctx context.Context, id, name, phone string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET name = $1, phone = $2, updated_at = NOW() WHERE id::text = $3`, name, phone, id)
	if err != nil {
		slog.Error("PostgresStore UpdateUserProfile failed", "error", err, "user_id", id)
		return fmt.Errorf("failed to update user %s: %w", id, err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) SetUserPassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id::text = $2`, passwordHash, id)
	if err != nil {
		slog.Error("PostgresStore SetUserPassword failed", "error", err, "user_id", id)
		return fmt.Errorf("failed to update password for user %s: %w", id, err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess models.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES ($1, $2, $3, $4)`,
		sess.Token, sess.UserID, sess.CreatedAt, sess.ExpiresAt)
	if err != nil {
		slog.Error("PostgresStore CreateSession failed", "error", err, "user_id", sess.UserID)
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, token string) (*models.Session, error) {
	return scanSession(s.db.QueryRowContext(ctx, `SELECT token, user_id, created_at, expires_at FROM sessions WHERE token = $1`, token))
}

func (s *PostgresStore) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteUserSessions(ctx context.Context, userID, keepToken string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id::text = $1 AND token != $2`, userID, keepToken)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions for user %s: %w", userID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) CreatePlan(ctx context.Context, p *models.Plan) error {
	fillPlanDefaults(p, time.Now().UTC())
	if !json.Valid(p.PlanData) || !json.Valid(p.UserDetails) {
		return fmt.Errorf("plan %s has invalid JSON content", p.ID)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO plans (`+planColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.UserID, string(p.PlanData), string(p.UserDetails), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore CreatePlan failed", "error", err, "user_id", p.UserID)
		return fmt.Errorf("failed to insert plan: %w", err)
	}
	slog.Debug("PostgresStore CreatePlan succeeded", "plan_id", p.ID, "user_id", p.UserID)
	return nil
}

func (s *PostgresStore) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	return scanPlan(s.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id::text = $1`, id))
}

func (s *PostgresStore) ListPlansByUser(ctx context.Context, userID string) ([]models.Plan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+planColumns+` FROM plans WHERE user_id::text = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		slog.Error("PostgresStore ListPlansByUser query failed", "error", err)
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	return collectPlans(rows)
}

func (s *PostgresStore) GetConfig(ctx context.Context, key string) (*models.ConfigEntry, error) {
	return scanConfig(s.db.QueryRowContext(ctx, `SELECT `+configColumns+` FROM app_config WHERE key = $1`, key))
}

func (s *PostgresStore) ListConfig(ctx context.Context) ([]models.ConfigEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+configColumns+` FROM app_config ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query config: %w", err)
	}
	return collectConfig(rows)
}

func (s *PostgresStore) SetConfig(ctx context.Context, key, value string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE app_config SET value = $1, updated_at = NOW() WHERE key = $2`, value, key)
	if err != nil {
		slog.Error("PostgresStore SetConfig failed", "error", err, "key", key)
		return fmt.Errorf("failed to update config key %s: %w", key, err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) EnqueueNotification(ctx context.Context, userID, kind, payloadJSON, dedupeKey string) (string, error) {
	if dedupeKey != "" {
		existingID, err := s.activeNotificationID(ctx, dedupeKey)
		if err != nil {
			return "", err
		}
		if existingID != "" {
			slog.Debug("PostgresStore.EnqueueNotification: dedupe hit", "dedupeKey", dedupeKey, "existingID", existingID)
			return existingID, nil
		}
	}

	id := util.GenerateRandomID("ntf_", 32)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, kind, payload_json, status, attempts, dedupe_key)
		 VALUES ($1, $2, $3, $4, 'queued', 0, $5)`,
		id, userID, kind, payloadJSON, nilIfEmpty(dedupeKey))
	if err != nil {
		// A concurrent enqueue with the same key won the unique index.
		if dedupeKey != "" && isUniqueViolation(err) {
			if existingID, lookupErr := s.activeNotificationID(ctx, dedupeKey); lookupErr == nil && existingID != "" {
				return existingID, nil
			}
		}
		return "", fmt.Errorf("enqueue notification failed: %w", err)
	}
	slog.Debug("PostgresStore.EnqueueNotification", "id", id, "user_id", userID, "kind", kind)
	return id, nil
}

// activeNotificationID returns the id of the notification holding dedupeKey
// that has not failed, or "" when there is none.
func (s *PostgresStore) activeNotificationID(ctx context.Context, dedupeKey string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM notifications WHERE dedupe_key = $1 AND status != 'failed'`, dedupeKey,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("notification dedupe check failed: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ClaimDueNotifications(ctx context.Context, now time.Time, limit int) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE notifications SET status = 'sending', locked_at = $1, updated_at = $1
		 WHERE id IN (
		   SELECT id FROM notifications WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
		   ORDER BY created_at ASC LIMIT $2
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+notificationColumns,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due notifications failed: %w", err)
	}
	return collectNotifications(rows)
}

func (s *PostgresStore) MarkNotificationSent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = 'sent', locked_at = NULL, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark notification sent failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) RetryNotification(ctx context.Context, id, errMsg string, nextAttemptAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = 'queued', attempts = attempts + 1, last_error = $1, next_attempt_at = $2, locked_at = NULL, updated_at = NOW() WHERE id = $3`,
		errMsg, nextAttemptAt, id)
	if err != nil {
		return fmt.Errorf("retry notification failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) FailNotification(ctx context.Context, id, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = 'failed', attempts = attempts + 1, last_error = $1, locked_at = NULL, updated_at = NOW() WHERE id = $2`,
		errMsg, id)
	if err != nil {
		return fmt.Errorf("fail notification failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) RequeueStaleNotifications(ctx context.Context, staleBefore time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = 'queued', locked_at = NULL, updated_at = NOW() WHERE status = 'sending' AND locked_at < $1`,
		staleBefore)
	if err != nil {
		return 0, fmt.Errorf("requeue stale notifications failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("PostgresStore.RequeueStaleNotifications", "requeued", n)
	}
	return int(n), nil
}

func (s *PostgresStore) GetNotification(ctx context.Context, id string) (*Notification, error) {
	return scanNotification(s.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
