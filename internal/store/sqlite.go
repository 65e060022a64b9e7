package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/segakai/segakai/internal/models"
	"github.com/segakai/segakai/internal/util"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
	// DefaultSQLiteFile is the database file name used inside the state directory.
	DefaultSQLiteFile = "segakai.db"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// A single connection serializes writers and keeps PRAGMAs consistent.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.seedConfig(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("SQLite store ready", "path", dsn)
	return s, nil
}

func (s *SQLiteStore) seedConfig(ctx context.Context) error {
	now := time.Now().UTC()
	for _, e := range models.DefaultConfigEntries() {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO app_config (key, value, is_secret, description, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (key) DO NOTHING`,
			e.Key, e.Value, e.IsSecret, e.Description, now, now)
		if err != nil {
			slog.Error("SQLiteStore seedConfig failed", "error", err, "key", e.Key)
			return fmt.Errorf("failed to seed config key %s: %w", e.Key, err)
		}
	}
	return nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = models.NormalizeEmail(u.Email)
	fillUserDefaults(u, time.Now().UTC())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.Phone, u.PasswordHash, u.IsAdmin, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create user %s: %w", u.Email, models.ErrEmailTaken)
		}
		slog.Error("SQLiteStore CreateUser failed", "error", err)
		return fmt.Errorf("failed to insert user: %w", err)
	}
	slog.Debug("SQLiteStore CreateUser succeeded", "user_id", u.ID)
	return nil
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, models.NormalizeEmail(email)))
}

func (s *SQLiteStore) SetUserAdmin(ctx context.Context, id string, isAdmin bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_admin = ?, updated_at = ? WHERE id = ?`, isAdmin, time.Now().UTC(), id)
	if err != nil {
		slog.Error("SQLiteStore SetUserAdmin failed", "error", err, "user_id", id)
		return fmt.Errorf("failed to update user %s: %w", id, err)
	}
	return requireAffected(res)
}

func (s *SQLiteStore) UpdateUserProfile(ctx context.Context, id, name, phone string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET name = ?, phone = ?, updated_at = ? WHERE id = ?`, name, phone, time.Now().UTC(), id)
	if err != nil {
		slog.Error("SQLiteStore UpdateUserProfile failed", "error", err, "user_id", id)
		return fmt.Errorf("failed to update user %s: %w", id, err)
	}
	return requireAffected(res)
}

func (s *SQLiteStore) SetUserPassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, passwordHash, time.Now().UTC(), id)
	if err != nil {
		slog.Error("SQLiteStore SetUserPassword failed", "error", err, "user_id", id)
		return fmt.Errorf("failed to update password for user %s: %w", id, err)
	}
	return requireAffected(res)
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess models.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		sess.Token, sess.UserID, sess.CreatedAt.UTC(), sess.ExpiresAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore CreateSession failed", "error", err, "user_id", sess.UserID)
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, token string) (*models.Session, error) {
	return scanSession(s.db.QueryRowContext(ctx, `SELECT token, user_id, created_at, expires_at FROM sessions WHERE token = ?`, token))
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteUserSessions(ctx context.Context, userID, keepToken string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ? AND token != ?`, userID, keepToken)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions for user %s: %w", userID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) CreatePlan(ctx context.Context, p *models.Plan) error {
	fillPlanDefaults(p, time.Now().UTC())
	if !json.Valid(p.PlanData) || !json.Valid(p.UserDetails) {
		return fmt.Errorf("plan %s has invalid JSON content", p.ID)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO plans (`+planColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, string(p.PlanData), string(p.UserDetails), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreatePlan failed", "error", err, "user_id", p.UserID)
		return fmt.Errorf("failed to insert plan: %w", err)
	}
	slog.Debug("SQLiteStore CreatePlan succeeded", "plan_id", p.ID, "user_id", p.UserID)
	return nil
}

func (s *SQLiteStore) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	return scanPlan(s.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id = ?`, id))
}

func (s *SQLiteStore) ListPlansByUser(ctx context.Context, userID string) ([]models.Plan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+planColumns+` FROM plans WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		slog.Error("SQLiteStore ListPlansByUser query failed", "error", err)
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	return collectPlans(rows)
}

func (s *SQLiteStore) GetConfig(ctx context.Context, key string) (*models.ConfigEntry, error) {
	return scanConfig(s.db.QueryRowContext(ctx, `SELECT `+configColumns+` FROM app_config WHERE key = ?`, key))
}

func (s *SQLiteStore) ListConfig(ctx context.Context) ([]models.ConfigEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+configColumns+` FROM app_config ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query config: %w", err)
	}
	return collectConfig(rows)
}

func (s *SQLiteStore) SetConfig(ctx context.Context, key, value string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE app_config SET value = ?, updated_at = ? WHERE key = ?`, value, time.Now().UTC(), key)
	if err != nil {
		slog.Error("SQLiteStore SetConfig failed", "error", err, "key", key)
		return fmt.Errorf("failed to update config key %s: %w", key, err)
	}
	return requireAffected(res)
}

func (s *SQLiteStore) EnqueueNotification(ctx context.Context, userID, kind, payloadJSON, dedupeKey string) (string, error) {
	if dedupeKey != "" {
		existingID, err := s.activeNotificationID(ctx, dedupeKey)
		if err != nil {
			return "", err
		}
		if existingID != "" {
			slog.Debug("SQLiteStore.EnqueueNotification: dedupe hit", "dedupeKey", dedupeKey, "existingID", existingID)
			return existingID, nil
		}
	}

	id := util.GenerateRandomID("ntf_", 32)
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, kind, payload_json, status, attempts, dedupe_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'queued', 0, ?, ?, ?)`,
		id, userID, kind, payloadJSON, nilIfEmpty(dedupeKey), now, now)
	if err != nil {
		// A concurrent enqueue with the same key won the unique index.
		if dedupeKey != "" && isUniqueViolation(err) {
			if existingID, lookupErr := s.activeNotificationID(ctx, dedupeKey); lookupErr == nil && existingID != "" {
				return existingID, nil
			}
		}
		return "", fmt.Errorf("enqueue notification failed: %w", err)
	}
	slog.Debug("SQLiteStore.EnqueueNotification", "id", id, "user_id", userID, "kind", kind)
	return id, nil
}

// activeNotificationID returns the id of the notification holding dedupeKey
// that has not failed, or "" when there is none.
func (s *SQLiteStore) activeNotificationID(ctx context.Context, dedupeKey string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM notifications WHERE dedupe_key = ? AND status != 'failed'`, dedupeKey,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("notification dedupe check failed: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) ClaimDueNotifications(ctx context.Context, now time.Time, limit int) ([]Notification, error) {
	now = now.UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("claim notifications begin failed: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		 ORDER BY created_at ASC LIMIT ?`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due notifications failed: %w", err)
	}
	due, err := collectNotifications(rows)
	if err != nil {
		return nil, err
	}

	for i := range due {
		if _, err := tx.ExecContext(ctx,
			`UPDATE notifications SET status = 'sending', locked_at = ?, updated_at = ? WHERE id = ?`,
			now, now, due[i].ID); err != nil {
			return nil, fmt.Errorf("mark notification sending failed: %w", err)
		}
		locked := now
		due[i].Status = NotificationSending
		due[i].LockedAt = &locked
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim notifications commit failed: %w", err)
	}
	return due, nil
}

func (s *SQLiteStore) MarkNotificationSent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = 'sent', locked_at = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark notification sent failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RetryNotification(ctx context.Context, id, errMsg string, nextAttemptAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = 'queued', attempts = attempts + 1, last_error = ?, next_attempt_at = ?, locked_at = NULL, updated_at = ? WHERE id = ?`,
		errMsg, nextAttemptAt.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("retry notification failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FailNotification(ctx context.Context, id, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = 'failed', attempts = attempts + 1, last_error = ?, locked_at = NULL, updated_at = ? WHERE id = ?`,
		errMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("fail notification failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RequeueStaleNotifications(ctx context.Context, staleBefore time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = 'queued', locked_at = NULL, updated_at = ? WHERE status = 'sending' AND locked_at < ?`,
		time.Now().UTC(), staleBefore.UTC())
	if err != nil {
		return 0, fmt.Errorf("requeue stale notifications failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("SQLiteStore.RequeueStaleNotifications", "requeued", n)
	}
	return int(n), nil
}

func (s *SQLiteStore) GetNotification(ctx context.Context, id string) (*Notification, error) {
	return scanNotification(s.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id))
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
