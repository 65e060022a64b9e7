package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/segakai/segakai/internal/models"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueViolation reports whether err is a unique constraint failure from
// either driver.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

const userColumns = `id, email, name, phone, password_hash, is_admin, created_at, updated_at`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user failed: %w", err)
	}
	return &u, nil
}

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	if err := row.Scan(&s.Token, &s.UserID, &s.CreatedAt, &s.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan session failed: %w", err)
	}
	return &s, nil
}

const planColumns = `id, user_id, plan_data, user_details, created_at, updated_at`

func scanPlan(row rowScanner) (*models.Plan, error) {
	var p models.Plan
	var planData, userDetails []byte
	if err := row.Scan(&p.ID, &p.UserID, &planData, &userDetails, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan plan failed: %w", err)
	}
	p.PlanData = append([]byte(nil), planData...)
	p.UserDetails = append([]byte(nil), userDetails...)
	return &p, nil
}

const configColumns = `key, value, is_secret, description, created_at, updated_at`

func scanConfig(row rowScanner) (*models.ConfigEntry, error) {
	var e models.ConfigEntry
	if err := row.Scan(&e.Key, &e.Value, &e.IsSecret, &e.Description, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan config entry failed: %w", err)
	}
	return &e, nil
}

const notificationColumns = `id, user_id, kind, payload_json, status, attempts, next_attempt_at, dedupe_key, locked_at, last_error, created_at, updated_at`

func scanNotification(row rowScanner) (*Notification, error) {
	var n Notification
	var payloadJSON, dedupeKey, lastError sql.NullString
	var nextAttemptAt, lockedAt sql.NullTime
	err := row.Scan(
		&n.ID, &n.UserID, &n.Kind, &payloadJSON, &n.Status, &n.Attempts,
		&nextAttemptAt, &dedupeKey, &lockedAt, &lastError, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan notification failed: %w", err)
	}
	n.PayloadJSON = payloadJSON.String
	n.DedupeKey = dedupeKey.String
	n.LastError = lastError.String
	if nextAttemptAt.Valid {
		n.NextAttemptAt = &nextAttemptAt.Time
	}
	if lockedAt.Valid {
		n.LockedAt = &lockedAt.Time
	}
	return &n, nil
}

func collectPlans(rows *sql.Rows) ([]models.Plan, error) {
	defer rows.Close()
	var plans []models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plan rows: %w", err)
	}
	return plans, nil
}

func collectConfig(rows *sql.Rows) ([]models.ConfigEntry, error) {
	defer rows.Close()
	var entries []models.ConfigEntry
	for rows.Next() {
		e, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate config rows: %w", err)
	}
	return entries, nil
}

func collectNotifications(rows *sql.Rows) ([]Notification, error) {
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notification rows: %w", err)
	}
	return out, nil
}
