package store

import (
	"context"
	"time"
)

// NotificationStatus represents the lifecycle state of a queued notification.
type NotificationStatus string

const (
	NotificationQueued  NotificationStatus = "queued"
	NotificationSending NotificationStatus = "sending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// Notification kinds.
const (
	NotificationPlanReady = "plan_ready"
)

// Notification is a durable outgoing message record.
type Notification struct {
	ID            string             `json:"id"`
	UserID        string             `json:"user_id"`
	Kind          string             `json:"kind"`
	PayloadJSON   string             `json:"payload_json"`
	Status        NotificationStatus `json:"status"`
	Attempts      int                `json:"attempts"`
	NextAttemptAt *time.Time         `json:"next_attempt_at"`
	DedupeKey     string             `json:"dedupe_key"`
	LockedAt      *time.Time         `json:"locked_at"`
	LastError     string             `json:"last_error"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// NotificationRepo persists the notification queue.
type NotificationRepo interface {
	// EnqueueNotification inserts a queued notification. If dedupeKey is non-empty
	// and a notification that is not failed shares it, the existing ID is returned.
	EnqueueNotification(ctx context.Context, userID, kind, payloadJSON, dedupeKey string) (string, error)

	// ClaimDueNotifications marks up to limit queued notifications whose
	// next_attempt_at <= now (or is NULL) as sending and returns them.
	ClaimDueNotifications(ctx context.Context, now time.Time, limit int) ([]Notification, error)

	// MarkNotificationSent marks a notification as delivered.
	MarkNotificationSent(ctx context.Context, id string) error

	// RetryNotification records a failure and requeues for nextAttemptAt.
	RetryNotification(ctx context.Context, id, errMsg string, nextAttemptAt time.Time) error

	// FailNotification records a final failure.
	FailNotification(ctx context.Context, id, errMsg string) error

	// RequeueStaleNotifications resets notifications stuck in sending since
	// before staleBefore back to queued.
	RequeueStaleNotifications(ctx context.Context, staleBefore time.Time) (int, error)

	// GetNotification returns one notification, or nil if it does not exist.
	GetNotification(ctx context.Context, id string) (*Notification, error)
}
