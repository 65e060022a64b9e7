package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segakai/segakai/internal/models"
	"github.com/segakai/segakai/internal/store"
)

// Dispatcher defaults.
const (
	DefaultPollInterval   = 5 * time.Second
	DefaultStaleThreshold = 5 * time.Minute
	DefaultClaimLimit     = 10
	DefaultMaxAttempts    = 5
	baseBackoff           = 10 * time.Second
)

// Dispatcher periodically claims due notifications and delivers them.
type Dispatcher struct {
	repo           store.NotificationRepo
	sender         Sender
	pollInterval   time.Duration
	staleThreshold time.Duration
	claimLimit     int
	maxAttempts    int
	now            func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithPollInterval sets how often the queue is polled.
func WithPollInterval(d time.Duration) DispatcherOption {
	return func(ds *Dispatcher) {
		if d > 0 {
			ds.pollInterval = d
		}
	}
}

// WithMaxAttempts sets how many sends are tried before a notification is failed.
func WithMaxAttempts(n int) DispatcherOption {
	return func(ds *Dispatcher) {
		if n > 0 {
			ds.maxAttempts = n
		}
	}
}

// NewDispatcher creates a Dispatcher reading from repo and sending with sender.
func NewDispatcher(repo store.NotificationRepo, sender Sender, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		repo:           repo,
		sender:         sender,
		pollInterval:   DefaultPollInterval,
		staleThreshold: DefaultStaleThreshold,
		claimLimit:     DefaultClaimLimit,
		maxAttempts:    DefaultMaxAttempts,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RecoverStale requeues notifications stuck in sending. Call once at startup.
func (d *Dispatcher) RecoverStale(ctx context.Context) error {
	n, err := d.repo.RequeueStaleNotifications(ctx, d.now().Add(-d.staleThreshold))
	if err != nil {
		return fmt.Errorf("failed to requeue stale notifications: %w", err)
	}
	if n > 0 {
		slog.Info("Dispatcher.RecoverStale: requeued stale notifications", "count", n)
	}
	return nil
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	slog.Info("Dispatcher.Run: starting notification dispatcher", "pollInterval", d.pollInterval)
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Dispatcher.Run: stopping")
			return nil
		case <-ticker.C:
			d.Poll(ctx)
		}
	}
}

// Poll claims one batch of due notifications and attempts each of them.
// It returns the number of notifications delivered.
func (d *Dispatcher) Poll(ctx context.Context) int {
	now := d.now()
	due, err := d.repo.ClaimDueNotifications(ctx, now, d.claimLimit)
	if err != nil {
		slog.Error("Dispatcher.Poll: claim failed", "error", err)
		return 0
	}

	delivered := 0
	for _, n := range due {
		slog.Debug("Dispatcher.Poll: sending notification", "id", n.ID, "user_id", n.UserID, "kind", n.Kind)
		if err := d.deliver(ctx, n); err != nil {
			d.recordFailure(ctx, n, now, err)
			continue
		}
		if err := d.repo.MarkNotificationSent(ctx, n.ID); err != nil {
			slog.Error("Dispatcher.Poll: mark sent error", "id", n.ID, "error", err)
			continue
		}
		delivered++
		slog.Debug("Dispatcher.Poll: notification sent", "id", n.ID, "user_id", n.UserID)
	}
	return delivered
}

func (d *Dispatcher) deliver(ctx context.Context, n store.Notification) error {
	if n.Kind != store.NotificationPlanReady {
		return fmt.Errorf("unknown notification kind %q", n.Kind)
	}
	var p PlanReadyPayload
	if err := json.Unmarshal([]byte(n.PayloadJSON), &p); err != nil {
		return fmt.Errorf("invalid plan_ready payload: %w", err)
	}
	if p.To == "" {
		return fmt.Errorf("plan_ready payload has no recipient")
	}
	return d.sender.SendMessage(ctx, p.To, PlanReadyMessage(p))
}

func (d *Dispatcher) recordFailure(ctx context.Context, n store.Notification, now time.Time, sendErr error) {
	if n.Attempts+1 >= d.maxAttempts {
		slog.Error("Dispatcher.Poll: giving up on notification", "id", n.ID, "attempts", n.Attempts+1, "error", sendErr)
		if err := d.repo.FailNotification(ctx, n.ID, sendErr.Error()); err != nil {
			slog.Error("Dispatcher.Poll: fail notification error", "id", n.ID, "error", err)
		}
		return
	}
	// 10s, 20s, 40s, ...
	next := now.Add(baseBackoff * time.Duration(1<<n.Attempts))
	slog.Warn("Dispatcher.Poll: send failed, will retry", "id", n.ID, "next_attempt_at", next, "error", sendErr)
	if err := d.repo.RetryNotification(ctx, n.ID, sendErr.Error(), next); err != nil {
		slog.Error("Dispatcher.Poll: retry notification error", "id", n.ID, "error", err)
	}
}

// EnqueuePlanReady queues a plan_ready message for user when they have a
// phone number. It reports whether a notification was queued.
func EnqueuePlanReady(ctx context.Context, repo store.NotificationRepo, user *models.User, planID, primaryGoal string) (bool, error) {
	if user == nil || user.Phone == "" || planID == "" {
		return false, nil
	}
	payload, err := PlanReadyPayload{
		PlanID:      planID,
		To:          user.Phone,
		Name:        user.Name,
		PrimaryGoal: primaryGoal,
	}.Encode()
	if err != nil {
		return false, err
	}
	if _, err := repo.EnqueueNotification(ctx, user.ID, store.NotificationPlanReady, payload, planID); err != nil {
		return false, fmt.Errorf("failed to enqueue plan_ready notification: %w", err)
	}
	return true, nil
}
