package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/segakai/segakai/internal/models"
	"github.com/segakai/segakai/internal/util"
)

// InMemoryStore keeps everything in maps. Data is lost on exit.
type InMemoryStore struct {
	mu            sync.RWMutex
	users         map[string]models.User
	emails        map[string]string // email -> user ID
	sessions      map[string]models.Session
	plans         map[string]models.Plan
	planSeq       map[string]int64
	seq           int64
	config        map[string]models.ConfigEntry
	notifications map[string]Notification
	now           func() time.Time
}

// NewInMemoryStore returns an empty store seeded with the default configuration.
func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{
		users:         make(map[string]models.User),
		emails:        make(map[string]string),
		sessions:      make(map[string]models.Session),
		plans:         make(map[string]models.Plan),
		planSeq:       make(map[string]int64),
		config:        make(map[string]models.ConfigEntry),
		notifications: make(map[string]Notification),
		now:           func() time.Time { return time.Now().UTC() },
	}
	now := s.now()
	for _, e := range models.DefaultConfigEntries() {
		e.CreatedAt, e.UpdatedAt = now, now
		s.config[e.Key] = e
	}
	return s
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = models.NormalizeEmail(u.Email)
	if _, exists := s.emails[u.Email]; exists {
		return fmt.Errorf("failed to create user %s: %w", u.Email, models.ErrEmailTaken)
	}
	fillUserDefaults(u, s.now())
	s.users[u.ID] = *u
	s.emails[u.Email] = u.ID
	return nil
}

func (s *InMemoryStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *InMemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[models.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	u := s.users[id]
	return &u, nil
}

func (s *InMemoryStore) SetUserAdmin(ctx context.Context, id string, isAdmin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsAdmin = isAdmin
	u.UpdatedAt = s.now()
	s.users[id] = u
	return nil
}

func (s *InMemoryStore) UpdateUserProfile(ctx context.Context, id, name, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Name, u.Phone = name, phone
	u.UpdatedAt = s.now()
	s.users[id] = u
	return nil
}

func (s *InMemoryStore) SetUserPassword(ctx context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = s.now()
	s.users[id] = u
	return nil
}

func (s *InMemoryStore) CreateSession(ctx context.Context, sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.Token]; exists {
		return fmt.Errorf("session token collision")
	}
	s.sessions[sess.Token] = sess
	return nil
}

func (s *InMemoryStore) GetSession(ctx context.Context, token string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[token]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *InMemoryStore) DeleteSession(ctx context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) DeleteUserSessions(ctx context.Context, userID, keepToken string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for token, sess := range s.sessions {
		if sess.UserID == userID && token != keepToken {
			delete(s.sessions, token)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for token, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, token)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) CreatePlan(ctx context.Context, p *models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fillPlanDefaults(p, s.now())
	if _, exists := s.plans[p.ID]; exists {
		return fmt.Errorf("plan %s already exists", p.ID)
	}
	s.seq++
	s.plans[p.ID] = clonePlan(*p)
	s.planSeq[p.ID] = s.seq
	return nil
}

func (s *InMemoryStore) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, nil
	}
	p = clonePlan(p)
	return &p, nil
}

func (s *InMemoryStore) ListPlansByUser(ctx context.Context, userID string) ([]models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var plans []models.Plan
	for _, p := range s.plans {
		if p.UserID == userID {
			plans = append(plans, clonePlan(p))
		}
	}
	sort.Slice(plans, func(i, j int) bool {
		if !plans[i].CreatedAt.Equal(plans[j].CreatedAt) {
			return plans[i].CreatedAt.After(plans[j].CreatedAt)
		}
		return s.planSeq[plans[i].ID] > s.planSeq[plans[j].ID]
	})
	return plans, nil
}

func (s *InMemoryStore) GetConfig(ctx context.Context, key string) (*models.ConfigEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.config[key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *InMemoryStore) ListConfig(ctx context.Context) ([]models.ConfigEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]models.ConfigEntry, 0, len(s.config))
	for _, e := range s.config {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func (s *InMemoryStore) SetConfig(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.config[key]
	if !ok {
		return ErrNotFound
	}
	e.Value = value
	e.UpdatedAt = s.now()
	s.config[key] = e
	return nil
}

func (s *InMemoryStore) EnqueueNotification(ctx context.Context, userID, kind, payloadJSON, dedupeKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dedupeKey != "" {
		for _, n := range s.notifications {
			if n.DedupeKey == dedupeKey && n.Status != NotificationFailed {
				return n.ID, nil
			}
		}
	}
	now := s.now()
	n := Notification{
		ID:          util.GenerateRandomID("ntf_", 32),
		UserID:      userID,
		Kind:        kind,
		PayloadJSON: payloadJSON,
		Status:      NotificationQueued,
		DedupeKey:   dedupeKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.notifications[n.ID] = n
	return n.ID, nil
}

func (s *InMemoryStore) ClaimDueNotifications(ctx context.Context, now time.Time, limit int) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []Notification
	for _, n := range s.notifications {
		if n.Status == NotificationQueued && (n.NextAttemptAt == nil || !n.NextAttemptAt.After(now)) {
			due = append(due, n)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for i := range due {
		locked := now
		due[i].Status = NotificationSending
		due[i].LockedAt = &locked
		due[i].UpdatedAt = now
		s.notifications[due[i].ID] = due[i]
	}
	return due, nil
}

func (s *InMemoryStore) MarkNotificationSent(ctx context.Context, id string) error {
	return s.updateNotification(id, func(n *Notification) {
		n.Status = NotificationSent
		n.LockedAt = nil
	})
}

func (s *InMemoryStore) RetryNotification(ctx context.Context, id, errMsg string, nextAttemptAt time.Time) error {
	return s.updateNotification(id, func(n *Notification) {
		n.Status = NotificationQueued
		n.Attempts++
		n.LastError = errMsg
		next := nextAttemptAt
		n.NextAttemptAt = &next
		n.LockedAt = nil
	})
}

func (s *InMemoryStore) FailNotification(ctx context.Context, id, errMsg string) error {
	return s.updateNotification(id, func(n *Notification) {
		n.Status = NotificationFailed
		n.Attempts++
		n.LastError = errMsg
		n.LockedAt = nil
	})
}

func (s *InMemoryStore) RequeueStaleNotifications(ctx context.Context, staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, n := range s.notifications {
		if n.Status == NotificationSending && n.LockedAt != nil && n.LockedAt.Before(staleBefore) {
			n.Status = NotificationQueued
			n.LockedAt = nil
			n.UpdatedAt = s.now()
			s.notifications[id] = n
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) GetNotification(ctx context.Context, id string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, nil
	}
	return &n, nil
}

func (s *InMemoryStore) updateNotification(id string, fn func(*Notification)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return ErrNotFound
	}
	fn(&n)
	n.UpdatedAt = s.now()
	s.notifications[id] = n
	return nil
}

// Close implements Store.
func (s *InMemoryStore) Close() error {
	return nil
}

func fillUserDefaults(u *models.User, now time.Time) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}
}

func fillPlanDefaults(p *models.Plan, now time.Time) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
}

func clonePlan(p models.Plan) models.Plan {
	p.PlanData = append([]byte(nil), p.PlanData...)
	p.UserDetails = append([]byte(nil), p.UserDetails...)
	return p
}
