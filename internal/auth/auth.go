// Package auth implements account sign-up, password login and opaque session
// tokens on top of store.Store.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/segakai/segakai/internal/models"
	"github.com/segakai/segakai/internal/store"
	"github.com/segakai/segakai/internal/util"
)

// DefaultSessionTTL is how long a session stays valid after sign-in.
const DefaultSessionTTL = 7 * 24 * time.Hour

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrNoSession is returned when a token is empty, unknown or expired.
	ErrNoSession = errors.New("no valid session")
	// ErrAdminPasswordMismatch is returned by Promote for a wrong admin password.
	ErrAdminPasswordMismatch = errors.New("incorrect admin password")
	// ErrUserNotFound is returned by Promote for an unknown email.
	ErrUserNotFound = errors.New("user not found")
	// ErrWrongPassword is returned by ChangePassword when the current password does not match.
	ErrWrongPassword = errors.New("current password is incorrect")
)

// Service issues and resolves sessions.
type Service struct {
	store      store.Store
	ttl        time.Duration
	bcryptCost int
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithSessionTTL overrides DefaultSessionTTL.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithBcryptCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service backed by st.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:      st,
		ttl:        DefaultSessionTTL,
		bcryptCost: bcrypt.DefaultCost,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SessionTTL returns the configured session lifetime.
func (s *Service) SessionTTL() time.Duration {
	return s.ttl
}

// SignUp validates req, creates the user and opens a session for them.
func (s *Service) SignUp(ctx context.Context, req models.SignupRequest) (*models.User, *models.Session, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user := &models.User{
		Email:        req.Email,
		Name:         req.Name,
		Phone:        req.Phone,
		PasswordHash: string(hash),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, nil, err
	}
	slog.Info("Auth.SignUp: user created", "user_id", user.ID)
	sess, err := s.openSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, sess, nil
}

// Login checks the password and opens a new session.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.User, *models.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		slog.Debug("Auth.Login: password mismatch", "user_id", user.ID)
		return nil, nil, ErrInvalidCredentials
	}
	sess, err := s.openSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, sess, nil
}

// Logout deletes the session. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.store.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Identify resolves a session token to its user. Expired sessions are
// deleted and reported as ErrNoSession.
func (s *Service) Identify(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	sess, err := s.store.GetSession(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if sess == nil {
		return nil, ErrNoSession
	}
	if sess.Expired(s.now()) {
		if err := s.store.DeleteSession(ctx, token); err != nil {
			slog.Warn("Auth.Identify: failed to delete expired session", "error", err)
		}
		return nil, ErrNoSession
	}
	user, err := s.store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, ErrNoSession
	}
	return user, nil
}

// Promote grants admin rights to the user with req.Email when req.Password
// matches the configured ADMIN_PASSWORD.
func (s *Service) Promote(ctx context.Context, req models.MakeAdminRequest) (*models.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	entry, err := s.store.GetConfig(ctx, models.ConfigAdminPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to read admin password: %w", err)
	}
	if entry == nil || entry.Value == "" ||
		subtle.ConstantTimeCompare([]byte(entry.Value), []byte(req.Password)) != 1 {
		return nil, ErrAdminPasswordMismatch
	}
	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if err := s.store.SetUserAdmin(ctx, user.ID, true); err != nil {
		return nil, fmt.Errorf("failed to promote user: %w", err)
	}
	user.IsAdmin = true
	slog.Info("Auth.Promote: user promoted to admin", "user_id", user.ID)
	return user, nil
}

// UpdateProfile applies req to the user's name and phone and returns the
// updated user.
func (s *Service) UpdateProfile(ctx context.Context, userID string, req models.ProfileUpdateRequest) (*models.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if err := s.store.UpdateUserProfile(ctx, user.ID, user.Name, user.Phone); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	slog.Info("Auth.UpdateProfile: profile updated", "user_id", user.ID)
	return user, nil
}

// ChangePassword replaces the user's password after checking the current one.
// With req.SignOutOthers every session except keepToken is ended; the number
// of ended sessions is returned.
func (s *Service) ChangePassword(ctx context.Context, userID, keepToken string, req models.PasswordChangeRequest) (int, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return 0, ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		slog.Debug("Auth.ChangePassword: current password mismatch", "user_id", user.ID)
		return 0, ErrWrongPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.bcryptCost)
	if err != nil {
		return 0, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.store.SetUserPassword(ctx, user.ID, string(hash)); err != nil {
		return 0, fmt.Errorf("failed to store password: %w", err)
	}
	ended := 0
	if req.SignOutOthers {
		if ended, err = s.store.DeleteUserSessions(ctx, user.ID, keepToken); err != nil {
			return 0, fmt.Errorf("failed to end other sessions: %w", err)
		}
	}
	slog.Info("Auth.ChangePassword: password changed", "user_id", user.ID, "sessions_ended", ended)
	return ended, nil
}

// PurgeExpired removes every expired session.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	n, err := s.store.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return n, nil
}

func (s *Service) openSession(ctx context.Context, userID string) (*models.Session, error) {
	now := s.now()
	sess := models.Session{
		Token:     util.GenerateSessionToken(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &sess, nil
}
