// Package client is the command-line view of the SegakAI service. It keeps
// the session token in the state directory and implements the wizard's
// identity and plan-request collaborators over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/segakai/segakai/internal/models"
	"github.com/segakai/segakai/internal/wizard"
)

// DefaultTimeout bounds each request to the service.
const DefaultTimeout = 120 * time.Second

// DefaultServerURL is used when no server URL is configured.
const DefaultServerURL = "http://localhost:8080"

// ErrNotSignedIn is returned by calls that need a session when no token is stored.
var ErrNotSignedIn = errors.New("not signed in, run `segakai login` first")

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// Opts holds configuration for the client.
type Opts struct {
	HTTPClient *http.Client
	Tokens     TokenStore
}

// Option configures the client.
type Option func(*Opts)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// WithTokenStore sets where the session token is kept.
func WithTokenStore(ts TokenStore) Option {
	return func(o *Opts) { o.Tokens = ts }
}

// Client talks to the SegakAI HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
}

// Compile-time checks for the wizard collaborators.
var (
	_ wizard.IdentityProvider = (*Client)(nil)
	_ wizard.PlanRequester    = (*Client)(nil)
)

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := Opts{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if baseURL == "" {
		baseURL = DefaultServerURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", baseURL)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if cfg.Tokens == nil {
		cfg.Tokens = &MemoryTokenStore{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    cfg.HTTPClient,
		tokens:  cfg.Tokens,
	}, nil
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

type sessionResult struct {
	User  models.Identity `json:"user"`
	Token string          `json:"token"`
}

// SignUp creates an account and stores the new session.
func (c *Client) SignUp(ctx context.Context, req models.SignupRequest) (*models.Identity, error) {
	var res sessionResult
	if err := c.call(ctx, http.MethodPost, "/api/auth/signup", req, false, &res); err != nil {
		return nil, err
	}
	if err := c.tokens.Save(res.Token); err != nil {
		return nil, err
	}
	return &res.User, nil
}

// Login signs in and stores the session.
func (c *Client) Login(ctx context.Context, email, password string) (*models.Identity, error) {
	var res sessionResult
	body := models.LoginRequest{Email: email, Password: password}
	if err := c.call(ctx, http.MethodPost, "/api/auth/login", body, false, &res); err != nil {
		return nil, err
	}
	if err := c.tokens.Save(res.Token); err != nil {
		return nil, err
	}
	return &res.User, nil
}

// Logout ends the session on the server and forgets the local token.
func (c *Client) Logout(ctx context.Context) error {
	token, err := c.tokens.Load()
	if err != nil {
		return err
	}
	if token != "" {
		if err := c.call(ctx, http.MethodPost, "/api/auth/logout", nil, true, nil); err != nil {
			slog.Warn("Client.Logout: server logout failed", "error", err)
		}
	}
	return c.tokens.Clear()
}

// CurrentIdentity implements wizard.IdentityProvider. Without a valid
// session it returns wizard.ErrUnauthenticated.
func (c *Client) CurrentIdentity(ctx context.Context) (*models.Identity, error) {
	var id models.Identity
	err := c.call(ctx, http.MethodGet, "/api/auth/me", nil, true, &id)
	if errors.Is(err, ErrNotSignedIn) || isStatus(err, http.StatusUnauthorized) {
		return nil, wizard.ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// RequestPlan implements wizard.PlanRequester. Failures are reported as
// *wizard.GenerationError, except a missing session which is
// wizard.ErrUnauthenticated.
func (c *Client) RequestPlan(ctx context.Context, req models.GenerationRequest) (*models.GenerationResponse, error) {
	token, err := c.tokens.Load()
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, wizard.ErrUnauthenticated
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode generation request: %w", err)
	}
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/generate", bytes.NewReader(payload), token)
	if err != nil {
		return nil, err
	}

	slog.Debug("Client.RequestPlan: posting generation request")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &wizard.GenerationError{Message: "could not reach the generation endpoint", Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &wizard.GenerationError{StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	var out models.GenerationResponse
	decodeErr := json.Unmarshal(data, &out)
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, wizard.ErrUnauthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := out.Error
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &wizard.GenerationError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, &wizard.GenerationError{StatusCode: resp.StatusCode, Message: "malformed response from generation endpoint", Err: decodeErr}
	}
	return &out, nil
}

// ListPlans returns the caller's plans, newest first.
func (c *Client) ListPlans(ctx context.Context) ([]models.Plan, error) {
	var plans []models.Plan
	if err := c.call(ctx, http.MethodGet, "/api/plans", nil, true, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

// GetPlan returns one of the caller's plans.
func (c *Client) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	var plan models.Plan
	if err := c.call(ctx, http.MethodGet, "/api/plans/"+url.PathEscape(id), nil, true, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// ListConfig returns every configuration entry (admin only, secrets masked).
func (c *Client) ListConfig(ctx context.Context) ([]models.ConfigEntry, error) {
	var entries []models.ConfigEntry
	if err := c.call(ctx, http.MethodGet, "/api/config", nil, true, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetConfig returns one configuration entry (admin only, secret masked).
func (c *Client) GetConfig(ctx context.Context, key string) (*models.ConfigEntry, error) {
	var entry models.ConfigEntry
	if err := c.call(ctx, http.MethodGet, "/api/config?key="+url.QueryEscape(key), nil, true, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// SetConfig updates one configuration entry (admin only).
func (c *Client) SetConfig(ctx context.Context, key, value string) error {
	return c.call(ctx, http.MethodPost, "/api/config", models.ConfigUpdateRequest{Key: key, Value: &value}, true, nil)
}

// MakeAdmin promotes the account with email using the admin password.
func (c *Client) MakeAdmin(ctx context.Context, email, adminPassword string) (*models.Identity, error) {
	var id models.Identity
	body := models.MakeAdminRequest{Email: email, Password: adminPassword}
	if err := c.call(ctx, http.MethodPost, "/api/admin/make-admin", body, true, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// UpdateProfile changes the signed-in user's name or phone.
func (c *Client) UpdateProfile(ctx context.Context, req models.ProfileUpdateRequest) (*models.Identity, error) {
	var id models.Identity
	if err := c.call(ctx, http.MethodPost, "/api/auth/profile", req, true, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// ChangePassword replaces the signed-in user's password and returns how many
// other sessions were ended.
func (c *Client) ChangePassword(ctx context.Context, req models.PasswordChangeRequest) (int, error) {
	var res struct {
		SessionsEnded int `json:"sessions_ended"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/auth/password", req, true, &res); err != nil {
		return 0, err
	}
	return res.SessionsEnded, nil
}

// call performs a request against an envelope endpoint and decodes the
// result into out when out is non-nil.
func (c *Client) call(ctx context.Context, method, path string, body interface{}, authed bool, out interface{}) error {
	var token string
	if authed {
		var err error
		if token, err = c.tokens.Load(); err != nil {
			return err
		}
		if token == "" {
			return ErrNotSignedIn
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, reader, token)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && resp.StatusCode < 300 {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("failed to decode result from %s: %w", path, err)
		}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, token string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func isStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// IsUnauthorized reports whether err is a 401 from the service or a missing
// local session.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrNotSignedIn) || isStatus(err, http.StatusUnauthorized)
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	return isStatus(err, http.StatusNotFound)
}
