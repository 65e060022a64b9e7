// Package models defines the core data structures for SegakAI.
//
// It includes the onboarding form sections, generated plans, users, sessions and
// application configuration entries, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// Error variables for better error handling and testability
var (
	ErrEmptyEmail         = errors.New("email is required")
	ErrInvalidEmail       = errors.New("email is not valid")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidPhone       = errors.New("phone must be in E.164 format, e.g. +60123456789")
	ErrNameTooLong        = errors.New("name exceeds maximum length")
	ErrEmptyConfigKey     = errors.New("key is required")
	ErrMissingConfigValue = errors.New("value is required")
	ErrEmptyProfile       = errors.New("nothing to update")
	ErrPasswordMismatch   = errors.New("new password and confirmation do not match")
	ErrPasswordUnchanged  = errors.New("new password must differ from the current one")
)

// Validation constants for input validation
const (
	// MinPasswordLength is the minimum accepted password length for sign up.
	MinPasswordLength = 8
	// MaxNameLength bounds the display name stored for a user.
	MaxNameLength = 200
)

// User is a registered account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity is the authenticated caller as seen by handlers and the wizard.
type Identity struct {
	UserID  string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	IsAdmin bool   `json:"is_admin"`
}

// IdentityOf projects a user to its public identity.
func IdentityOf(u User) Identity {
	return Identity{UserID: u.ID, Email: u.Email, Name: u.Name, Phone: u.Phone, IsAdmin: u.IsAdmin}
}

// Session is an opaque login token bound to one user.
type Session struct {
	Token     string    `json:"-"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Well-known configuration keys.
const (
	ConfigOpenAIKey     = "OPENAI_API_KEY"
	ConfigGeminiKey     = "GEMINI_API_KEY"
	ConfigAdminPassword = "ADMIN_PASSWORD"
)

// SecretMask replaces secret configuration values in API responses.
const SecretMask = "••••••••••••••••"

// ConfigEntry is one row of application configuration.
type ConfigEntry struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	IsSecret    bool      `json:"is_secret"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Masked returns a copy of the entry with a secret value hidden.
func (c ConfigEntry) Masked() ConfigEntry {
	if c.IsSecret && c.Value != "" {
		c.Value = SecretMask
	}
	return c
}

// DefaultConfigEntries are seeded into every store on first open.
func DefaultConfigEntries() []ConfigEntry {
	return []ConfigEntry{
		{Key: ConfigOpenAIKey, Value: "", IsSecret: true, Description: "OpenAI API Key for generating plans"},
		{Key: ConfigGeminiKey, Value: "", IsSecret: true, Description: "Gemini API Key for generating plans"},
		{Key: ConfigAdminPassword, Value: "change_this_immediately", IsSecret: true, Description: "Password for accessing admin settings"},
	}
}

// API Response types for consistent JSON responses

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
