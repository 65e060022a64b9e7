package models

import (
	"net/mail"
	"regexp"
	"strings"
)

var e164Pattern = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// SignupRequest represents the payload for creating an account.
type SignupRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"` // optional, enables WhatsApp plan notifications
}

// Normalize trims whitespace and lower-cases the email.
func (r *SignupRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	r.Phone = strings.TrimSpace(r.Phone)
}

// Validate validates a SignupRequest.
func (r *SignupRequest) Validate() error {
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if len(r.Password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(r.Name) > MaxNameLength {
		return ErrNameTooLong
	}
	if r.Phone != "" && !e164Pattern.MatchString(r.Phone) {
		return ErrInvalidPhone
	}
	return nil
}

// LoginRequest represents the payload for signing in.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Validate validates a LoginRequest.
func (r *LoginRequest) Validate() error {
	r.Email = NormalizeEmail(r.Email)
	if r.Email == "" {
		return ErrEmptyEmail
	}
	return nil
}

// ProfileUpdateRequest changes the signed-in user's display name or phone.
// Nil fields are left as they are; an empty phone removes it.
type ProfileUpdateRequest struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

// Normalize trims the provided fields.
func (r *ProfileUpdateRequest) Normalize() {
	if r.Name != nil {
		*r.Name = strings.TrimSpace(*r.Name)
	}
	if r.Phone != nil {
		*r.Phone = strings.TrimSpace(*r.Phone)
	}
}

// Validate validates a ProfileUpdateRequest.
func (r *ProfileUpdateRequest) Validate() error {
	if r.Name == nil && r.Phone == nil {
		return ErrEmptyProfile
	}
	if r.Name != nil && len(*r.Name) > MaxNameLength {
		return ErrNameTooLong
	}
	if r.Phone != nil && *r.Phone != "" && !e164Pattern.MatchString(*r.Phone) {
		return ErrInvalidPhone
	}
	return nil
}

// PasswordChangeRequest replaces the signed-in user's password.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
	// SignOutOthers ends every other session of the user.
	SignOutOthers bool `json:"signOutOthers,omitempty"`
}

// Validate checks the new password; the current one is checked by the auth service.
func (r *PasswordChangeRequest) Validate() error {
	if len(r.NewPassword) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if r.NewPassword != r.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if r.NewPassword == r.CurrentPassword {
		return ErrPasswordUnchanged
	}
	return nil
}

// ConfigUpdateRequest represents the payload for updating one configuration key.
type ConfigUpdateRequest struct {
	Key   string  `json:"key" validate:"required"`
	Value *string `json:"value" validate:"required"`
}

// Validate validates a ConfigUpdateRequest.
func (r *ConfigUpdateRequest) Validate() error {
	if strings.TrimSpace(r.Key) == "" {
		return ErrEmptyConfigKey
	}
	if r.Value == nil {
		return ErrMissingConfigValue
	}
	return nil
}

// MakeAdminRequest represents the payload for promoting a user to admin.
type MakeAdminRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password"` // the ADMIN_PASSWORD configuration value
}

// Validate validates a MakeAdminRequest.
func (r *MakeAdminRequest) Validate() error {
	r.Email = NormalizeEmail(r.Email)
	if r.Email == "" {
		return ErrEmptyEmail
	}
	return nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return ErrEmptyEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}
