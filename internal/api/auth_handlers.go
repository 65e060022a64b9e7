package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/segakai/segakai/internal/auth"
	"github.com/segakai/segakai/internal/models"
)

// sessionResult is returned by signup and login. The token is included for
// non-browser clients that cannot read HttpOnly cookies.
type sessionResult struct {
	User      models.Identity `json:"user"`
	Token     string          `json:"token"`
	ExpiresAt string          `json:"expires_at"`
}

func newSessionResult(u *models.User, sess *models.Session) sessionResult {
	return sessionResult{
		User:      models.IdentityOf(*u),
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

func isRequestValidationError(err error) bool {
	for _, target := range []error{
		models.ErrEmptyEmail, models.ErrInvalidEmail, models.ErrPasswordTooShort,
		models.ErrInvalidPhone, models.ErrNameTooLong, models.ErrEmptyProfile,
		models.ErrPasswordMismatch, models.ErrPasswordUnchanged,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Server) signupHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.signupHandler: processing signup request", "method", r.Method)
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "signupHandler", http.MethodPost)
		return
	}
	var req models.SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.signupHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	user, sess, err := s.auth.SignUp(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrEmailTaken):
		writeJSONResponse(w, http.StatusConflict, models.Error("An account with this email already exists"))
		return
	case isRequestValidationError(err):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	default:
		slog.Error("Server.signupHandler: signup failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create account"))
		return
	}
	s.setSessionCookie(w, sess)
	slog.Info("Server.signupHandler: account created", "user_id", user.ID)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Account created", newSessionResult(user, sess)))
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.loginHandler: processing login request", "method", r.Method)
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "loginHandler", http.MethodPost)
		return
	}
	var req models.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.loginHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	user, sess, err := s.auth.Login(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid email or password"))
		return
	case isRequestValidationError(err):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	default:
		slog.Error("Server.loginHandler: login failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to sign in"))
		return
	}
	s.setSessionCookie(w, sess)
	slog.Info("Server.loginHandler: signed in", "user_id", user.ID)
	writeJSONResponse(w, http.StatusOK, models.Success(newSessionResult(user, sess)))
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "logoutHandler", http.MethodPost)
		return
	}
	if err := s.auth.Logout(r.Context(), sessionToken(r)); err != nil {
		slog.Error("Server.logoutHandler: logout failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to sign out"))
		return
	}
	s.clearSessionCookie(w)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Signed out", nil))
}

func (s *Server) meHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "meHandler", http.MethodGet)
		return
	}
	user := s.requireUser(w, r, "meHandler")
	if user == nil {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(models.IdentityOf(*user)))
}

func (s *Server) profileHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "profileHandler", http.MethodPost)
		return
	}
	user := s.requireUser(w, r, "profileHandler")
	if user == nil {
		return
	}
	var req models.ProfileUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.profileHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	updated, err := s.auth.UpdateProfile(r.Context(), user.ID, req)
	switch {
	case err == nil:
	case isRequestValidationError(err):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	default:
		slog.Error("Server.profileHandler: profile update failed", "user_id", user.ID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update profile"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Profile updated", models.IdentityOf(*updated)))
}

// passwordResult reports how many other sessions a password change ended.
type passwordResult struct {
	SessionsEnded int `json:"sessions_ended"`
}

func (s *Server) passwordHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "passwordHandler", http.MethodPost)
		return
	}
	user := s.requireUser(w, r, "passwordHandler")
	if user == nil {
		return
	}
	var req models.PasswordChangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.passwordHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	ended, err := s.auth.ChangePassword(r.Context(), user.ID, sessionToken(r), req)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrWrongPassword):
		slog.Warn("Server.passwordHandler: wrong current password", "user_id", user.ID)
		writeJSONResponse(w, http.StatusForbidden, models.Error("Current password is incorrect"))
		return
	case isRequestValidationError(err):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	default:
		slog.Error("Server.passwordHandler: password change failed", "user_id", user.ID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to change password"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Password changed", passwordResult{SessionsEnded: ended}))
}

func (s *Server) makeAdminHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "makeAdminHandler", http.MethodPost)
		return
	}
	caller := s.requireUser(w, r, "makeAdminHandler")
	if caller == nil {
		return
	}
	var req models.MakeAdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	promoted, err := s.auth.Promote(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrAdminPasswordMismatch):
		slog.Warn("Server.makeAdminHandler: wrong admin password", "caller_id", caller.ID)
		writeJSONResponse(w, http.StatusForbidden, models.Error("Incorrect admin password"))
		return
	case errors.Is(err, auth.ErrUserNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("User not found"))
		return
	case isRequestValidationError(err):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	default:
		slog.Error("Server.makeAdminHandler: promotion failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to promote user"))
		return
	}
	slog.Info("Server.makeAdminHandler: user promoted", "caller_id", caller.ID, "user_id", promoted.ID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("User promoted to admin", models.IdentityOf(*promoted)))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"service": "segakai"}))
}
