package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/segakai/segakai/internal/auth"
	"github.com/segakai/segakai/internal/models"
)

// sessionToken returns the token from the session cookie or a Bearer
// Authorization header.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// currentUser resolves the caller. A nil user with a nil error means the
// request is not authenticated.
func (s *Server) currentUser(r *http.Request) (*models.User, error) {
	user, err := s.auth.Identify(r.Context(), sessionToken(r))
	if errors.Is(err, auth.ErrNoSession) {
		return nil, nil
	}
	return user, err
}

// requireUser writes an envelope error and returns nil when the caller is not
// signed in.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request, handler string) *models.User {
	user, err := s.currentUser(r)
	if err != nil {
		slog.Error("Server."+handler+": session lookup failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
		return nil
	}
	if user == nil {
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Authentication required"))
		return nil
	}
	return user
}

// requireAdmin is requireUser plus an admin check.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request, handler string) *models.User {
	user := s.requireUser(w, r, handler)
	if user == nil {
		return nil
	}
	if !user.IsAdmin {
		slog.Warn("Server."+handler+": admin access denied", "user_id", user.ID)
		writeJSONResponse(w, http.StatusForbidden, models.Error("Admin access required"))
		return nil
	}
	return user
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sess *models.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(time.Until(sess.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
