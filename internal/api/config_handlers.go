package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/segakai/segakai/internal/models"
	"github.com/segakai/segakai/internal/store"
)

func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.getConfig(w, r)
	case http.MethodPost:
		s.setConfig(w, r)
	default:
		methodNotAllowed(w, r, "configHandler", http.MethodGet, http.MethodPost)
	}
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	if s.requireAdmin(w, r, "configHandler") == nil {
		return
	}
	ctx := r.Context()
	if key := strings.TrimSpace(r.URL.Query().Get("key")); key != "" {
		entry, err := s.st.GetConfig(ctx, key)
		if err != nil {
			slog.Error("Server.configHandler: failed to read config", "key", key, "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read configuration"))
			return
		}
		if entry == nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Configuration key not found"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(entry.Masked()))
		return
	}

	entries, err := s.st.ListConfig(ctx)
	if err != nil {
		slog.Error("Server.configHandler: failed to list config", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read configuration"))
		return
	}
	masked := make([]models.ConfigEntry, 0, len(entries))
	for _, e := range entries {
		masked = append(masked, e.Masked())
	}
	writeJSONResponse(w, http.StatusOK, models.Success(masked))
}

func (s *Server) setConfig(w http.ResponseWriter, r *http.Request) {
	admin := s.requireAdmin(w, r, "configHandler")
	if admin == nil {
		return
	}
	var req models.ConfigUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	key := strings.TrimSpace(req.Key)
	ctx := r.Context()
	if err := s.st.SetConfig(ctx, key, *req.Value); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Configuration key not found"))
			return
		}
		slog.Error("Server.configHandler: failed to update config", "key", key, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update configuration"))
		return
	}
	// Secret values are never logged.
	slog.Info("Server.configHandler: configuration updated", "key", key, "admin_id", admin.ID)
	entry, err := s.st.GetConfig(ctx, key)
	if err != nil || entry == nil {
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Configuration updated", nil))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Configuration updated", entry.Masked()))
}
