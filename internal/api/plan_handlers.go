package api

import (
	"log/slog"
	"net/http"

	"github.com/segakai/segakai/internal/models"
)

func (s *Server) listPlansHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "listPlansHandler", http.MethodGet)
		return
	}
	user := s.requireUser(w, r, "listPlansHandler")
	if user == nil {
		return
	}
	plans, err := s.st.ListPlansByUser(r.Context(), user.ID)
	if err != nil {
		slog.Error("Server.listPlansHandler: failed to list plans", "user_id", user.ID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load plans"))
		return
	}
	if plans == nil {
		plans = []models.Plan{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(plans))
}

func (s *Server) getPlanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "getPlanHandler", http.MethodGet)
		return
	}
	user := s.requireUser(w, r, "getPlanHandler")
	if user == nil {
		return
	}
	id := r.PathValue("id")
	plan, err := s.st.GetPlan(r.Context(), id)
	if err != nil {
		slog.Error("Server.getPlanHandler: failed to load plan", "plan_id", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load plan"))
		return
	}
	// Plans owned by someone else are reported as missing.
	if plan == nil || plan.UserID != user.ID {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Plan not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(plan))
}
