package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/segakai/segakai/internal/genai"
	"github.com/segakai/segakai/internal/models"
	"github.com/segakai/segakai/internal/notify"
	"github.com/segakai/segakai/internal/wizard"
)

const (
	msgAuthRequired       = "Authentication required"
	msgDetailsRequired    = "User details are required"
	msgGenerateFailed     = "Failed to generate plan"
	msgRateLimited        = "Too many plan requests, please wait a moment and try again"
	msgPlanNotSavedNotice = "Plan generated but could not be saved"
)

// detailsError is the 400 body for user details that fail validation.
type detailsError struct {
	Error  string                                     `json:"error"`
	Fields map[models.Section]wizard.ValidationResult `json:"fields"`
}

func (s *Server) generateHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.generateHandler: processing generate request", "method", r.Method)
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "generateHandler", http.MethodPost)
		return
	}
	ctx := r.Context()

	user, err := s.currentUser(r)
	if err != nil {
		slog.Error("Server.generateHandler: session lookup failed", "error", err)
		writeGenerationError(w, http.StatusInternalServerError, msgGenerateFailed)
		return
	}
	if user == nil {
		writeGenerationError(w, http.StatusUnauthorized, msgAuthRequired)
		return
	}
	var req models.GenerationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.generateHandler: failed to decode JSON", "error", err)
		writeGenerationError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if req.UserDetails == nil {
		writeGenerationError(w, http.StatusBadRequest, msgDetailsRequired)
		return
	}
	details := req.UserDetails.FormState().Trimmed().Flatten()
	if problems := s.catalog.ValidateForm(details.FormState()); len(problems) > 0 {
		slog.Warn("Server.generateHandler: user details failed validation", "user_id", user.ID, "sections", len(problems))
		writeJSONResponse(w, http.StatusBadRequest, detailsError{
			Error:  describeProblems(problems),
			Fields: problems,
		})
		return
	}
	if !s.limiter.Allow(user.ID) {
		slog.Warn("Server.generateHandler: rate limited", "user_id", user.ID)
		writeGenerationError(w, http.StatusTooManyRequests, msgRateLimited)
		return
	}

	planner, err := s.planner.Planner(ctx)
	if err != nil {
		slog.Error("Server.generateHandler: no plan generator available", "error", err)
		writeGenerationError(w, http.StatusInternalServerError, msgGenerateFailed)
		return
	}
	plan, err := planner.GeneratePlan(ctx, details)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, genai.ErrInvalidPlan) {
			status = http.StatusBadGateway
		}
		slog.Error("Server.generateHandler: plan generation failed", "user_id", user.ID, "status", status, "error", err)
		writeGenerationError(w, status, msgGenerateFailed)
		return
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		slog.Error("Server.generateHandler: failed to encode user details", "error", err)
		writeGenerationError(w, http.StatusInternalServerError, msgGenerateFailed)
		return
	}
	record := &models.Plan{UserID: user.ID, PlanData: plan, UserDetails: detailsJSON}
	if err := s.st.CreatePlan(ctx, record); err != nil {
		slog.Error("Server.generateHandler: failed to persist plan", "user_id", user.ID, "error", err)
		persisted := false
		writeJSONResponse(w, http.StatusOK, models.GenerationResponse{
			Plan:      plan,
			Persisted: &persisted,
			Warning:   msgPlanNotSavedNotice,
		})
		return
	}

	if s.notifications {
		goal := s.optionLabel(models.SectionGoals, "primaryGoal", models.StringValue(details.Goals.PrimaryGoal))
		if _, err := notify.EnqueuePlanReady(ctx, s.st, user, record.ID, goal); err != nil {
			slog.Error("Server.generateHandler: failed to queue plan notification", "plan_id", record.ID, "error", err)
		}
	}

	slog.Info("Server.generateHandler: plan generated", "user_id", user.ID, "plan_id", record.ID)
	writeJSONResponse(w, http.StatusOK, models.GenerationResponse{Plan: plan, PlanID: record.ID})
}

func (s *Server) optionLabel(section models.Section, field, value string) string {
	step, ok := s.catalog.StepFor(section)
	if !ok {
		return value
	}
	f, ok := step.Field(field)
	if !ok {
		return value
	}
	return f.OptionLabel(value)
}

// describeProblems renders validation problems in section order.
func describeProblems(problems map[models.Section]wizard.ValidationResult) string {
	var parts []string
	for _, section := range models.Sections {
		res, ok := problems[section]
		if !ok {
			continue
		}
		var fields []string
		for _, f := range res.MissingFields {
			fields = append(fields, "missing "+f)
		}
		for _, f := range res.InvalidFields {
			fields = append(fields, "invalid "+f)
		}
		parts = append(parts, fmt.Sprintf("%s: %s", section, strings.Join(fields, ", ")))
	}
	return "Invalid user details: " + strings.Join(parts, "; ")
}
