package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrPlanNotObject is returned when generated plan content is not a JSON object.
var ErrPlanNotObject = errors.New("plan content is not a JSON object")

// Plan is a persisted generated plan. PlanData and UserDetails hold the raw JSON
// exactly as produced and submitted.
type Plan struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	PlanData    json.RawMessage `json:"plan_data"`
	UserDetails json.RawMessage `json:"user_details"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// GenerationResponse is the body returned by POST /api/generate.
type GenerationResponse struct {
	Plan      json.RawMessage `json:"plan,omitempty"`
	PlanID    string          `json:"plan_id"`
	Persisted *bool           `json:"persisted,omitempty"`
	Warning   string          `json:"warning,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// EnsureJSONObject trims raw and checks that it decodes as a JSON object.
func EnsureJSONObject(raw string) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrPlanNotObject
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, ErrPlanNotObject
	}
	return json.RawMessage(trimmed), nil
}

// FlexString decodes any JSON scalar into text. Models do not always respect
// the string types in the requested schema.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = ""
		return nil
	}
	var list []FlexString
	if err := json.Unmarshal(data, &list); err == nil {
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = string(item)
		}
		*f = FlexString(strings.Join(parts, "; "))
		return nil
	}
	*f = FlexString(bytes.TrimSpace(data))
	return nil
}

// PlanContent is the typed view of plan_data used for summaries.
type PlanContent struct {
	WorkoutPlan               WorkoutPlan `json:"workoutPlan"`
	DietPlan                  DietPlan    `json:"dietPlan"`
	AdditionalRecommendations FlexString  `json:"additionalRecommendations"`
}

// WorkoutPlan is the workout half of a plan.
type WorkoutPlan struct {
	Summary         FlexString   `json:"summary"`
	WeeklySchedule  []WorkoutDay `json:"weeklySchedule"`
	ProgressionPlan FlexString   `json:"progressionPlan"`
	Recommendations FlexString   `json:"recommendations"`
}

// WorkoutDay is one day of the weekly schedule.
type WorkoutDay struct {
	Day       FlexString `json:"day"`
	Focus     FlexString `json:"focus"`
	Exercises []Exercise `json:"exercises"`
}

// Exercise is a single prescribed exercise.
type Exercise struct {
	Name       FlexString `json:"name"`
	Sets       FlexString `json:"sets"`
	Reps       FlexString `json:"reps"`
	RestPeriod FlexString `json:"restPeriod"`
	Notes      FlexString `json:"notes"`
}

// DietPlan is the nutrition half of a plan.
type DietPlan struct {
	Summary         FlexString `json:"summary"`
	DailyCalories   FlexString `json:"dailyCalories"`
	Macronutrients  Macros     `json:"macronutrients"`
	MealPlan        []Meal     `json:"mealPlan"`
	Recommendations FlexString `json:"recommendations"`
	Hydration       FlexString `json:"hydration"`
}

// Macros holds daily macronutrient targets.
type Macros struct {
	Protein FlexString `json:"protein"`
	Carbs   FlexString `json:"carbs"`
	Fats    FlexString `json:"fats"`
}

// Meal groups the options for one meal of the day.
type Meal struct {
	Meal    FlexString   `json:"meal"`
	Options []MealOption `json:"options"`
}

// MealOption is one suggested dish.
type MealOption struct {
	Name            FlexString   `json:"name"`
	Ingredients     []FlexString `json:"ingredients"`
	Preparation     FlexString   `json:"preparation"`
	NutritionalInfo FlexString   `json:"nutritionalInfo"`
}

// ParsePlanContent decodes plan_data into its typed view. Unknown fields are ignored.
func ParsePlanContent(raw json.RawMessage) (PlanContent, error) {
	var content PlanContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return PlanContent{}, err
	}
	return content, nil
}
