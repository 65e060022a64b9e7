// Package testutil provides common test utilities and helpers for SegakAI tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/segakai/segakai/internal/api"
	"github.com/segakai/segakai/internal/auth"
	"github.com/segakai/segakai/internal/genai"
	"github.com/segakai/segakai/internal/models"
	"github.com/segakai/segakai/internal/store"
)

// TB is the subset of testing.TB used by the helpers.
type TB interface {
	Helper()
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// SamplePlanJSON is a small but complete generated plan.
const SamplePlanJSON = `{"workoutPlan":{"summary":"Three full-body sessions a week","weeklySchedule":[{"day":"Monday","focus":"Full body","exercises":[{"name":"Goblet squat","sets":3,"reps":"10-12","restPeriod":"60s","notes":"Keep chest up"}]}],"progressionPlan":"Add load every two weeks","recommendations":"Warm up for 5 minutes"},"dietPlan":{"summary":"Moderate deficit","dailyCalories":"1800","macronutrients":{"protein":"120g","carbs":"180g","fats":"60g"},"mealPlan":[{"meal":"Breakfast","options":[{"name":"Oats","ingredients":["oats","milk"],"preparation":"Simmer 5 minutes","nutritionalInfo":"350 kcal"}]}],"recommendations":"Eat protein at every meal","hydration":"2.5L water daily"},"additionalRecommendations":"Sleep 7-8 hours"}`

// FakePlanner is a plan generator that records calls and returns a fixed plan.
// It also satisfies api.PlannerSource by returning itself.
type FakePlanner struct {
	mu        sync.Mutex
	Plan      json.RawMessage
	Err       error
	SourceErr error
	calls     []models.UserDetails
}

// NewFakePlanner returns a planner that answers with SamplePlanJSON.
func NewFakePlanner() *FakePlanner {
	return &FakePlanner{Plan: json.RawMessage(SamplePlanJSON)}
}

// Planner implements api.PlannerSource.
func (f *FakePlanner) Planner(ctx context.Context) (genai.PlanGenerator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SourceErr != nil {
		return nil, f.SourceErr
	}
	return f, nil
}

// GeneratePlan implements genai.PlanGenerator.
func (f *FakePlanner) GeneratePlan(ctx context.Context, details models.UserDetails) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, details)
	if f.Err != nil {
		return nil, f.Err
	}
	return append(json.RawMessage(nil), f.Plan...), nil
}

// SetErr changes the error returned by later GeneratePlan calls.
func (f *FakePlanner) SetErr(err error) {
	f.mu.Lock()
	f.Err = err
	f.mu.Unlock()
}

// Calls returns how many times GeneratePlan ran.
func (f *FakePlanner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// LastDetails returns the details passed to the most recent call.
func (f *FakePlanner) LastDetails() (models.UserDetails, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return models.UserDetails{}, false
	}
	return f.calls[len(f.calls)-1], true
}

// TestEnv bundles an API server with its in-memory dependencies.
type TestEnv struct {
	Store   *store.InMemoryStore
	Auth    *auth.Service
	Planner *FakePlanner
	Server  *api.Server
}

// NewTestEnv creates a test API server with in-memory dependencies.
func NewTestEnv(opts ...api.Option) *TestEnv {
	st := store.NewInMemoryStore()
	authSvc := auth.NewService(st, auth.WithBcryptCost(bcrypt.MinCost))
	planner := NewFakePlanner()
	return &TestEnv{
		Store:   st,
		Auth:    authSvc,
		Planner: planner,
		Server:  api.NewServer(st, authSvc, planner, opts...),
	}
}

// NewTestServer creates a test API server with in-memory dependencies.
func NewTestServer() *api.Server {
	return NewTestEnv().Server
}

// Do runs req against the environment's handler.
func (e *TestEnv) Do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.Server.Handler().ServeHTTP(rr, req)
	return rr
}

// TestPassword is the password of accounts created by SignUp.
const TestPassword = "password123"

// SignUp creates an account directly through the auth service and returns
// the user and its session token.
func (e *TestEnv) SignUp(t TB, email, phone string) (*models.User, string) {
	t.Helper()
	u, sess, err := e.Auth.SignUp(context.Background(), models.SignupRequest{
		Email:    email,
		Password: TestPassword,
		Name:     "Test User",
		Phone:    phone,
	})
	if err != nil {
		t.Fatalf("sign up %s: %v", email, err)
	}
	return u, sess.Token
}

// Login opens another session for an account created by SignUp.
func (e *TestEnv) Login(t TB, email string) (*models.User, string) {
	t.Helper()
	u, sess, err := e.Auth.Login(context.Background(), models.LoginRequest{Email: email, Password: TestPassword})
	if err != nil {
		t.Fatalf("log in %s: %v", email, err)
	}
	return u, sess.Token
}

// SignUpAdmin creates an account and promotes it.
func (e *TestEnv) SignUpAdmin(t TB, email string) (*models.User, string) {
	t.Helper()
	u, token := e.SignUp(t, email, "")
	if err := e.Store.SetUserAdmin(context.Background(), u.ID, true); err != nil {
		t.Fatalf("promote %s: %v", email, err)
	}
	u.IsAdmin = true
	return u, token
}

// CompleteUserDetails returns a payload that passes every validation rule.
func CompleteUserDetails() models.UserDetails {
	s := models.Ptr[string]
	return models.UserDetails{
		PersonalDetails: models.PersonalDetails{
			Age:                models.Ptr(29),
			Gender:             s("female"),
			CulturalBackground: s("asian"),
		},
		Lifestyle: models.LifestyleDetails{
			SleepQuality:      s("good"),
			MentalHealth:      s("average"),
			FamilyStatus:      s("relationship"),
			LivingArrangement: s("partner"),
			Workload:          s("heavy"),
		},
		PhysicalAttributes: models.PhysicalAttributes{
			BodyDescription:   s("average"),
			CurrentMealHabits: s("irregular"),
			ExerciseKnowledge: s("beginner"),
		},
		Goals: models.FitnessGoals{
			PrimaryGoal:          s("lose-weight"),
			DesiredBodyShape:     s("toned"),
			EfficiencyPreference: s("quick-effective"),
		},
	}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return nil
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Errorf("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
		return nil
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// WithSession attaches a session cookie to req.
func WithSession(req *http.Request, token string) *http.Request {
	req.AddCookie(&http.Cookie{Name: api.SessionCookieName, Value: token})
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
