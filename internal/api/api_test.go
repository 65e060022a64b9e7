package api_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segakai/segakai/internal/api"
	"github.com/segakai/segakai/internal/genai"
	"github.com/segakai/segakai/internal/models"
	"github.com/segakai/segakai/internal/store"
	"github.com/segakai/segakai/internal/testutil"
)

func generateRequest(t *testing.T, token string, details *models.UserDetails) *http.Request {
	t.Helper()
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/api/generate", models.GenerationRequest{UserDetails: details})
	if token != "" {
		testutil.WithSession(req, token)
	}
	return req
}

func decodeMap(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	testutil.MustUnmarshalJSON(t, body, &m)
	return m
}

func TestSignupLoginLogout(t *testing.T) {
	env := testutil.NewTestEnv()

	rr := env.Do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/auth/signup", map[string]string{
		"email": "new@example.com", "password": "password123", "name": "New",
	}))
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "signup")
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, api.SessionCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.Equal(t, "/", cookies[0].Path)

	dup := env.Do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/auth/signup", map[string]string{
		"email": "NEW@example.com", "password": "password123",
	}))
	testutil.AssertHTTPStatus(t, http.StatusConflict, dup.Code, "duplicate signup")

	short := env.Do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/auth/signup", map[string]string{
		"email": "short@example.com", "password": "short",
	}))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, short.Code, "short password")

	bad := env.Do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "new@example.com", "password": "wrong-password",
	}))
	testutil.AssertHTTPStatus(t, http.StatusUnauthorized, bad.Code, "bad login")

	login := env.Do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "new@example.com", "password": "password123",
	}))
	testutil.AssertHTTPStatus(t, http.StatusOK, login.Code, "login")
	body := testutil.AssertJSONResponse(t, login, "ok")
	token := body["result"].(map[string]interface{})["token"].(string)
	require.NotEmpty(t, token)

	me := env.Do(testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/auth/me", nil), token))
	testutil.AssertHTTPStatus(t, http.StatusOK, me.Code, "me")

	out := env.Do(testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/auth/logout", nil), token))
	testutil.AssertHTTPStatus(t, http.StatusOK, out.Code, "logout")
	cleared := out.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Less(t, cleared[0].MaxAge, 0)

	after := env.Do(testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/auth/me", nil), token))
	testutil.AssertHTTPStatus(t, http.StatusUnauthorized, after.Code, "me after logout")
}

func TestProfileAndPassword(t *testing.T) {
	env := testutil.NewTestEnv()
	_, token := env.SignUp(t, "owner@example.com", "")

	anon := env.Do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/auth/profile", map[string]string{"name": "X"}))
	testutil.AssertHTTPStatus(t, http.StatusUnauthorized, anon.Code, "profile without session")

	rr := env.Do(testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/auth/profile", map[string]string{
		"name": "Owner", "phone": "+60123456789",
	}), token))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "profile update")
	result := testutil.AssertJSONResponse(t, rr, "ok")["result"].(map[string]interface{})
	assert.Equal(t, "Owner", result["name"])
	assert.Equal(t, "+60123456789", result["phone"])

	rr = env.Do(testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/auth/profile", map[string]string{
		"phone": "12345",
	}), token))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "bad phone")

	rr = env.Do(testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/auth/profile", nil), token))
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "GET profile")

	password := func(tok string, body interface{}) *httptest.ResponseRecorder {
		return env.Do(testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/auth/password", body), tok))
	}
	_, second := env.Login(t, "owner@example.com")

	rr = password(token, models.PasswordChangeRequest{CurrentPassword: "nope", NewPassword: "new-password", ConfirmPassword: "new-password"})
	testutil.AssertHTTPStatus(t, http.StatusForbidden, rr.Code, "wrong current password")
	rr = password(token, models.PasswordChangeRequest{CurrentPassword: testutil.TestPassword, NewPassword: "new-password", ConfirmPassword: "other-password"})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "confirmation mismatch")

	rr = password(token, models.PasswordChangeRequest{
		CurrentPassword: testutil.TestPassword, NewPassword: "new-password", ConfirmPassword: "new-password", SignOutOthers: true,
	})
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "password change")
	result = testutil.AssertJSONResponse(t, rr, "ok")["result"].(map[string]interface{})
	assert.EqualValues(t, 1, result["sessions_ended"])

	me := env.Do(testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/auth/me", nil), second))
	testutil.AssertHTTPStatus(t, http.StatusUnauthorized, me.Code, "other session ended")
	me = env.Do(testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/auth/me", nil), token))
	testutil.AssertHTTPStatus(t, http.StatusOK, me.Code, "current session kept")

	login := env.Do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "owner@example.com", "password": "new-password",
	}))
	testutil.AssertHTTPStatus(t, http.StatusOK, login.Code, "login with new password")
}

func TestBearerTokenAccepted(t *testing.T) {
	env := testutil.NewTestEnv()
	_, token := env.SignUp(t, "bearer@example.com", "")

	req := testutil.CreateHTTPRequest(t, http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := env.Do(req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "bearer me")
}

func TestMethodNotAllowedSetsAllow(t *testing.T) {
	env := testutil.NewTestEnv()
	rr := env.Do(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/generate", nil))
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "GET generate")
	assert.Equal(t, http.MethodPost, rr.Header().Get("Allow"))

	rr = env.Do(testutil.CreateHTTPRequest(t, http.MethodDelete, "/api/config", nil))
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "DELETE config")
	assert.Equal(t, "GET, POST", rr.Header().Get("Allow"))
}

func TestGenerate_RequiresSessionAndNeverCallsProvider(t *testing.T) {
	env := testutil.NewTestEnv()
	details := testutil.CompleteUserDetails()

	rr := env.Do(generateRequest(t, "", &details))
	testutil.AssertHTTPStatus(t, http.StatusUnauthorized, rr.Code, "no session")
	assert.JSONEq(t, `{"error":"Authentication required"}`, rr.Body.String())

	rr = env.Do(generateRequest(t, "forged-token", &details))
	testutil.AssertHTTPStatus(t, http.StatusUnauthorized, rr.Code, "unknown session")
	assert.Equal(t, 0, env.Planner.Calls())
}

func TestGenerate_Success(t *testing.T) {
	env := testutil.NewTestEnv()
	user, token := env.SignUp(t, "gen@example.com", "")
	details := testutil.CompleteUserDetails()

	rr := env.Do(generateRequest(t, token, &details))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "generate")

	var resp models.GenerationResponse
	testutil.MustUnmarshalJSON(t, rr.Body.Bytes(), &resp)
	require.NotEmpty(t, resp.PlanID)
	assert.Nil(t, resp.Persisted)
	assert.JSONEq(t, testutil.SamplePlanJSON, string(resp.Plan))
	assert.Equal(t, 1, env.Planner.Calls())

	got, ok := env.Planner.LastDetails()
	require.True(t, ok)
	assert.Equal(t, "lose-weight", models.StringValue(got.Goals.PrimaryGoal))

	stored, err := env.Store.GetPlan(context.Background(), resp.PlanID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, user.ID, stored.UserID)
	assert.JSONEq(t, string(testutil.MustMarshalJSON(t, details)), string(stored.UserDetails))
}

func TestGenerate_BadPayloads(t *testing.T) {
	env := testutil.NewTestEnv()
	_, token := env.SignUp(t, "payload@example.com", "")

	missing := env.Do(generateRequest(t, token, nil))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, missing.Code, "missing details")
	assert.JSONEq(t, `{"error":"User details are required"}`, missing.Body.String())

	details := testutil.CompleteUserDetails()
	details.Age = models.Ptr(15)
	details.Gender = models.Ptr("robot")
	invalid := env.Do(generateRequest(t, token, &details))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, invalid.Code, "invalid details")
	body := decodeMap(t, invalid.Body.Bytes())
	assert.Contains(t, body["error"], "invalid age")
	assert.Contains(t, body["error"], "invalid gender")
	fields := body["fields"].(map[string]interface{})
	assert.Contains(t, fields, string(models.SectionPersonal))

	req := testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/generate", nil), token)
	req.Body = http.NoBody
	notJSON := env.Do(req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, notJSON.Code, "empty body")

	assert.Equal(t, 0, env.Planner.Calls())
}

func TestGenerate_ProviderFailures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(p *testutil.FakePlanner)
		status int
	}{
		{"provider error", func(p *testutil.FakePlanner) { p.Err = errors.New("upstream 503") }, http.StatusInternalServerError},
		{"not a JSON object", func(p *testutil.FakePlanner) { p.Err = fmt.Errorf("wrap: %w", genai.ErrInvalidPlan) }, http.StatusBadGateway},
		{"no API key", func(p *testutil.FakePlanner) { p.SourceErr = genai.ErrMissingAPIKey }, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testutil.NewTestEnv()
			user, token := env.SignUp(t, "fail@example.com", "")
			tt.setup(env.Planner)
			details := testutil.CompleteUserDetails()

			rr := env.Do(generateRequest(t, token, &details))
			testutil.AssertHTTPStatus(t, tt.status, rr.Code, tt.name)
			assert.JSONEq(t, `{"error":"Failed to generate plan"}`, rr.Body.String())

			plans, err := env.Store.ListPlansByUser(context.Background(), user.ID)
			require.NoError(t, err)
			assert.Empty(t, plans)
		})
	}
}

// failingPlanStore rejects every plan insert.
type failingPlanStore struct {
	*store.InMemoryStore
}

func (failingPlanStore) CreatePlan(ctx context.Context, p *models.Plan) error {
	return errors.New("disk full")
}

func TestGenerate_PersistenceFailureKeepsPlan(t *testing.T) {
	env := testutil.NewTestEnv()
	_, token := env.SignUp(t, "persist@example.com", "")
	srv := api.NewServer(failingPlanStore{env.Store}, env.Auth, env.Planner)
	details := testutil.CompleteUserDetails()

	req := generateRequest(t, token, &details)
	rr := testutilDo(srv, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "persistence failure")

	var resp models.GenerationResponse
	testutil.MustUnmarshalJSON(t, rr.Body.Bytes(), &resp)
	assert.JSONEq(t, testutil.SamplePlanJSON, string(resp.Plan))
	assert.Empty(t, resp.PlanID)
	require.NotNil(t, resp.Persisted)
	assert.False(t, *resp.Persisted)
	assert.Equal(t, "Plan generated but could not be saved", resp.Warning)
}

func TestGenerate_RateLimited(t *testing.T) {
	env := testutil.NewTestEnv(api.WithGenerateRateLimit(1, 2))
	_, token := env.SignUp(t, "rate@example.com", "")
	details := testutil.CompleteUserDetails()

	for i := 0; i < 2; i++ {
		rr := env.Do(generateRequest(t, token, &details))
		testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, fmt.Sprintf("request %d", i+1))
	}
	rr := env.Do(generateRequest(t, token, &details))
	testutil.AssertHTTPStatus(t, http.StatusTooManyRequests, rr.Code, "over the limit")
	assert.Contains(t, decodeMap(t, rr.Body.Bytes()), "error")

	// Other users have their own allowance.
	_, other := env.SignUp(t, "rate2@example.com", "")
	rr = env.Do(generateRequest(t, other, &details))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "second user")
}

func TestGenerate_RejectedPayloadsKeepAllowance(t *testing.T) {
	env := testutil.NewTestEnv(api.WithGenerateRateLimit(1, 1))
	_, token := env.SignUp(t, "allowance@example.com", "")

	bad := testutil.CompleteUserDetails()
	bad.Age = models.Ptr(3)
	for i := 0; i < 3; i++ {
		rr := env.Do(generateRequest(t, token, &bad))
		testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, fmt.Sprintf("invalid request %d", i+1))
		rr = env.Do(generateRequest(t, token, nil))
		testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, fmt.Sprintf("missing details %d", i+1))
	}

	details := testutil.CompleteUserDetails()
	rr := env.Do(generateRequest(t, token, &details))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "first valid request")
	assert.Equal(t, 1, env.Planner.Calls())
}

func TestGenerate_TrimsUserDetails(t *testing.T) {
	env := testutil.NewTestEnv()
	_, token := env.SignUp(t, "trim@example.com", "")
	details := testutil.CompleteUserDetails()
	details.Gender = models.Ptr(" male ")
	details.Goals.PrimaryGoal = models.Ptr("lose-weight\n")

	rr := env.Do(generateRequest(t, token, &details))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "generate")

	got, ok := env.Planner.LastDetails()
	require.True(t, ok)
	assert.Equal(t, "male", models.StringValue(got.Gender))
	assert.Equal(t, "lose-weight", models.StringValue(got.Goals.PrimaryGoal))

	var resp models.GenerationResponse
	testutil.MustUnmarshalJSON(t, rr.Body.Bytes(), &resp)
	stored, err := env.Store.GetPlan(context.Background(), resp.PlanID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Contains(t, string(stored.UserDetails), `"gender":"male"`)
	assert.NotContains(t, string(stored.UserDetails), `" male "`)
}

func TestGenerate_QueuesNotificationWhenEnabled(t *testing.T) {
	env := testutil.NewTestEnv(api.WithNotifications(true))
	_, withPhone := env.SignUp(t, "phone@example.com", "+60123456789")
	_, noPhone := env.SignUp(t, "nophone@example.com", "")
	details := testutil.CompleteUserDetails()

	rr := env.Do(generateRequest(t, withPhone, &details))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "with phone")
	rr = env.Do(generateRequest(t, noPhone, &details))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "without phone")

	due, err := env.Store.ClaimDueNotifications(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, store.NotificationPlanReady, due[0].Kind)
	assert.Contains(t, due[0].PayloadJSON, `"to":"+60123456789"`)
	assert.Contains(t, due[0].PayloadJSON, `"primary_goal":"Lose weight"`)
}

func TestGenerate_NoNotificationWhenDisabled(t *testing.T) {
	env := testutil.NewTestEnv()
	_, token := env.SignUp(t, "quiet@example.com", "+60123456789")
	details := testutil.CompleteUserDetails()

	rr := env.Do(generateRequest(t, token, &details))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "generate")
	due, err := env.Store.ClaimDueNotifications(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestPlans_OwnerOnly(t *testing.T) {
	env := testutil.NewTestEnv()
	_, tokenA := env.SignUp(t, "a@example.com", "")
	_, tokenB := env.SignUp(t, "b@example.com", "")
	details := testutil.CompleteUserDetails()

	var created models.GenerationResponse
	rr := env.Do(generateRequest(t, tokenA, &details))
	testutil.MustUnmarshalJSON(t, rr.Body.Bytes(), &created)
	require.NotEmpty(t, created.PlanID)

	own := env.Do(testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/plans/"+created.PlanID, nil), tokenA))
	testutil.AssertHTTPStatus(t, http.StatusOK, own.Code, "owner read")

	other := env.Do(testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/plans/"+created.PlanID, nil), tokenB))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, other.Code, "other user read")

	list := env.Do(testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/plans", nil), tokenB))
	testutil.AssertHTTPStatus(t, http.StatusOK, list.Code, "other user list")
	body := testutil.AssertJSONResponse(t, list, "ok")
	assert.Empty(t, body["result"])

	mine := env.Do(testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/plans", nil), tokenA))
	body = testutil.AssertJSONResponse(t, mine, "ok")
	assert.Len(t, body["result"], 1)

	anon := env.Do(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/plans", nil))
	testutil.AssertHTTPStatus(t, http.StatusUnauthorized, anon.Code, "anonymous list")
}

func TestConfig_AdminOnlyAndMasked(t *testing.T) {
	env := testutil.NewTestEnv()
	_, userToken := env.SignUp(t, "user@example.com", "")
	_, adminToken := env.SignUpAdmin(t, "admin@example.com")

	anon := env.Do(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/config", nil))
	testutil.AssertHTTPStatus(t, http.StatusUnauthorized, anon.Code, "anonymous config")

	forbidden := env.Do(testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/config", nil), userToken))
	testutil.AssertHTTPStatus(t, http.StatusForbidden, forbidden.Code, "non-admin config")

	forbiddenSet := env.Do(testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/config",
		map[string]string{"key": models.ConfigOpenAIKey, "value": "sk"}), userToken))
	testutil.AssertHTTPStatus(t, http.StatusForbidden, forbiddenSet.Code, "non-admin update")

	set := env.Do(testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/config",
		map[string]string{"key": models.ConfigOpenAIKey, "value": "sk-live-123"}), adminToken))
	testutil.AssertHTTPStatus(t, http.StatusOK, set.Code, "admin update")
	assert.NotContains(t, set.Body.String(), "sk-live-123")

	entry, err := env.Store.GetConfig(context.Background(), models.ConfigOpenAIKey)
	require.NoError(t, err)
	assert.Equal(t, "sk-live-123", entry.Value)

	list := env.Do(testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/config", nil), adminToken))
	testutil.AssertHTTPStatus(t, http.StatusOK, list.Code, "admin list")
	assert.NotContains(t, list.Body.String(), "sk-live-123")
	assert.Contains(t, list.Body.String(), models.SecretMask)

	one := env.Do(testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/config?key="+models.ConfigGeminiKey, nil), adminToken))
	testutil.AssertHTTPStatus(t, http.StatusOK, one.Code, "admin get one")
	body := testutil.AssertJSONResponse(t, one, "ok")
	assert.Equal(t, "", body["result"].(map[string]interface{})["value"], "empty secrets stay empty")

	unknown := env.Do(testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/config",
		map[string]string{"key": "NOPE", "value": "x"}), adminToken))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, unknown.Code, "unknown key")

	noValue := env.Do(testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/config",
		map[string]string{"key": models.ConfigOpenAIKey}), adminToken))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, noValue.Code, "missing value")
}

func TestMakeAdmin(t *testing.T) {
	env := testutil.NewTestEnv()
	target, token := env.SignUp(t, "target@example.com", "")
	require.NoError(t, env.Store.SetConfig(context.Background(), models.ConfigAdminPassword, "let-me-in"))

	anon := env.Do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/admin/make-admin",
		map[string]string{"email": target.Email, "password": "let-me-in"}))
	testutil.AssertHTTPStatus(t, http.StatusUnauthorized, anon.Code, "anonymous promote")

	wrong := env.Do(testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/admin/make-admin",
		map[string]string{"email": target.Email, "password": "nope"}), token))
	testutil.AssertHTTPStatus(t, http.StatusForbidden, wrong.Code, "wrong password")

	unknown := env.Do(testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/admin/make-admin",
		map[string]string{"email": "ghost@example.com", "password": "let-me-in"}), token))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, unknown.Code, "unknown email")

	ok := env.Do(testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/admin/make-admin",
		map[string]string{"email": target.Email, "password": "let-me-in"}), token))
	testutil.AssertHTTPStatus(t, http.StatusOK, ok.Code, "promote")

	u, err := env.Store.GetUserByID(context.Background(), target.ID)
	require.NoError(t, err)
	assert.True(t, u.IsAdmin)
}

func TestServe_GracefulShutdown(t *testing.T) {
	env := testutil.NewTestEnv()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	workerStopped := make(chan struct{})
	worker := func(ctx context.Context) error {
		<-ctx.Done()
		close(workerStopped)
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- env.Server.Serve(ctx, ln, worker) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	<-workerStopped
}

func TestPanicRecovery(t *testing.T) {
	env := testutil.NewTestEnv()
	_, token := env.SignUp(t, "panic@example.com", "")

	srv := api.NewServer(panickingStore{env.Store}, env.Auth, env.Planner)
	req := testutil.WithSession(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/plans", nil), token)
	rr := testutilDo(srv, req)
	testutil.AssertHTTPStatus(t, http.StatusInternalServerError, rr.Code, "panic")
	body := decodeMap(t, rr.Body.Bytes())
	assert.Equal(t, "error", body["status"])
	assert.True(t, strings.Contains(fmt.Sprint(body["message"]), "Internal server error"))
}

type panickingStore struct {
	*store.InMemoryStore
}

func (panickingStore) ListPlansByUser(ctx context.Context, userID string) ([]models.Plan, error) {
	panic("boom")
}

func testutilDo(srv *api.Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}
