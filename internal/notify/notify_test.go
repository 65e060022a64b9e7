package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/segakai/segakai/internal/models"
	"github.com/segakai/segakai/internal/store"
)

type fakeMessages struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (f *fakeMessages) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	return &twilioApi.ApiV2010Message{}, nil
}

func TestTwilioSender_SendMessage(t *testing.T) {
	api := &fakeMessages{}
	s := newTwilioSender(api, "+15550001111")

	require.NoError(t, s.SendMessage(context.Background(), "+60123456789", "hello"))
	require.Len(t, api.params, 1)
	p := api.params[0]
	assert.Equal(t, "whatsapp:+60123456789", *p.To)
	assert.Equal(t, "whatsapp:+15550001111", *p.From)
	assert.Equal(t, "hello", *p.Body)
}

func TestTwilioSender_SendMessageError(t *testing.T) {
	api := &fakeMessages{err: errors.New("twilio down")}
	s := newTwilioSender(api, "whatsapp:+15550001111")

	err := s.SendMessage(context.Background(), "+60123456789", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "twilio down")
}

func TestNewTwilioSender_RequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	_, err := NewTwilioSender()
	assert.Error(t, err)

	_, err = NewTwilioSender(WithAccountSID("AC123"), WithAuthToken("tok"))
	assert.Error(t, err, "missing from number should fail")

	s, err := NewTwilioSender(WithAccountSID("AC123"), WithAuthToken("tok"), WithFromWhats("+15550001111"))
	require.NoError(t, err)
	assert.Equal(t, "whatsapp:+15550001111", s.fromWhats)
}

func TestPlanReadyMessage(t *testing.T) {
	msg := PlanReadyMessage(PlanReadyPayload{PlanID: "p1", To: "+1", Name: "Aisha", PrimaryGoal: "Lose weight"})
	assert.Contains(t, msg, "Hi Aisha!")
	assert.Contains(t, msg, "Goal: Lose weight.")
	assert.Contains(t, msg, "segakai plans")

	bare := PlanReadyMessage(PlanReadyPayload{PlanID: "p1", To: "+1"})
	assert.NotContains(t, bare, "Hi ")
	assert.NotContains(t, bare, "Goal:")
}

func TestEnqueuePlanReady(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()

	queued, err := EnqueuePlanReady(ctx, s, &models.User{ID: "u1"}, "plan-1", "Tone up")
	require.NoError(t, err)
	assert.False(t, queued, "users without a phone get no notification")

	user := &models.User{ID: "u2", Phone: "+60123456789", Name: "Ben"}
	queued, err = EnqueuePlanReady(ctx, s, user, "plan-2", "Tone up")
	require.NoError(t, err)
	assert.True(t, queued)

	// Same plan again is deduplicated.
	_, err = EnqueuePlanReady(ctx, s, user, "plan-2", "Tone up")
	require.NoError(t, err)
	claimed, err := s.ClaimDueNotifications(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "u2", claimed[0].UserID)
	assert.JSONEq(t, `{"plan_id":"plan-2","to":"+60123456789","name":"Ben","primary_goal":"Tone up"}`, claimed[0].PayloadJSON)
}

func newTestDispatcher(t *testing.T, sender Sender, clock *time.Time) (*Dispatcher, *store.InMemoryStore) {
	t.Helper()
	s := store.NewInMemoryStore()
	d := NewDispatcher(s, sender, WithPollInterval(10*time.Millisecond))
	d.now = func() time.Time { return *clock }
	return d, s
}

func TestDispatcher_PollDelivers(t *testing.T) {
	ctx := context.Background()
	clock := time.Now()
	sender := NewMockSender()
	d, s := newTestDispatcher(t, sender, &clock)

	user := &models.User{ID: "u1", Phone: "+60123456789"}
	_, err := EnqueuePlanReady(ctx, s, user, "plan-1", "")
	require.NoError(t, err)

	assert.Equal(t, 1, d.Poll(ctx))
	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "+60123456789", sent[0].To)

	assert.Equal(t, 0, d.Poll(ctx), "sent notifications are not redelivered")
}

func TestDispatcher_BackoffThenFail(t *testing.T) {
	ctx := context.Background()
	clock := time.Now()
	sender := NewMockSender()
	sender.SetErr(errors.New("unreachable"))
	d, s := newTestDispatcher(t, sender, &clock)

	id, err := s.EnqueueNotification(ctx, "u1", store.NotificationPlanReady, `{"plan_id":"p","to":"+1"}`, "p")
	require.NoError(t, err)

	wantBackoff := []time.Duration{10 * time.Second, 20 * time.Second, 40 * time.Second, 80 * time.Second}
	for i, backoff := range wantBackoff {
		assert.Equal(t, 0, d.Poll(ctx))
		n, err := s.GetNotification(ctx, id)
		require.NoError(t, err)
		require.Equal(t, store.NotificationQueued, n.Status, "attempt %d", i+1)
		require.Equal(t, i+1, n.Attempts)
		require.NotNil(t, n.NextAttemptAt)
		assert.True(t, n.NextAttemptAt.Equal(clock.Add(backoff)), "attempt %d: next at %v", i+1, n.NextAttemptAt)

		// Not due yet.
		assert.Equal(t, 0, d.Poll(ctx))
		clock = clock.Add(backoff)
	}

	assert.Equal(t, 0, d.Poll(ctx))
	n, err := s.GetNotification(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.NotificationFailed, n.Status)
	assert.Equal(t, DefaultMaxAttempts, n.Attempts)
	assert.Equal(t, "unreachable", n.LastError)
}

func TestDispatcher_UnknownKindFails(t *testing.T) {
	ctx := context.Background()
	clock := time.Now()
	d, s := newTestDispatcher(t, NewMockSender(), &clock)
	d.maxAttempts = 1

	id, err := s.EnqueueNotification(ctx, "u1", "mystery", `{}`, "")
	require.NoError(t, err)
	d.Poll(ctx)

	n, err := s.GetNotification(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.NotificationFailed, n.Status)
	assert.Contains(t, n.LastError, "unknown notification kind")
}

func TestDispatcher_RecoverStale(t *testing.T) {
	ctx := context.Background()
	clock := time.Now()
	d, s := newTestDispatcher(t, NewMockSender(), &clock)

	id, err := s.EnqueueNotification(ctx, "u1", store.NotificationPlanReady, `{"to":"+1","plan_id":"p"}`, "")
	require.NoError(t, err)
	_, err = s.ClaimDueNotifications(ctx, clock, 10)
	require.NoError(t, err)

	clock = clock.Add(DefaultStaleThreshold + time.Minute)
	require.NoError(t, d.RecoverStale(ctx))
	n, err := s.GetNotification(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.NotificationQueued, n.Status)
}

func TestDispatcher_RunStopsOnCancel(t *testing.T) {
	clock := time.Now()
	sender := NewMockSender()
	d, s := newTestDispatcher(t, sender, &clock)
	_, err := s.EnqueueNotification(context.Background(), "u1", store.NotificationPlanReady, `{"to":"+1","plan_id":"p"}`, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return len(sender.Sent()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
