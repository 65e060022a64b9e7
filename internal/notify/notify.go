// Package notify delivers "plan ready" messages to users over WhatsApp.
//
// Messages are queued durably in the store and delivered by a Dispatcher, so a
// Twilio outage never affects plan generation.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Sender delivers a text message to a phone number in E.164 form.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds configuration options for the Twilio sender.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
}

// Option defines a configuration option for the Twilio sender.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sending number, with or without the "whatsapp:" prefix.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// messageCreator is the slice of the Twilio API the sender uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender sends WhatsApp messages through the Twilio REST API.
type TwilioSender struct {
	api       messageCreator
	fromWhats string // "whatsapp:+1234567890"
}

// NewTwilioSender builds a sender from options, falling back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER variables.
func NewTwilioSender(opts ...Option) (*TwilioSender, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio sender config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newTwilioSender(client.Api, cfg.FromWhats), nil
}

func newTwilioSender(api messageCreator, from string) *TwilioSender {
	return &TwilioSender{api: api, fromWhats: whatsappAddress(from)}
}

// SendMessage sends a WhatsApp message using the Twilio API.
func (s *TwilioSender) SendMessage(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(whatsappAddress(to))
	params.SetFrom(s.fromWhats)
	params.SetBody(body)

	if _, err := s.api.CreateMessage(params); err != nil {
		slog.Error("Twilio SendMessage failed", "error", err)
		return fmt.Errorf("failed to send WhatsApp message: %w", err)
	}
	slog.Debug("Twilio message sent")
	return nil
}

func whatsappAddress(number string) string {
	number = strings.TrimSpace(number)
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

// SentMessage records one message accepted by MockSender.
type SentMessage struct {
	To   string
	Body string
}

// MockSender records messages instead of sending them. Err, when set, is
// returned from every send.
type MockSender struct {
	mu   sync.Mutex
	sent []SentMessage
	Err  error
}

// NewMockSender returns an empty MockSender.
func NewMockSender() *MockSender {
	return &MockSender{}
}

func (m *MockSender) SendMessage(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, SentMessage{To: to, Body: body})
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *MockSender) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

// SetErr changes the error returned by later sends.
func (m *MockSender) SetErr(err error) {
	m.mu.Lock()
	m.Err = err
	m.mu.Unlock()
}

// PlanReadyPayload is the JSON payload of a plan_ready notification.
type PlanReadyPayload struct {
	PlanID      string `json:"plan_id"`
	To          string `json:"to"`
	Name        string `json:"name,omitempty"`
	PrimaryGoal string `json:"primary_goal,omitempty"`
}

// Encode returns the payload as a JSON string for the notification queue.
func (p PlanReadyPayload) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode plan_ready payload: %w", err)
	}
	return string(b), nil
}

// PlanReadyMessage renders the text sent when a plan has been generated.
func PlanReadyMessage(p PlanReadyPayload) string {
	var b strings.Builder
	if p.Name != "" {
		fmt.Fprintf(&b, "Hi %s! ", p.Name)
	}
	b.WriteString("Your SegakAI fitness and nutrition plan is ready.")
	if p.PrimaryGoal != "" {
		fmt.Fprintf(&b, " Goal: %s.", p.PrimaryGoal)
	}
	b.WriteString(" Open your dashboard or run `segakai plans` to view it.")
	return b.String()
}
