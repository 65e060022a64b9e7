// Package genai generates workout and diet plans with a large language model.
//
// Two providers are supported: OpenAI chat completions (the default) and
// Google Gemini. Both are asked for a JSON object following the plan schema
// in the system prompt; anything else is rejected.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/segakai/segakai/internal/models"
)

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Default models per provider.
const (
	DefaultOpenAIModel = "gpt-4-turbo"
	DefaultGeminiModel = "gemini-2.0-flash"
	DefaultTemperature = 0.7
)

var (
	// ErrMissingAPIKey is returned when no API key is configured for the provider.
	ErrMissingAPIKey = errors.New("API key not configured")
	// ErrNoChoicesReturned is returned when the provider responds without content.
	ErrNoChoicesReturned = errors.New("no choices returned")
	// ErrUnknownProvider is returned for provider names other than openai and gemini.
	ErrUnknownProvider = errors.New("unknown LLM provider")
	// ErrInvalidPlan is returned when the provider's content is not a JSON object.
	ErrInvalidPlan = errors.New("provider returned content that is not a JSON object")
)

// completer sends one system+user prompt pair and returns the raw text reply.
type completer interface {
	complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Opts holds configuration for a Client.
type Opts struct {
	Provider    string
	APIKey      string
	Model       string
	Temperature float64
	DebugDir    string // if set, every exchange is written here as JSON
}

// Option configures a Client.
type Option func(*Opts)

// WithProvider selects openai or gemini.
func WithProvider(name string) Option {
	return func(o *Opts) {
		o.Provider = strings.ToLower(strings.TrimSpace(name))
	}
}

// WithAPIKey sets the provider API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel overrides the provider's default model.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) {
		o.Temperature = t
	}
}

// WithDebugDir enables writing each exchange to dir.
func WithDebugDir(dir string) Option {
	return func(o *Opts) {
		o.DebugDir = dir
	}
}

func defaultOpts() Opts {
	return Opts{Provider: ProviderOpenAI, Temperature: DefaultTemperature}
}

// Client generates plans using one configured provider.
type Client struct {
	llm      completer
	provider string
	model    string
	debugDir string
}

// NewClient builds a client for the configured provider.
func NewClient(opts ...Option) (*Client, error) {
	cfg := defaultOpts()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", cfg.Provider, ErrMissingAPIKey)
	}

	var (
		llm completer
		err error
	)
	switch cfg.Provider {
	case ProviderOpenAI, "":
		cfg.Provider = ProviderOpenAI
		if cfg.Model == "" {
			cfg.Model = DefaultOpenAIModel
		}
		llm = newOpenAICompleter(cfg)
	case ProviderGemini:
		if cfg.Model == "" {
			cfg.Model = DefaultGeminiModel
		}
		llm, err = newGeminiCompleter(cfg)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}

	slog.Debug("genai.NewClient: client initialized", "provider", cfg.Provider, "model", cfg.Model, "debug", cfg.DebugDir != "")
	return &Client{llm: llm, provider: cfg.Provider, model: cfg.Model, debugDir: cfg.DebugDir}, nil
}

// Provider returns the provider name.
func (c *Client) Provider() string {
	return c.provider
}

// Model returns the model name.
func (c *Client) Model() string {
	return c.model
}

// GeneratePlan prompts the provider with details and returns the plan as a
// JSON object. Content that is not a JSON object yields ErrInvalidPlan.
func (c *Client) GeneratePlan(ctx context.Context, details models.UserDetails) (json.RawMessage, error) {
	userPrompt := BuildUserPrompt(details)
	content, err := c.llm.complete(ctx, SystemPrompt, userPrompt)
	c.writeDebug(SystemPrompt, userPrompt, content, err)
	if err != nil {
		slog.Error("Client.GeneratePlan: provider call failed", "provider", c.provider, "model", c.model, "error", err)
		return nil, fmt.Errorf("%s completion failed: %w", c.provider, err)
	}

	plan, err := models.EnsureJSONObject(stripCodeFence(content))
	if err != nil {
		slog.Warn("Client.GeneratePlan: provider returned non-object content", "provider", c.provider, "length", len(content))
		return nil, ErrInvalidPlan
	}
	return plan, nil
}

// stripCodeFence removes a surrounding ```json fence, which some models add
// even in JSON mode.
func stripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimPrefix(t, "json")
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}
