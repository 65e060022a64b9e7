package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/segakai/segakai/internal/models"
)

// PlanGenerator produces a plan for one set of user details.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, details models.UserDetails) (json.RawMessage, error)
}

// KeyLookup reads a configuration value, such as the provider API key, at
// request time.
type KeyLookup func(ctx context.Context, key string) (string, error)

// Factory hands out plan generators, resolving the API key when asked so an
// admin can change it without a restart. The most recent client is reused
// while the key is unchanged.
type Factory struct {
	opts   []Option
	base   Opts
	lookup KeyLookup

	mu        sync.Mutex
	cached    *Client
	cachedKey string
}

// NewFactory returns a factory. An API key supplied in opts takes precedence
// over lookup.
func NewFactory(lookup KeyLookup, opts ...Option) *Factory {
	base := defaultOpts()
	for _, opt := range opts {
		opt(&base)
	}
	return &Factory{opts: opts, base: base, lookup: lookup}
}

// ConfigKey returns the app configuration key holding the provider's API key.
func ConfigKey(provider string) string {
	if provider == ProviderGemini {
		return models.ConfigGeminiKey
	}
	return models.ConfigOpenAIKey
}

// Planner implements the generation endpoint's planner source.
func (f *Factory) Planner(ctx context.Context) (PlanGenerator, error) {
	key := f.base.APIKey
	if key == "" && f.lookup != nil {
		v, err := f.lookup(ctx, ConfigKey(f.base.Provider))
		if err != nil {
			return nil, fmt.Errorf("failed to read API key from configuration: %w", err)
		}
		key = v
	}
	if key == "" {
		return nil, fmt.Errorf("%s: %w", f.base.Provider, ErrMissingAPIKey)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cached != nil && f.cachedKey == key {
		return f.cached, nil
	}
	opts := append(append([]Option{}, f.opts...), WithAPIKey(key))
	client, err := NewClient(opts...)
	if err != nil {
		return nil, err
	}
	f.cached, f.cachedKey = client, key
	return client, nil
}
