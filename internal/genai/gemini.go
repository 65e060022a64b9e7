package genai

import (
	"context"
	"fmt"

	gemini "google.golang.org/genai"
)

// contentService is the subset of the Gemini models API used here.
type contentService interface {
	GenerateContent(ctx context.Context, model string, contents []*gemini.Content, config *gemini.GenerateContentConfig) (*gemini.GenerateContentResponse, error)
}

type geminiCompleter struct {
	models      contentService
	model       string
	temperature float32
}

func newGeminiCompleter(cfg Opts) (*geminiCompleter, error) {
	client, err := gemini.NewClient(context.Background(), &gemini.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: gemini.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &geminiCompleter{models: client.Models, model: cfg.Model, temperature: float32(cfg.Temperature)}, nil
}

func (g *geminiCompleter) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	config := &gemini.GenerateContentConfig{
		SystemInstruction: gemini.NewContentFromText(systemPrompt, gemini.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       gemini.Ptr(g.temperature),
	}
	resp, err := g.models.GenerateContent(ctx, g.model, []*gemini.Content{
		gemini.NewContentFromText(userPrompt, gemini.RoleUser),
	}, config)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrNoChoicesReturned
	}
	text := resp.Text()
	if text == "" {
		return "", ErrNoChoicesReturned
	}
	return text, nil
}
