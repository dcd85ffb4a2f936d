package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

const (
	defaultModel = "gemini-2.0-flash"
	maxRetries   = 3
)

// Gemini is a Collaborator backed by the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini collaborator. An empty model selects the
// default.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: missing Gemini API key")
	}
	if model == "" {
		model = defaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: create Gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Name identifies the backend and model.
func (g *Gemini) Name() string {
	return "gemini:" + g.model
}

// Generate sends the prompt and returns the reply text, retrying transient
// failures with linear backoff.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
		if err == nil {
			text := resp.Text()
			if text == "" {
				lastErr = fmt.Errorf("llm: empty reply from %s", g.model)
			} else {
				return text, nil
			}
		} else {
			lastErr = err
		}

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 2 * time.Second):
			}
		}
	}
	return "", fmt.Errorf("llm: generate failed after %d attempts: %w", maxRetries, lastErr)
}
