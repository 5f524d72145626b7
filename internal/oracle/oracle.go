// Package oracle wraps the Genkit text-generation client used for
// grading, reflection and research quality checks.
//
// Consumers depend on their own single-method interface (typically
// `Complete(ctx, prompt) (string, error)`) rather than on Client, so
// tests substitute a stub without touching Genkit.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// Client submits prompts to a Genkit model and returns the raw text.
type Client struct {
	g         *genkit.Genkit
	modelName string
	logger    *slog.Logger
}

// New creates a Client for the provider-qualified model name
// (e.g. "googleai/gemini-2.5-flash").
// A nil logger falls back to slog.Default().
func New(g *genkit.Genkit, modelName string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{g: g, modelName: modelName, logger: logger}
}

// Complete sends one prompt and returns the model's text response.
// An empty response is an error; callers substitute their own neutral
// defaults on failure.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.modelName),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		return "", fmt.Errorf("generating completion: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("empty completion returned")
	}

	c.logger.Debug("oracle completion",
		"model", c.modelName,
		"prompt_length", len(prompt),
		"response_length", len(text))
	return text, nil
}
