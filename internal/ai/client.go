// Package ai calls the language-model provider's chat-completions API
// with per-model retries and ordered fallback.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/convert-iq/convertiq/internal/config"
)

// Message is one chat turn sent to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generator produces text from a chat prompt. It is the only capability
// the rest of the system knows about the provider.
type Generator interface {
	Generate(ctx context.Context, messages []Message, temperature float64) (string, error)
}

// ModelCaller issues one completion against a named model.
type ModelCaller interface {
	GenerateWithModel(ctx context.Context, messages []Message, temperature float64, model string) (string, error)
}

// Client talks to an OpenRouter-compatible chat-completions endpoint.
type Client struct {
	cfg        config.OpenRouterConfig
	httpClient *http.Client
}

// NewClient constructs a Client.
func NewClient(cfg config.OpenRouterConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// completionRequest is the provider's request body.
type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

// completionResponse maps the fields read from the provider's response.
type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateWithModel issues a single completion call against one model.
func (c *Client) GenerateWithModel(ctx context.Context, messages []Message, temperature float64, model string) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", errors.New("openrouter api key is not configured")
	}

	body, errMarshal := json.Marshal(completionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
	})
	if errMarshal != nil {
		return "", fmt.Errorf("marshal request: %w", errMarshal)
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if errReq != nil {
		return "", fmt.Errorf("build request: %w", errReq)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		return "", errDo
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return "", fmt.Errorf("read response: %w", errRead)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed completionResponse
	if errUnmarshal := json.Unmarshal(respBody, &parsed); errUnmarshal != nil {
		return "", fmt.Errorf("malformed provider response: %w", errUnmarshal)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("malformed provider response: no choices")
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("provider returned empty content")
	}
	return content, nil
}

// FallbackGenerator tries an ordered list of candidate models, retrying
// each a fixed number of times with a fixed delay between attempts.
type FallbackGenerator struct {
	caller  ModelCaller
	models  []string
	retries int
	delay   time.Duration
	sleep   func(time.Duration)
}

// NewFallbackGenerator constructs a FallbackGenerator from provider config.
func NewFallbackGenerator(caller ModelCaller, cfg config.OpenRouterConfig) *FallbackGenerator {
	return &FallbackGenerator{
		caller:  caller,
		models:  cfg.Models(),
		retries: cfg.RetriesPerModel,
		delay:   cfg.RetryDelay,
		sleep:   time.Sleep,
	}
}

// Generate returns the first successful, non-empty completion across the
// candidate models. When every candidate exhausts its retries, the
// returned error aggregates every attempt.
func (g *FallbackGenerator) Generate(ctx context.Context, messages []Message, temperature float64) (string, error) {
	if len(g.models) == 0 {
		return "", errors.New("no candidate models configured")
	}

	var attempts []string
	for _, model := range g.models {
		for attempt := 1; attempt <= g.retries; attempt++ {
			text, errCall := g.caller.GenerateWithModel(ctx, messages, temperature, model)
			if errCall == nil {
				return text, nil
			}
			attempts = append(attempts, fmt.Sprintf("%s (attempt %d): %v", model, attempt, errCall))
			if errCtx := ctx.Err(); errCtx != nil {
				return "", fmt.Errorf("all language model attempts failed: %s", strings.Join(attempts, " | "))
			}
			g.sleep(g.delay)
		}
	}
	return "", fmt.Errorf("all language model attempts failed: %s", strings.Join(attempts, " | "))
}
