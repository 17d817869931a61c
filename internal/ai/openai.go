// Package ai wraps the external text model used to classify tickets and draft answers.
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

	"github.com/spec-kit/helpdesk-intake/internal/config"
)

// Completer turns a prompt into model text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OpenAI implements Completer against any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
}

// NewOpenAI builds a client from configuration.
func NewOpenAI(cfg config.AIConfig, httpClient *http.Client) *OpenAI {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OpenAI{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		timeout:    timeout,
	}
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openaiResponse struct {
	Choices []struct {
		Message openaiMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("ai: model endpoint not configured")

// Complete sends a single user message and returns the first choice's text.
func (provider *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	if provider.apiKey == "" || provider.baseURL == "" {
		return "", ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, provider.timeout)
	defer cancel()

	body, err := json.Marshal(openaiRequest{
		Model:       provider.model,
		Messages:    []openaiMessage{{Role: "user", Content: prompt}},
		Temperature: 0,
		MaxTokens:   300,
	})
	if err != nil {
		return "", fmt.Errorf("ai: encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ai: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+provider.apiKey)

	resp, err := provider.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ai: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("ai: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ai: endpoint returned %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var decoded openaiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("ai: decoding response: %w", err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("ai: %s: %s", decoded.Error.Type, decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("ai: response has no choices")
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
