// Package spam asks an external moderation endpoint whether a message is spam.
package spam

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

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/config"
)

// DefaultThreshold is the score above which a message counts as spam.
const DefaultThreshold = 0.8

// Checker decides whether inbound text is spam.
type Checker interface {
	IsSpam(ctx context.Context, subject, body string) bool
}

// Client is a fail-open moderation client. Any failure means "not spam".
type Client struct {
	endpoint   string
	apiKey     string
	threshold  float64
	sandbox    bool
	keyInQuery bool
	httpClient *http.Client
	logger     *zap.Logger
	onFallback func()
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithFallbackHook is called every time a check degrades to "not spam" because of a failure.
func WithFallbackHook(fn func()) Option {
	return func(c *Client) {
		c.onFallback = fn
	}
}

// NewClient builds a client from configuration.
func NewClient(cfg config.SpamConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	c := &Client{
		endpoint:   strings.TrimSpace(cfg.Endpoint),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		threshold:  threshold,
		sandbox:    cfg.Sandbox,
		keyInQuery: cfg.KeyInQuery,
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
		onFallback: func() {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type scoreRequest struct {
	Text string `json:"text"`
}

// scoreResponse accepts both {"spam_score": x} and the Perspective-style attributeScores shape.
type scoreResponse struct {
	SpamScore       *float64 `json:"spam_score"`
	AttributeScores struct {
		Spam *struct {
			SummaryScore struct {
				Value float64 `json:"value"`
			} `json:"summaryScore"`
		} `json:"SPAM"`
	} `json:"attributeScores"`
}

// IsSpam returns true only when the endpoint answers with a score above the threshold.
func (c *Client) IsSpam(ctx context.Context, subject, body string) bool {
	if c.sandbox {
		return false
	}
	if c.endpoint == "" || c.apiKey == "" {
		c.logger.Debug("spam check skipped: endpoint or credential missing")
		return false
	}
	score, err := c.score(ctx, strings.TrimSpace(subject+"\n"+body))
	if err != nil {
		c.logger.Warn("spam check failed open", zap.Error(err))
		c.onFallback()
		return false
	}
	return score > c.threshold
}

func (c *Client) score(ctx context.Context, text string) (float64, error) {
	payload, err := json.Marshal(scoreRequest{Text: text})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.keyInQuery {
		q := req.URL.Query()
		q.Set("key", c.apiKey)
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("moderation request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("moderation endpoint returned %d", resp.StatusCode)
	}

	var parsed scoreResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	switch {
	case parsed.SpamScore != nil:
		return *parsed.SpamScore, nil
	case parsed.AttributeScores.Spam != nil:
		return parsed.AttributeScores.Spam.SummaryScore.Value, nil
	}
	return 0, errors.New("response carries no spam score")
}
