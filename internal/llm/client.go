// Package llm provides the language model gateway: a thin OpenRouter client
// plus the per-kind prompt preparation used by the SQL pipeline.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Default OpenRouter configuration values.
const (
	DefaultBaseURL   = "https://openrouter.ai/api/v1"
	DefaultModel     = "deepseek/deepseek-chat-v3-0324:free"
	DefaultTimeout   = 60 * time.Second
	DefaultMaxTokens = 4096
)

// APIError is returned when the completions endpoint responds with a
// non-success status or an error body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm api error (status %d): %s", e.StatusCode, e.Message)
}

// Config holds configuration for the OpenRouter client.
type Config struct {
	APIKey    string
	Model     string        // Default: DefaultModel
	BaseURL   string        // Default: DefaultBaseURL
	SiteURL   string        // Sent as HTTP-Referer, used by OpenRouter rankings
	SiteName  string        // Sent as X-Title
	Timeout   time.Duration // Default: 60s
	MaxTokens int           // Default: 4096
}

// Client is a chat-completion client for OpenRouter. It holds no per-call
// state and is safe for concurrent use.
type Client struct {
	apiKey     string
	model      string
	endpoint   string
	siteURL    string
	siteName   string
	maxTokens  int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new OpenRouter client. If logger is nil, a discard
// logger is used.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	return &Client{
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		endpoint:  strings.TrimSuffix(cfg.BaseURL, "/") + "/chat/completions",
		siteURL:   cfg.SiteURL,
		siteName:  cfg.SiteName,
		maxTokens: cfg.MaxTokens,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// Model returns the model identifier used for completions.
func (c *Client) Model() string {
	return c.model
}

// Complete sends a conversation to OpenRouter and returns the first choice's
// text. The call is made exactly once; failures are surfaced, never retried.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if err := validateMessages(messages); err != nil {
		return "", err
	}

	req := &chatCompletionRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: c.maxTokens,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.siteURL != "" {
		httpReq.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.siteName != "" {
		httpReq.Header.Set("X-Title", c.siteName)
	}

	c.logger.Debug("llm completion request", slog.String("model", c.model), slog.Int("messages", len(messages)))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read llm response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: httpResp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to decode llm response: %w", err)
	}
	if resp.Error != nil {
		return "", &APIError{StatusCode: httpResp.StatusCode, Message: resp.Error.Message}
	}
	if len(resp.Choices) == 0 {
		return "", &APIError{StatusCode: httpResp.StatusCode, Message: "response contained no choices"}
	}

	return resp.Choices[0].Message.Content, nil
}

// validateMessages rejects conversations the completions API would refuse.
func validateMessages(messages []Message) error {
	if len(messages) == 0 {
		return fmt.Errorf("messages list cannot be empty")
	}
	for i, msg := range messages {
		switch msg.Role {
		case "system", "user", "assistant":
		default:
			return fmt.Errorf("message %d: role must be system, user or assistant, got %q", i, msg.Role)
		}
		if msg.Content == "" {
			return fmt.Errorf("message %d: content cannot be empty", i)
		}
	}
	return nil
}
