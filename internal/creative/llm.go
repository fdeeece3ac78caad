package creative

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

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// LLMConfig configures an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	APIURL     string
	APIKey     string
	Model      string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	HTTPClient *http.Client
}

// LLMClient asks a chat completions API for a caption.
type LLMClient struct {
	client   *http.Client
	apiURL   string
	apiKey   string
	model    string
	executor failsafe.Executor[string]
}

func NewLLMClient(cfg LLMConfig) *LLMClient {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.openai.com/v1"
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	retry := retrypolicy.NewBuilder[string]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ string, err error) bool {
			var se *statusError
			return errors.As(err, &se) && se.retryable()
		}).
		Build()

	return &LLMClient{
		client:   client,
		apiURL:   apiURL,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		executor: failsafe.With(retry),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("llm: unexpected status %d: %s", e.status, e.body)
}

func (e *statusError) retryable() bool {
	return e.status == http.StatusTooManyRequests || e.status >= http.StatusInternalServerError
}

// Prompt builds the instruction sent for a brief.
func Prompt(b Brief) string {
	return fmt.Sprintf(
		"You are a social media manager for an 18+ promoter account. Write a short, highly engaging promotional tweet "+
			"for a video titled %q in the %q category. Tags: %s. Keep it under 200 characters. "+
			"You MUST include the exact string %q somewhere in the tweet. Do not use hashtags. Just return the text.",
		b.Title, b.Category, strings.Join(b.Tags, ", "), Marker,
	)
}

// Generate returns the trimmed first completion. 429 and 5xx responses are retried.
func (c *LLMClient) Generate(ctx context.Context, b Brief) (string, error) {
	if c.model == "" {
		return "", errors.New("llm: model is required")
	}
	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: Prompt(b)}},
		MaxTokens:   100,
		Temperature: 0.8,
	})
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	return c.executor.WithContext(ctx).Get(func() (string, error) {
		return c.complete(ctx, payload)
	})
}

func (c *LLMClient) complete(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("llm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("llm: empty choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

var _ Generator = (*LLMClient)(nil)
