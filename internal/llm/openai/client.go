package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"storygen-backend/internal/llm"
	"storygen-backend/internal/shared/telemetry"
)

const (
	// DefaultTimeout bounds one completion request when the caller passes zero.
	DefaultTimeout = 220 * time.Second
	maxBodyBytes   = 4 << 20
)

var apiURL = "https://api.openai.com/v1/chat/completions"

// Client implements llm.Client using OpenAI Chat Completions.
type Client struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient constructs a client. An empty apiKey yields a client whose calls fail with
// llm.ErrMissingCredential; an empty model falls back to llm.BaselineModel.
func NewClient(apiKey, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		apiKey: strings.TrimSpace(apiKey),
		model:  strings.TrimSpace(model),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message llm.Message `json:"message"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage,omitempty"`
	Error *chatError `json:"error,omitempty"`
}

// Complete sends one chat completion request.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error) {
	if c.apiKey == "" {
		return "", llm.ErrMissingCredential
	}
	opts = opts.WithDefaults(c.model)

	payload, err := json.Marshal(chatRequest{
		Model:       opts.Model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &llm.TransportError{Err: err, Timeout: isTimeout(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", &llm.TransportError{Err: fmt.Errorf("read response: %w", err), Timeout: isTimeout(err)}
	}

	var parsed chatResponse
	parseErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 || parsed.Error != nil {
		return "", classify(resp, body, parsed.Error)
	}
	if parseErr != nil {
		return "", &llm.UpstreamError{StatusCode: resp.StatusCode, Message: "response parse: " + parseErr.Error()}
	}
	if len(parsed.Choices) == 0 {
		return "", llm.ErrEmptyResponse
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", llm.ErrEmptyResponse
	}

	logUsage(opts.Model, llm.PromptHash(messages), time.Since(started), parsed.Usage)
	return content, nil
}

func classify(resp *http.Response, body []byte, apiErr *chatError) error {
	message := ""
	errType := ""
	if apiErr != nil {
		message = strings.TrimSpace(apiErr.Message)
		errType = strings.TrimSpace(apiErr.Type)
	}
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	if llm.IsRateLimited(resp.StatusCode, message) || errType == "rate_limit_exceeded" {
		hint, ok := llm.ParseRetryAfter(message)
		if !ok {
			hint, _ = llm.ParseRetryAfterHeader(resp.Header.Get("Retry-After"))
		}
		return &llm.RateLimitError{StatusCode: resp.StatusCode, Message: message, RetryAfter: hint}
	}
	return &llm.UpstreamError{StatusCode: resp.StatusCode, Type: errType, Message: message}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "Client.Timeout")
}

func logUsage(model, promptHash string, elapsed time.Duration, usage *chatUsage) {
	fields := map[string]any{
		"model":       model,
		"prompt_hash": promptHash,
		"duration_ms": elapsed.Milliseconds(),
	}
	if usage != nil {
		fields["prompt_tokens"] = usage.PromptTokens
		fields["completion_tokens"] = usage.CompletionTokens
		fields["total_tokens"] = usage.TotalTokens
	}
	telemetry.Info("llm.response", fields)
}

var _ llm.Client = (*Client)(nil)
