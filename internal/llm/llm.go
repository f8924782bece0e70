package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Message roles understood by chat-style completion endpoints.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Defaults applied when the caller leaves an option unset.
const (
	BaselineModel      = "gpt-4o-mini"
	DefaultTemperature = 0.5
	DefaultMaxTokens   = 900
)

// Message is one entry of a chat transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options carries per-call model settings.
type Options struct {
	Model       string
	Temperature *float64
	MaxTokens   int
}

// WithDefaults fills unset fields. An empty fallbackModel means BaselineModel.
func (o Options) WithDefaults(fallbackModel string) Options {
	if strings.TrimSpace(o.Model) == "" {
		o.Model = strings.TrimSpace(fallbackModel)
	}
	if o.Model == "" {
		o.Model = BaselineModel
	}
	if o.Temperature == nil {
		o.Temperature = Float(DefaultTemperature)
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	return o
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Client issues one completion request and returns the generated text or a classified error:
// ErrMissingCredential, ErrEmptyResponse, *RateLimitError, *UpstreamError or *TransportError.
type Client interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
}

// UnconfiguredClient is used when no API key is available.
type UnconfiguredClient struct{}

// Complete always returns ErrMissingCredential.
func (UnconfiguredClient) Complete(context.Context, []Message, Options) (string, error) {
	return "", ErrMissingCredential
}

// Transcript renders messages as "role: content" blocks separated by blank lines.
func Transcript(messages []Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

// PromptHash returns a stable fingerprint of a transcript for logging.
func PromptHash(messages []Message) string {
	sum := sha256.Sum256([]byte(Transcript(messages)))
	return hex.EncodeToString(sum[:])
}
