package llm

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingCredential means no API key is configured.
	ErrMissingCredential = errors.New("llm api key not configured")
	// ErrEmptyResponse means the upstream answered successfully with no content.
	ErrEmptyResponse = errors.New("llm response empty content")
)

// RateLimitError is a transient refusal. RetryAfter is the raw upstream hint, zero when absent.
type RateLimitError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (status %d, retry after %s): %s", e.StatusCode, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("rate limited (status %d): %s", e.StatusCode, e.Message)
}

// UpstreamError is a non-retryable error reported by the generation service.
type UpstreamError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("upstream error (status %d, %s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, e.Message)
}

// TransportError wraps network failures, including transport timeouts.
type TransportError struct {
	Err     error
	Timeout bool
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return "llm request timeout: " + e.Err.Error()
	}
	return "llm transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Failure codes returned by Classify.
const (
	CodeMissingCredential = "missing_credential"
	CodeRateLimited       = "rate_limited"
	CodeTransportError    = "transport_error"
	CodeEmptyResponse     = "empty_response"
	CodeUpstreamError     = "upstream_error"
)

// Classify maps a Complete error to its failure code. Unrecognized errors count as upstream.
func Classify(err error) string {
	var rle *RateLimitError
	var te *TransportError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingCredential):
		return CodeMissingCredential
	case errors.As(err, &rle):
		return CodeRateLimited
	case errors.Is(err, ErrEmptyResponse):
		return CodeEmptyResponse
	case errors.As(err, &te):
		return CodeTransportError
	default:
		return CodeUpstreamError
	}
}
