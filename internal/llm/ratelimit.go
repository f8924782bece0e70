package llm

import (
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultWait applies when the upstream gives no usable hint.
	DefaultWait = 30 * time.Second
	// MaxWait caps any deferred continuation.
	MaxWait = 300 * time.Second
	// WaitBuffer is added on top of a parsed hint.
	WaitBuffer = 5 * time.Second
)

var rateLimitMarkers = []string{
	"rate limit",
	"exceeded your current quota",
	"too many requests",
}

// Checked in order; the first match wins.
var retryHintPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)try again in\s+(\d+(?:\.\d+)?)\s*(ms|s|secs?|seconds?)?\b`),
	regexp.MustCompile(`(?i)retry after\s+(\d+(?:\.\d+)?)\s*(ms|s|secs?|seconds?)?\b`),
	regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(seconds?)\b`),
}

// IsRateLimited reports whether a status code or error text signals a rate limit.
func IsRateLimited(statusCode int, message string) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	lower := strings.ToLower(message)
	for _, marker := range rateLimitMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// ParseRetryAfter extracts a suggested wait from free-text such as
// "Please try again in 12.5s" or "retry after 20 seconds".
func ParseRetryAfter(message string) (time.Duration, bool) {
	for _, re := range retryHintPatterns {
		m := re.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil || value <= 0 {
			continue
		}
		if strings.EqualFold(m[2], "ms") {
			return time.Duration(value * float64(time.Millisecond)), true
		}
		return time.Duration(value * float64(time.Second)), true
	}
	return 0, false
}

// ParseRetryAfterHeader reads an HTTP Retry-After header given in seconds.
func ParseRetryAfterHeader(value string) (time.Duration, bool) {
	secs, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || secs <= 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

// WaitFor converts a raw hint into the continuation delay: whole seconds rounded up plus
// WaitBuffer, DefaultWait without a hint, never above MaxWait.
func WaitFor(hint time.Duration) time.Duration {
	if hint <= 0 {
		return DefaultWait
	}
	secs := math.Ceil(hint.Seconds())
	wait := time.Duration(secs)*time.Second + WaitBuffer
	if wait > MaxWait {
		return MaxWait
	}
	return wait
}
