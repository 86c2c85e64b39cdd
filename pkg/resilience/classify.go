// Package resilience converts collaborator failures into the degraded
// paths the pipeline expects: it classifies errors, retries the retryable
// classes with exponential backoff, substitutes fallback values, and keeps
// a bounded log of every substitution.
package resilience

import (
	"context"
	"errors"
	"strings"
)

// ErrorKind is the behavioral category of a failure
type ErrorKind string

// Error kinds
const (
	KindTimeout   ErrorKind = "timeout"
	KindRateLimit ErrorKind = "rate_limit"
	KindAPIError  ErrorKind = "api_error"
	KindUnknown   ErrorKind = "unknown"
)

// patterns matched against error text, checked in order
var classifyPatterns = []struct {
	kind     ErrorKind
	patterns []string
}{
	{KindTimeout, []string{
		"timeout", "timed out", "deadline exceeded", "context canceled",
		"connection reset", "no such host", "connection refused",
	}},
	{KindRateLimit, []string{
		"throttling", "throttled", "rate limit", "rate exceeded",
		"too many requests", "toomanyrequests", "quota exceeded", "429",
	}},
	{KindAPIError, []string{
		"access denied", "accessdenied", "forbidden", "unauthorized",
		"validation", "invalid request", "bad request", "not found",
		"service unavailable", "internal server error", "500", "503",
	}},
}

// Classify maps an error to its behavioral kind using message and code
// pattern matching.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	msg := strings.ToLower(err.Error())
	for _, entry := range classifyPatterns {
		for _, p := range entry.patterns {
			if strings.Contains(msg, p) {
				return entry.kind
			}
		}
	}
	return KindUnknown
}

// Retryable reports whether errors of this kind are worth retrying.
// Timeouts, throttles, and transient network failures are; hard API errors
// and unknowns are not.
func (k ErrorKind) Retryable() bool {
	return k == KindTimeout || k == KindRateLimit
}
