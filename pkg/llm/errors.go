package llm

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RetriableError wraps a provider failure worth retrying: rate limits, quota
// exhaustion, transient server errors and timeouts. RetryAfter carries the
// provider-suggested wait when the error message includes one.
type RetriableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetriableError) Error() string { return e.Err.Error() }
func (e *RetriableError) Unwrap() error { return e.Err }

// FatalError wraps a provider failure retrying cannot fix: bad credentials,
// unknown model, malformed requests, safety blocks.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// IsRetriable reports whether err is (or wraps) a RetriableError.
func IsRetriable(err error) bool {
	var re *RetriableError
	return errors.As(err, &re)
}

// IsFatal reports whether err is (or wraps) a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// RetryAfterHint returns the provider-suggested retry delay, or 0.
func RetryAfterHint(err error) time.Duration {
	var re *RetriableError
	if errors.As(err, &re) {
		return re.RetryAfter
	}
	return 0
}

// retryDelayRegex matches the "Please retry in Xs" and "retryDelay:Xs" hints
// Gemini embeds in 429 error messages.
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// extractRetryDelay parses the provider-suggested retry delay out of an error
// message. Returns 0 when no hint is present.
func extractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}
	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}
	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// classifyError sorts a raw provider error into RetriableError or FatalError.
// The SDKs surface most failures as formatted messages rather than typed
// errors, so classification is by status code and message matching. Context
// cancellation passes through unclassified.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RetriableError{Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "429", "resource_exhausted", "quota", "rate limit", "overloaded"):
		return &RetriableError{Err: err, RetryAfter: extractRetryDelay(err)}
	case containsAny(msg, "500", "502", "503", "504", "unavailable", "internal",
		"deadline exceeded", "timeout", "connection reset", "connection refused",
		"broken pipe", "unexpected eof"):
		return &RetriableError{Err: err}
	default:
		return &FatalError{Err: err}
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
