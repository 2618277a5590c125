package llm

import (
	"context"
	"time"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// CallWithRetry invokes provider.Generate up to attempts times, retrying only
// RetriableError. A provider-suggested RetryAfter takes precedence over the
// exponential backoff. Fatal errors and context cancellation return
// immediately.
func CallWithRetry(ctx context.Context, provider Provider, req Request, attempts int) (*Response, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := provider.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsRetriable(err) || attempt == attempts {
			break
		}
		if err := sleepBeforeRetry(ctx, err, attempt); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// retryDelayFor picks the wait before the next attempt: the provider's
// RetryAfter hint when present, else exponential backoff.
func retryDelayFor(err error, attempt int) time.Duration {
	if d := RetryAfterHint(err); d > 0 {
		return d
	}
	return backoffDelay(attempt)
}

// backoffDelay doubles per attempt from initialBackoff (1s, 2s, 4s...),
// capped at maxBackoff.
func backoffDelay(attempt int) time.Duration {
	d := initialBackoff << (attempt - 1)
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	return d
}

func sleepBeforeRetry(ctx context.Context, err error, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(retryDelayFor(err, attempt)):
		return nil
	}
}
