package analysis

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// RetryPolicy decides how many round trips a request gets and how long to
// wait between them.
type RetryPolicy struct {
	MaxAttempts int
	IsRetryable func(status int) bool
	// DelayFor returns the wait after failed attempt n (0-indexed), before
	// attempt n+1. It is never consulted after the final attempt.
	DelayFor func(attempt int) time.Duration
}

// DefaultRetryPolicy is 3 attempts, retrying 429 and 5xx, waiting 1s then 2s.
func DefaultRetryPolicy() RetryPolicy {
	return ExponentialPolicy(3, time.Second)
}

// ExponentialPolicy waits base * 2^n after failed attempt n.
func ExponentialPolicy(maxAttempts int, base time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		IsRetryable: RetryableStatus,
		DelayFor: func(attempt int) time.Duration {
			return base << attempt
		},
	}
}

func RetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TransportError is a round trip that never produced an HTTP response.
type TransportError struct {
	Attempt int
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("analysis transport error (attempt %d): %v", e.Attempt, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a non-2xx response from the analysis endpoint.
type StatusError struct {
	StatusCode int
	Body       string
	retryable  bool
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analysis API error %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the policy classified the status as transient.
func (e *StatusError) Retryable() bool { return e.retryable }
