// Package retry wraps remote calls with exponential backoff and jitter.
// It is an explicit policy object rather than a decorator so call sites can
// swap classifiers and tests can observe the schedule.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"
)

// Policy controls how a remote call is retried. The zero value is not
// usable; start from NewPolicy and override fields as needed.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration
	IsRetryable func(error) bool

	// Sleep and Jitter are injectable for tests.
	Sleep  func(context.Context, time.Duration) error
	Jitter func(max time.Duration) time.Duration
}

// NewPolicy returns the default policy used by both the push and pull paths:
// 5 attempts, 500ms base delay doubling each attempt, up to 250ms jitter,
// retrying only rate-limit and server-transient errors.
func NewPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxJitter:   250 * time.Millisecond,
		IsRetryable: IsRetryable,
		Sleep:       sleepCtx,
		Jitter:      randomJitter,
	}
}

// Do runs fn, retrying on retryable errors with delay base*2^(attempt-1)
// plus bounded jitter. Non-retryable errors propagate immediately. When
// attempts are exhausted the last error is returned wrapped, so callers can
// still classify it.
func (p Policy) Do(ctx context.Context, op string, fn func() error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if p.IsRetryable == nil || !p.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.BaseDelay << (attempt - 1)
		if p.Jitter != nil && p.MaxJitter > 0 {
			delay += p.Jitter(p.MaxJitter)
		}
		if err := p.Sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return fmt.Errorf("%s: retries exhausted after %d attempts: %w", op, p.MaxAttempts, lastErr)
}

// IsRetryable classifies Google API errors: rate limits (429, and 403 with a
// rate-limit reason) and server-side 5xx are transient; everything else is
// permanent and must surface to the caller.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return true
	case apiErr.Code >= 500 && apiErr.Code <= 599:
		return true
	case apiErr.Code == http.StatusForbidden:
		for _, e := range apiErr.Errors {
			switch e.Reason {
			case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
				return true
			}
		}
	}
	return false
}

// IsNotFound reports whether err is a remote 404.
func IsNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
