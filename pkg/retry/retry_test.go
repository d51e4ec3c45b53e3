package retry

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
)

func testPolicy(sleeps *[]time.Duration) Policy {
	p := NewPolicy()
	p.Sleep = func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	p.Jitter = func(time.Duration) time.Duration { return 0 }
	return p
}

func rateLimited() error {
	return &googleapi.Error{Code: http.StatusTooManyRequests, Message: "rate limit"}
}

func TestDoRetriesRateLimitThenSucceeds(t *testing.T) {
	var sleeps []time.Duration
	p := testPolicy(&sleeps)

	calls := 0
	err := p.Do(context.Background(), "list changes", func() error {
		calls++
		if calls <= 3 {
			return rateLimited()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned %v, want success", err)
	}
	if calls != 4 {
		t.Errorf("got %d calls, want 4", calls)
	}

	want := []time.Duration{500 * time.Millisecond, 1 * time.Second, 2 * time.Second}
	if len(sleeps) != len(want) {
		t.Fatalf("got %d sleeps %v, want %d", len(sleeps), sleeps, len(want))
	}
	for i, d := range want {
		if sleeps[i] != d {
			t.Errorf("sleep %d = %v, want %v", i, sleeps[i], d)
		}
	}
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	var sleeps []time.Duration
	p := testPolicy(&sleeps)

	permanent := &googleapi.Error{Code: http.StatusBadRequest, Message: "invalid argument"}
	calls := 0
	err := p.Do(context.Background(), "get message", func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("Do returned %v, want the permanent error", err)
	}
	if calls != 1 {
		t.Errorf("got %d calls, want 1", calls)
	}
	if len(sleeps) != 0 {
		t.Errorf("slept %v, want no sleeps", sleeps)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	var sleeps []time.Duration
	p := testPolicy(&sleeps)

	calls := 0
	err := p.Do(context.Background(), "modify labels", func() error {
		calls++
		return rateLimited()
	})
	if err == nil {
		t.Fatal("Do returned nil, want exhaustion error")
	}
	if calls != p.MaxAttempts {
		t.Errorf("got %d calls, want %d", calls, p.MaxAttempts)
	}
	if !strings.Contains(err.Error(), "retries exhausted") {
		t.Errorf("error %q does not mention exhaustion", err)
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		t.Errorf("exhaustion error does not wrap the last cause: %v", err)
	}
	if len(sleeps) != p.MaxAttempts-1 {
		t.Errorf("got %d sleeps, want %d", len(sleeps), p.MaxAttempts-1)
	}
}

func TestDoAddsJitter(t *testing.T) {
	var sleeps []time.Duration
	p := testPolicy(&sleeps)
	p.Jitter = func(max time.Duration) time.Duration { return max }

	calls := 0
	_ = p.Do(context.Background(), "op", func() error {
		calls++
		if calls == 1 {
			return rateLimited()
		}
		return nil
	})
	if len(sleeps) != 1 {
		t.Fatalf("got %d sleeps, want 1", len(sleeps))
	}
	if sleeps[0] != 750*time.Millisecond {
		t.Errorf("first delay = %v, want 750ms (base + max jitter)", sleeps[0])
	}
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	p := NewPolicy()
	p.Jitter = nil
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Do(ctx, "list changes", func() error { return rateLimited() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do returned %v, want context.Canceled", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"429", &googleapi.Error{Code: 429}, true},
		{"500", &googleapi.Error{Code: 500}, true},
		{"503", &googleapi.Error{Code: 503}, true},
		{"404", &googleapi.Error{Code: 404}, false},
		{"403 plain", &googleapi.Error{Code: 403}, false},
		{"403 rate limit", &googleapi.Error{
			Code:   403,
			Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}},
		}, true},
		{"403 quota", &googleapi.Error{
			Code:   403,
			Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}},
		}, true},
		{"403 other reason", &googleapi.Error{
			Code:   403,
			Errors: []googleapi.ErrorItem{{Reason: "insufficientPermissions"}},
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
