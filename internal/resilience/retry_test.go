package resilience

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"
)

// fastRetry keeps the backoff schedule out of test runtime.
func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDoVal_TransientFailureThenSuccess(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), fastRetry(), func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", fmt.Errorf("query contracts: %w", syscall.ECONNRESET)
		}
		return "candidates", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "candidates" {
		t.Errorf("expected value from successful attempt, got %q", val)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestDoVal_PermanentErrorFailsImmediately(t *testing.T) {
	calls := 0
	permanent := errors.New("adjudication response was not valid JSON")
	_, err := DoVal(context.Background(), fastRetry(), func(_ context.Context) (int, error) {
		calls++
		return 0, permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected the permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("permanent error should not be retried, got %d attempts", calls)
	}
}

func TestDoVal_ExhaustsAttemptBudget(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), fastRetry(), func(_ context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("attempt %d: %w", calls, syscall.ECONNREFUSED)
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("expected MaxAttempts calls, got %d", calls)
	}
	if !errors.Is(err, syscall.ECONNREFUSED) {
		t.Errorf("expected the last attempt's error, got %v", err)
	}
}

func TestDoVal_ExpiredContextStopsAfterOneAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := DoVal(ctx, fastRetry(), func(_ context.Context) (int, error) {
		calls++
		cancel()
		return 0, fmt.Errorf("stalled call: %w", context.DeadlineExceeded)
	})
	if err == nil {
		t.Fatal("expected error from the stalled call")
	}
	if calls != 1 {
		t.Errorf("expired context should stop the loop, got %d attempts", calls)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the call's timeout error to propagate, got %v", err)
	}
}

func TestDoVal_CustomShouldRetry(t *testing.T) {
	cfg := fastRetry()
	cfg.ShouldRetry = func(err error) bool {
		return err.Error() == "please retry"
	}

	calls := 0
	_, err := DoVal(context.Background(), cfg, func(_ context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("please retry")
		}
		return 0, errors.New("give up")
	})
	if err == nil || err.Error() != "give up" {
		t.Fatalf("expected the non-retryable error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected one retry then stop, got %d attempts", calls)
	}
}

func TestDoVal_OnRetryObservesEachAttempt(t *testing.T) {
	cfg := fastRetry()
	var attempts []int
	cfg.OnRetry = func(attempt int, _ error) {
		attempts = append(attempts, attempt)
	}

	_, _ = DoVal(context.Background(), cfg, func(_ context.Context) (int, error) {
		return 0, fmt.Errorf("flaky: %w", syscall.ECONNRESET)
	})

	if len(attempts) != 2 {
		t.Fatalf("expected OnRetry before each of 2 retries, got %v", attempts)
	}
	if attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("expected attempt numbers 1, 2, got %v", attempts)
	}
}

func TestDoVal_ZeroConfigUsesDefaults(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), RetryConfig{InitialBackoff: time.Millisecond}, func(_ context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, fmt.Errorf("warming up: %w", syscall.ECONNRESET)
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 42 {
		t.Errorf("expected 42, got %d", val)
	}
	if calls != 3 {
		t.Errorf("default MaxAttempts should allow 3 attempts, got %d", calls)
	}
}

func TestBackoffDelay_GrowsAndCaps(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     300 * time.Millisecond,
		Multiplier:     2.0,
	}

	if d := cfg.backoffDelay(0); d != 100*time.Millisecond {
		t.Errorf("attempt 0: expected 100ms, got %v", d)
	}
	if d := cfg.backoffDelay(1); d != 200*time.Millisecond {
		t.Errorf("attempt 1: expected 200ms, got %v", d)
	}
	if d := cfg.backoffDelay(2); d != 300*time.Millisecond {
		t.Errorf("attempt 2: expected cap at 300ms, got %v", d)
	}
	if d := cfg.backoffDelay(10); d != 300*time.Millisecond {
		t.Errorf("attempt 10: expected cap at 300ms, got %v", d)
	}
}

func TestBackoffDelay_JitterStaysInBand(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}

	for i := 0; i < 100; i++ {
		d := cfg.backoffDelay(0)
		if d < 75*time.Millisecond || d > 125*time.Millisecond {
			t.Fatalf("jittered delay %v outside the 25%% band around 100ms", d)
		}
	}
}

func TestRetryLogger(t *testing.T) {
	logger := RetryLogger("anthropic", "adjudicate")
	// Must not panic with the global logger.
	logger(1, errors.New("overloaded"))
}
