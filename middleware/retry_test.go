package middleware

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRetrySuccess(t *testing.T) {
	tool := &scriptedTool{pattern: []bool{true, true, false}}

	retry := NewRetryDecorator(tool, RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    10 * time.Millisecond,
		BackoffMultiplier: 2.0,
	})

	res, err := retry.Execute(context.Background(), args("x"))
	if err != nil {
		t.Fatalf("Expected success after retries, got error: %v", err)
	}
	if res.Output != "x #3" {
		t.Errorf("Expected output 'x #3', got '%s'", res.Output)
	}
	if tool.Calls() != 3 {
		t.Errorf("Expected 3 attempts, got %d", tool.Calls())
	}
}

func TestRetryMaxAttemptsExceeded(t *testing.T) {
	tool := &scriptedTool{pattern: []bool{true}}

	retry := NewRetryDecorator(tool, RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	})

	_, err := retry.Execute(context.Background(), args("x"))
	if err == nil {
		t.Fatal("Expected error after max retries, got nil")
	}
	if tool.Calls() != 3 {
		t.Errorf("Expected 3 attempts, got %d", tool.Calls())
	}
	if !strings.Contains(err.Error(), "max retry attempts (3) exceeded") {
		t.Errorf("Unexpected error text: %v", err)
	}
}

func TestRetryDoesNotRetryErrorResults(t *testing.T) {
	tool := &scriptedTool{errText: "no such city"}

	retry := NewRetryDecorator(tool, DefaultRetryConfig())
	res, err := retry.Execute(context.Background(), args("x"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.Success || res.Error != "no such city" {
		t.Errorf("Expected error result to pass through, got %+v", res)
	}
	if tool.Calls() != 1 {
		t.Errorf("Expected 1 attempt, got %d", tool.Calls())
	}
}

func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Retry(ctx, RetryConfig{MaxAttempts: 5, InitialBackoff: time.Second}, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("Expected error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRetryShouldRetryPredicate(t *testing.T) {
	permanent := errors.New("permanent")

	calls := 0
	err := Retry(context.Background(), RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		ShouldRetry:    func(err error) bool { return !errors.Is(err, permanent) },
	}, func(ctx context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("Expected wrapped permanent error, got %v", err)
	}
	if !strings.Contains(err.Error(), "non-retryable error on attempt 1/5") {
		t.Errorf("Unexpected error text: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRetryExponentialBackoff(t *testing.T) {
	var stamps []time.Time
	_ = Retry(context.Background(), RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    20 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}, func(ctx context.Context) error {
		stamps = append(stamps, time.Now())
		return errors.New("again")
	})

	if len(stamps) != 3 {
		t.Fatalf("Expected 3 attempts, got %d", len(stamps))
	}
	if gap := stamps[1].Sub(stamps[0]); gap < 20*time.Millisecond {
		t.Errorf("First backoff too short: %v", gap)
	}
	if gap := stamps[2].Sub(stamps[1]); gap < 40*time.Millisecond {
		t.Errorf("Second backoff too short: %v", gap)
	}
}

func TestRetryZeroValues(t *testing.T) {
	tool := &scriptedTool{pattern: []bool{true, false}}

	retry := NewRetryDecorator(tool, RetryConfig{InitialBackoff: time.Millisecond})
	if retry.config.MaxAttempts != 3 {
		t.Errorf("Expected default MaxAttempts 3, got %d", retry.config.MaxAttempts)
	}
	if retry.config.BackoffMultiplier != 2.0 {
		t.Errorf("Expected default multiplier 2.0, got %f", retry.config.BackoffMultiplier)
	}
	if _, err := retry.Execute(context.Background(), args("x")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if retry.Name() != "scripted" || len(retry.Parameters()) != 1 {
		t.Error("Decorator should expose the wrapped tool's descriptor")
	}
}
