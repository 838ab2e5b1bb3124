package middleware

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newBreaker(pattern []bool, cfg CircuitBreakerConfig) (*CircuitBreakerDecorator, *scriptedTool, *time.Time) {
	tool := &scriptedTool{pattern: pattern}
	cb := NewCircuitBreakerDecorator(tool, cfg)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }
	return cb, tool, &now
}

func TestCircuitBreakerClosed(t *testing.T) {
	cb, _, _ := newBreaker([]bool{false}, DefaultCircuitBreakerConfig())

	for i := 0; i < 5; i++ {
		if _, err := cb.Execute(context.Background(), args("x")); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected closed, got %s", cb.State())
	}
}

func TestCircuitBreakerOpensAndRejects(t *testing.T) {
	cb, tool, _ := newBreaker([]bool{true}, CircuitBreakerConfig{FailureThreshold: 3})

	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(context.Background(), args("x"))
	}
	if cb.State() != StateOpen {
		t.Fatalf("Expected open, got %s", cb.State())
	}

	_, err := cb.Execute(context.Background(), args("x"))
	var cbe *CircuitBreakerError
	if !errors.As(err, &cbe) {
		t.Fatalf("Expected *CircuitBreakerError, got %v", err)
	}
	if cbe.FailureCount != 3 {
		t.Errorf("Expected failure count 3, got %d", cbe.FailureCount)
	}
	if tool.Calls() != 3 {
		t.Errorf("Open circuit let a call through")
	}
}

func TestCircuitBreakerErrorResultsDoNotTrip(t *testing.T) {
	tool := &scriptedTool{errText: "city not found"}
	cb := NewCircuitBreakerDecorator(tool, CircuitBreakerConfig{FailureThreshold: 1})

	for i := 0; i < 3; i++ {
		res, err := cb.Execute(context.Background(), args("x"))
		if err != nil || res.Success {
			t.Fatalf("Expected error result, got %+v / %v", res, err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected closed, got %s", cb.State())
	}
}

func TestCircuitBreakerRecovery(t *testing.T) {
	// fail, fail, then succeed forever
	cb, _, now := newBreaker([]bool{true, true, false, false, false, false}, CircuitBreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		SuccessThreshold: 2,
	})

	_, _ = cb.Execute(context.Background(), args("x"))
	_, _ = cb.Execute(context.Background(), args("x"))
	if cb.State() != StateOpen {
		t.Fatalf("Expected open, got %s", cb.State())
	}

	*now = now.Add(2 * time.Minute)
	if _, err := cb.Execute(context.Background(), args("x")); err != nil {
		t.Fatalf("Probe should pass: %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("Expected half_open, got %s", cb.State())
	}
	if _, err := cb.Execute(context.Background(), args("x")); err != nil {
		t.Fatalf("Second probe should pass: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected closed, got %s", cb.State())
	}

	tr := cb.Transitions()
	if tr["closed->open"] != 1 || tr["open->half_open"] != 1 || tr["half_open->closed"] != 1 {
		t.Errorf("Unexpected transitions: %v", tr)
	}
}

func TestCircuitBreakerReopensFromHalfOpen(t *testing.T) {
	cb, _, now := newBreaker([]bool{true}, CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Second})

	_, _ = cb.Execute(context.Background(), args("x"))
	*now = now.Add(2 * time.Second)
	_, _ = cb.Execute(context.Background(), args("x"))

	if cb.State() != StateOpen {
		t.Errorf("Expected open after failed probe, got %s", cb.State())
	}
	if cb.Transitions()["half_open->open"] != 1 {
		t.Errorf("Expected a half_open->open transition")
	}
}
