// Package middleware provides decorators that wrap a toolplan.Tool with
// timeouts, retries, rate limiting, circuit breaking and result caching.
//
// Every decorator implements toolplan.Tool and reports the name, description
// and parameters of the tool it wraps, so decorated tools can be registered
// in a tools.Registry unchanged.
package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/scttfrdmn/toolplan/toolplan"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial attempt).
	// Default: 3
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	// Default: 100ms
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	// Default: 10s
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	// Default: 2.0
	BackoffMultiplier float64

	// ShouldRetry determines if an error should trigger a retry.
	// If nil, all errors trigger retries.
	ShouldRetry func(error) bool
}

// DefaultRetryConfig returns a retry config with sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.BackoffMultiplier <= 0 {
		c.BackoffMultiplier = 2.0
	}
	return c
}

// Retry calls fn until it succeeds, the attempts are exhausted, the error is
// not retryable or ctx is done.
func Retry(ctx context.Context, config RetryConfig, fn func(ctx context.Context) error) error {
	config = config.withDefaults()

	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if config.ShouldRetry != nil && !config.ShouldRetry(err) {
			return fmt.Errorf("non-retryable error on attempt %d/%d: %w", attempt, config.MaxAttempts, err)
		}

		if attempt == config.MaxAttempts {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled after %d attempts: %w", attempt, ctx.Err())
		case <-timer.C:
			backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", config.MaxAttempts, lastErr)
}

// RetryDecorator wraps a tool with retry logic.
//
// Only invocation errors are retried. A tool that returns an error result
// has answered, and its result is passed through as is.
type RetryDecorator struct {
	tool   toolplan.Tool
	config RetryConfig
}

var _ toolplan.Tool = (*RetryDecorator)(nil)

// NewRetryDecorator creates a new retry decorator.
func NewRetryDecorator(tool toolplan.Tool, config RetryConfig) *RetryDecorator {
	return &RetryDecorator{tool: tool, config: config.withDefaults()}
}

// Name returns the name of the underlying tool.
func (r *RetryDecorator) Name() string { return r.tool.Name() }

// Description returns the description of the underlying tool.
func (r *RetryDecorator) Description() string { return r.tool.Description() }

// Parameters returns the parameters of the underlying tool.
func (r *RetryDecorator) Parameters() []toolplan.ParamSpec { return r.tool.Parameters() }

// Execute runs the tool, retrying invocation errors.
func (r *RetryDecorator) Execute(ctx context.Context, params map[string]interface{}) (*toolplan.ToolResult, error) {
	var result *toolplan.ToolResult
	err := Retry(ctx, r.config, func(ctx context.Context) error {
		res, err := r.tool.Execute(ctx, params)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
