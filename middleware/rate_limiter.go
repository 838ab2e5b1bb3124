package middleware

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/scttfrdmn/toolplan/toolplan"
)

// RateLimiterConfig configures rate limiter behavior.
type RateLimiterConfig struct {
	// Rate is the number of calls allowed per second.
	// Default: 10
	Rate float64

	// Capacity is the maximum burst size.
	// Default: 10
	Capacity int

	// Wait blocks until a token is available instead of rejecting the call.
	Wait bool
}

// DefaultRateLimiterConfig returns a rate limiter config with sensible defaults.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Rate:     10.0,
		Capacity: 10,
		Wait:     true,
	}
}

// RateLimitError is returned when a call is rejected by the limiter.
type RateLimitError struct {
	ToolName string
	Rate     float64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for tool '%s' (%.2f calls/s)", e.ToolName, e.Rate)
}

// RateLimiterDecorator wraps a tool with a token bucket limiter.
//
// Upstream search and image APIs bill per call and enforce their own quotas;
// the limiter keeps a plan with many steps from bursting past them.
type RateLimiterDecorator struct {
	tool    toolplan.Tool
	config  RateLimiterConfig
	limiter *rate.Limiter

	allowed  atomic.Int64
	rejected atomic.Int64
	waited   atomic.Int64 // nanoseconds
}

var _ toolplan.Tool = (*RateLimiterDecorator)(nil)

// NewRateLimiterDecorator creates a new rate limiter decorator.
func NewRateLimiterDecorator(tool toolplan.Tool, config RateLimiterConfig) *RateLimiterDecorator {
	if config.Rate <= 0 {
		config.Rate = 10.0
	}
	if config.Capacity < 1 {
		config.Capacity = 10
	}
	return &RateLimiterDecorator{
		tool:    tool,
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.Rate), config.Capacity),
	}
}

// Name returns the name of the underlying tool.
func (r *RateLimiterDecorator) Name() string { return r.tool.Name() }

// Description returns the description of the underlying tool.
func (r *RateLimiterDecorator) Description() string { return r.tool.Description() }

// Parameters returns the parameters of the underlying tool.
func (r *RateLimiterDecorator) Parameters() []toolplan.ParamSpec { return r.tool.Parameters() }

// Stats returns the allowed and rejected call counts and the total time
// spent waiting for tokens.
func (r *RateLimiterDecorator) Stats() (allowed, rejected int64, waited time.Duration) {
	return r.allowed.Load(), r.rejected.Load(), time.Duration(r.waited.Load())
}

// Execute runs the tool once a token is available.
func (r *RateLimiterDecorator) Execute(ctx context.Context, params map[string]interface{}) (*toolplan.ToolResult, error) {
	if r.config.Wait {
		start := time.Now()
		if err := r.limiter.Wait(ctx); err != nil {
			r.rejected.Add(1)
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
		r.waited.Add(int64(time.Since(start)))
	} else if !r.limiter.Allow() {
		r.rejected.Add(1)
		return nil, &RateLimitError{ToolName: r.Name(), Rate: r.config.Rate}
	}

	r.allowed.Add(1)
	return r.tool.Execute(ctx, params)
}
