package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/scttfrdmn/toolplan/toolplan"
)

// TimeoutConfig configures timeout behavior.
type TimeoutConfig struct {
	// Timeout is the per-call timeout duration.
	// Default: 30 seconds
	Timeout time.Duration
}

// DefaultTimeoutConfig returns a timeout config with sensible defaults.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Timeout: 30 * time.Second,
	}
}

// TimeoutMetrics tracks timeout middleware metrics.
type TimeoutMetrics struct {
	mu                 sync.RWMutex
	TotalRequests      int64
	SuccessfulRequests int64
	TimedOutRequests   int64
	FailedRequests     int64
	TotalDuration      time.Duration
	MinDuration        *time.Duration
	MaxDuration        *time.Duration
}

// NewTimeoutMetrics creates a new metrics instance.
func NewTimeoutMetrics() *TimeoutMetrics {
	return &TimeoutMetrics{}
}

func (m *TimeoutMetrics) record(duration time.Duration, counter *int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	*counter++
	m.TotalDuration += duration
	if m.MinDuration == nil || duration < *m.MinDuration {
		d := duration
		m.MinDuration = &d
	}
	if m.MaxDuration == nil || duration > *m.MaxDuration {
		d := duration
		m.MaxDuration = &d
	}
}

// Snapshot returns the success, timeout and failure counts.
func (m *TimeoutMetrics) Snapshot() (succeeded, timedOut, failed int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.SuccessfulRequests, m.TimedOutRequests, m.FailedRequests
}

// AvgDuration returns the average call duration.
func (m *TimeoutMetrics) AvgDuration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.TotalRequests == 0 {
		return 0
	}
	return m.TotalDuration / time.Duration(m.TotalRequests)
}

// TimeoutError is returned when a tool call exceeds the configured timeout.
type TimeoutError struct {
	ToolName string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("call to tool '%s' timed out after %v", e.ToolName, e.Timeout)
}

// TimeoutDecorator wraps a tool with timeout protection.
//
// The tool runs in its own goroutine so that implementations which ignore
// context cancellation still return control to the caller on time. The
// goroutine is left to finish on its own; its result is discarded.
type TimeoutDecorator struct {
	tool    toolplan.Tool
	config  TimeoutConfig
	metrics *TimeoutMetrics
}

var _ toolplan.Tool = (*TimeoutDecorator)(nil)

// NewTimeoutDecorator creates a new timeout decorator.
func NewTimeoutDecorator(tool toolplan.Tool, config TimeoutConfig) *TimeoutDecorator {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &TimeoutDecorator{
		tool:    tool,
		config:  config,
		metrics: NewTimeoutMetrics(),
	}
}

// Timeout wraps tool with a timeout of d.
func Timeout(tool toolplan.Tool, d time.Duration) *TimeoutDecorator {
	return NewTimeoutDecorator(tool, TimeoutConfig{Timeout: d})
}

// Name returns the name of the underlying tool.
func (t *TimeoutDecorator) Name() string { return t.tool.Name() }

// Description returns the description of the underlying tool.
func (t *TimeoutDecorator) Description() string { return t.tool.Description() }

// Parameters returns the parameters of the underlying tool.
func (t *TimeoutDecorator) Parameters() []toolplan.ParamSpec { return t.tool.Parameters() }

// Metrics returns the timeout metrics.
func (t *TimeoutDecorator) Metrics() *TimeoutMetrics { return t.metrics }

// Execute runs the tool and gives up once the timeout elapses.
func (t *TimeoutDecorator) Execute(ctx context.Context, params map[string]interface{}) (*toolplan.ToolResult, error) {
	start := time.Now()

	timeoutCtx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	type result struct {
		res *toolplan.ToolResult
		err error
	}

	// Buffered so the goroutine never blocks after a timeout.
	done := make(chan result, 1)
	go func() {
		res, err := t.tool.Execute(timeoutCtx, params)
		done <- result{res, err}
	}()

	select {
	case r := <-done:
		elapsed := time.Since(start)
		if r.err != nil {
			if timeoutCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				t.metrics.record(elapsed, &t.metrics.TimedOutRequests)
				return nil, &TimeoutError{ToolName: t.Name(), Timeout: t.config.Timeout}
			}
			t.metrics.record(elapsed, &t.metrics.FailedRequests)
			return nil, r.err
		}
		t.metrics.record(elapsed, &t.metrics.SuccessfulRequests)
		return r.res, nil

	case <-timeoutCtx.Done():
		elapsed := time.Since(start)
		if ctx.Err() != nil {
			t.metrics.record(elapsed, &t.metrics.FailedRequests)
			return nil, ctx.Err()
		}
		t.metrics.record(elapsed, &t.metrics.TimedOutRequests)
		return nil, &TimeoutError{ToolName: t.Name(), Timeout: t.config.Timeout}
	}
}
