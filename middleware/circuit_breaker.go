package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/scttfrdmn/toolplan/toolplan"
)

// CircuitState represents the state of the circuit breaker.
type CircuitState int

const (
	// StateClosed means calls pass through normally.
	StateClosed CircuitState = iota
	// StateOpen means calls fail fast.
	StateOpen
	// StateHalfOpen means the breaker is probing whether the tool recovered.
	StateHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening the circuit.
	// Default: 5
	FailureThreshold int

	// RecoveryTimeout is the duration before a probe is let through an open circuit.
	// Default: 60s
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of successful probes needed to close the circuit.
	// Default: 2
	SuccessThreshold int
}

// DefaultCircuitBreakerConfig returns a circuit breaker config with sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 2,
	}
}

// CircuitBreakerError is returned when the circuit is open.
type CircuitBreakerError struct {
	ToolName     string
	FailureCount int
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker for tool '%s' is OPEN (failed %d times)", e.ToolName, e.FailureCount)
}

// CircuitBreakerDecorator wraps a tool with circuit breaker protection.
//
// State transitions:
//   - CLOSED -> OPEN: after FailureThreshold consecutive invocation errors
//   - OPEN -> HALF_OPEN: after RecoveryTimeout
//   - HALF_OPEN -> CLOSED: after SuccessThreshold consecutive successes
//   - HALF_OPEN -> OPEN: on any failure
//
// Error results do not count as failures: the tool answered.
type CircuitBreakerDecorator struct {
	tool   toolplan.Tool
	config CircuitBreakerConfig
	now    func() time.Time

	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	rejected        int64
	transitions     map[string]int64
}

var _ toolplan.Tool = (*CircuitBreakerDecorator)(nil)

// NewCircuitBreakerDecorator creates a new circuit breaker decorator.
func NewCircuitBreakerDecorator(tool toolplan.Tool, config CircuitBreakerConfig) *CircuitBreakerDecorator {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	return &CircuitBreakerDecorator{
		tool:        tool,
		config:      config,
		now:         time.Now,
		state:       StateClosed,
		transitions: make(map[string]int64),
	}
}

// Name returns the name of the underlying tool.
func (c *CircuitBreakerDecorator) Name() string { return c.tool.Name() }

// Description returns the description of the underlying tool.
func (c *CircuitBreakerDecorator) Description() string { return c.tool.Description() }

// Parameters returns the parameters of the underlying tool.
func (c *CircuitBreakerDecorator) Parameters() []toolplan.ParamSpec { return c.tool.Parameters() }

// State returns the current circuit breaker state.
func (c *CircuitBreakerDecorator) State() CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transitions returns how often each "from->to" transition happened.
func (c *CircuitBreakerDecorator) Transitions() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.transitions))
	for k, v := range c.transitions {
		out[k] = v
	}
	return out
}

// must be called with c.mu held
func (c *CircuitBreakerDecorator) changeState(newState CircuitState) {
	if c.state == newState {
		return
	}
	c.transitions[fmt.Sprintf("%s->%s", c.state, newState)]++
	c.state = newState
}

func (c *CircuitBreakerDecorator) onSuccess() {
	switch c.state {
	case StateHalfOpen:
		c.successCount++
		if c.successCount >= c.config.SuccessThreshold {
			c.changeState(StateClosed)
			c.failureCount = 0
			c.successCount = 0
		}
	case StateClosed:
		c.failureCount = 0
	}
}

func (c *CircuitBreakerDecorator) onFailure() {
	c.failureCount++
	c.lastFailureTime = c.now()

	switch c.state {
	case StateHalfOpen:
		c.changeState(StateOpen)
		c.successCount = 0
	case StateClosed:
		if c.failureCount >= c.config.FailureThreshold {
			c.changeState(StateOpen)
		}
	}
}

// Execute runs the tool unless the circuit is open.
func (c *CircuitBreakerDecorator) Execute(ctx context.Context, params map[string]interface{}) (*toolplan.ToolResult, error) {
	c.mu.Lock()
	if c.state == StateOpen {
		if c.now().Sub(c.lastFailureTime) >= c.config.RecoveryTimeout {
			c.changeState(StateHalfOpen)
			c.successCount = 0
		} else {
			c.rejected++
			failures := c.failureCount
			c.mu.Unlock()
			return nil, &CircuitBreakerError{ToolName: c.Name(), FailureCount: failures}
		}
	}
	c.mu.Unlock()

	res, err := c.tool.Execute(ctx, params)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.onFailure()
		return nil, err
	}
	c.onSuccess()
	return res, nil
}
