package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/scttfrdmn/toolplan/toolplan"
)

// ============================================
// Test Tool Implementation
// ============================================

// scriptedTool fails or succeeds according to a repeating pattern.
type scriptedTool struct {
	mu      sync.Mutex
	pattern []bool // true = invocation error
	delay   time.Duration
	calls   int
	errText string // when set, successful calls return an error result
}

func (s *scriptedTool) Name() string        { return "scripted" }
func (s *scriptedTool) Description() string { return "test tool" }
func (s *scriptedTool) Parameters() []toolplan.ParamSpec {
	return []toolplan.ParamSpec{{Name: "q", Type: toolplan.TypeString, Required: true}}
}

func (s *scriptedTool) Execute(ctx context.Context, params map[string]interface{}) (*toolplan.ToolResult, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	index := 0
	if len(s.pattern) > 0 {
		index = s.calls % len(s.pattern)
	}
	s.calls++
	count := s.calls
	s.mu.Unlock()

	if len(s.pattern) > 0 && s.pattern[index] {
		return nil, errors.New("simulated failure")
	}
	if s.errText != "" {
		return toolplan.NewToolError(s.errText), nil
	}
	return toolplan.NewToolResult(fmt.Sprintf("%v #%d", params["q"], count)), nil
}

func (s *scriptedTool) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubbornTool ignores context cancellation.
type stubbornTool struct {
	delay time.Duration
}

func (s *stubbornTool) Name() string                     { return "stubborn" }
func (s *stubbornTool) Description() string              { return "ignores ctx" }
func (s *stubbornTool) Parameters() []toolplan.ParamSpec { return nil }

func (s *stubbornTool) Execute(ctx context.Context, params map[string]interface{}) (*toolplan.ToolResult, error) {
	time.Sleep(s.delay)
	return toolplan.NewToolResult("late"), nil
}

func args(q string) map[string]interface{} {
	return map[string]interface{}{"q": q}
}
