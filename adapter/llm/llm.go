// Package llm defines the text-completion contract used by the planner and
// by the title extraction tool, with adapters for OpenAI, Gemini and Bedrock.
//
// The interface is intentionally small: a list of messages goes in, one
// message comes out. Provider-specific knobs travel as CallOptions and the
// native client stays reachable through Unwrap.
package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/scttfrdmn/toolplan/toolplan"
)

// ErrEmptyCompletion is returned when a provider answers with no text.
var ErrEmptyCompletion = errors.New("llm returned an empty completion")

// LLM is a chat-completion model.
//
// Example:
//
//	messages := []*toolplan.Message{
//	    toolplan.NewMessage(toolplan.RoleSystem, prompt),
//	    toolplan.NewMessage(toolplan.RoleUser, "Book a table tomorrow at 7pm"),
//	}
//	resp, err := model.Complete(ctx, messages, llm.WithTemperature(0), llm.WithJSONMode())
type LLM interface {
	// Complete returns a single assistant message. Metadata carries the
	// model name and, where the provider reports it, token usage.
	Complete(ctx context.Context, messages []*toolplan.Message, opts ...CallOption) (*toolplan.Message, error)

	// Model returns the model identifier, e.g. "gpt-4o-mini".
	Model() string

	// Unwrap returns the underlying provider client.
	Unwrap() interface{}
}

// CallOptions holds per-call settings. Nil fields use the provider default.
type CallOptions struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64

	// JSONMode asks the provider to answer with a single JSON object.
	// Providers without such a mode ignore it.
	JSONMode bool

	// Extra holds provider-specific options ("stop_sequences", "top_k").
	Extra map[string]interface{}
}

// CallOption configures a call.
type CallOption func(*CallOptions)

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) CallOption {
	return func(o *CallOptions) {
		o.Temperature = &temp
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(tokens int) CallOption {
	return func(o *CallOptions) {
		o.MaxTokens = &tokens
	}
}

// WithTopP sets nucleus sampling.
func WithTopP(topP float64) CallOption {
	return func(o *CallOptions) {
		o.TopP = &topP
	}
}

// WithJSONMode requests a JSON object response.
func WithJSONMode() CallOption {
	return func(o *CallOptions) {
		o.JSONMode = true
	}
}

// WithExtra sets a provider-specific option.
func WithExtra(key string, value interface{}) CallOption {
	return func(o *CallOptions) {
		if o.Extra == nil {
			o.Extra = make(map[string]interface{})
		}
		o.Extra[key] = value
	}
}

// BuildCallOptions applies opts to an empty CallOptions.
func BuildCallOptions(opts ...CallOption) *CallOptions {
	options := &CallOptions{
		Extra: make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// stopSequences returns the "stop_sequences" extra, if set.
func (o *CallOptions) stopSequences() []string {
	if seq, ok := o.Extra["stop_sequences"].([]string); ok {
		return seq
	}
	return nil
}

// newResponse builds the assistant message returned by every adapter.
func newResponse(model, content string) (*toolplan.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyCompletion
	}
	return toolplan.NewMessage(toolplan.RoleAssistant, content).WithMetadata("model", model), nil
}

func usage(prompt, completion, total int) map[string]interface{} {
	return map[string]interface{}{
		"prompt_tokens":     prompt,
		"completion_tokens": completion,
		"total_tokens":      total,
	}
}

// Static is an LLM that always answers with the same text. It backs
// dry runs and tests.
type Static struct {
	Reply string
	Err   error

	// Calls records the messages of every call.
	Calls [][]*toolplan.Message
}

// Complete returns s.Reply, or s.Err when set.
func (s *Static) Complete(_ context.Context, messages []*toolplan.Message, _ ...CallOption) (*toolplan.Message, error) {
	s.Calls = append(s.Calls, messages)
	if s.Err != nil {
		return nil, s.Err
	}
	return newResponse(s.Model(), s.Reply)
}

// Model returns "static".
func (s *Static) Model() string { return "static" }

// Unwrap returns nil.
func (s *Static) Unwrap() interface{} { return nil }
