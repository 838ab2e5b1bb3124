package llm

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/scttfrdmn/toolplan/toolplan"
)

// DefaultOpenAIModel is used when no model is given.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAILLM completes through the OpenAI chat completions API.
//
// Example:
//
//	model := llm.NewOpenAILLM(os.Getenv("OPENAI_API_KEY"), "gpt-4o-mini")
type OpenAILLM struct {
	client *openai.Client
	model  string
}

// NewOpenAILLM creates an adapter for the public OpenAI API.
func NewOpenAILLM(apiKey, model string) *OpenAILLM {
	return NewOpenAILLMWithConfig(openai.DefaultConfig(apiKey), model)
}

// NewOpenAILLMWithConfig creates an adapter from a client config, for
// proxies and compatible servers (set cfg.BaseURL).
func NewOpenAILLMWithConfig(cfg openai.ClientConfig, model string) *OpenAILLM {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAILLM{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Model returns the model name.
func (o *OpenAILLM) Model() string {
	return o.model
}

// Complete sends messages as a chat completion request. JSON mode maps to
// the json_object response format.
func (o *OpenAILLM) Complete(ctx context.Context, messages []*toolplan.Message, opts ...CallOption) (*toolplan.Message, error) {
	options := BuildCallOptions(opts...)

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: o.convertMessages(messages),
	}
	if options.Temperature != nil {
		req.Temperature = float32(*options.Temperature)
	}
	if options.MaxTokens != nil {
		req.MaxTokens = *options.MaxTokens
	}
	if options.TopP != nil {
		req.TopP = float32(*options.TopP)
	}
	if seq := options.stopSequences(); len(seq) > 0 {
		req.Stop = seq
	}
	if options.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}

	msg, err := newResponse(o.model, resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	msg.WithMetadata("usage", usage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens))
	if reason := resp.Choices[0].FinishReason; reason != "" {
		msg.WithMetadata("finish_reason", string(reason))
	}
	return msg, nil
}

func (o *OpenAILLM) convertMessages(messages []*toolplan.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := msg.Role
		switch role {
		case toolplan.RoleSystem, toolplan.RoleUser, toolplan.RoleAssistant:
		default:
			// Tool output without a tool_call_id is rejected by the API.
			role = openai.ChatMessageRoleUser
		}
		out = append(out, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return out
}

// Unwrap returns the *openai.Client.
func (o *OpenAILLM) Unwrap() interface{} {
	return o.client
}
