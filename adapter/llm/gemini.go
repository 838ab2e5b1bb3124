package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/scttfrdmn/toolplan/toolplan"
)

// DefaultGeminiModel is used when no model is given.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiLLM completes through the Google Gemini API.
type GeminiLLM struct {
	client *genai.Client
	model  string
}

// NewGeminiLLM creates a Gemini adapter. An empty apiKey falls back to
// GEMINI_API_KEY, then GOOGLE_API_KEY.
func NewGeminiLLM(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*GeminiLLM, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("GOOGLE_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("gemini api key required: provide apiKey or set GEMINI_API_KEY or GOOGLE_API_KEY")
		}
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiLLM{client: client, model: model}, nil
}

// Model returns the model name.
func (g *GeminiLLM) Model() string {
	return g.model
}

// Complete runs a chat session seeded with all but the last message and
// sends the last one. System messages become the system instruction. JSON
// mode sets the application/json response MIME type.
func (g *GeminiLLM) Complete(ctx context.Context, messages []*toolplan.Message, opts ...CallOption) (*toolplan.Message, error) {
	if len(messages) == 0 {
		return nil, errors.New("gemini: no messages")
	}
	options := BuildCallOptions(opts...)

	model := g.client.GenerativeModel(g.model)
	g.configureModel(model, options)

	system, history, last := splitGeminiMessages(messages)
	if system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}

	session := model.StartChat()
	session.History = history

	resp, err := session.SendMessage(ctx, last...)
	if err != nil {
		return nil, fmt.Errorf("gemini api error: %w", err)
	}

	msg, err := newResponse(g.model, extractGeminiText(resp))
	if err != nil {
		return nil, err
	}
	if resp.UsageMetadata != nil {
		msg.WithMetadata("usage", usage(
			int(resp.UsageMetadata.PromptTokenCount),
			int(resp.UsageMetadata.CandidatesTokenCount),
			int(resp.UsageMetadata.TotalTokenCount),
		))
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != 0 {
		msg.WithMetadata("finish_reason", resp.Candidates[0].FinishReason.String())
	}
	return msg, nil
}

func (g *GeminiLLM) configureModel(model *genai.GenerativeModel, options *CallOptions) {
	if options.Temperature != nil {
		model.SetTemperature(float32(*options.Temperature))
	}
	if options.MaxTokens != nil {
		model.SetMaxOutputTokens(int32(*options.MaxTokens))
	}
	if options.TopP != nil {
		model.SetTopP(float32(*options.TopP))
	}
	if topK, ok := options.Extra["top_k"].(int); ok {
		model.SetTopK(int32(topK))
	}
	if seq := options.stopSequences(); len(seq) > 0 {
		model.StopSequences = seq
	}
	if options.JSONMode {
		model.ResponseMIMEType = "application/json"
	}
}

// splitGeminiMessages separates system text, chat history and the final
// message parts.
func splitGeminiMessages(messages []*toolplan.Message) (string, []*genai.Content, []genai.Part) {
	var system []string
	var rest []*toolplan.Message
	for _, msg := range messages {
		if msg.Role == toolplan.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		rest = append(rest, msg)
	}
	if len(rest) == 0 {
		// Only system text: send it as the user turn.
		return "", nil, []genai.Part{genai.Text(strings.Join(system, "\n\n"))}
	}

	history := make([]*genai.Content, 0, len(rest)-1)
	for _, msg := range rest[:len(rest)-1] {
		history = append(history, &genai.Content{
			Role:  geminiRole(msg.Role),
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	last := []genai.Part{genai.Text(rest[len(rest)-1].Content)}
	return strings.Join(system, "\n\n"), history, last
}

func geminiRole(role string) string {
	if role == toolplan.RoleAssistant {
		return "model"
	}
	return "user"
}

func extractGeminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}

// Close releases the client.
func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Unwrap returns the *genai.Client.
func (g *GeminiLLM) Unwrap() interface{} {
	return g.client
}
