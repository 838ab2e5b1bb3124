package builtin

import (
	"context"
	"fmt"

	"github.com/scttfrdmn/toolplan/adapter/llm"
	"github.com/scttfrdmn/toolplan/toolplan"
)

const titlePrompt = "From the following search results, extract the single most relevant movie or event title. " +
	"Return ONLY the title itself, with no extra words, explanations, or quotes.\n\n" +
	"SEARCH RESULTS:\n%s\n\nTITLE:"

// LLMTitleExtractor extracts titles with a completion model.
type LLMTitleExtractor struct {
	model llm.LLM
}

// NewLLMTitleExtractor creates a TitleExtractor backed by model.
func NewLLMTitleExtractor(model llm.LLM) *LLMTitleExtractor {
	return &LLMTitleExtractor{model: model}
}

// Extract asks the model for the best title in text.
func (e *LLMTitleExtractor) Extract(ctx context.Context, text string) (string, error) {
	resp, err := e.model.Complete(ctx, []*toolplan.Message{
		toolplan.NewMessage(toolplan.RoleUser, fmt.Sprintf(titlePrompt, text)),
	}, llm.WithTemperature(0), llm.WithMaxTokens(64))
	if err != nil {
		return "", fmt.Errorf("title extraction: %w", err)
	}
	return CleanTitle(resp.Content), nil
}
