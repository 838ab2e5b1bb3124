package builtin

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scttfrdmn/toolplan/toolplan"
)

// Defaults for the k and limit parameters.
const (
	DefaultSearchResults   = 5
	DefaultRecommendations = 5
)

// FallbackTitle is returned by extract_best_title when extraction fails.
const FallbackTitle = "Selected item"

// WebSearch returns the web_search tool.
func WebSearch(s Searcher) toolplan.Tool {
	spec := toolplan.ToolSpec{
		Name:        WebSearchTool,
		Description: "Search the web and return the top k results as \"title – link\" lines.",
		Parameters: []toolplan.ParamSpec{
			{Name: "query", Type: toolplan.TypeString, Required: true},
			{Name: "k", Type: toolplan.TypeInteger, Default: DefaultSearchResults, Description: "Number of results"},
		},
	}
	return toolplan.NewFuncTool(spec, func(ctx context.Context, params map[string]interface{}) (*toolplan.ToolResult, error) {
		query := strings.TrimSpace(toolplan.StringParam(params, "query", ""))
		if query == "" {
			return toolplan.NewToolError("query cannot be empty"), nil
		}
		k, err := toolplan.IntParam(params, "k", DefaultSearchResults)
		if err != nil {
			return toolplan.NewToolError(err.Error()), nil
		}
		if k <= 0 {
			k = DefaultSearchResults
		}

		results, err := s.Search(ctx, query, k)
		if err != nil {
			return toolplan.NewToolError(fmt.Sprintf("Search failed: %v", err)), nil
		}
		if len(results) == 0 {
			return toolplan.NewToolResult("No results"), nil
		}
		if len(results) > k {
			results = results[:k]
		}

		lines := make([]string, len(results))
		for i, r := range results {
			lines[i] = r.Title + " – " + r.Link
		}
		return toolplan.NewToolResult(strings.Join(lines, "\n")), nil
	})
}

type imagePayload struct {
	Prompt      string `json:"prompt"`
	OriginalB64 string `json:"original_b64"`
	ThumbB64    string `json:"thumb_b64"`
}

// GenerateImage returns the generate_image tool. Its output is a JSON
// document with the prompt and base64 original and thumbnail images.
func GenerateImage(g ImageGenerator) toolplan.Tool {
	spec := toolplan.ToolSpec{
		Name:        GenerateImageTool,
		Description: "Generate an image from a text prompt.",
		Parameters: []toolplan.ParamSpec{
			{Name: "prompt", Type: toolplan.TypeString, Required: true, Description: "Image prompt"},
		},
	}
	return toolplan.NewFuncTool(spec, func(ctx context.Context, params map[string]interface{}) (*toolplan.ToolResult, error) {
		prompt := strings.TrimSpace(toolplan.StringParam(params, "prompt", ""))
		if prompt == "" {
			return toolplan.NewToolError("prompt cannot be empty"), nil
		}
		img, err := g.Generate(ctx, prompt)
		if err != nil {
			return toolplan.NewToolError(fmt.Sprintf("Image generation failed: %v", err)), nil
		}

		data, err := json.Marshal(imagePayload{
			Prompt:      prompt,
			OriginalB64: base64.StdEncoding.EncodeToString(img.Original),
			ThumbB64:    base64.StdEncoding.EncodeToString(img.Thumbnail),
		})
		if err != nil {
			return nil, err
		}
		return toolplan.NewToolResult(string(data)), nil
	})
}

// FetchRecommendations returns the fetch_recommendations tool.
func FetchRecommendations(r Recommender, session Session) toolplan.Tool {
	spec := toolplan.ToolSpec{
		Name: FetchRecommendationsTool,
		Description: "Return personalized recommendation cards as JSON. Only use this when the user " +
			"explicitly asks for recommendations or suggestions of things to watch or read, never " +
			"for factual or technical questions.",
		Parameters: []toolplan.ParamSpec{
			{Name: "types", Type: toolplan.TypeString, Required: true, Description: "Comma-separated content types, e.g. movie"},
			{Name: "limit", Type: toolplan.TypeInteger, Default: DefaultRecommendations},
		},
	}
	return toolplan.NewFuncTool(spec, func(ctx context.Context, params map[string]interface{}) (*toolplan.ToolResult, error) {
		types := toolplan.StringsParam(params, "types")
		if len(types) == 0 {
			return toolplan.NewToolError("types cannot be empty"), nil
		}
		limit, err := toolplan.IntParam(params, "limit", DefaultRecommendations)
		if err != nil {
			return toolplan.NewToolError(err.Error()), nil
		}
		if limit <= 0 {
			limit = DefaultRecommendations
		}

		cards, err := r.Recommend(ctx, session.UserID, types, limit)
		if err != nil {
			return toolplan.NewToolError(fmt.Sprintf("Recommendation failed: %v", err)), nil
		}
		if cards == nil {
			cards = []Card{}
		}
		data, err := json.Marshal(map[string]interface{}{"cards": cards})
		if err != nil {
			return nil, err
		}
		return toolplan.NewToolResult(string(data)), nil
	})
}

// ExtractBestTitle returns the extract_best_title tool. It never fails: an
// extraction error or an empty answer yields FallbackTitle.
func ExtractBestTitle(x TitleExtractor) toolplan.Tool {
	spec := toolplan.ToolSpec{
		Name: ExtractBestTitleTool,
		Description: "Extract the single most relevant item title from the raw output of a previous " +
			"search or recommendation step. Use it to clean up search output before creating a calendar event.",
		Parameters: []toolplan.ParamSpec{
			{Name: "text_to_process", Type: toolplan.TypeString, Required: true, Description: "Raw text from a previous step"},
		},
	}
	return toolplan.NewFuncTool(spec, func(ctx context.Context, params map[string]interface{}) (*toolplan.ToolResult, error) {
		title, err := x.Extract(ctx, toolplan.StringParam(params, "text_to_process", ""))
		if err != nil {
			return toolplan.NewToolResult(FallbackTitle).WithMetadata("fallback", err.Error()), nil
		}
		title = CleanTitle(title)
		if title == "" {
			return toolplan.NewToolResult(FallbackTitle).WithMetadata("fallback", "empty title"), nil
		}
		return toolplan.NewToolResult(title), nil
	})
}

// CleanTitle strips surrounding whitespace and quotes.
func CleanTitle(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"'“”`))
}
