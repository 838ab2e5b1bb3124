// Package builtin provides the tools that run inside the assistant process:
// calendar events, web search, image generation, recommendations and title
// extraction.
//
// Every tool talks to its backing service through a small collaborator
// interface. Collaborators are built once at startup and passed in through
// Deps; a tool whose collaborator is nil is simply not offered.
package builtin

import (
	"context"
	"time"

	"github.com/scttfrdmn/toolplan/middleware"
	"github.com/scttfrdmn/toolplan/toolplan"
)

// Tool names.
const (
	CreateEventTool          = "create_event"
	DeleteEventTool          = "delete_event"
	WebSearchTool            = "web_search"
	GenerateImageTool        = "generate_image"
	FetchRecommendationsTool = "fetch_recommendations"
	ExtractBestTitleTool     = "extract_best_title"
)

// Event is a calendar entry.
type Event struct {
	ID    string
	Title string
	Start time.Time
	End   time.Time
	// Link is a URL to the event in the calendar UI.
	Link string
}

// Calendar creates and deletes events in a user's calendar.
type Calendar interface {
	CreateEvent(ctx context.Context, userID string, ev Event) (*Event, error)
	DeleteEvent(ctx context.Context, userID, eventID string) error
}

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet,omitempty"`
	// Date is the publication date (YYYY-MM-DD) when known.
	Date string `json:"date,omitempty"`
}

// Searcher runs web searches.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]SearchResult, error)
}

// Card is a recommendation shown to the user.
type Card struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle,omitempty"`
	URL      string   `json:"url,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Recommender produces recommendation cards for the given content types.
type Recommender interface {
	Recommend(ctx context.Context, userID string, types []string, limit int) ([]Card, error)
}

// Image is a generated picture, already encoded.
type Image struct {
	Original  []byte
	Thumbnail []byte
}

// ImageGenerator turns a prompt into an image.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (*Image, error)
}

// TitleExtractor picks the single most relevant title out of free text.
type TitleExtractor interface {
	Extract(ctx context.Context, text string) (string, error)
}

// Session is the per-request context the tools act in.
type Session struct {
	UserID string
	// Location resolves timestamps given without an offset. Nil means UTC.
	Location *time.Location
	// Now returns the current time. Nil means time.Now.
	Now func() time.Time
}

func (s Session) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

func (s Session) now() time.Time {
	if s.Now == nil {
		return time.Now().In(s.location())
	}
	return s.Now().In(s.location())
}

// Deps are the collaborators for the built-in tools.
type Deps struct {
	Session Session

	Calendar    Calendar
	Searcher    Searcher
	Recommender Recommender
	Images      ImageGenerator
	Titles      TitleExtractor

	// RateLimit, when set, limits web_search and generate_image calls.
	RateLimit *middleware.RateLimiterConfig
}

// NewToolset returns the tools whose collaborators are configured.
func NewToolset(deps Deps) []toolplan.Tool {
	var tools []toolplan.Tool
	if deps.Calendar != nil {
		tools = append(tools, CreateEvent(deps.Calendar, deps.Session), DeleteEvent(deps.Calendar, deps.Session))
	}
	if deps.Searcher != nil {
		tools = append(tools, limit(WebSearch(deps.Searcher), deps.RateLimit))
	}
	if deps.Images != nil {
		tools = append(tools, limit(GenerateImage(deps.Images), deps.RateLimit))
	}
	if deps.Recommender != nil {
		tools = append(tools, FetchRecommendations(deps.Recommender, deps.Session))
	}
	if deps.Titles != nil {
		tools = append(tools, ExtractBestTitle(deps.Titles))
	}
	return tools
}

func limit(tool toolplan.Tool, cfg *middleware.RateLimiterConfig) toolplan.Tool {
	if cfg == nil {
		return tool
	}
	return middleware.NewRateLimiterDecorator(tool, *cfg)
}
