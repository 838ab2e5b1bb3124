// Package search implements web search on Google Programmable Search
// (Custom Search JSON API).
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/scttfrdmn/toolplan/tools/builtin"
)

// Limits applied to every result before it reaches a tool or a prompt.
const (
	MaxTitleLen   = 120
	MaxSnippetLen = 300

	// maxResults is the API's per-request cap.
	maxResults = 10
)

// Config selects the search engine and result filtering.
type Config struct {
	APIKey   string
	EngineID string

	// DateRestrict limits results by age, e.g. "m6" for six months.
	DateRestrict string
	// Sort is passed through, e.g. "date".
	Sort string
	// Language restricts results, e.g. "lang_ko".
	Language string
}

// Searcher runs queries against one search engine.
type Searcher struct {
	svc *customsearch.Service
	cfg Config
}

var _ builtin.Searcher = (*Searcher)(nil)

// New creates a Searcher. opts are appended after the API key option.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Searcher, error) {
	if cfg.EngineID == "" {
		return nil, errors.New("search engine id is required")
	}
	if cfg.APIKey != "" {
		opts = append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	}
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create custom search service: %w", err)
	}
	return &Searcher{svc: svc, cfg: cfg}, nil
}

// Search returns at most k slimmed results.
func (s *Searcher) Search(ctx context.Context, query string, k int) ([]builtin.SearchResult, error) {
	if k <= 0 || k > maxResults {
		k = maxResults
	}

	call := s.svc.Cse.List().Q(query).Cx(s.cfg.EngineID).Num(int64(k))
	if s.cfg.DateRestrict != "" {
		call = call.DateRestrict(s.cfg.DateRestrict)
	}
	if s.cfg.Sort != "" {
		call = call.Sort(s.cfg.Sort)
	}
	if s.cfg.Language != "" {
		call = call.Lr(s.cfg.Language)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("custom search: %w", err)
	}

	out := make([]builtin.SearchResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil {
			continue
		}
		out = append(out, Slim(item))
	}
	return out, nil
}

// Slim keeps the fields a planner needs: title and snippet truncated,
// link, and the publication date from the page's meta tags when present.
func Slim(item *customsearch.Result) builtin.SearchResult {
	return builtin.SearchResult{
		Title:   truncate(item.Title, MaxTitleLen),
		Link:    item.Link,
		Snippet: truncate(item.Snippet, MaxSnippetLen),
		Date:    truncate(publishedDate(item.Pagemap), 10),
	}
}

var dateTags = []string{"article:published_time", "og:pubdate", "og:published_time"}

func publishedDate(pagemap []byte) string {
	if len(pagemap) == 0 {
		return ""
	}
	var pm struct {
		Metatags []map[string]interface{} `json:"metatags"`
	}
	if err := json.Unmarshal(pagemap, &pm); err != nil || len(pm.Metatags) == 0 {
		return ""
	}
	for _, tag := range dateTags {
		if v, ok := pm.Metatags[0][tag].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
