// Package recommend builds recommendation cards from The Movie Database
// (TMDB).
package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/scttfrdmn/toolplan/tools/builtin"
)

// DefaultBaseURL is the TMDB v3 API root.
const DefaultBaseURL = "https://api.themoviedb.org/3"

// RecentWindow is how far back "recent release" discovery looks.
const RecentWindow = 30 * 24 * time.Hour

// Content kinds with their own discovery endpoint. Any other requested
// type is used as a movie search keyword.
const (
	KindMovie = "movie"
	KindTV    = "tv"
)

// Config configures the TMDB client.
type Config struct {
	APIKey   string
	BaseURL  string
	Language string
	Region   string
}

// Client is a TMDB-backed recommender.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
}

var _ builtin.Recommender = (*Client)(nil)

// New creates a client. Language defaults to en-US.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("tmdb api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{cfg: cfg, httpClient: httpClient, now: time.Now}, nil
}

type tmdbResult struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	Overview     string  `json:"overview"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	VoteAverage  float64 `json:"vote_average"`
}

// Recommend collects up to limit cards across types, in the order given.
func (c *Client) Recommend(ctx context.Context, userID string, types []string, limit int) ([]builtin.Card, error) {
	var cards []builtin.Card
	stamp := c.now().Unix()

	for _, typ := range types {
		if len(cards) >= limit {
			break
		}
		kind := strings.ToLower(strings.TrimSpace(typ))

		var (
			results []tmdbResult
			reason  string
			err     error
		)
		switch kind {
		case KindMovie, KindTV:
			results, err = c.discoverRecent(ctx, kind)
			reason = "Released in the last 30 days"
		default:
			results, err = c.searchMovies(ctx, typ)
			reason = fmt.Sprintf("TMDB search: '%s'", typ)
			kind = KindMovie
		}
		if err != nil {
			return nil, err
		}

		for i, r := range results {
			if len(cards) >= limit {
				break
			}
			cards = append(cards, c.card(kind, i, stamp, r, reason))
		}
	}
	return cards, nil
}

func (c *Client) card(kind string, i int, stamp int64, r tmdbResult, reason string) builtin.Card {
	title := r.Title
	if title == "" {
		title = r.Name
	}
	if title == "" {
		title = "(no title)"
	}
	return builtin.Card{
		ID:       fmt.Sprintf("%s_%d_%d", kind, i, stamp),
		Type:     kind,
		Title:    title,
		Subtitle: r.Overview,
		URL:      fmt.Sprintf("https://www.themoviedb.org/%s/%d", kind, r.ID),
		Reason:   reason,
		Tags:     []string{kind, "tmdb"},
	}
}

// discoverRecent lists releases from the last RecentWindow, newest first.
func (c *Client) discoverRecent(ctx context.Context, kind string) ([]tmdbResult, error) {
	now := c.now()
	from := now.Add(-RecentWindow).Format("2006-01-02")
	to := now.Format("2006-01-02")

	q := c.baseQuery()
	if kind == KindTV {
		q.Set("first_air_date.gte", from)
		q.Set("first_air_date.lte", to)
		q.Set("sort_by", "first_air_date.desc")
	} else {
		q.Set("release_date.gte", from)
		q.Set("release_date.lte", to)
		q.Set("with_release_type", "2|3")
		q.Set("sort_by", "release_date.desc")
	}
	return c.get(ctx, "/discover/"+kind, q)
}

func (c *Client) searchMovies(ctx context.Context, keyword string) ([]tmdbResult, error) {
	q := c.baseQuery()
	q.Set("query", keyword)
	return c.get(ctx, "/search/movie", q)
}

func (c *Client) baseQuery() url.Values {
	q := url.Values{}
	q.Set("api_key", c.cfg.APIKey)
	q.Set("language", c.cfg.Language)
	q.Set("include_adult", "false")
	q.Set("page", strconv.Itoa(1))
	if c.cfg.Region != "" {
		q.Set("region", c.cfg.Region)
	}
	return q
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]tmdbResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tmdb %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tmdb %s: unexpected status %s", path, resp.Status)
	}
	var body struct {
		Results []tmdbResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("tmdb %s: %w", path, err)
	}
	return body.Results, nil
}
