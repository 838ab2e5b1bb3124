package recommend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu       sync.Mutex
	requests []*url.URL
}

func (r *recorder) add(u *url.URL) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, u)
}

func newTestClient(t *testing.T, status int) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.URL)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"results": [
			{"id": 1, "title": "Dune", "overview": "Sand."},
			{"id": 2, "name": "Severance", "overview": "Work."},
			{"id": 3}
		]}`))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{APIKey: "k", BaseURL: srv.URL, Region: "KR"}, srv.Client())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c.now = func() time.Time { return time.Date(2025, 5, 31, 12, 0, 0, 0, time.UTC) }
	return c, rec
}

func TestRecommendDiscoversRecentMovies(t *testing.T) {
	c, rec := newTestClient(t, http.StatusOK)

	cards, err := c.Recommend(context.Background(), "u1", []string{"movie"}, 5)
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if len(cards) != 3 {
		t.Fatalf("expected 3 cards, got %d", len(cards))
	}
	if cards[0].Title != "Dune" || cards[0].URL != "https://www.themoviedb.org/movie/1" {
		t.Errorf("unexpected first card %+v", cards[0])
	}
	if cards[1].Title != "Severance" || cards[2].Title != "(no title)" {
		t.Errorf("unexpected titles %q %q", cards[1].Title, cards[2].Title)
	}

	u := rec.requests[0]
	if u.Path != "/discover/movie" {
		t.Errorf("expected discover endpoint, got %s", u.Path)
	}
	if got := u.Query().Get("release_date.gte"); got != "2025-05-01" {
		t.Errorf("expected 30-day window start 2025-05-01, got %s", got)
	}
	if u.Query().Get("region") != "KR" {
		t.Errorf("expected region KR, got %s", u.Query().Get("region"))
	}
}

func TestRecommendLimitAndKeywords(t *testing.T) {
	c, rec := newTestClient(t, http.StatusOK)

	cards, err := c.Recommend(context.Background(), "u1", []string{"sci-fi", "tv"}, 4)
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if len(cards) != 4 {
		t.Fatalf("expected 4 cards, got %d", len(cards))
	}
	if cards[3].Type != KindTV {
		t.Errorf("expected the fourth card from tv discovery, got %s", cards[3].Type)
	}
	if rec.requests[0].Path != "/search/movie" || rec.requests[0].Query().Get("query") != "sci-fi" {
		t.Errorf("expected keyword search first, got %s", rec.requests[0])
	}
	if rec.requests[1].Path != "/discover/tv" {
		t.Errorf("expected tv discovery second, got %s", rec.requests[1].Path)
	}
}

func TestRecommendHTTPError(t *testing.T) {
	c, _ := newTestClient(t, http.StatusUnauthorized)
	if _, err := c.Recommend(context.Background(), "u1", []string{"movie"}, 5); err == nil {
		t.Fatal("expected an error")
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Error("expected error without api key")
	}
}
