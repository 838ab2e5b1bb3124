package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type fakeOpenMeteo struct {
	*httptest.Server
	geocodes  atomic.Int64
	forecasts atomic.Int64
}

func newFakeOpenMeteo(t *testing.T) *fakeOpenMeteo {
	t.Helper()
	f := &fakeOpenMeteo{}
	mux := http.NewServeMux()
	mux.HandleFunc("/geocode", func(w http.ResponseWriter, r *http.Request) {
		f.geocodes.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("name") == "Atlantis" {
			_, _ = w.Write([]byte(`{"generationtime_ms": 0.5}`))
			return
		}
		_, _ = w.Write([]byte(`{"results": [{"name": "Seoul", "latitude": 37.566, "longitude": 126.9784, "country": "South Korea"}]}`))
	})
	mux.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		f.forecasts.Add(1)
		if r.URL.Query().Get("current_weather") != "true" {
			http.Error(w, "missing current_weather", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"current_weather": {"temperature": 20.0, "windspeed": 3.5, "winddirection": 180, "weathercode": 61, "is_day": 1, "time": "2025-05-26T10:00"}}`))
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeOpenMeteo) client() *Client {
	fixed := time.Date(2025, 5, 26, 1, 0, 0, 0, time.UTC)
	return NewClient(
		WithEndpoints(f.URL+"/geocode", f.URL+"/forecast"),
		WithClock(func() time.Time { return fixed }),
	)
}

// ============================================
// Client
// ============================================

func TestLookupMetric(t *testing.T) {
	f := newFakeOpenMeteo(t)
	report, err := f.client().Lookup(context.Background(), "Seoul", "")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if report.Location != "Seoul" || report.Units != Metric {
		t.Errorf("unexpected report %+v", report)
	}
	if report.Temp != 20 || report.WindSpeed != 3.5 {
		t.Errorf("unexpected measurements %+v", report)
	}
	if report.ConditionsCode != 61 || report.Conditions != "rain" {
		t.Errorf("unexpected conditions %+v", report)
	}
	if report.FetchedAt != "2025-05-26T01:00:00Z" {
		t.Errorf("unexpected fetched_at %s", report.FetchedAt)
	}
}

func TestLookupImperial(t *testing.T) {
	f := newFakeOpenMeteo(t)
	report, err := f.client().Lookup(context.Background(), "Seoul", Imperial)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if report.Temp != 68 {
		t.Errorf("expected 68F, got %v", report.Temp)
	}
}

func TestLookupErrors(t *testing.T) {
	f := newFakeOpenMeteo(t)
	c := f.client()

	_, err := c.Lookup(context.Background(), "Atlantis", Metric)
	if _, ok := err.(*NotFoundError); !ok {
		t.Errorf("expected *NotFoundError, got %v", err)
	}

	if _, err := c.Lookup(context.Background(), "Seoul", "kelvin"); err == nil {
		t.Error("expected error for unknown units")
	}
}

// ============================================
// Tool
// ============================================

func TestTool(t *testing.T) {
	f := newFakeOpenMeteo(t)
	tool := Tool(f.client())

	res, err := tool.Execute(context.Background(), map[string]interface{}{"location": "Seoul"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}

	var report Report
	if err := json.Unmarshal([]byte(res.Output), &report); err != nil {
		t.Fatalf("output is not a report: %v", err)
	}
	if report.Location != "Seoul" {
		t.Errorf("unexpected location %q", report.Location)
	}

	res, _ = tool.Execute(context.Background(), map[string]interface{}{"location": "Atlantis"})
	if res.Success || res.Error != "City 'Atlantis' not found" {
		t.Errorf("expected not-found error result, got %+v", res)
	}
}

func TestCachedTool(t *testing.T) {
	f := newFakeOpenMeteo(t)
	tool, err := CachedTool(f.client(), time.Minute)
	if err != nil {
		t.Fatalf("CachedTool failed: %v", err)
	}

	for _, city := range []string{"Seoul", " seoul ", "SEOUL"} {
		res, err := tool.Execute(context.Background(), map[string]interface{}{"location": city})
		if err != nil || !res.Success {
			t.Fatalf("Execute(%q) failed: %v %+v", city, err, res)
		}
	}
	if got := f.forecasts.Load(); got != 1 {
		t.Errorf("expected one upstream forecast call, got %d", got)
	}
	if stats := tool.Stats(); stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("unexpected cache stats %+v", stats)
	}

	// Failures are not cached.
	for i := 0; i < 2; i++ {
		_, _ = tool.Execute(context.Background(), map[string]interface{}{"location": "Atlantis"})
	}
	if got := f.geocodes.Load(); got != 3 {
		t.Errorf("expected failed lookups to reach upstream each time, got %d geocodes", got)
	}
}
