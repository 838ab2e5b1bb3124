// Package weather looks up current conditions from Open-Meteo and exposes
// them as the get_weather tool served by the weather tool server.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/scttfrdmn/toolplan/middleware"
	"github.com/scttfrdmn/toolplan/toolplan"
)

// Open-Meteo endpoints.
const (
	DefaultGeocodeURL  = "https://geocoding-api.open-meteo.com/v1/search"
	DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"
)

// ToolName is the name the weather tool is served under.
const ToolName = "get_weather"

// Units.
const (
	Metric   = "metric"
	Imperial = "imperial"
)

// DefaultCacheTTL is how long a report is reused for the same arguments.
const DefaultCacheTTL = 10 * time.Minute

// NotFoundError is returned when geocoding finds no match.
type NotFoundError struct {
	City string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("City '%s' not found", e.City)
}

// Place is a geocoded city.
type Place struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country,omitempty"`
}

// Current is the current_weather block of a forecast response.
type Current struct {
	Temperature   float64 `json:"temperature"`
	WindSpeed     float64 `json:"windspeed"`
	WindDirection float64 `json:"winddirection"`
	WeatherCode   int     `json:"weathercode"`
	IsDay         int     `json:"is_day"`
	Time          string  `json:"time"`
}

// Report is the get_weather result.
type Report struct {
	Location       string  `json:"location"`
	Units          string  `json:"units"`
	Temp           float64 `json:"temp"`
	WindSpeed      float64 `json:"windspeed"`
	ConditionsCode int     `json:"conditions_code"`
	Conditions     string  `json:"conditions"`
	FetchedAt      string  `json:"fetched_at"`
}

// Client talks to Open-Meteo.
type Client struct {
	httpClient  *http.Client
	geocodeURL  string
	forecastURL string
	now         func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithEndpoints overrides the geocoding and forecast URLs.
func WithEndpoints(geocodeURL, forecastURL string) Option {
	return func(c *Client) {
		c.geocodeURL = geocodeURL
		c.forecastURL = forecastURL
	}
}

// WithClock sets the clock used for fetched_at.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates an Open-Meteo client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 7 * time.Second},
		geocodeURL:  DefaultGeocodeURL,
		forecastURL: DefaultForecastURL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Geocode resolves a city name to coordinates.
func (c *Client) Geocode(ctx context.Context, city string) (*Place, error) {
	q := url.Values{}
	q.Set("name", city)
	q.Set("count", "1")
	q.Set("language", "en")

	var body struct {
		Results []Place `json:"results"`
	}
	if err := c.getJSON(ctx, c.geocodeURL, q, &body); err != nil {
		return nil, fmt.Errorf("geocoding: %w", err)
	}
	if len(body.Results) == 0 {
		return nil, &NotFoundError{City: city}
	}
	return &body.Results[0], nil
}

// Current fetches the current weather at a coordinate, in metric units.
func (c *Client) Current(ctx context.Context, lat, lon float64) (*Current, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("current_weather", "true")

	var body struct {
		CurrentWeather *Current `json:"current_weather"`
	}
	if err := c.getJSON(ctx, c.forecastURL, q, &body); err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}
	if body.CurrentWeather == nil {
		return nil, fmt.Errorf("forecast: response has no current_weather")
	}
	return body.CurrentWeather, nil
}

// Lookup geocodes city and reports its current weather in units.
func (c *Client) Lookup(ctx context.Context, city, units string) (*Report, error) {
	switch units {
	case "":
		units = Metric
	case Metric, Imperial:
	default:
		return nil, fmt.Errorf("units must be %q or %q, got %q", Metric, Imperial, units)
	}

	place, err := c.Geocode(ctx, city)
	if err != nil {
		return nil, err
	}
	cur, err := c.Current(ctx, place.Latitude, place.Longitude)
	if err != nil {
		return nil, err
	}

	temp := cur.Temperature
	if units == Imperial {
		temp = temp*9/5 + 32
	}
	return &Report{
		Location:       place.Name,
		Units:          units,
		Temp:           math.Round(temp*100) / 100,
		WindSpeed:      cur.WindSpeed,
		ConditionsCode: cur.WeatherCode,
		Conditions:     Describe(cur.WeatherCode),
		FetchedAt:      c.now().UTC().Format(time.RFC3339),
	}, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, q url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Describe returns the WMO weather interpretation for code.
func Describe(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 3:
		return "partly cloudy"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67, code >= 80 && code <= 82:
		return "rain"
	case code >= 71 && code <= 77, code == 85 || code == 86:
		return "snow"
	case code >= 95:
		return "thunderstorm"
	default:
		return "unknown"
	}
}

// Tool returns the get_weather tool. Its output is the JSON-encoded Report.
func Tool(c *Client) toolplan.Tool {
	spec := toolplan.ToolSpec{
		Name:        ToolName,
		Description: "Look up the current temperature and conditions for a city.",
		Parameters: []toolplan.ParamSpec{
			{Name: "location", Type: toolplan.TypeString, Required: true, Description: "City name in English"},
			{Name: "units", Type: toolplan.TypeString, Enum: []string{Metric, Imperial}, Default: Metric},
		},
	}
	return toolplan.NewFuncTool(spec, func(ctx context.Context, params map[string]interface{}) (*toolplan.ToolResult, error) {
		city := strings.TrimSpace(toolplan.StringParam(params, "location", ""))
		if city == "" {
			return toolplan.NewToolError("location cannot be empty"), nil
		}
		report, err := c.Lookup(ctx, city, toolplan.StringParam(params, "units", Metric))
		if err != nil {
			return toolplan.NewToolError(err.Error()), nil
		}
		data, err := json.Marshal(report)
		if err != nil {
			return nil, err
		}
		return toolplan.NewToolResult(string(data)), nil
	})
}

// CachedTool returns Tool(c) behind a result cache with the given TTL.
// Arguments are normalized so "Seoul" and " seoul " share an entry.
func CachedTool(c *Client, ttl time.Duration) (*middleware.CachingDecorator, error) {
	cfg := middleware.DefaultCachingConfig()
	cfg.DefaultTTL = ttl
	cfg.KeyGenerator = func(tool string, params map[string]interface{}) string {
		units := toolplan.StringParam(params, "units", Metric)
		if units == "" {
			units = Metric
		}
		city := strings.ToLower(strings.TrimSpace(toolplan.StringParam(params, "location", "")))
		return tool + "|" + city + "|" + units
	}
	return middleware.NewCachingDecorator(Tool(c), cfg)
}
