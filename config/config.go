// Package config loads toolplan settings from a TOML file with
// environment overrides.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration written as a string ("3s", "10m") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the full configuration.
type Config struct {
	// Timezone is the IANA zone for the planner clock and naive event times.
	Timezone string `toml:"timezone"`

	Server    ServerConfig    `toml:"server"`
	Remotes   []RemoteConfig  `toml:"remote"`
	LLM       LLMConfig       `toml:"llm"`
	Executor  ExecutorConfig  `toml:"executor"`
	History   HistoryConfig   `toml:"history"`
	Google    GoogleConfig    `toml:"google"`
	TMDB      TMDBConfig      `toml:"tmdb"`
	Images    ImagesConfig    `toml:"images"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// ServerConfig configures the weather tool server.
type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	MaxConnections int      `toml:"max_connections"`
	MaxFrameSize   int      `toml:"max_frame_size"`
	CacheTTL       Duration `toml:"cache_ttl"`
	// HTTPAddr, when set, serves /healthz, /metrics and the protocol over
	// WebSocket at /ws.
	HTTPAddr string `toml:"http_addr"`
}

// Endpoint returns the tcp:// endpoint the server listens on.
func (s ServerConfig) Endpoint() string {
	return "tcp://" + net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// RemoteConfig is one remote tool server whose tools are merged in.
type RemoteConfig struct {
	Name     string   `toml:"name"`
	Endpoint string   `toml:"endpoint"`
	Prefix   string   `toml:"prefix"`
	Timeout  Duration `toml:"timeout"`
	// Retries is the number of discovery attempts.
	Retries int `toml:"retries"`
}

// LLMConfig selects the completion provider.
type LLMConfig struct {
	// Provider is openai, gemini, bedrock or static.
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
	Region   string `toml:"region"`
	Profile  string `toml:"profile"`
	// StaticReply is returned by the static provider.
	StaticReply string `toml:"static_reply"`
}

// ExecutorConfig bounds tool calls.
type ExecutorConfig struct {
	StepTimeout Duration `toml:"step_timeout"`
	// RefreshInterval rediscovers remote tools periodically when non-zero.
	RefreshInterval Duration `toml:"refresh_interval"`
	// BreakerThreshold opens a remote tool's circuit after that many
	// consecutive failures. Zero disables the breaker.
	BreakerThreshold int      `toml:"breaker_threshold"`
	BreakerRecovery  Duration `toml:"breaker_recovery"`
	// SearchRate limits web_search and generate_image calls per second.
	SearchRate float64 `toml:"search_rate"`
}

// HistoryConfig selects the conversation log.
type HistoryConfig struct {
	// Backend is memory, redis or sqlite.
	Backend        string   `toml:"backend"`
	RedisURL       string   `toml:"redis_url"`
	SQLitePath     string   `toml:"sqlite_path"`
	MaxMessages    int      `toml:"max_messages"`
	TTL            Duration `toml:"ttl"`
	WindowMessages int      `toml:"window_messages"`
	WindowChars    int      `toml:"window_chars"`
}

// GoogleConfig holds Google API credentials.
type GoogleConfig struct {
	APIKey string `toml:"api_key"`
	CSEID  string `toml:"cse_id"`
	// CredentialsFile authorizes the Calendar API.
	CredentialsFile string `toml:"credentials_file"`
	CalendarID      string `toml:"calendar_id"`
}

// TMDBConfig configures recommendations.
type TMDBConfig struct {
	APIKey   string `toml:"api_key"`
	Language string `toml:"language"`
	Region   string `toml:"region"`
}

// ImagesConfig configures image generation.
type ImagesConfig struct {
	Enabled bool   `toml:"enabled"`
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	Level               string `toml:"level"`
	Structured          bool   `toml:"structured"`
	IncludeTraceContext bool   `toml:"include_trace_context"`
}

// TelemetryConfig configures tracing export.
type TelemetryConfig struct {
	// OTLPEndpoint is a host:port for the OTLP gRPC trace exporter.
	OTLPEndpoint string `toml:"otlp_endpoint"`
	// OTLPInsecure disables TLS to the collector.
	OTLPInsecure bool `toml:"otlp_insecure"`
	// ConsoleTraces prints finished spans to stderr.
	ConsoleTraces bool `toml:"console_traces"`
	// SampleRatio is the fraction of new traces recorded. Spans whose
	// caller's trace is sampled are always recorded.
	SampleRatio float64 `toml:"sample_ratio"`
}

// Enabled reports whether any trace exporter is configured.
func (t TelemetryConfig) Enabled() bool {
	return t.OTLPEndpoint != "" || t.ConsoleTraces
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Timezone: "UTC",
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           7001,
			MaxConnections: 64,
			MaxFrameSize:   8 << 20,
			CacheTTL:       Duration{10 * time.Minute},
		},
		LLM: LLMConfig{
			Provider: "openai",
		},
		Executor: ExecutorConfig{
			StepTimeout:     Duration{30 * time.Second},
			BreakerRecovery: Duration{30 * time.Second},
		},
		History: HistoryConfig{
			Backend:        "memory",
			MaxMessages:    200,
			TTL:            Duration{7 * 24 * time.Hour},
			WindowMessages: 10,
			WindowChars:    4000,
		},
		Google: GoogleConfig{
			CalendarID: "primary",
		},
		TMDB: TMDBConfig{
			Language: "en-US",
		},
		Logging: LoggingConfig{
			Level:               "info",
			IncludeTraceContext: true,
		},
		Telemetry: TelemetryConfig{
			OTLPInsecure: true,
			SampleRatio:  1,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return Config{}, err
	}
	cfg.applyRemoteDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes TOML text over the defaults without environment overrides.
func Parse(data string) (Config, error) {
	cfg := Default()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed: %w", err)
	}
	cfg.applyRemoteDefaults()
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := lookup("OPENAI_API_KEY"); ok && v != "" {
		if c.LLM.Provider == "openai" && c.LLM.APIKey == "" {
			c.LLM.APIKey = v
		}
		if c.Images.APIKey == "" {
			c.Images.APIKey = v
		}
	}
	str("GOOGLE_API_KEY", &c.Google.APIKey)
	str("GOOGLE_CSE_ID", &c.Google.CSEID)
	str("TMDB_API_KEY", &c.TMDB.APIKey)
	str("TOOLPLAN_LOG_LEVEL", &c.Logging.Level)
	str("TOOLPLAN_TIMEZONE", &c.Timezone)
	str("MCP_HOST", &c.Server.Host)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)

	if v, ok := lookup("MCP_PORT"); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("MCP_PORT must be a number: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("REDIS_URL"); ok && strings.TrimSpace(v) != "" {
		c.History.Backend = "redis"
		c.History.RedisURL = strings.TrimSpace(v)
	}
	return nil
}

// applyRemoteDefaults fills per-remote defaults.
func (c *Config) applyRemoteDefaults() {
	for i := range c.Remotes {
		r := &c.Remotes[i]
		if r.Endpoint == "" {
			r.Endpoint = c.Server.Endpoint()
		}
		if r.Timeout.Duration == 0 {
			r.Timeout = Duration{10 * time.Second}
		}
		if r.Retries <= 0 {
			r.Retries = 1
		}
	}
}

// Location loads the configured time zone.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Validate checks the configuration for values that cannot work.
func (c Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Server.MaxFrameSize <= 0 {
		return fmt.Errorf("server max_frame_size must be positive")
	}

	names := make(map[string]bool, len(c.Remotes))
	for i, r := range c.Remotes {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("remote[%d] missing name", i)
		}
		if names[r.Name] {
			return fmt.Errorf("remote[%d] duplicate name %q", i, r.Name)
		}
		names[r.Name] = true
		if !validEndpoint(r.Endpoint) {
			return fmt.Errorf("remote[%d] endpoint %q must start with tcp://, unix://, ws:// or wss://", i, r.Endpoint)
		}
	}

	switch c.LLM.Provider {
	case "openai", "gemini", "bedrock", "static":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}

	switch c.History.Backend {
	case "memory":
	case "redis":
		if c.History.RedisURL == "" {
			return fmt.Errorf("history backend redis requires redis_url")
		}
	case "sqlite":
		if c.History.SQLitePath == "" {
			return fmt.Errorf("history backend sqlite requires sqlite_path")
		}
	default:
		return fmt.Errorf("unknown history backend %q", c.History.Backend)
	}

	if c.Executor.StepTimeout.Duration < 0 {
		return fmt.Errorf("executor step_timeout cannot be negative")
	}
	if c.Executor.SearchRate < 0 {
		return fmt.Errorf("executor search_rate cannot be negative")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample_ratio must be between 0 and 1")
	}
	return nil
}

func validEndpoint(endpoint string) bool {
	for _, scheme := range []string{"tcp://", "unix://", "ws://", "wss://"} {
		if strings.HasPrefix(endpoint, scheme) {
			return true
		}
	}
	return false
}
