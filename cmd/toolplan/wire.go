package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/option"

	"github.com/scttfrdmn/toolplan/adapter/llm"
	"github.com/scttfrdmn/toolplan/adapter/remote"
	"github.com/scttfrdmn/toolplan/config"
	"github.com/scttfrdmn/toolplan/memory"
	"github.com/scttfrdmn/toolplan/middleware"
	"github.com/scttfrdmn/toolplan/services/gcal"
	"github.com/scttfrdmn/toolplan/services/imagegen"
	"github.com/scttfrdmn/toolplan/services/recommend"
	"github.com/scttfrdmn/toolplan/services/search"
	"github.com/scttfrdmn/toolplan/toolplan"
	"github.com/scttfrdmn/toolplan/tools"
	"github.com/scttfrdmn/toolplan/tools/builtin"
)

// closers collects resources released on exit.
type closers []io.Closer

func (c closers) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		_ = c[i].Close()
	}
}

func newLLM(ctx context.Context, cfg config.LLMConfig) (llm.LLM, io.Closer, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.APIKey == "" {
			return nil, nil, fmt.Errorf("openai provider requires an api key (OPENAI_API_KEY)")
		}
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		return llm.NewOpenAILLMWithConfig(clientCfg, cfg.Model), nil, nil
	case "gemini":
		model, err := llm.NewGeminiLLM(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		return model, model, nil
	case "bedrock":
		model, err := llm.NewBedrockLLM(ctx, llm.BedrockConfig{
			ModelID:     cfg.Model,
			Region:      cfg.Region,
			Profile:     cfg.Profile,
			EndpointURL: cfg.BaseURL,
		})
		if err != nil {
			return nil, nil, err
		}
		return model, nil, nil
	case "static":
		return &llm.Static{Reply: cfg.StaticReply}, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// newSources creates a client per configured remote tool server.
func newSources(cfg config.Config, logger *slog.Logger) ([]tools.RemoteSource, error) {
	sources := make([]tools.RemoteSource, 0, len(cfg.Remotes))
	for _, r := range cfg.Remotes {
		client, err := remote.NewClient(r.Name, r.Endpoint, r.Timeout.Duration,
			remote.WithMaxFrameSize(cfg.Server.MaxFrameSize),
			remote.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("remote %s: %w", r.Name, err)
		}
		sources = append(sources, tools.RemoteSource{
			Name:   r.Name,
			Client: client,
			Prefix: r.Prefix,
			Retry: &middleware.RetryConfig{
				MaxAttempts:       r.Retries,
				InitialBackoff:    200 * time.Millisecond,
				MaxBackoff:        2 * time.Second,
				BackoffMultiplier: 2,
			},
		})
	}
	return sources, nil
}

// newToolset builds the built-in tools whose services are configured.
// A service that fails to initialize is logged and left out.
func newToolset(ctx context.Context, cfg config.Config, session builtin.Session, model llm.LLM, logger *slog.Logger) []toolplan.Tool {
	deps := builtin.Deps{
		Session: session,
		Titles:  builtin.NewLLMTitleExtractor(model),
	}

	if cfg.Google.CredentialsFile != "" {
		cal, err := gcal.New(ctx, option.WithCredentialsFile(cfg.Google.CredentialsFile))
		if err != nil {
			logger.Warn("calendar disabled", "error", err)
		} else {
			deps.Calendar = cal.WithCalendarID(cfg.Google.CalendarID)
		}
	}

	if cfg.Google.CSEID != "" {
		searcher, err := search.New(ctx, search.Config{
			APIKey:   cfg.Google.APIKey,
			EngineID: cfg.Google.CSEID,
		})
		if err != nil {
			logger.Warn("web search disabled", "error", err)
		} else {
			deps.Searcher = searcher
		}
	}

	if cfg.TMDB.APIKey != "" {
		rec, err := recommend.New(recommend.Config{
			APIKey:   cfg.TMDB.APIKey,
			Language: cfg.TMDB.Language,
			Region:   cfg.TMDB.Region,
		}, nil)
		if err != nil {
			logger.Warn("recommendations disabled", "error", err)
		} else {
			deps.Recommender = rec
		}
	}

	if cfg.Images.Enabled {
		if cfg.Images.APIKey == "" {
			logger.Warn("image generation disabled", "error", "no api key")
		} else {
			deps.Images = imagegen.New(openai.NewClient(cfg.Images.APIKey), cfg.Images.Model)
		}
	}

	if cfg.Executor.SearchRate > 0 {
		capacity := int(cfg.Executor.SearchRate)
		if capacity < 1 {
			capacity = 1
		}
		deps.RateLimit = &middleware.RateLimiterConfig{
			Rate:     cfg.Executor.SearchRate,
			Capacity: capacity,
			Wait:     true,
		}
	}

	return builtin.NewToolset(deps)
}

// newHistory opens the configured conversation log.
func newHistory(ctx context.Context, cfg config.HistoryConfig, logger *slog.Logger) (memory.Log, io.Closer, error) {
	switch cfg.Backend {
	case "redis":
		log, err := memory.NewRedisLog(cfg.RedisURL,
			memory.WithTTL(cfg.TTL.Duration),
			memory.WithMaxMessages(cfg.MaxMessages),
		)
		if err != nil {
			return nil, nil, err
		}
		if err := log.Ping(ctx); err != nil {
			_ = log.Close()
			return nil, nil, fmt.Errorf("redis history unavailable: %w", err)
		}
		return log, log, nil
	case "sqlite":
		log, err := memory.NewSQLiteLog(cfg.SQLitePath, cfg.MaxMessages, memory.WithSQLiteLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return log, log, nil
	default:
		return memory.NewInMemoryLog(cfg.MaxMessages), nil, nil
	}
}
