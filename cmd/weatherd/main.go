// Command weatherd serves the get_weather tool over the remote tool
// protocol. With server.http_addr set it also serves /healthz, /metrics
// and the protocol over WebSocket at /ws.
//
// Usage:
//
//	weatherd -config toolplan.toml
//	MCP_HOST=0.0.0.0 MCP_PORT=7001 weatherd
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	gateway "github.com/scttfrdmn/toolplan/adapter/http"
	"github.com/scttfrdmn/toolplan/adapter/local"
	"github.com/scttfrdmn/toolplan/config"
	"github.com/scttfrdmn/toolplan/observability"
	"github.com/scttfrdmn/toolplan/services/weather"
	"github.com/scttfrdmn/toolplan/tools"
)

const serviceName = "weatherd"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "weatherd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observability.ConfigureLogging(observability.LogConfig{
		Level:               observability.ParseLevel(cfg.Logging.Level),
		Structured:          cfg.Logging.Structured,
		IncludeTraceContext: cfg.Logging.IncludeTraceContext,
	})

	service := observability.Service{Name: serviceName, Version: version, Role: observability.RoleToolServer}
	if cfg.Telemetry.Enabled() {
		if _, err := observability.InitTracing(context.Background(), service, cfg.Telemetry); err != nil {
			return err
		}
	}

	var metrics *observability.ToolMetrics
	if cfg.Server.HTTPAddr != "" {
		if _, err := observability.InitMetrics(context.Background(), service); err != nil {
			return err
		}
		metrics, err = observability.NewToolMetrics(observability.GetMeter(serviceName), "toolplan.toolserver")
		if err != nil {
			return err
		}
	}

	tool, err := weather.CachedTool(weather.NewClient(), cfg.Server.CacheTTL.Duration)
	if err != nil {
		return err
	}
	registry := tools.NewRegistry(tools.WithLogger(logger))
	if err := registry.Register(tool); err != nil {
		return err
	}

	serverCfg := local.DefaultConfig()
	serverCfg.MaxConnections = cfg.Server.MaxConnections
	serverCfg.MaxFrameSize = cfg.Server.MaxFrameSize
	server, err := local.NewServer(serviceName, cfg.Server.Endpoint(), registry,
		local.WithConfig(serverCfg),
		local.WithLogger(logger),
		local.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		return err
	}
	logger.Info("weather tool server listening", "addr", server.Addr().String(), "cache_ttl", cfg.Server.CacheTTL.Duration)

	var gw *gateway.Gateway
	if cfg.Server.HTTPAddr != "" {
		gw, err = gateway.NewGateway(cfg.Server.HTTPAddr, server, gateway.WithLogger(logger), gateway.WithMetrics())
		if err != nil {
			return err
		}
		if err := gw.Start(); err != nil {
			return err
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if gw != nil {
		if err := gw.Stop(shutdownCtx); err != nil {
			logger.Warn("gateway shutdown failed", "error", err)
		}
	}
	if err := server.Stop(); err != nil {
		logger.Warn("server stop failed", "error", err)
	}
	if err := observability.ShutdownMetrics(shutdownCtx); err != nil {
		slog.Warn("metrics shutdown failed", "error", err)
	}
	if err := observability.Shutdown(shutdownCtx); err != nil {
		slog.Warn("tracing shutdown failed", "error", err)
	}
	return nil
}
