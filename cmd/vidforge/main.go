// Command vidforge is an MCP server for asynchronous video and image
// generation. It exposes Runway and Luma generation tools plus an LLM-backed
// prompt enhancer over stdio, and serves Prometheus metrics and health
// endpoints on an optional side listener.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/vidforge/vidforge/internal/config"
	"github.com/vidforge/vidforge/internal/enhance"
	"github.com/vidforge/vidforge/internal/health"
	"github.com/vidforge/vidforge/internal/history"
	"github.com/vidforge/vidforge/internal/mcpserver"
	"github.com/vidforge/vidforge/internal/observe"
	"github.com/vidforge/vidforge/internal/poll"
	"github.com/vidforge/vidforge/internal/resilience"
	"github.com/vidforge/vidforge/pkg/provider/video"
	"github.com/vidforge/vidforge/pkg/provider/video/luma"
	"github.com/vidforge/vidforge/pkg/provider/video/runway"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	metricsAddr := flag.String("metrics-addr", "", "override the metrics/health listen address")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	// A missing config file is fine: MCP hosts typically inject everything
	// through the environment.
	haveConfigFile := true
	cfg, err := config.Load(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vidforge: %v\n", err)
			return 1
		}
		haveConfigFile = false
		cfg = &config.Config{}
		config.ApplyEnv(cfg)
		if err := config.Validate(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "vidforge: %v\n", err)
			return 1
		}
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// Stderr only: stdout carries the MCP protocol stream. The LevelVar lets
	// the config watcher adjust verbosity without a restart.
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("vidforge starting",
		"version", version,
		"config", *configPath,
		"metrics_addr", cfg.Server.MetricsAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Generation backends ───────────────────────────────────────────────────
	runwayClient, err := buildRunway(cfg.Providers.Runway)
	if err != nil {
		slog.Error("failed to build Runway client", "err", err)
		return 1
	}
	lumaClient, err := buildLuma(cfg.Providers.Luma)
	if err != nil {
		slog.Error("failed to build Luma client", "err", err)
		return 1
	}
	if runwayClient == nil && lumaClient == nil {
		slog.Warn("no generation backend configured; only enhance_prompt will be available")
	}

	// ── Prompt enhancer ───────────────────────────────────────────────────────
	enhancer, err := buildEnhancer(cfg.Providers.Enhancer, metrics)
	if err != nil {
		slog.Error("failed to build prompt enhancer", "err", err)
		return 1
	}

	// ── Job history (optional) ────────────────────────────────────────────────
	var store *history.Store
	var recorder poll.Recorder
	if cfg.History.PostgresDSN != "" {
		store, err = history.NewStore(ctx, cfg.History.PostgresDSN)
		if err != nil {
			slog.Error("failed to open history store", "err", err)
			return 1
		}
		defer store.Close()
		recorder = store
		slog.Info("job history enabled")
	}

	// ── Poll session registry ─────────────────────────────────────────────────
	maxSessions := cfg.Polling.MaxSessions
	if maxSessions <= 0 {
		maxSessions = poll.DefaultMaxSessions
	}
	registry := poll.NewRegistry(poll.RegistryConfig{
		MaxSessions: int64(maxSessions),
		Options: poll.Options{
			Interval:    cfg.Polling.Interval,
			MaxAttempts: cfg.Polling.MaxAttempts,
		},
		Recorder: recorder,
		Metrics:  metrics,
	})

	// ── MCP server ────────────────────────────────────────────────────────────
	srvCfg := mcpserver.Config{
		Version:     version,
		Enhancer:    enhancer,
		Registry:    registry,
		MaxAttempts: cfg.Polling.MaxAttempts,
		Metrics:     metrics,
	}
	if runwayClient != nil {
		srvCfg.Runway = runwayClient
		srvCfg.RunwayFetcher = resilience.NewBreakerFetcher(runwayClient,
			resilience.CircuitBreakerConfig{Name: "runway-status", Metrics: metrics})
	}
	if lumaClient != nil {
		srvCfg.Luma = lumaClient
		srvCfg.LumaFetcher = resilience.NewBreakerFetcher(lumaClient,
			resilience.CircuitBreakerConfig{Name: "luma-status", Metrics: metrics})
	}
	srv, err := mcpserver.NewServer(srvCfg)
	if err != nil {
		slog.Error("failed to build MCP server", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if haveConfigFile {
		watcher, err := config.NewWatcher(*configPath, func(_, _ *config.Config, d config.Diff) {
			if d.LogLevelChanged {
				logLevel.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level updated", "level", d.NewLogLevel)
			}
			if d.PollingChanged {
				slog.Warn("polling settings changed; restart required to apply")
			}
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer watcher.Stop()
		}
	}

	// ── Serve ─────────────────────────────────────────────────────────────────
	// The stdio MCP server and the diagnostics listener run under one
	// errgroup; either failing (or the signal context ending) brings both
	// down.
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.MetricsAddr != "" {
		checkers := []health.Checker{health.SessionHeadroom(registry, maxSessions)}
		if store != nil {
			checkers = append(checkers, health.Database("history", store))
		}
		diag := newDiagnostics(cfg.Server.MetricsAddr, metrics, checkers)
		g.Go(func() error {
			slog.Info("diagnostics listening", "addr", diag.Addr)
			if err := diag.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("diagnostics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := diag.Shutdown(sctx); err != nil {
				slog.Warn("diagnostics shutdown error", "err", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		// When the host closes the stdio stream, bring the diagnostics
		// listener down too.
		defer stop()
		slog.Info("serving MCP over stdio — press Ctrl+C to shut down")
		return srv.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	// Cancel any in-flight poll sessions and wait for their terminal outcomes
	// to be recorded.
	stop()
	done := make(chan struct{})
	go func() {
		registry.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		slog.Warn("timed out waiting for poll sessions to stop")
	}

	slog.Info("goodbye")
	return 0
}

// buildRunway constructs the Runway client, or nil when no API key is set.
func buildRunway(entry config.ProviderEntry) (*runway.Client, error) {
	if entry.APIKey == "" {
		return nil, nil
	}
	var opts []runway.Option
	if entry.BaseURL != "" {
		opts = append(opts, runway.WithBaseURL(entry.BaseURL))
	}
	if entry.Model != "" {
		opts = append(opts, runway.WithModel(entry.Model))
	}
	return runway.New(entry.APIKey, opts...)
}

// buildLuma constructs the Luma client, or nil when no API key is set.
func buildLuma(entry config.ProviderEntry) (*luma.Client, error) {
	if entry.APIKey == "" {
		return nil, nil
	}
	var opts []luma.Option
	if entry.BaseURL != "" {
		opts = append(opts, luma.WithBaseURL(entry.BaseURL))
	}
	if entry.Model != "" {
		opts = append(opts, luma.WithModel(entry.Model))
	}
	// The key the provider files upscale results under is unverified against
	// live behaviour, so it stays configurable.
	if key := optString(entry.Options, "upscale_asset_key"); key != "" {
		opts = append(opts, luma.WithAssetKey(video.ResultUpscale, key))
	}
	return luma.New(entry.APIKey, opts...)
}

// buildEnhancer constructs the prompt enhancer, or nil when no provider is
// configured. The primary LLM sits behind a circuit breaker; an optional
// fallback provider can be declared in the entry's options.
func buildEnhancer(entry config.ProviderEntry, metrics *observe.Metrics) (*enhance.Enhancer, error) {
	if entry.Name == "" {
		return nil, nil
	}

	reg := config.DefaultRegistry()
	primary, err := reg.CreateEnhancer(entry)
	if err != nil {
		return nil, err
	}

	fallback := resilience.NewLLMFallback(primary, entry.Name,
		resilience.CircuitBreakerConfig{Metrics: metrics})
	if fbName := optString(entry.Options, "fallback_name"); fbName != "" {
		fbProvider, err := reg.CreateEnhancer(config.ProviderEntry{
			Name:    fbName,
			APIKey:  optString(entry.Options, "fallback_api_key"),
			BaseURL: optString(entry.Options, "fallback_base_url"),
			Model:   optString(entry.Options, "fallback_model"),
		})
		if err != nil {
			return nil, fmt.Errorf("build fallback enhancer %q: %w", fbName, err)
		}
		fallback.AddFallback(fbName, fbProvider)
		slog.Info("enhancer fallback configured", "provider", fbName)
	}

	return enhance.New(enhance.Config{Provider: fallback, Metrics: metrics})
}

// newDiagnostics builds the HTTP server that exposes /metrics, /healthz, and
// /readyz on addr.
func newDiagnostics(addr string, metrics *observe.Metrics, checkers []health.Checker) *http.Server {
	mux := http.NewServeMux()
	health.New(version, checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}
