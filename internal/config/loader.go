package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidEnhancerNames lists known enhancer provider names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidEnhancerNames = []string{
	"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// enhancerKeyEnv maps enhancer provider names to the environment variable
// conventionally holding their API key.
var enhancerKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"deepseek":  "DEEPSEEK_API_KEY",
	"mistral":   "MISTRAL_API_KEY",
	"groq":      "GROQ_API_KEY",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides,
// and validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays API keys from the process environment onto cfg.
// Environment variables always win over values from the YAML file, so
// credentials never have to live on disk.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("RUNWAY_API_KEY"); v != "" {
		cfg.Providers.Runway.APIKey = v
	}
	if v := os.Getenv("LUMALABS_API_KEY"); v != "" {
		cfg.Providers.Luma.APIKey = v
	}
	if env, ok := enhancerKeyEnv[cfg.Providers.Enhancer.Name]; ok {
		if v := os.Getenv(env); v != "" {
			cfg.Providers.Enhancer.APIKey = v
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Generation backends need credentials to be usable.
	if cfg.Providers.Runway.APIKey == "" {
		slog.Warn("providers.runway.api_key is empty; Runway tools will be unavailable")
	}
	if cfg.Providers.Luma.APIKey == "" {
		slog.Warn("providers.luma.api_key is empty; Luma tools will be unavailable")
	}

	// Enhancer
	if name := cfg.Providers.Enhancer.Name; name != "" {
		if !slices.Contains(ValidEnhancerNames, name) {
			slog.Warn("unknown enhancer provider name — may be a typo or third-party provider",
				"name", name,
				"known", ValidEnhancerNames,
			)
		}
		if cfg.Providers.Enhancer.APIKey == "" && !isLocalEnhancer(name) {
			errs = append(errs, fmt.Errorf("providers.enhancer.api_key is required for provider %q", name))
		}
	} else {
		slog.Warn("providers.enhancer is not configured; the enhance_prompt tool will be unavailable")
	}

	// Polling
	if cfg.Polling.Interval < 0 {
		errs = append(errs, fmt.Errorf("polling.interval %s is negative", cfg.Polling.Interval))
	}
	if cfg.Polling.Interval != 0 && cfg.Polling.Interval < 100*time.Millisecond {
		slog.Warn("polling.interval is very short; upstream APIs may rate-limit status fetches",
			"interval", cfg.Polling.Interval,
		)
	}
	if cfg.Polling.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("polling.max_attempts %d is negative", cfg.Polling.MaxAttempts))
	}
	if cfg.Polling.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("polling.max_sessions %d is negative", cfg.Polling.MaxSessions))
	}

	// History
	if cfg.History.PostgresDSN == "" {
		slog.Warn("history.postgres_dsn is empty; job history will not be recorded")
	}

	return errors.Join(errs...)
}

// isLocalEnhancer reports whether name refers to a provider that runs
// locally and therefore needs no API key.
func isLocalEnhancer(name string) bool {
	switch name {
	case "ollama", "llamacpp", "llamafile":
		return true
	}
	return false
}
