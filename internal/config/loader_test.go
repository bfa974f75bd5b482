package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  log_level: info
  metrics_addr: ":9090"
providers:
  runway:
    api_key: rw-key
    model: gen4_turbo
  luma:
    api_key: luma-key
  enhancer:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
polling:
  interval: 5s
  max_attempts: 60
  max_sessions: 32
history:
  postgres_dsn: "postgres://localhost:5432/vidforge"
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("Server.LogLevel = %q, want %q", cfg.Server.LogLevel, LogInfo)
	}
	if cfg.Server.MetricsAddr != ":9090" {
		t.Errorf("Server.MetricsAddr = %q, want :9090", cfg.Server.MetricsAddr)
	}
	if cfg.Providers.Runway.APIKey != "rw-key" {
		t.Errorf("Providers.Runway.APIKey = %q, want rw-key", cfg.Providers.Runway.APIKey)
	}
	if cfg.Providers.Enhancer.Name != "openai" {
		t.Errorf("Providers.Enhancer.Name = %q, want openai", cfg.Providers.Enhancer.Name)
	}
	if cfg.Polling.Interval != 5*time.Second {
		t.Errorf("Polling.Interval = %v, want 5s", cfg.Polling.Interval)
	}
	if cfg.Polling.MaxAttempts != 60 {
		t.Errorf("Polling.MaxAttempts = %d, want 60", cfg.Polling.MaxAttempts)
	}
	if cfg.History.PostgresDSN == "" {
		t.Error("History.PostgresDSN is empty, want DSN")
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	yaml := `
server:
  log_level: info
  listen_addr: ":8080"
`
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("LoadFromReader() with unknown field succeeded, want error")
	}
}

func TestLoadFromReader_Empty(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader(empty) error = %v", err)
	}
	if cfg.Polling.Interval != 0 {
		t.Errorf("Polling.Interval = %v, want 0 (defaults applied later)", cfg.Polling.Interval)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid empty config",
			mutate: func(c *Config) {},
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Server.LogLevel = "verbose" },
			wantErr: "server.log_level",
		},
		{
			name:    "negative interval",
			mutate:  func(c *Config) { c.Polling.Interval = -time.Second },
			wantErr: "polling.interval",
		},
		{
			name:    "negative max attempts",
			mutate:  func(c *Config) { c.Polling.MaxAttempts = -1 },
			wantErr: "polling.max_attempts",
		},
		{
			name:    "negative max sessions",
			mutate:  func(c *Config) { c.Polling.MaxSessions = -5 },
			wantErr: "polling.max_sessions",
		},
		{
			name: "hosted enhancer without key",
			mutate: func(c *Config) {
				c.Providers.Enhancer = ProviderEntry{Name: "mistral", Model: "mistral-small"}
			},
			wantErr: "providers.enhancer.api_key",
		},
		{
			name: "local enhancer without key",
			mutate: func(c *Config) {
				c.Providers.Enhancer = ProviderEntry{Name: "ollama", Model: "llama3"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("RUNWAY_API_KEY", "env-runway")
	t.Setenv("LUMALABS_API_KEY", "env-luma")
	t.Setenv("OPENAI_API_KEY", "env-openai")

	cfg := &Config{}
	cfg.Providers.Runway.APIKey = "file-runway"
	cfg.Providers.Enhancer.Name = "openai"

	ApplyEnv(cfg)

	if cfg.Providers.Runway.APIKey != "env-runway" {
		t.Errorf("Runway.APIKey = %q, want env-runway", cfg.Providers.Runway.APIKey)
	}
	if cfg.Providers.Luma.APIKey != "env-luma" {
		t.Errorf("Luma.APIKey = %q, want env-luma", cfg.Providers.Luma.APIKey)
	}
	if cfg.Providers.Enhancer.APIKey != "env-openai" {
		t.Errorf("Enhancer.APIKey = %q, want env-openai", cfg.Providers.Enhancer.APIKey)
	}
}

func TestApplyEnv_EnhancerKeyMatchesProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-openai")

	cfg := &Config{}
	cfg.Providers.Enhancer.Name = "ollama"
	ApplyEnv(cfg)

	if cfg.Providers.Enhancer.APIKey != "" {
		t.Errorf("Enhancer.APIKey = %q, want empty (OPENAI_API_KEY should not apply to ollama)", cfg.Providers.Enhancer.APIKey)
	}
}
