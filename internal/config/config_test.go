package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         3000,
			PingInterval: 15 * time.Second,
		},
		GitHub: GitHubConfig{
			BaseURL: "https://api.github.com",
			Token:   "token",
		},
		Retry: RetryConfig{
			MaxRetries:  10,
			InitialWait: time.Second,
			Multiplier:  1.5,
		},
		Poller: PollerConfig{
			MaxRepositories: 5,
			FetchIterations: 2,
			MaxRunsPerRepo:  2,
			RetryWait:       60 * time.Second,
			IterationWait:   30 * time.Second,
		},
		Log: LogConfig{Format: "json"},
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
	}{
		{
			name: "token from GITHUB_TOKEN",
			envVars: map[string]string{
				"GITHUB_TOKEN": "test-token",
			},
			wantErr: false,
		},
		{
			name: "token from prefixed env",
			envVars: map[string]string{
				"ACTIONBOARD_GITHUB_TOKEN": "test-token",
			},
			wantErr: false,
		},
		{
			name:    "missing token",
			envVars: map[string]string{},
			wantErr: true,
		},
		{
			name: "invalid max repositories",
			envVars: map[string]string{
				"GITHUB_TOKEN":                        "test-token",
				"ACTIONBOARD_POLLER_MAX_REPOSITORIES": "0",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear env
			os.Clearenv()

			// Set test env vars
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Load("", nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr && cfg == nil {
				t.Error("Load() returned nil config")
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	os.Clearenv()
	t.Setenv("GITHUB_TOKEN", "test-token")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.GitHub.BaseURL != "https://api.github.com" {
		t.Errorf("expected BaseURL=https://api.github.com, got %s", cfg.GitHub.BaseURL)
	}
	if cfg.Retry.MaxRetries != 10 {
		t.Errorf("expected MaxRetries=10, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.InitialWait != time.Second {
		t.Errorf("expected InitialWait=1s, got %v", cfg.Retry.InitialWait)
	}
	if cfg.Retry.Multiplier != 1.5 {
		t.Errorf("expected Multiplier=1.5, got %v", cfg.Retry.Multiplier)
	}
	if cfg.Poller.MaxRepositories != 5 {
		t.Errorf("expected MaxRepositories=5, got %d", cfg.Poller.MaxRepositories)
	}
	if cfg.Poller.FetchIterations != 2 {
		t.Errorf("expected FetchIterations=2, got %d", cfg.Poller.FetchIterations)
	}
	if cfg.Poller.MaxRunsPerRepo != 2 {
		t.Errorf("expected MaxRunsPerRepo=2, got %d", cfg.Poller.MaxRunsPerRepo)
	}
	if cfg.Poller.RetryWait != 60*time.Second {
		t.Errorf("expected RetryWait=60s, got %v", cfg.Poller.RetryWait)
	}
	if cfg.Poller.IterationWait != 30*time.Second {
		t.Errorf("expected IterationWait=30s, got %v", cfg.Poller.IterationWait)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("expected Port=3000, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected Log.Level=info, got %s", cfg.Log.Level)
	}
}

func TestLoadConfigFile(t *testing.T) {
	os.Clearenv()
	t.Setenv("GITHUB_TOKEN", "test-token")

	path := filepath.Join(t.TempDir(), "actionboard.yaml")
	content := []byte("poller:\n  iteration_wait: 5s\n  fetch_iterations: 3\nretry:\n  max_retries: 4\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Poller.IterationWait != 5*time.Second {
		t.Errorf("expected IterationWait=5s, got %v", cfg.Poller.IterationWait)
	}
	if cfg.Poller.FetchIterations != 3 {
		t.Errorf("expected FetchIterations=3, got %d", cfg.Poller.FetchIterations)
	}
	if cfg.Retry.MaxRetries != 4 {
		t.Errorf("expected MaxRetries=4, got %d", cfg.Retry.MaxRetries)
	}
}

func TestLoadFlags(t *testing.T) {
	os.Clearenv()
	t.Setenv("GITHUB_TOKEN", "test-token")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 0, "")
	if err := flags.Parse([]string{"--port", "8081"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 8081 {
		t.Errorf("expected Port=8081, got %d", cfg.Server.Port)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "zero retries allowed",
			mutate:  func(c *Config) { c.Retry.MaxRetries = 0 },
			wantErr: false,
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Retry.MaxRetries = -1 },
			wantErr: true,
		},
		{
			name:    "shrinking multiplier",
			mutate:  func(c *Config) { c.Retry.Multiplier = 0.5 },
			wantErr: true,
		},
		{
			name:    "runs per repo above page size",
			mutate:  func(c *Config) { c.Poller.MaxRunsPerRepo = 101 },
			wantErr: true,
		},
		{
			name:    "no fetch iterations",
			mutate:  func(c *Config) { c.Poller.FetchIterations = 0 },
			wantErr: true,
		},
		{
			name:    "auth without key",
			mutate:  func(c *Config) { c.Server.EnableAuth = true },
			wantErr: true,
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
