package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	GitHub        GitHubConfig        `mapstructure:"github"`
	Retry         RetryConfig         `mapstructure:"retry"`
	Poller        PollerConfig        `mapstructure:"poller"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Store         StoreConfig         `mapstructure:"store"`
	Log           LogConfig           `mapstructure:"log"`
}

type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	APIKey       string        `mapstructure:"api_key"`
	EnableAuth   bool          `mapstructure:"enable_auth"`

	// AllowedOrigins lists the origins accepted on websocket upgrades.
	// Empty means same-origin only; "*" accepts any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type GitHubConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Token          string        `mapstructure:"token"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// RetryConfig controls the backoff applied to every GitHub call.
// These values bound upstream call volume, so tune them against the
// API rate limit rather than for latency.
type RetryConfig struct {
	MaxRetries  int           `mapstructure:"max_retries"`
	InitialWait time.Duration `mapstructure:"initial_wait"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

type PollerConfig struct {
	MaxRepositories int           `mapstructure:"max_repositories"`
	FetchIterations int           `mapstructure:"fetch_iterations"`
	MaxRunsPerRepo  int           `mapstructure:"max_runs_per_repo"`
	RetryWait       time.Duration `mapstructure:"retry_wait"`
	IterationWait   time.Duration `mapstructure:"iteration_wait"`
}

type ObservabilityConfig struct {
	EnableMetrics   bool   `mapstructure:"enable_metrics"`
	MetricsPath     string `mapstructure:"metrics_path"`
	HealthCheckPath string `mapstructure:"health_check_path"`
	ReadinessPath   string `mapstructure:"readiness_path"`
}

type StoreConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	MaxEvents int    `mapstructure:"max_events"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// maxPageSize is the largest per_page value the GitHub REST API accepts
const maxPageSize = 100

// flagKeys maps command line flags onto configuration keys
var flagKeys = map[string]string{
	"port":      "server.port",
	"address":   "server.address",
	"log-level": "log.level",
}

// Load reads configuration from environment variables, an optional config
// file and optional command line flags
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("ACTIONBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("github.token", "ACTIONBOARD_GITHUB_TOKEN", "GITHUB_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind github token env: %w", err)
	}

	// Config file (optional)
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", "127.0.0.1")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.ping_interval", 15*time.Second)
	v.SetDefault("server.enable_auth", false)
	v.SetDefault("server.allowed_origins", []string{})

	// GitHub defaults
	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("github.request_timeout", 30*time.Second)
	v.SetDefault("github.user_agent", "actionboard")

	// Retry defaults
	v.SetDefault("retry.max_retries", 10)
	v.SetDefault("retry.initial_wait", 1*time.Second)
	v.SetDefault("retry.multiplier", 1.5)

	// Poller defaults
	v.SetDefault("poller.max_repositories", 5)
	v.SetDefault("poller.fetch_iterations", 2)
	v.SetDefault("poller.max_runs_per_repo", 2)
	v.SetDefault("poller.retry_wait", 60*time.Second)
	v.SetDefault("poller.iteration_wait", 30*time.Second)

	// Observability defaults
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.metrics_path", "/metrics")
	v.SetDefault("observability.health_check_path", "/health")
	v.SetDefault("observability.readiness_path", "/ready")

	// Store defaults
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.path", "")
	v.SetDefault("store.max_events", 1000)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
}

func (c *Config) Validate() error {
	// GitHub validation
	if c.GitHub.Token == "" {
		return fmt.Errorf("github.token is required")
	}
	if c.GitHub.BaseURL == "" {
		return fmt.Errorf("github.base_url is required")
	}
	if c.GitHub.RequestTimeout < 0 {
		return fmt.Errorf("github.request_timeout must be >= 0")
	}

	// Retry validation
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0")
	}
	if c.Retry.InitialWait < 0 {
		return fmt.Errorf("retry.initial_wait must be >= 0")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be >= 1")
	}

	// Poller validation
	if c.Poller.MaxRepositories < 1 || c.Poller.MaxRepositories > maxPageSize {
		return fmt.Errorf("poller.max_repositories must be between 1 and %d", maxPageSize)
	}
	if c.Poller.MaxRunsPerRepo < 1 || c.Poller.MaxRunsPerRepo > maxPageSize {
		return fmt.Errorf("poller.max_runs_per_repo must be between 1 and %d", maxPageSize)
	}
	if c.Poller.FetchIterations < 1 {
		return fmt.Errorf("poller.fetch_iterations must be >= 1")
	}
	if c.Poller.RetryWait < 0 {
		return fmt.Errorf("poller.retry_wait must be >= 0")
	}
	if c.Poller.IterationWait < 0 {
		return fmt.Errorf("poller.iteration_wait must be >= 0")
	}

	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.EnableAuth && c.Server.APIKey == "" {
		return fmt.Errorf("server.api_key is required when server.enable_auth is true")
	}
	if c.Server.PingInterval <= 0 {
		return fmt.Errorf("server.ping_interval must be > 0")
	}

	// Store validation
	if c.Store.Enabled && c.Store.MaxEvents < 1 {
		return fmt.Errorf("store.max_events must be >= 1 when store is enabled")
	}

	// Log validation
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be either 'json' or 'text'")
	}

	return nil
}
