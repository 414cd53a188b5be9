// Package config loads server settings from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nadmax/nightlies/internal/github"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	StrategyHeuristic  = "heuristic"
	StrategyStructured = "structured"
)

// ErrMissingToken is reported when no CI read token is configured. The server still starts and answers
// every status request with 503.
var ErrMissingToken = errors.New("github token is not configured")

type Config struct {
	GitHub     GitHubConfig     `mapstructure:"github"`
	Server     ServerConfig     `mapstructure:"server"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Log        LogConfig        `mapstructure:"log"`
}

type GitHubConfig struct {
	Token   string        `mapstructure:"token"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type CacheConfig struct {
	Backend      string        `mapstructure:"backend"`
	RedisAddr    string        `mapstructure:"redis_addr"`
	PostgresDSN  string        `mapstructure:"postgres_dsn"`
	Key          string        `mapstructure:"key"`
	ActiveTTL    time.Duration `mapstructure:"active_ttl"`
	IdleTTL      time.Duration `mapstructure:"idle_ttl"`
	Retention    time.Duration `mapstructure:"retention"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type FetchConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
}

type ClassifierConfig struct {
	Strategy   string `mapstructure:"strategy"`
	SignalStep string `mapstructure:"signal_step"`
}

type RegistryConfig struct {
	File string `mapstructure:"file"`
}

type NotifyConfig struct {
	SendGridAPIKey string   `mapstructure:"sendgrid_api_key"`
	FromAddress    string   `mapstructure:"from_address"`
	FromName       string   `mapstructure:"from_name"`
	To             []string `mapstructure:"to"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Enabled reports whether regression alerts should be sent.
func (n NotifyConfig) Enabled() bool {
	return n.SendGridAPIKey != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("github.base_url", github.DefaultBaseURL)
	v.SetDefault("github.timeout", github.DefaultTimeout)
	v.SetDefault("server.port", 8080)
	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.postgres_dsn", "")
	v.SetDefault("cache.key", "nightly-e2e-status")
	v.SetDefault("cache.active_ttl", 2*time.Minute)
	v.SetDefault("cache.idle_ttl", 5*time.Minute)
	v.SetDefault("cache.retention", time.Hour)
	v.SetDefault("cache.write_timeout", 500*time.Millisecond)
	v.SetDefault("fetch.max_concurrency", 8)
	v.SetDefault("classifier.strategy", StrategyHeuristic)
	v.SetDefault("classifier.signal_step", "")
	v.SetDefault("registry.file", "")
	v.SetDefault("notify.sendgrid_api_key", "")
	v.SetDefault("notify.from_address", "")
	v.SetDefault("notify.from_name", "Nightly E2E")
	v.SetDefault("notify.to", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads path when it is set, then applies NIGHTLIES_* overrides and the well-known unprefixed
// variables such as GITHUB_TOKEN and PORT.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("NIGHTLIES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindings := map[string][]string{
		"github.token":            {"NIGHTLIES_GITHUB_TOKEN", "GITHUB_TOKEN"},
		"github.base_url":         {"NIGHTLIES_GITHUB_BASE_URL", "GITHUB_API_URL"},
		"server.port":             {"NIGHTLIES_SERVER_PORT", "PORT"},
		"cache.redis_addr":        {"NIGHTLIES_CACHE_REDIS_ADDR", "REDIS_ADDR"},
		"cache.postgres_dsn":      {"NIGHTLIES_CACHE_POSTGRES_DSN", "POSTGRES_DSN"},
		"notify.sendgrid_api_key": {"NIGHTLIES_NOTIFY_SENDGRID_API_KEY", "SENDGRID_API_KEY"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects settings the server cannot start with. A missing token is not one of them; see
// CheckToken.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	switch c.Cache.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Cache.RedisAddr == "" {
			return errors.New("cache backend redis requires cache.redis_addr (REDIS_ADDR)")
		}
	case BackendPostgres:
		if c.Cache.PostgresDSN == "" {
			return errors.New("cache backend postgres requires cache.postgres_dsn (POSTGRES_DSN)")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	if c.Cache.ActiveTTL <= 0 || c.Cache.IdleTTL <= 0 {
		return errors.New("cache TTLs must be positive")
	}
	if c.Cache.ActiveTTL >= c.Cache.IdleTTL {
		return fmt.Errorf("cache.active_ttl (%s) must be shorter than cache.idle_ttl (%s)", c.Cache.ActiveTTL, c.Cache.IdleTTL)
	}
	if c.Cache.WriteTimeout <= 0 {
		return errors.New("cache.write_timeout must be positive")
	}
	if c.Cache.Retention < 0 {
		return errors.New("cache.retention must not be negative")
	}

	if c.Fetch.MaxConcurrency <= 0 {
		return errors.New("fetch.max_concurrency must be positive")
	}

	switch c.Classifier.Strategy {
	case StrategyHeuristic:
	case StrategyStructured:
		if c.Classifier.SignalStep == "" {
			return errors.New("classifier strategy structured requires classifier.signal_step")
		}
	default:
		return fmt.Errorf("unknown classifier strategy %q", c.Classifier.Strategy)
	}

	if c.Notify.Enabled() && (c.Notify.FromAddress == "" || len(c.Notify.To) == 0) {
		return errors.New("regression alerts require notify.from_address and notify.to")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}

	return nil
}

func (c *Config) CheckToken() error {
	if c.GitHub.Token == "" {
		return ErrMissingToken
	}
	return nil
}
