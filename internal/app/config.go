package app

import (
	"errors"
	"fmt"
	"net/url"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/text/language"

	"github.com/salesdash/salesdash/internal/analytics"
)

// Config holds runtime configuration for the dashboard service and worker.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"30s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"25s"`
	AppRateLimit      int           `envconfig:"APP_RATE_LIMIT" default:"120"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	BackendURL     string        `envconfig:"BACKEND_URL" required:"true"`
	BackendTimeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"10s"`

	CacheTTL          time.Duration `envconfig:"CACHE_TTL" default:"5m"`
	CacheChannel      string        `envconfig:"CACHE_CHANNEL" default:"salesdash.bump"`
	CacheLoadTimeout  time.Duration `envconfig:"CACHE_LOAD_TIMEOUT" default:"15s"`
	ViewIdleTTL       time.Duration `envconfig:"VIEW_IDLE_TTL" default:"30m"`
	ViewMax           int           `envconfig:"VIEW_MAX" default:"1000"`
	ViewSweepInterval time.Duration `envconfig:"VIEW_SWEEP_INTERVAL" default:"1m"`
	Locale            string        `envconfig:"LOCALE" default:"es-AR"`
	Timezone          string        `envconfig:"TIMEZONE" default:"America/Argentina/Buenos_Aires"`
	TrendGranularity  string        `envconfig:"TREND_GRANULARITY" default:"day"`
	TrendDays         int           `envconfig:"TREND_DAYS" default:"30"`
	TopProducts       int           `envconfig:"TOP_PRODUCTS" default:"8"`

	WorkerConcurrency int    `envconfig:"WORKER_CONCURRENCY" default:"2"`
	WarmupCron        string `envconfig:"WARMUP_CRON" default:"*/15 7-22 * * *"`
	WarmupTopBranches int    `envconfig:"WARMUP_TOP_BRANCHES" default:"5"`
	InvalidateCron    string `envconfig:"INVALIDATE_CRON" default:"5 0 * * *"`
	WorkerMetricsAddr string `envconfig:"WORKER_METRICS_ADDR" default:":9091"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return errors.New("backend url must be provided")
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend url %q must be an absolute http(s) url", c.BackendURL)
	}
	if c.BackendTimeout <= 0 {
		return errors.New("backend timeout must be positive")
	}
	if c.CacheTTL <= 0 {
		return errors.New("cache ttl must be positive")
	}
	if c.ViewMax <= 0 {
		return errors.New("view max must be positive")
	}
	if c.ViewIdleTTL <= 0 {
		return errors.New("view idle ttl must be positive")
	}
	if _, err := analytics.ParseGranularity(c.TrendGranularity); err != nil {
		return err
	}
	if c.TrendDays < 0 || c.TrendDays > analytics.MaxTrendDays {
		return fmt.Errorf("trend days must be between 1 and %d", analytics.MaxTrendDays)
	}
	if c.TopProducts < 0 {
		return errors.New("top products must not be negative")
	}
	if _, err := language.Parse(c.Locale); err != nil {
		return fmt.Errorf("locale %q: %w", c.Locale, err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the timezone presets are evaluated in.
func (c *Config) Location() (*time.Location, error) {
	if c == nil || c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Trend returns the parsed trend granularity and window of the dashboard
// overview.
func (c *Config) Trend() (analytics.Granularity, int, error) {
	granularity, err := analytics.ParseGranularity(c.TrendGranularity)
	if err != nil {
		return "", 0, err
	}
	return granularity, c.TrendDays, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
