package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

const (
	defaultAPIBaseURL     = "https://api.github.com/"
	defaultGraphQLURL     = "https://api.github.com/graphql"
	defaultTokenEnv       = "GITHUB_TOKEN"
	defaultPageSize       = 100
	defaultRequestTimeout = 30 * time.Second
	maxPageSize           = 100
)

// ConfigurationError reports a missing or invalid configuration value.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return e.Field + " " + e.Reason
}

// Config is the root application configuration.
type Config struct {
	LogLevel  string
	GitHub    GitHubConfig
	Scheduler SchedulerConfig
	Retry     RetryConfig
	RateLimit RateLimitConfig
	Metrics   MetricsConfig
	Telemetry TelemetryConfig
}

// GitHubConfig configures GitHub API interactions.
type GitHubConfig struct {
	APIBaseURL     string
	GraphQLURL     string
	RequestTimeout time.Duration
	// TokenEnv names the environment variable holding a personal access token.
	TokenEnv       string
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
	PageSize       int
	NestedPageSize int
}

// UsesApp reports whether GitHub App installation credentials are configured.
func (g GitHubConfig) UsesApp() bool {
	return g.AppID > 0
}

// SchedulerConfig configures repository fan-out.
type SchedulerConfig struct {
	Concurrency     int
	CooldownEvery   int
	Cooldown        time.Duration
	CooldownDisable bool
}

// RateLimitConfig configures rate-limit controls.
type RateLimitConfig struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
}

// RetryConfig configures retries.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// MetricsConfig configures the optional metrics and health endpoint.
type MetricsConfig struct {
	// ListenAddr is empty when the endpoint is disabled.
	ListenAddr string
	// Linger keeps the endpoint serving the final ranking after the report is written.
	Linger time.Duration
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELExporterEndpoint string
	OTELTraceMode        string
	OTELTraceSampleRatio float64
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads configuration from YAML and validates the result.
func Load(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg := raw.toConfig()
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates configuration values. Every problem is reported as a *ConfigurationError.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(field, reason string) {
		errs = append(errs, &ConfigurationError{Field: field, Reason: reason})
	}

	if !slices.Contains(validLogLevels, c.LogLevel) {
		invalid("log_level", "must be one of debug|info|warn|error")
	}

	if c.GitHub.UsesApp() {
		if c.GitHub.InstallationID <= 0 {
			invalid("github.installation_id", "must be > 0 when github.app_id is set")
		}
		if strings.TrimSpace(c.GitHub.PrivateKeyPath) == "" {
			invalid("github.private_key_path", "is required when github.app_id is set")
		}
	} else if c.GitHub.AppID < 0 {
		invalid("github.app_id", "must be >= 0")
	}
	if c.GitHub.PageSize < 1 || c.GitHub.PageSize > maxPageSize {
		invalid("github.page_size", "must be between 1 and 100")
	}
	if c.GitHub.NestedPageSize < 1 || c.GitHub.NestedPageSize > maxPageSize {
		invalid("github.nested_page_size", "must be between 1 and 100")
	}
	if c.GitHub.RequestTimeout < 0 {
		invalid("github.request_timeout", "must be >= 0")
	}

	if c.Scheduler.Concurrency <= 0 {
		invalid("scheduler.concurrency", "must be > 0")
	}
	if !c.Scheduler.CooldownDisable && c.Scheduler.CooldownEvery <= 0 {
		invalid("scheduler.cooldown_every", "must be > 0 unless scheduler.cooldown_disabled=true")
	}

	if c.Retry.MaxAttempts <= 0 {
		invalid("retry.max_attempts", "must be > 0")
	}
	if c.Retry.MaxBackoff > 0 && c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		invalid("retry.max_backoff", "must be >= retry.initial_backoff")
	}

	if c.RateLimit.MinRemainingThreshold < 0 {
		invalid("rate_limit.min_remaining_threshold", "must be >= 0")
	}

	if c.Metrics.Linger < 0 {
		invalid("metrics.linger", "must be >= 0")
	}

	if c.Telemetry.OTELTraceSampleRatio < 0 || c.Telemetry.OTELTraceSampleRatio > 1 {
		invalid("telemetry.otel_trace_sample_ratio", "must be between 0 and 1")
	}

	return errors.Join(errs...)
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.GitHub.APIBaseURL == "" {
		cfg.GitHub.APIBaseURL = defaultAPIBaseURL
	}
	if cfg.GitHub.GraphQLURL == "" {
		cfg.GitHub.GraphQLURL = defaultGraphQLURL
	}
	if cfg.GitHub.RequestTimeout == 0 {
		cfg.GitHub.RequestTimeout = defaultRequestTimeout
	}
	if cfg.GitHub.TokenEnv == "" {
		cfg.GitHub.TokenEnv = defaultTokenEnv
	}
	if cfg.GitHub.PageSize == 0 {
		cfg.GitHub.PageSize = defaultPageSize
	}
	if cfg.GitHub.NestedPageSize == 0 {
		cfg.GitHub.NestedPageSize = defaultPageSize
	}
	if cfg.Scheduler.Concurrency == 0 {
		cfg.Scheduler.Concurrency = 5
	}
	if cfg.Scheduler.CooldownEvery == 0 {
		cfg.Scheduler.CooldownEvery = 10
	}
	if cfg.Scheduler.Cooldown == 0 {
		cfg.Scheduler.Cooldown = 10 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialBackoff == 0 {
		cfg.Retry.InitialBackoff = time.Second
	}
	if cfg.Retry.MaxBackoff == 0 {
		cfg.Retry.MaxBackoff = 30 * time.Second
	}
	if cfg.RateLimit.MinRemainingThreshold == 0 {
		cfg.RateLimit.MinRemainingThreshold = 50
	}
	if cfg.RateLimit.MinResetBuffer == 0 {
		cfg.RateLimit.MinResetBuffer = 5 * time.Second
	}
	if cfg.RateLimit.SecondaryLimitBackoff == 0 {
		cfg.RateLimit.SecondaryLimitBackoff = time.Minute
	}
	if cfg.Telemetry.OTELTraceMode == "" {
		cfg.Telemetry.OTELTraceMode = "sampled"
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}

	if strings.HasSuffix(trimmed, "d") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "d"), 24)
	}
	if strings.HasSuffix(trimmed, "w") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "w"), 24*7)
	}

	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func parseDurationWithMultiplier(numeric string, multiplierHours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}

	nanos := value * multiplierHours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}

type rawConfig struct {
	LogLevel  string       `yaml:"log_level"`
	GitHub    rawGitHub    `yaml:"github"`
	Scheduler rawScheduler `yaml:"scheduler"`
	Retry     rawRetry     `yaml:"retry"`
	RateLimit rawRateLimit `yaml:"rate_limit"`
	Metrics   rawMetrics   `yaml:"metrics"`
	Telemetry rawTelemetry `yaml:"telemetry"`
}

type rawGitHub struct {
	APIBaseURL     string   `yaml:"api_base_url"`
	GraphQLURL     string   `yaml:"graphql_url"`
	RequestTimeout duration `yaml:"request_timeout"`
	TokenEnv       string   `yaml:"token_env"`
	AppID          int64    `yaml:"app_id"`
	InstallationID int64    `yaml:"installation_id"`
	PrivateKeyPath string   `yaml:"private_key_path"`
	PageSize       int      `yaml:"page_size"`
	NestedPageSize int      `yaml:"nested_page_size"`
}

type rawScheduler struct {
	Concurrency      int      `yaml:"concurrency"`
	CooldownEvery    int      `yaml:"cooldown_every"`
	Cooldown         duration `yaml:"cooldown"`
	CooldownDisabled bool     `yaml:"cooldown_disabled"`
}

type rawRateLimit struct {
	MinRemainingThreshold int      `yaml:"min_remaining_threshold"`
	MinResetBuffer        duration `yaml:"min_reset_buffer"`
	SecondaryLimitBackoff duration `yaml:"secondary_limit_backoff"`
}

type rawRetry struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff duration `yaml:"initial_backoff"`
	MaxBackoff     duration `yaml:"max_backoff"`
}

type rawMetrics struct {
	ListenAddr string   `yaml:"listen_addr"`
	Linger     duration `yaml:"linger"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELExporterEndpoint string  `yaml:"otel_exporter_otlp_endpoint"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

func (r rawConfig) toConfig() *Config {
	return &Config{
		LogLevel: strings.ToLower(strings.TrimSpace(r.LogLevel)),
		GitHub: GitHubConfig{
			APIBaseURL:     strings.TrimSpace(r.GitHub.APIBaseURL),
			GraphQLURL:     strings.TrimSpace(r.GitHub.GraphQLURL),
			RequestTimeout: r.GitHub.RequestTimeout.Duration,
			TokenEnv:       strings.TrimSpace(r.GitHub.TokenEnv),
			AppID:          r.GitHub.AppID,
			InstallationID: r.GitHub.InstallationID,
			PrivateKeyPath: strings.TrimSpace(r.GitHub.PrivateKeyPath),
			PageSize:       r.GitHub.PageSize,
			NestedPageSize: r.GitHub.NestedPageSize,
		},
		Scheduler: SchedulerConfig{
			Concurrency:     r.Scheduler.Concurrency,
			CooldownEvery:   r.Scheduler.CooldownEvery,
			Cooldown:        r.Scheduler.Cooldown.Duration,
			CooldownDisable: r.Scheduler.CooldownDisabled,
		},
		Retry: RetryConfig{
			MaxAttempts:    r.Retry.MaxAttempts,
			InitialBackoff: r.Retry.InitialBackoff.Duration,
			MaxBackoff:     r.Retry.MaxBackoff.Duration,
		},
		RateLimit: RateLimitConfig{
			MinRemainingThreshold: r.RateLimit.MinRemainingThreshold,
			MinResetBuffer:        r.RateLimit.MinResetBuffer.Duration,
			SecondaryLimitBackoff: r.RateLimit.SecondaryLimitBackoff.Duration,
		},
		Metrics: MetricsConfig{
			ListenAddr: strings.TrimSpace(r.Metrics.ListenAddr),
			Linger:     r.Metrics.Linger.Duration,
		},
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELExporterEndpoint: strings.TrimSpace(r.Telemetry.OTELExporterEndpoint),
			OTELTraceMode:        r.Telemetry.OTELTraceMode,
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
		},
	}
}
