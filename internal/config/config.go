package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Bluesky   BlueskyConfig   `yaml:"bluesky"`
	AI        AIConfig        `yaml:"ai"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Retry     RetryConfig     `yaml:"retry"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Store     StoreConfig     `yaml:"store"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Journal   JournalConfig   `yaml:"journal"`
}

// BlueskyConfig holds the bot account and PDS settings
type BlueskyConfig struct {
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"` // app password
	PDSURL        string        `yaml:"pdsUrl"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxMediaBytes int64         `yaml:"maxMediaBytes"`
}

// AIConfig holds the AI provider and gateway settings
type AIConfig struct {
	Provider         string        `yaml:"provider"` // gemini (default), openai, anthropic
	Model            string        `yaml:"model"`    // empty selects the provider default
	GeminiAPIKey     string        `yaml:"geminiApiKey"`
	OpenAIAPIKey     string        `yaml:"openaiApiKey"`
	OpenAIBaseURL    string        `yaml:"openaiBaseUrl"`
	AnthropicAPIKey  string        `yaml:"anthropicApiKey"`
	FallbackProvider string        `yaml:"fallbackProvider"`
	FallbackModel    string        `yaml:"fallbackModel"`
	Timeout          time.Duration `yaml:"timeout"`
	MinInterval      time.Duration `yaml:"minInterval"`
	CacheTTL         time.Duration `yaml:"cacheTtl"`
	CacheMaxEntries  int           `yaml:"cacheMaxEntries"`
	ReplyCharCap     int           `yaml:"replyCharCap"`
	// ShortenLongReplies asks the model to rewrite an over-cap reply
	// before truncating it
	ShortenLongReplies bool `yaml:"shortenLongReplies"`
}

// MonitorConfig holds mention polling settings
type MonitorConfig struct {
	PollInterval     time.Duration `yaml:"pollInterval"`
	MaxBackoff       time.Duration `yaml:"maxBackoff"`
	ReplyDelay       time.Duration `yaml:"replyDelay"`
	SeenWindow       time.Duration `yaml:"seenWindow"`
	MarkSeen         string        `yaml:"markSeen"`         // before (default), after
	RequesterLimit   int           `yaml:"requesterLimit"`   // Max mentions per minute per requester (0 = disabled)
	ShutdownTimeout  time.Duration `yaml:"shutdownTimeout"`  // Upper bound for the in-flight dispatch on shutdown
	MaintenanceCron  string        `yaml:"maintenanceCron"`  // Seen-set prune and cache purge schedule
	StatusReportCron string        `yaml:"statusReportCron"` // Periodic status line schedule
}

// RetryConfig holds per-stage retry settings for transport errors
type RetryConfig struct {
	MaxAttempts     int           `yaml:"maxAttempts"`
	InitialInterval time.Duration `yaml:"initialInterval"`
	Multiplier      float64       `yaml:"multiplier"`
}

// PipelineConfig holds prompt building settings
type PipelineConfig struct {
	MaxContextChars int    `yaml:"maxContextChars"`
	TemplateDir     string `yaml:"templateDir"` // Optional override for embedded prompt templates
	DefaultLanguage string `yaml:"defaultLanguage"`
}

// StoreConfig holds durable state settings
type StoreConfig struct {
	Path string `yaml:"path"` // SQLite file for seen-set, cursor and local analytics
}

// AnalyticsConfig holds analytics sink settings
type AnalyticsConfig struct {
	Sink        string `yaml:"sink"` // sqlite (default), postgres, none
	DatabaseURL string `yaml:"databaseUrl"`
	QueueSize   int    `yaml:"queueSize"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: info)
}

// MetricsConfig holds the health/metrics HTTP endpoint configuration
type MetricsConfig struct {
	Addr string `yaml:"addr"` // e.g. ":9090"; empty disables the endpoint
	Path string `yaml:"path"`
}

// JournalConfig holds the posted-reply journal settings
type JournalConfig struct {
	Dir string `yaml:"dir"` // daily markdown files; empty disables the journal
}

func Default() *Config {
	return &Config{
		Bluesky: BlueskyConfig{
			PDSURL:        "https://bsky.social",
			Timeout:       30 * time.Second,
			MaxMediaBytes: 20 << 20,
		},
		AI: AIConfig{
			Provider:        "gemini",
			Timeout:         60 * time.Second,
			MinInterval:     6 * time.Second,
			CacheTTL:        time.Hour,
			CacheMaxEntries: 1000,
			ReplyCharCap:    250,

			ShortenLongReplies: true,
		},
		Monitor: MonitorConfig{
			PollInterval:     30 * time.Second,
			MaxBackoff:       10 * time.Minute,
			ReplyDelay:       2 * time.Second,
			SeenWindow:       7 * 24 * time.Hour,
			MarkSeen:         "before",
			RequesterLimit:   5,
			ShutdownTimeout:  2 * time.Minute,
			MaintenanceCron:  "0 */15 * * * *",
			StatusReportCron: "0 0 * * * *",
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Second,
			Multiplier:      2,
		},
		Pipeline: PipelineConfig{
			MaxContextChars: 6000,
			DefaultLanguage: "en",
		},
		Store: StoreConfig{
			Path: filepath.Join(configDir(), "state.db"),
		},
		Analytics: AnalyticsConfig{
			Sink:      "sqlite",
			QueueSize: 256,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}

func configDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".skyoracle")
}

// DefaultPath returns the default config file location
func DefaultPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (optional when path is empty), then .env, then process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config not found: %w", err)
	}

	// .env is optional; real environment variables take precedence over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("invalid .env: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment-style keys
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []string
	dur := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		d, err := parseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = d
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = n
	}

	str("BLUESKY_USERNAME", &c.Bluesky.Username)
	str("BLUESKY_PASSWORD", &c.Bluesky.Password)
	str("BLUESKY_PDS_URL", &c.Bluesky.PDSURL)
	str("AI_PROVIDER", &c.AI.Provider)
	str("AI_MODEL", &c.AI.Model)
	str("GEMINI_API_KEY", &c.AI.GeminiAPIKey)
	str("OPENAI_API_KEY", &c.AI.OpenAIAPIKey)
	str("OPENAI_BASE_URL", &c.AI.OpenAIBaseURL)
	str("ANTHROPIC_API_KEY", &c.AI.AnthropicAPIKey)
	dur("POLL_INTERVAL", &c.Monitor.PollInterval)
	dur("AI_MIN_INTERVAL", &c.AI.MinInterval)
	num("REPLY_CHAR_CAP", &c.AI.ReplyCharCap)
	dur("CACHE_TTL", &c.AI.CacheTTL)
	if v, ok := lookup("HTTP_TIMEOUT"); ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("HTTP_TIMEOUT: %v", err))
		} else {
			c.Bluesky.Timeout = d
			c.AI.Timeout = d
		}
	}
	str("LOG_LEVEL", &c.Log.Level)
	str("STATE_DB_PATH", &c.Store.Path)
	str("ANALYTICS_SINK", &c.Analytics.Sink)
	str("DATABASE_URL", &c.Analytics.DatabaseURL)
	str("METRICS_ADDR", &c.Metrics.Addr)
	str("REPLY_JOURNAL_DIR", &c.Journal.Dir)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// parseDuration accepts Go durations ("6s") or bare seconds ("6")
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

// ValidationResult holds the result of config validation
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

// Err folds validation errors into a single error, or nil
func (v *ValidationResult) Err() error {
	if v.IsValid() {
		return nil
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(v.Errors, "; "))
}

// Validate checks the configuration for required fields and common issues
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
	}

	if c.Bluesky.Username == "" || c.Bluesky.Password == "" {
		result.Errors = append(result.Errors, "Bluesky credentials required: set BLUESKY_USERNAME and BLUESKY_PASSWORD")
	}
	if c.Bluesky.PDSURL == "" {
		result.Errors = append(result.Errors, "Bluesky PDS URL required: set bluesky.pdsUrl")
	}

	c.validateProvider(c.AI.Provider, "ai.provider", result)
	if c.AI.FallbackProvider != "" {
		c.validateProvider(c.AI.FallbackProvider, "ai.fallbackProvider", result)
	}

	if c.AI.ReplyCharCap < 1 {
		result.Errors = append(result.Errors, "ai.replyCharCap must be at least 1")
	} else if c.AI.ReplyCharCap > 300 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("ai.replyCharCap %d exceeds the 300 character post limit", c.AI.ReplyCharCap))
	}
	if c.AI.MinInterval <= 0 {
		result.Warnings = append(result.Warnings, "ai.minInterval disabled - AI calls will not be throttled")
	}
	if c.AI.Timeout <= 0 || c.Bluesky.Timeout <= 0 {
		result.Errors = append(result.Errors, "Timeouts must be positive: set ai.timeout and bluesky.timeout")
	}

	if c.Monitor.PollInterval <= 0 {
		result.Errors = append(result.Errors, "monitor.pollInterval must be positive")
	} else if c.Monitor.PollInterval < 5*time.Second {
		result.Warnings = append(result.Warnings, "Poll interval < 5s may trip Bluesky rate limits")
	}
	if c.Monitor.MaxBackoff < c.Monitor.PollInterval {
		result.Warnings = append(result.Warnings, "monitor.maxBackoff below poll interval, backoff disabled")
	}
	switch c.Monitor.MarkSeen {
	case "", "before", "after":
	default:
		result.Errors = append(result.Errors, fmt.Sprintf("Unknown monitor.markSeen '%s', supported: before, after", c.Monitor.MarkSeen))
	}
	if c.Monitor.RequesterLimit > 100 {
		result.Warnings = append(result.Warnings, "Requester limit > 100 mentions/min - consider lower limit for safety")
	}

	if c.Retry.MaxAttempts < 1 {
		result.Errors = append(result.Errors, "retry.maxAttempts must be at least 1")
	}

	switch c.Analytics.Sink {
	case "", "none", "sqlite":
	case "postgres":
		if c.Analytics.DatabaseURL == "" {
			result.Errors = append(result.Errors, "Postgres analytics sink requires DATABASE_URL")
		}
	default:
		result.Errors = append(result.Errors, fmt.Sprintf("Unknown analytics.sink '%s', supported: sqlite, postgres, none", c.Analytics.Sink))
	}

	if c.Pipeline.TemplateDir != "" {
		if _, err := os.Stat(c.Pipeline.TemplateDir); os.IsNotExist(err) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("Template directory does not exist: %s (using built-in prompts)", c.Pipeline.TemplateDir))
		}
	}

	return result
}

func (c *Config) validateProvider(provider, field string, result *ValidationResult) {
	switch provider {
	case "", "gemini":
		if c.AI.GeminiAPIKey == "" {
			result.Errors = append(result.Errors, "Gemini provider requires an API key: set GEMINI_API_KEY")
		}
	case "openai":
		if c.AI.OpenAIAPIKey == "" {
			result.Errors = append(result.Errors, "OpenAI provider requires an API key: set OPENAI_API_KEY")
		}
	case "anthropic":
		if c.AI.AnthropicAPIKey == "" {
			result.Errors = append(result.Errors, "Anthropic provider requires an API key: set ANTHROPIC_API_KEY")
		}
	default:
		result.Errors = append(result.Errors, fmt.Sprintf("Unknown %s '%s', supported: gemini, openai, anthropic", field, provider))
	}
}

// Save writes the configuration to path (or the default location), omitting secrets
func Save(cfg *Config, path string) (string, error) {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}

	clean := *cfg
	clean.Bluesky.Password = ""
	clean.AI.GeminiAPIKey = ""
	clean.AI.OpenAIAPIKey = ""
	clean.AI.AnthropicAPIKey = ""
	clean.Analytics.DatabaseURL = ""

	data, err := yaml.Marshal(&clean)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", err
	}
	return path, nil
}
