package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "TIMEFREEDOM"

// Config represents the application configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	Log         LogConfig       `mapstructure:"log"`
	Server      ServerConfig    `mapstructure:"server"`
	Generator   GeneratorConfig `mapstructure:"generator"`
	Report      ReportConfig    `mapstructure:"report"`
	Storage     StorageConfig   `mapstructure:"storage"`
	CRM         CRMConfig       `mapstructure:"crm"`
	Mail        MailConfig      `mapstructure:"mail"`
	Blob        BlobConfig      `mapstructure:"blob"`
	Notify      NotifyConfig    `mapstructure:"notify"`
	Tracing     TracingConfig   `mapstructure:"tracing"`
}

// LogConfig controls the slog handler
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Port                  int     `mapstructure:"port"`
	RequestTimeoutSeconds int     `mapstructure:"request_timeout_seconds"`
	RateLimitRPS          float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst        int     `mapstructure:"rate_limit_burst"`
}

// GeneratorConfig selects and tunes the model backend
type GeneratorConfig struct {
	Provider       string        `mapstructure:"provider"` // anthropic, gemini
	Model          string        `mapstructure:"model"`
	APIKey         string        `mapstructure:"api_key"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	TimeoutSeconds int           `mapstructure:"timeout_seconds"`
	Breaker        BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig holds circuit breaker thresholds
type BreakerConfig struct {
	FailureThreshold   float64 `mapstructure:"failure_threshold"`
	MinRequests        int     `mapstructure:"min_requests"`
	OpenTimeoutSeconds int     `mapstructure:"open_timeout_seconds"`
}

// ReportConfig holds the business thresholds for validation
type ReportConfig struct {
	MinEAPercent   int `mapstructure:"min_ea_percent"`
	TasksPerBucket int `mapstructure:"tasks_per_bucket"`
}

// StorageConfig holds storage path configuration
type StorageConfig struct {
	Database DatabaseConfig `mapstructure:"database"`
}

// DatabaseConfig holds database-specific settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// CRMConfig holds Close CRM credentials
type CRMConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// MailConfig holds Mailgun settings
type MailConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Domain  string `mapstructure:"domain"`
	From    string `mapstructure:"from"`
	BaseURL string `mapstructure:"base_url"`
}

// BlobConfig holds S3 settings for rendered reports
type BlobConfig struct {
	Bucket   string `mapstructure:"bucket"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
	Prefix   string `mapstructure:"prefix"`
}

// NotifyConfig bounds the background side channels
type NotifyConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxRetries     int `mapstructure:"max_retries"`
}

// TracingConfig holds the OTLP exporter target
type TracingConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Insecure     bool   `mapstructure:"insecure"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 120)
	v.SetDefault("server.rate_limit_rps", 2.0)
	v.SetDefault("server.rate_limit_burst", 10)
	v.SetDefault("generator.provider", "anthropic")
	v.SetDefault("generator.model", "")
	v.SetDefault("generator.api_key", "")
	v.SetDefault("generator.temperature", 0.6)
	v.SetDefault("generator.max_tokens", 4096)
	v.SetDefault("generator.timeout_seconds", 90)
	v.SetDefault("generator.breaker.failure_threshold", 0.5)
	v.SetDefault("generator.breaker.min_requests", 10)
	v.SetDefault("generator.breaker.open_timeout_seconds", 30)
	v.SetDefault("report.min_ea_percent", 40)
	v.SetDefault("report.tasks_per_bucket", 10)
	v.SetDefault("storage.database.path", "./data/timefreedom.db")
	v.SetDefault("crm.api_key", "")
	v.SetDefault("crm.base_url", "https://api.close.com/api/v1")
	v.SetDefault("mail.api_key", "")
	v.SetDefault("mail.domain", "")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.base_url", "https://api.mailgun.net/v3")
	v.SetDefault("blob.bucket", "")
	v.SetDefault("blob.region", "us-east-1")
	v.SetDefault("blob.endpoint", "")
	v.SetDefault("blob.prefix", "reports/")
	v.SetDefault("notify.timeout_seconds", 60)
	v.SetDefault("notify.max_retries", 3)
	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.insecure", true)
}

// Load reads configuration from YAML files and environment variables
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (e.g., TIMEFREEDOM_SERVER_PORT)
//  2. Environment-specific YAML (e.g., config.production.yaml)
//  3. Base YAML (config.yaml)
//  4. Built-in defaults
//
// A missing base file is not an error. Provider API keys also fall back to
// the vendors' conventional variables (ANTHROPIC_API_KEY, GEMINI_API_KEY,
// CLOSE_API_KEY, MAILGUN_*, AWS_S3_BUCKET).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath == "" {
		configPath = filepath.Join("config", "config.yaml")
	}
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	configDir := filepath.Dir(configPath)
	configExt := filepath.Ext(configPath)
	configBase := strings.TrimSuffix(filepath.Base(configPath), configExt)

	env := os.Getenv(EnvPrefix + "_ENV")
	if env == "" {
		env = v.GetString("environment")
	}

	envConfigPath := filepath.Join(configDir, fmt.Sprintf("%s.%s%s", configBase, env, configExt))
	if _, err := os.Stat(envConfigPath); err == nil {
		v.SetConfigFile(envConfigPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to merge environment config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Environment = env
	applyVendorEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func applyVendorEnv(cfg *Config) {
	fallback := func(dst *string, names ...string) {
		for _, name := range names {
			if *dst != "" {
				return
			}
			*dst = os.Getenv(name)
		}
	}
	switch cfg.Generator.Provider {
	case "gemini":
		fallback(&cfg.Generator.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	default:
		fallback(&cfg.Generator.APIKey, "ANTHROPIC_API_KEY")
	}
	fallback(&cfg.CRM.APIKey, "CLOSE_API_KEY")
	fallback(&cfg.Mail.APIKey, "MAILGUN_API_KEY")
	fallback(&cfg.Mail.Domain, "MAILGUN_DOMAIN")
	fallback(&cfg.Mail.From, "MAILGUN_FROM_EMAIL")
	fallback(&cfg.Blob.Bucket, "AWS_S3_BUCKET")
}

// validate checks required configuration fields. Missing provider keys are
// allowed; the affected component reports them when called.
func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 {
		return fmt.Errorf("server.port must be greater than 0")
	}
	switch cfg.Generator.Provider {
	case "anthropic", "gemini":
	default:
		return fmt.Errorf("generator.provider must be one of anthropic, gemini (got %q)", cfg.Generator.Provider)
	}
	if cfg.Report.MinEAPercent < 0 || cfg.Report.MinEAPercent > 100 {
		return fmt.Errorf("report.min_ea_percent must be between 0 and 100")
	}
	if cfg.Report.TasksPerBucket <= 0 {
		return fmt.Errorf("report.tasks_per_bucket must be greater than 0")
	}
	if cfg.Generator.Breaker.FailureThreshold < 0 || cfg.Generator.Breaker.FailureThreshold > 1 {
		return fmt.Errorf("generator.breaker.failure_threshold must be between 0 and 1")
	}
	return nil
}

// RequestTimeout is the per-request deadline the HTTP layer applies.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// GeneratorTimeout bounds a single model call.
func (c *Config) GeneratorTimeout() time.Duration {
	return time.Duration(c.Generator.TimeoutSeconds) * time.Second
}

// NotifyTimeout bounds one background dispatch.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notify.TimeoutSeconds) * time.Second
}

// CRMEnabled reports whether CRM sync has credentials.
func (c *Config) CRMEnabled() bool { return c.CRM.APIKey != "" }

// MailEnabled reports whether report email has everything it needs.
func (c *Config) MailEnabled() bool {
	return c.Mail.APIKey != "" && c.Mail.Domain != "" && c.Mail.From != ""
}

// BlobEnabled reports whether PDF upload has a bucket.
func (c *Config) BlobEnabled() bool { return c.Blob.Bucket != "" }
