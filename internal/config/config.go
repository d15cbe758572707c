// Package config loads application configuration from a YAML file with
// environment-variable overrides. A .env file, when present, is folded
// into the environment first so local development needs no shell setup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for both binaries.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Tenant   TenantConfig   `yaml:"tenant"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Tracking TrackingConfig `yaml:"tracking"`
	Mailer   MailerConfig   `yaml:"mailer"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port         int      `yaml:"port"`
	TrackingPort int      `yaml:"tracking_port"`
	CORSOrigins  []string `yaml:"cors_origins"`
}

// StorageConfig selects the repository backend once at startup.
// Driver is "memory" or "postgres"; no per-call branching happens
// anywhere below this point.
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	DatabaseURL string `yaml:"database_url"`
}

// RedisConfig holds the optional Redis connection for distributed locks.
type RedisConfig struct {
	Addr string `yaml:"addr"`
}

// TenantConfig controls councillor (tenant) resolution.
type TenantConfig struct {
	Header     string `yaml:"header"`
	QueryParam string `yaml:"query_param"`
	Fallback   string `yaml:"fallback"`
}

// DispatchConfig bounds campaign fan-out.
type DispatchConfig struct {
	BatchSize          int     `yaml:"batch_size"`
	MaxConcurrent      int     `yaml:"max_concurrent"`
	MaxRetries         int     `yaml:"max_retries"`
	RetryBaseDelayMS   int     `yaml:"retry_base_delay_ms"`
	SendBudgetSeconds  int     `yaml:"send_budget_seconds"`
	ProviderRatePerSec float64 `yaml:"provider_rate_per_sec"`
}

// RetryBaseDelay is the first backoff step between retries of one recipient.
func (c DispatchConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}

// SendBudget is the wall-clock limit for a whole campaign dispatch.
func (c DispatchConfig) SendBudget() time.Duration {
	return time.Duration(c.SendBudgetSeconds) * time.Second
}

// TrackingConfig holds the public base URL embedded into tracking links.
type TrackingConfig struct {
	BaseURL        string `yaml:"base_url"`
	RecordBudgetMS int    `yaml:"record_budget_ms"`
}

// RecordBudget bounds how long the pixel handler waits on the event store
// before serving the pixel anyway.
func (c TrackingConfig) RecordBudget() time.Duration {
	return time.Duration(c.RecordBudgetMS) * time.Millisecond
}

// MailerConfig selects the outbound mail provider.
// Driver is "ses" or "log" (full pipeline, no real sends).
type MailerConfig struct {
	Driver       string `yaml:"driver"`
	FromName     string `yaml:"from_name"`
	FromEmail    string `yaml:"from_email"`
	AWSRegion    string `yaml:"aws_region"`
	AWSAccessKey string `yaml:"aws_access_key"`
	AWSSecretKey string `yaml:"aws_secret_key"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load reads the YAML file at path (optional), folds in a .env file, and
// applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Storage.DatabaseURL = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("TRACKING_BASE_URL"); v != "" {
		c.Tracking.BaseURL = v
	}
	if v := os.Getenv("MAILER_DRIVER"); v != "" {
		c.Mailer.Driver = v
	}
	if v := os.Getenv("EMAIL_SENDER"); v != "" {
		c.Mailer.FromEmail = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		c.Mailer.AWSRegion = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		c.Mailer.AWSAccessKey = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		c.Mailer.AWSSecretKey = v
	}
	if v := os.Getenv("FALLBACK_COUNCILLOR_ID"); v != "" {
		c.Tenant.Fallback = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.TrackingPort == 0 {
		c.Server.TrackingPort = 8081
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Tenant.Header == "" {
		c.Tenant.Header = "X-Councillor-ID"
	}
	if c.Tenant.QueryParam == "" {
		c.Tenant.QueryParam = "councillorId"
	}
	if c.Tenant.Fallback == "" {
		c.Tenant.Fallback = "public"
	}
	if c.Dispatch.BatchSize <= 0 {
		c.Dispatch.BatchSize = 50
	}
	if c.Dispatch.MaxConcurrent <= 0 {
		c.Dispatch.MaxConcurrent = 4
	}
	if c.Dispatch.MaxRetries < 0 {
		c.Dispatch.MaxRetries = 0
	} else if c.Dispatch.MaxRetries == 0 {
		c.Dispatch.MaxRetries = 2
	}
	if c.Dispatch.RetryBaseDelayMS <= 0 {
		c.Dispatch.RetryBaseDelayMS = 500
	}
	if c.Dispatch.SendBudgetSeconds <= 0 {
		c.Dispatch.SendBudgetSeconds = 600
	}
	if c.Dispatch.ProviderRatePerSec <= 0 {
		c.Dispatch.ProviderRatePerSec = 14
	}
	if c.Tracking.RecordBudgetMS <= 0 {
		c.Tracking.RecordBudgetMS = 500
	}
	if c.Mailer.Driver == "" {
		c.Mailer.Driver = "log"
	}
	if c.Mailer.AWSRegion == "" {
		c.Mailer.AWSRegion = "us-east-1"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("storage.database_url is required with the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Mailer.Driver {
	case "log":
	case "ses":
		if c.Mailer.FromEmail == "" {
			return fmt.Errorf("mailer.from_email is required with the ses driver")
		}
	default:
		return fmt.Errorf("unknown mailer driver %q", c.Mailer.Driver)
	}
	return nil
}
