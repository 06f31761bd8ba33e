package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	BotToken     string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	AllowedUsers []int64 `envconfig:"ALLOWED_USERS"`
	ItemsPerPage int     `envconfig:"ITEMS_PER_PAGE" default:"10"`
	Env          string  `envconfig:"APP_ENV" default:"production"`
	DatabaseURL  string  `envconfig:"DATABASE_URL"`
	MetricsAddr  string  `envconfig:"METRICS_ADDR"`

	Provider ProviderConfig
	Poll     PollConfig
}

// ProviderConfig holds upstream OTP API settings
type ProviderConfig struct {
	APIKey        string        `envconfig:"OTP_API_KEY"`
	BaseURL       string        `envconfig:"OTP_BASE_URL" default:"https://otpcepat.org/api/handler_api.php"`
	Timeout       time.Duration `envconfig:"OTP_TIMEOUT" default:"15s"`
	RetryAttempts int           `envconfig:"OTP_RETRY_ATTEMPTS" default:"3"`
	RetryDelay    time.Duration `envconfig:"OTP_RETRY_DELAY" default:"2s"`
	CountryID     string        `envconfig:"DEFAULT_COUNTRY_ID" default:"6"`
	OperatorID    string        `envconfig:"DEFAULT_OPERATOR_ID" default:"random"`
}

// PollConfig controls background order polling
type PollConfig struct {
	Interval     time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
	InitialDelay time.Duration `envconfig:"POLL_INITIAL_DELAY" default:"2s"`
	// MaxLifetime of zero disables expiry.
	MaxLifetime time.Duration `envconfig:"POLL_MAX_LIFETIME" default:"20m"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not exists)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.Provider.APIKey == "" {
		return fmt.Errorf("OTP_API_KEY is required")
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("OTP_BASE_URL must not be empty")
	}
	if c.ItemsPerPage <= 0 {
		return fmt.Errorf("ITEMS_PER_PAGE must be > 0, got %d", c.ItemsPerPage)
	}
	if c.Provider.RetryAttempts < 1 {
		return fmt.Errorf("OTP_RETRY_ATTEMPTS must be >= 1, got %d", c.Provider.RetryAttempts)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be > 0")
	}
	if c.Poll.InitialDelay < 0 || c.Poll.MaxLifetime < 0 {
		return fmt.Errorf("POLL_INITIAL_DELAY and POLL_MAX_LIFETIME must be >= 0")
	}
	return nil
}

// IsProduction reports whether the production logger profile should be used
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
