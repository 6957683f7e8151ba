package config

import (
	"fmt"
	"strings" // For LogLevel normalization
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	BotToken           string        `env:"BOT_TOKEN,required"`
	ContestDojoAPIKey  string        `env:"CONTESTDOJO_API_KEY,required"`
	ContestDojoBaseURL string        `env:"CONTESTDOJO_BASE_URL" envDefault:"https://api.contestdojo.com/"`
	EventID            string        `env:"EVENT_ID" envDefault:"JHVrMPgX08z7kdmZP8Cs"`
	EventName          string        `env:"EVENT_NAME" envDefault:"BMT 2024 Online"`
	VerifiedRoleName   string        `env:"VERIFIED_ROLE_NAME" envDefault:"Verified"`
	VerifyTrigger      string        `env:"VERIFY_TRIGGER" envDefault:"<<verifyview>>"` // Admin message that posts the verify panel
	DirectoryTimeout   time.Duration `env:"DIRECTORY_TIMEOUT" envDefault:"10s"`
	ChatTimeout        time.Duration `env:"CHAT_TIMEOUT" envDefault:"10s"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	Environment        string        `env:"ENVIRONMENT" envDefault:"development"`
	CronSpecRoleAudit  string        `env:"CRON_SPEC_ROLE_AUDIT" envDefault:"*/30 * * * *"`
	MetricsAddr        string        `env:"METRICS_ADDR"` // Empty disables the metrics listener
	OpsTelegramToken   string        `env:"OPS_TELEGRAM_TOKEN"`
	OpsTelegramChatID  int64         `env:"OPS_TELEGRAM_CHAT_ID"`
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Environment = strings.ToLower(cfg.Environment)

	if strings.TrimSpace(cfg.EventID) == "" {
		return nil, fmt.Errorf("EVENT_ID must not be empty")
	}
	if strings.TrimSpace(cfg.VerifiedRoleName) == "" {
		return nil, fmt.Errorf("VERIFIED_ROLE_NAME must not be empty")
	}
	if cfg.DirectoryTimeout <= 0 {
		return nil, fmt.Errorf("DIRECTORY_TIMEOUT must be positive, got %s", cfg.DirectoryTimeout)
	}
	if cfg.ChatTimeout <= 0 {
		return nil, fmt.Errorf("CHAT_TIMEOUT must be positive, got %s", cfg.ChatTimeout)
	}
	if cfg.OpsTelegramToken != "" && cfg.OpsTelegramChatID == 0 {
		return nil, fmt.Errorf("OPS_TELEGRAM_CHAT_ID is required when OPS_TELEGRAM_TOKEN is set")
	}

	return cfg, nil
}

// OpsAlertsEnabled reports whether operator alerts should go to Telegram.
func (c *AppConfig) OpsAlertsEnabled() bool {
	return c.OpsTelegramToken != ""
}
