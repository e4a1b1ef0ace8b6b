package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config keeps runtime settings for the service.
type Config struct {
	TelegramToken       string        `env:"TELEGRAM_TOKEN"`
	DatabaseURL         string        `env:"DATABASE_URL" env-default:"task_market.db"`
	HTTPAddr            string        `env:"HTTP_ADDR" env-default:":8080"`
	DigestInterval      time.Duration `env:"DIGEST_INTERVAL" env-default:"5h"`
	DigestAt            string        `env:"DIGEST_AT"`
	NotifyRetryInterval time.Duration `env:"NOTIFY_RETRY_INTERVAL" env-default:"1m"`
	NotifyMaxAttempts   int           `env:"NOTIFY_MAX_ATTEMPTS" env-default:"5"`
	NotifyQueueSize     int           `env:"NOTIFY_QUEUE_SIZE" env-default:"256"`
	NotifyClaimTTL      time.Duration `env:"NOTIFY_CLAIM_TTL" env-default:"2m"`
	ConflictRetries     int           `env:"TASK_CONFLICT_RETRIES" env-default:"3"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("read env: %w", err)
	}

	cfg.TelegramToken = strings.TrimSpace(cfg.TelegramToken)
	cfg.DigestAt = strings.TrimSpace(cfg.DigestAt)

	if cfg.NotifyMaxAttempts <= 0 {
		return cfg, fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be positive")
	}
	if cfg.NotifyQueueSize <= 0 {
		return cfg, fmt.Errorf("NOTIFY_QUEUE_SIZE must be positive")
	}
	if cfg.NotifyClaimTTL <= 0 {
		return cfg, fmt.Errorf("NOTIFY_CLAIM_TTL must be positive")
	}
	if cfg.ConflictRetries < 0 {
		return cfg, fmt.Errorf("TASK_CONFLICT_RETRIES must not be negative")
	}

	return cfg, nil
}

// BotEnabled reports whether the Telegram surface should start.
func (c Config) BotEnabled() bool {
	return c.TelegramToken != ""
}
