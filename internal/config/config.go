// Package config loads AppConfig from the process environment.
// Grounded on fenilsonani-email-server's internal/config/config.go
// (koanf.New + provider.Load + k.Unmarshal, a DefaultConfig() of sane
// fallbacks, then a Validate() pass) but swaps the file+yaml providers
// for koanf/providers/structs (defaults) layered under
// koanf/providers/env (the operator's actual env vars), since the
// bridge is a twelve-factor service with no config file of its own.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	apperrors "github.com/cellbridge/sms-bridge/internal/pkg/errors"
	"github.com/cellbridge/sms-bridge/internal/pkg/validation"
)

var structValidator = validator.New()

// AppConfig is every environment-driven setting the bridge needs, per
// spec §6.
type AppConfig struct {
	ListenAddr string `koanf:"listen_addr" validate:"required"`

	TelegramBotToken string `koanf:"telegram_bot_token" validate:"required"`
	TelegramChatID   int64  `koanf:"telegram_chat_id" validate:"required"`

	FernetEncryptionKey string `koanf:"fernet_encryption_key" validate:"required"`

	SMTPHost string `koanf:"smtp_host" validate:"required"`
	SMTPPort int    `koanf:"smtp_port" validate:"required"`
	SMTPUser string `koanf:"smtp_user"`
	SMTPPass string `koanf:"smtp_pass"`
	SMTPFrom string `koanf:"smtp_from" validate:"required,email"`
	SMTPTo   string `koanf:"smtp_to" validate:"required,email"`

	N8NWebhookURL    string `koanf:"n8n_webhook_url" validate:"required,url"`
	N8NWebhookSecret string `koanf:"n8n_webhook_secret" validate:"required"`

	QueueCapacity int `koanf:"queue_capacity" validate:"min=1"`
	WorkerCount   int `koanf:"worker_count" validate:"min=1"`
	MaxRetries    int `koanf:"max_retries" validate:"min=1"`

	DLOTTLSec int `koanf:"dlo_ttl_sec" validate:"min=1"`
	DLOMax    int `koanf:"dlo_max" validate:"min=1"`

	CTOCooldownSec int `koanf:"cto_cooldown_sec" validate:"min=1"`

	HeartbeatTimeoutSec int `koanf:"heartbeat_timeout_sec" validate:"min=1"`
	BatteryLowMV        int `koanf:"battery_low_mv" validate:"min=1"`
	WifiWeakDBM         int `koanf:"wifi_weak_dbm"`

	QueueDurableRedisAddr string `koanf:"queue_durable_redis_addr"`
}

// defaults mirrors the teacher's DefaultConfig(): every field the
// operator might reasonably not set, given a value a bridge can boot
// with out of the box.
func defaults() AppConfig {
	return AppConfig{
		ListenAddr:          ":8080",
		QueueCapacity:       10000,
		WorkerCount:         4,
		MaxRetries:          5,
		DLOTTLSec:           72 * 3600,
		DLOMax:              1000,
		CTOCooldownSec:      300,
		HeartbeatTimeoutSec: 120,
		BatteryLowMV:        3300,
		WifiWeakDBM:         -100,
	}
}

// Load builds an AppConfig from environment variables. Every key is the
// upper-cased form of its koanf tag (e.g. telegram_bot_token →
// TELEGRAM_BOT_TOKEN).
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "failed to load default configuration")
	}

	envProvider := env.Provider("", ".", func(s string) string {
		return strings.ToLower(s)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "failed to load environment configuration")
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "failed to unmarshal configuration")
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks structural constraints the validator tags can't
// express (cross-field rules, format specifics the teacher's
// internal/pkg/validation package already knows how to check).
func Validate(cfg *AppConfig) error {
	if err := structValidator.Struct(cfg); err != nil {
		return apperrors.Wrap(err, apperrors.InvalidInput, "configuration failed validation")
	}
	if err := validation.ValidateURL(cfg.N8NWebhookURL); err != nil {
		return err
	}
	if err := validation.ValidatePort(cfg.SMTPPort); err != nil {
		return err
	}
	if _, err := time.ParseDuration(fmt.Sprintf("%ds", cfg.DLOTTLSec)); err != nil {
		return apperrors.Wrap(err, apperrors.InvalidInput, "dlo_ttl_sec is not a valid duration in seconds")
	}
	return nil
}
