package config_test

import (
	"os"
	"testing"

	"github.com/cellbridge/sms-bridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func validEnv() map[string]string {
	return map[string]string{
		"TELEGRAM_BOT_TOKEN":   "123:abc",
		"TELEGRAM_CHAT_ID":     "42",
		"FERNET_ENCRYPTION_KEY": "0123456789abcdef0123456789abcdef",
		"SMTP_HOST":            "smtp.example.com",
		"SMTP_PORT":            "587",
		"SMTP_FROM":            "bridge@example.com",
		"SMTP_TO":              "oncall@example.com",
		"N8N_WEBHOOK_URL":      "https://n8n.example.com/webhook/alerts",
		"N8N_WEBHOOK_SECRET":   "topsecret",
	}
}

func TestLoadAppliesDefaultsAndEnvOverrides(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("WORKER_COUNT", "8")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, 10000, cfg.QueueCapacity)
	assert.Equal(t, 3300, cfg.BatteryLowMV)
}

func TestLoadFailsValidationWhenRequiredMissing(t *testing.T) {
	os.Clearenv()
	_, err := config.Load()
	require.Error(t, err)
}
