package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMinimalConfig(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
registration:
  group_link: "https://t.me/+group"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, 30, cfg.Registration.RetentionDays)
	assert.True(t, cfg.Registration.AcceptTypedPhone, "typed phone input defaults on")
	assert.Equal(t, "@hourly", cfg.Registration.SweepSchedule)
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.Equal(t, "user_data.json", cfg.Storage.FilePath)
}

func TestLoadExplicitTypedPhoneOff(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
registration:
  group_link: "https://t.me/+group"
  accept_typed_phone: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Registration.AcceptTypedPhone)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestNormalizeValidation(t *testing.T) {
	base := func() *Config {
		return &Config{
			Telegram:     TelegramConfig{Token: "123:abc"},
			Registration: RegistrationConfig{GroupLink: "https://t.me/+group"},
		}
	}

	t.Run("token required", func(t *testing.T) {
		cfg := base()
		cfg.Telegram.Token = ""
		assert.Error(t, Normalize(cfg))
	})

	t.Run("group link required", func(t *testing.T) {
		cfg := base()
		cfg.Registration.GroupLink = "  "
		assert.Error(t, Normalize(cfg))
	})

	t.Run("polling alias accepted", func(t *testing.T) {
		cfg := base()
		cfg.Telegram.RunMode = "Polling"
		require.NoError(t, Normalize(cfg))
		assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	})

	t.Run("unknown run mode rejected", func(t *testing.T) {
		cfg := base()
		cfg.Telegram.RunMode = "carrier-pigeon"
		assert.Error(t, Normalize(cfg))
	})

	t.Run("webhook mode needs url and port", func(t *testing.T) {
		cfg := base()
		cfg.Telegram.RunMode = RunModeWebhook
		assert.Error(t, Normalize(cfg))

		cfg.Webhook = WebhookConfig{URL: "https://bot.example.com", Listen: "0.0.0.0", Port: 8443}
		assert.NoError(t, Normalize(cfg))
	})

	t.Run("negative retention rejected", func(t *testing.T) {
		cfg := base()
		cfg.Registration.RetentionDays = -1
		assert.Error(t, Normalize(cfg))
	})

	t.Run("postgres backend needs connection fields", func(t *testing.T) {
		cfg := base()
		cfg.Storage.Backend = BackendPostgres
		assert.Error(t, Normalize(cfg))

		cfg.Storage.Database = DatabaseConfig{Host: "localhost", Port: "5432", User: "bot", Name: "bot"}
		require.NoError(t, Normalize(cfg))
		assert.Equal(t, "disable", cfg.Storage.Database.SSLMode)
		assert.Equal(t, 4, cfg.Storage.Database.MaxConnections)
	})

	t.Run("unknown backend rejected", func(t *testing.T) {
		cfg := base()
		cfg.Storage.Backend = "etcd"
		assert.Error(t, Normalize(cfg))
	})
}
