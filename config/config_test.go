package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"ENV", "LOG_LEVEL", "HOST", "PORT", "WEBHOOK_BASE_URL", "WEBHOOK_SECRET",
	"BOT_TOKEN", "TELEGRAM_API_ENDPOINT", "DEFAULT_LANG", "ADMIN_IDS",
	"STORE_TYPE", "STORE_TIMEOUT", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"SQLITE_PATH", "DATABASE_URL", "DELIVERY_TIMEOUT", "OBSERVER_TIMEOUT",
	"OBSERVER_CONCURRENCY",
}

// clearEnv unsets every variable Load reads, restoring them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_TOKEN", "123:abc")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, "en", cfg.Bot.DefaultLang)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Delivery.Timeout)
	assert.Empty(t, cfg.Bot.AdminIDs)
	assert.Empty(t, cfg.WebhookURL())
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_MissingToken(t *testing.T) {
	clearEnv(t)

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Token")
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
env: development
server:
  port: 9000
  webhook_base_url: https://bot.example.com/
bot:
  token: from-file
  default_lang: hi
  admin_ids: [1, 2]
store:
  type: redis
  timeout: 2s
  redis:
    addr: redis:6379
`)
	t.Setenv("PORT", "9100")
	t.Setenv("ADMIN_IDS", " 7, 8 ,7,, ")
	t.Setenv("WEBHOOK_SECRET", "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "from-file", cfg.Bot.Token)
	assert.Equal(t, "hi", cfg.Bot.DefaultLang)
	assert.Equal(t, []int64{7, 8}, cfg.Bot.AdminIDs)
	assert.Equal(t, "redis", cfg.Store.Type)
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, 2*time.Second, cfg.Store.Timeout)
	assert.Equal(t, "https://bot.example.com/webhook/s3cret", cfg.WebhookURL())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_TOKEN", "123:abc")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_BadEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_TOKEN", "123:abc")

	t.Run("port", func(t *testing.T) {
		t.Setenv("PORT", "http")
		_, err := Load("")
		assert.Error(t, err)
	})
	t.Run("admin ids", func(t *testing.T) {
		t.Setenv("ADMIN_IDS", "1,two")
		_, err := Load("")
		assert.ErrorContains(t, err, "ADMIN_IDS")
	})
	t.Run("duration", func(t *testing.T) {
		t.Setenv("STORE_TIMEOUT", "soon")
		_, err := Load("")
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Bot.Token = "123:abc"
		return c
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"unknown store", func(c *Config) { c.Store.Type = "mongo" }},
		{"redis without addr", func(c *Config) { c.Store.Type = "redis"; c.Store.Redis.Addr = "" }},
		{"sqlite without path", func(c *Config) { c.Store.Type = "sqlite"; c.Store.SQLite.Path = "" }},
		{"postgres without url", func(c *Config) { c.Store.Type = "postgres" }},
		{"unsupported language", func(c *Config) { c.Bot.DefaultLang = "fr" }},
		{"zero store timeout", func(c *Config) { c.Store.Timeout = 0 }},
		{"zero delivery timeout", func(c *Config) { c.Delivery.Timeout = 0 }},
		{"bad webhook url", func(c *Config) { c.Server.WebhookBaseURL = "not a url" }},
		{"secret with slash", func(c *Config) { c.Server.WebhookSecret = "a/b" }},
		{"endpoint without verb", func(c *Config) { c.Bot.APIEndpoint = "https://api.telegram.org" }},
	}

	require.NoError(t, valid().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := ParseIDs("")
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = ParseIDs("42, 42,-100123")
	require.NoError(t, err)
	assert.Equal(t, []int64{42, -100123}, ids)
}
