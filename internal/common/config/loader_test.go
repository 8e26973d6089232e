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

// clearEnv blanks every variable the loader falls back to.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TURNSTILE_SECRET_KEY", "FASHN_API_KEY", "REDIS_ADDRESS",
		"DB_HOST", "DB_USER", "DB_PASSWORD", "TRANSFORMATION_API_KEY",
		"DATABASE_REDIS_ADDRESS", "DATABASE_POSTGRES_HOST", "CAMUNDA_BROKER_ADDRESS",
	} {
		t.Setenv(key, "")
	}
}

const minimalConfig = `
database:
  redis:
    address: localhost:6379
turnstile:
  secret_key: secret
transformation:
  api_key: key
`

// ==========================
// Defaults Tests
// ==========================

func TestLoadFromFile_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "avatar-transformer", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "https://unavatar.io", cfg.Avatar.ProxyURL)
	assert.Equal(t, "@fashn-ai/avatar", cfg.RateLimit.Prefix)
	assert.Equal(t, 5, cfg.RateLimit.PerClient.Limit)
	assert.Equal(t, 600000, cfg.RateLimit.PerClient.Window)
	assert.Equal(t, 100, cfg.RateLimit.Daily.Limit)
	assert.Equal(t, 86400000, cfg.RateLimit.Daily.Window)
	assert.Equal(t, ModeSync, cfg.Transformation.Mode)
	assert.Equal(t, "face-to-model", cfg.Transformation.ModelName)
	assert.Equal(t, "2:3", cfg.Transformation.AspectRatio)
	assert.Equal(t, 30, cfg.Poller.MaxAttempts)
	assert.Equal(t, 2000, cfg.Poller.Interval)
	assert.False(t, cfg.Database.Postgres.Enabled())
}

func TestLoadFromFile_WorkerDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromFile(writeConfig(t, minimalConfig+`
workers:
  avatar-transform-profile:
    enabled: true
`))
	require.NoError(t, err)

	worker := GetWorkerConfig(cfg, "avatar-transform-profile")
	assert.True(t, worker.Enabled)
	assert.Equal(t, 5, worker.MaxJobsActive)
	assert.Equal(t, 120000, worker.Timeout)
	assert.Equal(t, 3, worker.MaxRetries)
	assert.True(t, IsWorkerEnabled(cfg, "unknown-worker"))
}

// ==========================
// Environment Tests
// ==========================

func TestLoadFromFile_Environment(t *testing.T) {
	t.Run("placeholders expand", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("FASHN_TEST_KEY", "from-placeholder")

		cfg, err := LoadFromFile(writeConfig(t, `
database:
  redis:
    address: localhost:6379
turnstile:
  secret_key: secret
transformation:
  api_key: ${FASHN_TEST_KEY}
`))
		require.NoError(t, err)
		assert.Equal(t, "from-placeholder", cfg.Transformation.APIKey)
	})

	t.Run("unset placeholder falls back to the conventional variable", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("FASHN_API_KEY", "from-fallback")

		cfg, err := LoadFromFile(writeConfig(t, `
database:
  redis:
    address: localhost:6379
  postgres:
    host: ${DB_HOST}
turnstile:
  secret_key: secret
transformation:
  api_key: ${UNSET_FASHN_KEY}
`))
		require.NoError(t, err)
		assert.Equal(t, "from-fallback", cfg.Transformation.APIKey)
		assert.False(t, cfg.Database.Postgres.Enabled())
	})

	t.Run("secrets come from the environment alone", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TURNSTILE_SECRET_KEY", "env-secret")
		t.Setenv("TRANSFORMATION_API_KEY", "env-key")
		t.Setenv("DATABASE_REDIS_ADDRESS", "redis:6379")

		cfg, err := LoadFromFile(writeConfig(t, "app:\n  environment: test\n"))
		require.NoError(t, err)
		assert.Equal(t, "env-secret", cfg.Turnstile.SecretKey)
		assert.Equal(t, "env-key", cfg.Transformation.APIKey)
		assert.Equal(t, "redis:6379", cfg.Database.Redis.Address)
	})
}

// ==========================
// Validation Tests
// ==========================

func TestLoadFromFile_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		extra     string
		base      string
		expectErr string
	}{
		{
			name:      "missing redis",
			base:      "turnstile:\n  secret_key: s\ntransformation:\n  api_key: k\n",
			expectErr: "database.redis.address is required",
		},
		{
			name:      "unknown mode",
			base:      minimalConfig,
			extra:     "  mode: batch\n",
			expectErr: "transformation.mode",
		},
		{
			name:      "camunda without broker",
			base:      minimalConfig,
			extra:     "camunda:\n  enabled: true\n  broker_address: \"\"\n",
			expectErr: "camunda.broker_address",
		},
		{
			name:      "postgres without database",
			base:      "turnstile:\n  secret_key: s\ntransformation:\n  api_key: k\n",
			extra:     "database:\n  redis:\n    address: localhost:6379\n  postgres:\n    host: db\n    user: u\n",
			expectErr: "database.postgres.database",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := LoadFromFile(writeConfig(t, tt.base+tt.extra))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectErr)
		})
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, "1.5s", GetDuration(1500).String())
}
