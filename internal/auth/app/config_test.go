package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"AUTH_CONFIG_FILE", "AUTH_ISSUER", "AUTH_DATABASE_FILE", "AUTH_PEPPER_FILE",
		"AUTH_ENCRYPTION_KEY_FILE", "AUTH_REDIS_ADDR", "AUTH_NOTIFY_STREAM", "AUTH_BREACH_CHECK",
		"AUTH_PWNED_URL", "AUTH_PWNED_PER_SECOND", "AUTH_COOKIE_SECURE", "AUTH_COOKIE_DOMAIN",
		"ENV", "LOG_LEVEL", "LOG_FORMAT", "PORT", "SHUTDOWN_GRACE_PERIOD", "HOUSEKEEPING_INTERVAL",
		"RATELIMIT_GLOBAL_REQUESTS", "RATELIMIT_GLOBAL_INTERVAL_MS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, defaultConfig(), cfg)
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "auth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
issuer: acme
redis_addr: redis://cache:6379/0
breach_check: false
port: 9090
housekeeping_interval: 15m
`), 0o600))

	t.Setenv("AUTH_CONFIG_FILE", path)
	t.Setenv("PORT", "7070")
	t.Setenv("RATELIMIT_GLOBAL_REQUESTS", "500")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "acme", cfg.Issuer)
	require.Equal(t, "redis://cache:6379/0", cfg.RedisAddr)
	require.False(t, cfg.BreachCheck)
	require.Equal(t, 7070, cfg.Port, "env wins over file")
	require.Equal(t, 15*time.Minute, cfg.HousekeepingInterval)
	require.Equal(t, 500, cfg.GlobalLimit.Requests)
	require.Equal(t, time.Second, cfg.GlobalLimit.Interval)
}

func TestLoadConfigBadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "auth.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [not a number"), 0o600))
	t.Setenv("AUTH_CONFIG_FILE", path)

	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("AUTH_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_BOOL", "false")
	t.Setenv("X_DURATION", "90")
	t.Setenv("X_FLOAT", "-1")

	require.False(t, getEnvBoolOrDefault("X_BOOL", true))
	require.True(t, getEnvBoolOrDefault("X_UNSET", true))
	require.Equal(t, 90*time.Minute, getEnvDurationOrDefault("X_DURATION", time.Second))
	require.Equal(t, 2.5, getEnvFloatOrDefault("X_FLOAT", 2.5))
}
