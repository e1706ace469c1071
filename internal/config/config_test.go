package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DSN")
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/tanks")
	t.Setenv("JWT_SECRET", "devsecret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.API.Port)
	assert.Equal(t, "/api", cfg.API.BasePath)
	assert.Equal(t, float64(65), cfg.Alert.Threshold)
	assert.Equal(t, 168, cfg.Auth.TokenTTLHours)
	assert.Equal(t, 500, cfg.Notification.QueueSize)
	assert.Equal(t, 10, cfg.Notification.MaxWorkers)
	assert.Equal(t, "logs", cfg.Logging.Dir)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/tanks")
	t.Setenv("JWT_SECRET", "devsecret")
	t.Setenv("ALERT_THRESHOLD", "80")
	t.Setenv("API_PORT", ":9000")
	t.Setenv("API_BASE_PATH", "/api/v1")
	t.Setenv("MAX_WORKERS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, float64(80), cfg.Alert.Threshold)
	assert.Equal(t, ":9000", cfg.API.Port)
	assert.Equal(t, "/api/v1", cfg.API.BasePath)
	assert.Equal(t, 3, cfg.Notification.MaxWorkers)
}
