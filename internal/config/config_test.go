package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "ticketing", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.False(t, cfg.MQTT.Enabled)

	assert.Equal(t, 100, cfg.Ingestion.BatchSize)
	assert.Equal(t, 10*time.Second, cfg.Ingestion.Timeout)
	assert.Equal(t, "venue/+/sensor/+/data", cfg.Ingestion.Topic)
	assert.Equal(t, "venue:sensor:stream", cfg.Ingestion.Stream)

	assert.Equal(t, 100, cfg.Capacity.DefaultMaxCapacity)
	assert.Equal(t, 24, cfg.Environment.DefaultHours)
	assert.Equal(t, time.Hour, cfg.Maintenance.DedupWindow)
	assert.Equal(t, "postgres", cfg.Tickets.Backend)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Clearenv()
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("MQTT_ENABLED", "true")
	t.Setenv("INGEST_BATCH_SIZE", "250")
	t.Setenv("INGEST_TIMEOUT", "3s")
	t.Setenv("SENSOR_API_KEY", "secret")
	t.Setenv("MAINTENANCE_DEDUP_WINDOW", "0s")
	t.Setenv("REALTIME_ENABLED", "true")
	t.Setenv("REALTIME_VENUES", "venue-a, venue-b,,")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, 250, cfg.Ingestion.BatchSize)
	assert.Equal(t, 3*time.Second, cfg.Ingestion.Timeout)
	assert.Equal(t, "secret", cfg.Ingestion.SensorAPIKey)
	assert.Equal(t, time.Duration(0), cfg.Maintenance.DedupWindow)
	assert.True(t, cfg.Realtime.Enabled)
	assert.Equal(t, []string{"venue-a", "venue-b"}, cfg.Realtime.Venues)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_ConfigFile(t *testing.T) {
	os.Clearenv()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ingestion:
  batch_size: 50
  timeout: 2s
capacity:
  mirror_enabled: true
tickets:
  backend: http
  base_url: http://tickets.internal
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("INGEST_BATCH_SIZE", "75")

	cfg, err := Load()
	require.NoError(t, err)

	// 环境变量优先于文件
	assert.Equal(t, 75, cfg.Ingestion.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Ingestion.Timeout)
	assert.True(t, cfg.Capacity.MirrorEnabled)
	assert.Equal(t, "http", cfg.Tickets.Backend)
	assert.Equal(t, "http://tickets.internal", cfg.Tickets.BaseURL)
}

func TestLoad_InvalidTicketsBackend(t *testing.T) {
	os.Clearenv()
	t.Setenv("TICKETS_BACKEND", "http")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TICKETS_BASE_URL")
}

func TestGetEnv(t *testing.T) {
	os.Clearenv()
	assert.Equal(t, "default-value", getEnv("TEST_KEY", "default-value"))

	t.Setenv("TEST_KEY", "env-value")
	assert.Equal(t, "env-value", getEnv("TEST_KEY", "default-value"))
}
