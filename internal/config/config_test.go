package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, defaultHTTPPort, cfg.HTTPPort)
	assert.Equal(t, defaultMetricsPort, cfg.MetricsPort)
	assert.Equal(t, defaultDatabasePath, cfg.DatabasePath)
	assert.Equal(t, defaultLogLevel, cfg.LogLevel)
	assert.Empty(t, cfg.MQTTBrokerURL)
	assert.True(t, cfg.MDNSEnabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("IRRISYNC_HTTP_PORT", "9999")
	t.Setenv("IRRISYNC_METRICS_PORT", "9998")
	t.Setenv("IRRISYNC_DATABASE_PATH", "/tmp/test.db")
	t.Setenv("IRRISYNC_LOG_LEVEL", "debug")
	t.Setenv("IRRISYNC_MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("IRRISYNC_MDNS", "off")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.HTTPPort)
	assert.Equal(t, 9998, cfg.MetricsPort)
	assert.Equal(t, "/tmp/test.db", cfg.DatabasePath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTTBrokerURL)
	assert.False(t, cfg.MDNSEnabled)
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	t.Setenv("IRRISYNC_HTTP_PORT", "not-a-port")

	_, err := Load()
	assert.Error(t, err)
}
