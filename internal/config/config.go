package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config lists the tunable parameters for the irrigation server.
type Config struct {
	HTTPPort      int
	MetricsPort   int
	DatabasePath  string
	LogLevel      string
	MQTTBrokerURL string
	MDNSEnabled   bool
}

const (
	defaultHTTPPort     = 8080
	defaultMetricsPort  = 9090
	defaultDatabasePath = "data/irrisync.db"
	defaultLogLevel     = "info"
)

// Load derives configuration values from environment variables, falling back to defaults.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:     defaultHTTPPort,
		MetricsPort:  defaultMetricsPort,
		DatabasePath: defaultDatabasePath,
		LogLevel:     defaultLogLevel,
		MDNSEnabled:  true,
	}

	if v := os.Getenv("IRRISYNC_HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid IRRISYNC_HTTP_PORT: %w", err)
		}
		cfg.HTTPPort = port
	}

	if v := os.Getenv("IRRISYNC_METRICS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid IRRISYNC_METRICS_PORT: %w", err)
		}
		cfg.MetricsPort = port
	}

	if v := os.Getenv("IRRISYNC_DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}

	if v := os.Getenv("IRRISYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	// Empty means the MQTT ingest path stays disabled.
	cfg.MQTTBrokerURL = os.Getenv("IRRISYNC_MQTT_BROKER")

	if v := os.Getenv("IRRISYNC_MDNS"); v != "" {
		switch strings.ToLower(v) {
		case "off", "false", "0", "disabled":
			cfg.MDNSEnabled = false
		}
	}

	return cfg, nil
}
