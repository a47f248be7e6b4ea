package config

import (
	"os"
	"strconv"
)

// Config holds all configuration for the weft engine.
type Config struct {
	Port      int
	Version   string
	Database  DatabaseConfig
	Telemetry TelemetryConfig
	Scheduler SchedulerConfig
}

type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. When empty the server
	// runs on the in-memory store with file persistence.
	URL string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type SchedulerConfig struct {
	// Enabled toggles the cron scheduler that fires trigger-schedule nodes.
	Enabled bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("WEFT_PORT", 3001),
		Version: envStr("WEFT_VERSION", "0.1.0"),
		Database: DatabaseConfig{
			URL: envStr("DATABASE_URL", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", true),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "weft-engine"),
		},
		Scheduler: SchedulerConfig{
			Enabled: envBool("WEFT_SCHEDULER_ENABLED", true),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
