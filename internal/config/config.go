package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

var ErrInvalidConfig = errors.New("invalid config")

// ApplyEnv overrides file settings with HEALTHBUDDY_* variables and
// ANTHROPIC_API_KEY.
func ApplyEnv(cfg *LocalConfig) {
	cfg.Daemon.Port = getEnvInt("HEALTHBUDDY_PORT", cfg.Daemon.Port)
	cfg.Daemon.Bind = getEnv("HEALTHBUDDY_BIND", cfg.Daemon.Bind)
	cfg.Daemon.LogLevel = getEnv("HEALTHBUDDY_LOG_LEVEL", cfg.Daemon.LogLevel)

	cfg.Onboarding.FlowPath = getEnv("HEALTHBUDDY_FLOW_PATH", cfg.Onboarding.FlowPath)
	cfg.Onboarding.AnalysisDelayMS = getEnvInt("HEALTHBUDDY_ANALYSIS_DELAY_MS", cfg.Onboarding.AnalysisDelayMS)

	cfg.Storage.Backend = getEnv("HEALTHBUDDY_STORAGE", cfg.Storage.Backend)
	cfg.Storage.Path = getEnv("HEALTHBUDDY_DB_PATH", cfg.Storage.Path)
	cfg.Storage.RedisAddr = getEnv("HEALTHBUDDY_REDIS_ADDR", cfg.Storage.RedisAddr)
	cfg.Storage.RedisPassword = getEnv("HEALTHBUDDY_REDIS_PASSWORD", cfg.Storage.RedisPassword)

	cfg.Archive.PostgresURL = getEnv("HEALTHBUDDY_POSTGRES_URL", cfg.Archive.PostgresURL)

	if url := os.Getenv("HEALTHBUDDY_AMQP_URL"); url != "" {
		cfg.Events.AMQPURL = url
		cfg.Events.Enabled = true
	}
	cfg.Events.Enabled = getEnvBool("HEALTHBUDDY_EVENTS", cfg.Events.Enabled)
	cfg.Events.Consume = getEnvBool("HEALTHBUDDY_EVENTS_CONSUME", cfg.Events.Consume)

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		p, ok := cfg.LLM.Providers["claude"]
		if !ok {
			p = &ProviderConfig{Enabled: true}
			if cfg.LLM.Providers == nil {
				cfg.LLM.Providers = make(map[string]*ProviderConfig)
			}
			cfg.LLM.Providers["claude"] = p
		}
		p.APIKey = key
	}
}

// Validate checks values the daemon cannot start without.
func (c *LocalConfig) Validate() error {
	if c.Daemon.Port <= 0 || c.Daemon.Port > 65535 {
		return fmt.Errorf("%w: daemon.port %d out of range", ErrInvalidConfig, c.Daemon.Port)
	}
	switch strings.ToLower(c.Daemon.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: daemon.log_level %q", ErrInvalidConfig, c.Daemon.LogLevel)
	}
	switch c.Storage.Backend {
	case StorageLocal, StorageSQLite, StorageRedis:
	default:
		return fmt.Errorf("%w: storage.backend %q (want local, sqlite or redis)", ErrInvalidConfig, c.Storage.Backend)
	}
	if c.Onboarding.AnalysisDelayMS < 0 {
		return fmt.Errorf("%w: onboarding.analysis_delay_ms must not be negative", ErrInvalidConfig)
	}
	if c.Events.Consume && !c.Archive.Enabled() {
		return fmt.Errorf("%w: events.consume needs archive.postgres_url", ErrInvalidConfig)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
