package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the timing service. Values come from an
// optional YAML file, overridden by environment variables.
type Config struct {
	Addr           string   `yaml:"addr"`
	DataDir        string   `yaml:"data_dir"`
	LogLevel       string   `yaml:"log_level"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	TickIntervalMS  int `yaml:"tick_interval_ms"`
	DebounceMS      int `yaml:"debounce_ms"`
	AutosaveQuietMS int `yaml:"autosave_quiet_ms"`
	StalenessHours  int `yaml:"staleness_hours"`
	SnapshotCapMB   int `yaml:"snapshot_cap_mb"`
}

func defaults() *Config {
	return &Config{
		Addr:            ":8080",
		DataDir:         "./data",
		LogLevel:        "info",
		TickIntervalMS:  100,
		DebounceMS:      200,
		AutosaveQuietMS: 500,
		StalenessHours:  24,
		SnapshotCapMB:   5,
	}
}

// Load reads path if it exists and applies env overrides. A missing file is
// not an error; defaults carry the service.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.Addr = getEnv("XCTIMER_ADDR", cfg.Addr)
	cfg.DataDir = getEnv("XCTIMER_DATA_DIR", cfg.DataDir)
	cfg.LogLevel = getEnv("XCTIMER_LOG_LEVEL", cfg.LogLevel)
	cfg.TickIntervalMS = getEnvAsInt("XCTIMER_TICK_INTERVAL_MS", cfg.TickIntervalMS)
	cfg.DebounceMS = getEnvAsInt("XCTIMER_DEBOUNCE_MS", cfg.DebounceMS)
	cfg.AutosaveQuietMS = getEnvAsInt("XCTIMER_AUTOSAVE_QUIET_MS", cfg.AutosaveQuietMS)
	cfg.StalenessHours = getEnvAsInt("XCTIMER_STALENESS_HOURS", cfg.StalenessHours)
	cfg.SnapshotCapMB = getEnvAsInt("XCTIMER_SNAPSHOT_CAP_MB", cfg.SnapshotCapMB)

	return cfg, nil
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

func (c *Config) AutosaveQuiet() time.Duration {
	return time.Duration(c.AutosaveQuietMS) * time.Millisecond
}

func (c *Config) Staleness() time.Duration {
	return time.Duration(c.StalenessHours) * time.Hour
}

func (c *Config) SnapshotCapBytes() int {
	return c.SnapshotCapMB << 20
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
