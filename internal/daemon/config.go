// Package daemon manages the PuffQuest daemon lifecycle and configuration.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds all daemon configuration.
type Config struct {
	Storage   StorageConfig   `toml:"storage"`
	API       APIConfig       `toml:"api"`
	Calendar  CalendarConfig  `toml:"calendar"`
	Rollover  RolloverConfig  `toml:"rollover"`
	Cache     CacheConfig     `toml:"cache"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	Dir string `toml:"dir"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host          string   `toml:"host"`
	Port          int      `toml:"port"`
	CORSOrigins   []string `toml:"cors_origins"`
	RatePerSecond float64  `toml:"rate_per_second"`
	RateBurst     int      `toml:"rate_burst"`
}

// CalendarConfig sets where days begin and end.
type CalendarConfig struct {
	Timezone string `toml:"timezone"`
}

// RolloverConfig controls the day-change loop.
type RolloverConfig struct {
	Enabled     bool   `toml:"enabled"`
	Interval    string `toml:"interval"`
	CatchUpDays int    `toml:"catch_up_days"`
}

// CacheConfig controls the optional Redis day-count cache.
type CacheConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	TTL      string `toml:"ttl"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxFiles   int    `toml:"max_files"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// TelemetryConfig toggles the Prometheus endpoint.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := puffquestHome()
	return Config{
		Storage: StorageConfig{
			Dir: homeDir,
		},
		API: APIConfig{
			Host:          "127.0.0.1",
			Port:          8787,
			CORSOrigins:   []string{"*"},
			RatePerSecond: 5,
			RateBurst:     10,
		},
		Calendar: CalendarConfig{
			Timezone: "Local",
		},
		Rollover: RolloverConfig{
			Enabled:     true,
			Interval:    "15m",
			CatchUpDays: 7,
		},
		Cache: CacheConfig{
			Addr: "127.0.0.1:6379",
			TTL:  "48h",
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       filepath.Join(homeDir, "puffquest.log"),
			MaxSizeMB:  50,
			MaxFiles:   5,
			MaxAgeDays: 30,
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
	}
}

// LoadConfig reads $PUFFQUEST_HOME/config.toml, falling back to defaults.
// A .env file in the home directory is loaded first, and PUFFQUEST_*
// environment variables override file values.
func LoadConfig() (Config, error) {
	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(filepath.Join(puffquestHome(), ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()
	path := ConfigPath()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PUFFQUEST_TIMEZONE"); v != "" {
		cfg.Calendar.Timezone = v
	}
	if v := os.Getenv("PUFFQUEST_REDIS_ADDR"); v != "" {
		cfg.Cache.Addr = v
		cfg.Cache.Enabled = true
	}
	if v := os.Getenv("PUFFQUEST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PUFFQUEST_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PUFFQUEST_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}
	return nil
}

// Validate rejects configuration the daemon cannot start with.
func (c Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.Rollover.CatchUpDays < 0 {
		return fmt.Errorf("rollover.catch_up_days must not be negative")
	}
	if _, err := parseDuration(c.Rollover.Interval, "rollover.interval"); err != nil {
		return err
	}
	if _, err := parseDuration(c.Cache.TTL, "cache.ttl"); err != nil {
		return err
	}
	return nil
}

// RolloverInterval returns the parsed rollover period (0 means default).
func (c Config) RolloverInterval() time.Duration {
	d, _ := parseDuration(c.Rollover.Interval, "rollover.interval")
	return d
}

// CacheTTL returns the parsed cache TTL (0 means default).
func (c Config) CacheTTL() time.Duration {
	d, _ := parseDuration(c.Cache.TTL, "cache.ttl")
	return d
}

// DataDir returns the storage directory.
func (c Config) DataDir() string {
	if c.Storage.Dir != "" {
		return c.Storage.Dir
	}
	return puffquestHome()
}

// SaveConfig writes the config to $PUFFQUEST_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// ConfigPath returns the config file location.
func ConfigPath() string {
	return filepath.Join(puffquestHome(), "config.toml")
}

// puffquestHome returns the PuffQuest data directory.
func puffquestHome() string {
	if env := os.Getenv("PUFFQUEST_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".puffquest")
}

// Home is exported for use by other packages.
func Home() string {
	return puffquestHome()
}

// parseDuration parses an optional duration; "" means 0.
func parseDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}
