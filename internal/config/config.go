// Package config loads server configuration from a YAML file, a .env file and the
// process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // embedded zone database

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when config validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config holds all server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Reports  ReportsConfig  `yaml:"reports"`
	Log      LogConfig      `yaml:"log"`
	SeedDemo bool           `yaml:"seed_demo"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	LiveIdleTimeout time.Duration `yaml:"live_idle_timeout"` // websocket sessions
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

// CatalogConfig points at a directory of report templates. Empty loads none.
type CatalogConfig struct {
	Dir string `yaml:"dir"`
}

// ReportsConfig tunes the analytics engine.
type ReportsConfig struct {
	Timezone          string `yaml:"timezone"`
	CacheSize         int    `yaml:"cache_size"`
	ParallelThreshold int    `yaml:"parallel_threshold"`
	Workers           int    `yaml:"workers"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  30 * time.Second,
			LiveIdleTimeout: 30 * time.Minute,
		},
		Database: DatabaseConfig{Driver: DriverSQLite, URL: "file:reports.db?_pragma=busy_timeout(5000)"},
		Reports: ReportsConfig{
			Timezone:          "Local",
			CacheSize:         256,
			ParallelThreshold: 5000,
			Workers:           4,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (skipped when
// path is empty or missing), then .env, then the environment. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// A missing .env is not an error.
	_ = godotenv.Load()

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("DATABASE_URL", &c.Database.URL)
	str("CATALOG_DIR", &c.Catalog.Dir)
	str("REPORTS_TZ", &c.Reports.Timezone)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PORT %q is not a number", ErrInvalidConfig, v)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("SEED_DEMO"); ok && v != "" {
		seed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: SEED_DEMO %q is not a boolean", ErrInvalidConfig, v)
		}
		c.SeedDemo = seed
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalidConfig, c.Server.Port)
	}
	switch c.Database.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Database.URL == "" {
			return fmt.Errorf("%w: sqlite driver needs a database url", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalidConfig, c.Database.Driver)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Reports.Timezone, err)
	}
	if c.Reports.CacheSize < 0 {
		return fmt.Errorf("%w: cache_size must be >= 0", ErrInvalidConfig)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: log format must be json or console, got %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// Location returns the reporting calendar's time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Reports.Timezone == "" || c.Reports.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Reports.Timezone)
}
