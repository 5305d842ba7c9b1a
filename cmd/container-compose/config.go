package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Readiness ReadinessConfig `mapstructure:"readiness"`
	Volumes   VolumesConfig   `mapstructure:"volumes"`
	Log       LogConfig       `mapstructure:"log"`
}

// RuntimeConfig selects the container runtime CLI.
type RuntimeConfig struct {
	Binary string `mapstructure:"binary"`
	// Parallelism caps concurrent service starts. 0 means unlimited.
	Parallelism int `mapstructure:"parallelism"`
}

// ReadinessConfig bounds dependency condition polling.
type ReadinessConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Retries  int           `mapstructure:"retries"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// VolumesConfig places named volume directories.
type VolumesConfig struct {
	// Root overrides ~/.containers/Volumes.
	Root string `mapstructure:"root"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// =============================================================================
// Config Loading
// =============================================================================

// EnvPrefix prefixes every environment override, e.g. CONTAINER_COMPOSE_RUNTIME_BINARY.
const EnvPrefix = "CONTAINER_COMPOSE"

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("runtime.binary", "container")
	v.SetDefault("runtime.parallelism", 0)
	v.SetDefault("readiness.interval", "2s")
	v.SetDefault("readiness.retries", 30)
	v.SetDefault("readiness.timeout", "2m")
	v.SetDefault("volumes.root", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only a file that exists and fails to parse is an error
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Runtime.Parallelism < 0 {
		return nil, fmt.Errorf("runtime.parallelism must not be negative, got %d", cfg.Runtime.Parallelism)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
