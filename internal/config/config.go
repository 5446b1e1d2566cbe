package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"tracelatency/internal/runtime"
	"tracelatency/pkg/api"
)

const (
	EnvFile         = "TLAT_ENV_FILE"
	EnvMode         = "TLAT_MODE"
	EnvFrameBudget  = "TLAT_FRAME_BUDGET_MS"
	EnvMaxBytes     = "TLAT_MAX_BYTES"
	EnvLogLevel     = "TLAT_LOG_LEVEL"
	EnvLogFormat    = "TLAT_LOG_FORMAT"
	EnvConcurrency  = "TLAT_CONCURRENCY"
	EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

// Config holds runtime settings. Values come from the environment (optionally
// seeded by a .env file) and may be overridden by command-line flags.
type Config struct {
	Mode          api.Mode
	FrameBudgetMS float64
	MaxBytes      int64
	LogLevel      slog.Level
	LogFormat     string
	Concurrency   int
	OTLPEndpoint  string

	// Warnings lists settings that were invalid and replaced by defaults.
	Warnings []string
}

func Default() *Config {
	return &Config{
		Mode:          api.LastPaint,
		FrameBudgetMS: api.DefaultFrameBudgetMS,
		MaxBytes:      runtime.DefaultMaxBytes,
		LogLevel:      slog.LevelInfo,
		LogFormat:     "text",
		Concurrency:   4,
	}
}

// Load reads the .env file named by TLAT_ENV_FILE (default ".env") if it
// exists, then the process environment. Variables already set in the
// environment win over the file.
func Load() (*Config, error) {
	path := os.Getenv(EnvFile)
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Default(), fmt.Errorf("load %s: %w", path, err)
	}
	return FromEnv(os.LookupEnv), nil
}

// FromEnv builds a Config from lookup, falling back to defaults for unset or
// invalid values.
func FromEnv(lookup func(string) (string, bool)) *Config {
	c := Default()
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	invalid := func(key, v string) {
		c.Warnings = append(c.Warnings, fmt.Sprintf("invalid %s=%q, using default", key, v))
	}

	if v, ok := get(EnvMode); ok {
		if m, err := api.ParseMode(v); err == nil {
			c.Mode = m
		} else {
			invalid(EnvMode, v)
		}
	}
	if v, ok := get(EnvFrameBudget); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.FrameBudgetMS = f
		} else {
			invalid(EnvFrameBudget, v)
		}
	}
	if v, ok := get(EnvMaxBytes); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.MaxBytes = n
		} else {
			invalid(EnvMaxBytes, v)
		}
	}
	if v, ok := get(EnvLogLevel); ok {
		if err := c.LogLevel.UnmarshalText([]byte(v)); err != nil {
			c.LogLevel = slog.LevelInfo
			invalid(EnvLogLevel, v)
		}
	}
	if v, ok := get(EnvLogFormat); ok {
		switch strings.ToLower(v) {
		case "text", "json":
			c.LogFormat = strings.ToLower(v)
		default:
			invalid(EnvLogFormat, v)
		}
	}
	if v, ok := get(EnvConcurrency); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Concurrency = n
		} else {
			invalid(EnvConcurrency, v)
		}
	}
	if v, ok := get(EnvOTLPEndpoint); ok {
		c.OTLPEndpoint = v
	}
	return c
}

func (c *Config) Options() api.Options {
	return api.Options{Mode: c.Mode, FrameBudgetMS: c.FrameBudgetMS}
}
